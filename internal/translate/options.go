// Package translate implements the pure, side-effect-free conversions
// between the Ollama wire shape and the upstream OpenAI-compatible
// call shape (spec.md §4.2). Every function here either succeeds or
// returns a *gatewayerr.Error; it never retries and never performs I/O.
package translate

import (
	"github.com/modelplex/ollamagw/internal/ollamaapi"
	"github.com/modelplex/ollamagw/internal/openaiapi"
)

// applyOptions maps the Ollama options map onto req, dropping the
// options with no upstream analogue (top_k, num_ctx) per spec.md §4.2.2,
// and only setting a field when the caller actually supplied it.
func applyOptions(opts ollamaapi.Options, req *openaiapi.ChatCompletionRequest) {
	req.Temperature = opts.Temperature
	req.TopP = opts.TopP
	req.Seed = opts.Seed
	req.MaxTokens = opts.NumPredict
	req.FrequencyPenalty = opts.FrequencyPenalty
	req.PresencePenalty = opts.PresencePenalty
	if len(opts.Stop) > 0 {
		req.Stop = opts.Stop
	}
}

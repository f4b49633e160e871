package translate

import (
	"errors"

	"github.com/modelplex/ollamagw/internal/gatewayerr"
	"github.com/modelplex/ollamagw/internal/ollamaapi"
	"github.com/modelplex/ollamagw/internal/openaiapi"
)

var errEmptyEmbedding = errors.New("upstream returned no embedding data")

// EmbedToUpstream converts an EmbedRequest into the upstream embedding
// call (spec.md §4.2.4). The Ollama shape is always a single string,
// even though the upstream also accepts batches.
func EmbedToUpstream(req ollamaapi.EmbedRequest) (openaiapi.EmbeddingRequest, error) {
	if req.Model == "" {
		return openaiapi.EmbeddingRequest{}, gatewayerr.RequestShape("model", "must not be empty")
	}
	prompt := req.EffectivePrompt()
	if prompt == "" {
		return openaiapi.EmbeddingRequest{}, gatewayerr.RequestShape("prompt", "must not be empty")
	}

	return openaiapi.EmbeddingRequest{Model: req.Model, Input: prompt}, nil
}

// EmbedResponseFromUpstream wraps the upstream embedding vector in the
// singular-field Ollama shape, preserving its length exactly (I6).
func EmbedResponseFromUpstream(resp *openaiapi.EmbeddingResponse) (ollamaapi.EmbedResponse, error) {
	if len(resp.Data) == 0 {
		return ollamaapi.EmbedResponse{}, gatewayerr.Wrap(gatewayerr.KindUpstreamFatal, errEmptyEmbedding)
	}
	return ollamaapi.EmbedResponse{Embedding: resp.Data[0].Embedding}, nil
}

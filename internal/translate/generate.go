package translate

import (
	"log/slog"

	"github.com/modelplex/ollamagw/internal/gatewayerr"
	"github.com/modelplex/ollamagw/internal/ollamaapi"
	"github.com/modelplex/ollamagw/internal/openaiapi"
)

// GenerateToUpstream converts a GenerateRequest into the upstream chat
// completion call that backs it (spec.md §4.2.2). /api/generate has no
// direct upstream analogue; a single-turn generate is modeled as a
// one- or two-message chat.
//
// template, raw, and context have no upstream representation. Their
// presence never fails the request (spec.md §4.2.2); they are simply
// not forwarded, and a debug log note records that they were dropped.
func GenerateToUpstream(req ollamaapi.GenerateRequest) (openaiapi.ChatCompletionRequest, error) {
	if req.Model == "" {
		return openaiapi.ChatCompletionRequest{}, gatewayerr.RequestShape("model", "must not be empty")
	}

	var messages []openaiapi.Message
	if req.System != "" {
		messages = append(messages, openaiapi.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, openaiapi.Message{Role: "user", Content: req.Prompt})

	out := openaiapi.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	}
	applyOptions(req.Options, &out)

	if req.Template != "" || req.Raw || len(req.Context) > 0 {
		slog.Debug("generate request used fields with no upstream representation",
			"model", req.Model,
			"has_template", req.Template != "",
			"raw", req.Raw,
			"has_context", len(req.Context) > 0,
		)
	}

	applyFormat(req.Format, &out)

	return out, nil
}

// applyFormat maps the Ollama "format" field onto the upstream
// response-format knob (spec.md §4.2.2): "json" turns on JSON-object
// mode; a structured schema is forwarded when present, since modern
// OpenAI-compatible backends accept an arbitrary JSON-schema body
// there and silently ignoring it would violate no invariant but would
// waste a capability the backend offers.
func applyFormat(format any, out *openaiapi.ChatCompletionRequest) {
	switch f := format.(type) {
	case nil:
		return
	case string:
		if f == "json" {
			out.ResponseFormat = map[string]string{"type": "json_object"}
		}
	default:
		out.ResponseFormat = map[string]any{"type": "json_schema", "json_schema": f}
	}
}

// GenerateResponseFromUpstream assembles the unary GenerateResponse
// from an upstream chat completion (spec.md §4.2.5).
func GenerateResponseFromUpstream(
	model string,
	createdAt string,
	resp *openaiapi.ChatCompletionResponse,
	timings ollamaapi.Timings,
) ollamaapi.GenerateResponse {
	var content string
	var finishReason string
	if len(resp.Choices) > 0 {
		content, _ = resp.Choices[0].Message.Content.(string)
		finishReason = resp.Choices[0].FinishReason
	}

	out := ollamaapi.GenerateResponse{
		Model:      model,
		CreatedAt:  createdAt,
		Response:   content,
		Done:       true,
		DoneReason: MapFinishReason(finishReason),
		Timings:    timings,
	}

	if resp.Usage != nil {
		out.PromptEvalCount = resp.Usage.PromptTokens
		out.EvalCount = resp.Usage.CompletionTokens
	}

	return out
}

// MapFinishReason maps an upstream finish_reason onto an Ollama
// done_reason (spec.md §4.2.5): stop->stop, length->length,
// tool_calls->stop, anything else (including empty/unknown)->stop.
func MapFinishReason(reason string) string {
	switch reason {
	case "length":
		return "length"
	default:
		return "stop"
	}
}

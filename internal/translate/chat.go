package translate

import (
	"github.com/modelplex/ollamagw/internal/gatewayerr"
	"github.com/modelplex/ollamagw/internal/ollamaapi"
	"github.com/modelplex/ollamagw/internal/openaiapi"
	"github.com/modelplex/ollamagw/internal/registry"
)

// ChatToUpstream converts a ChatRequest into the upstream chat
// completion call shape (spec.md §4.2.3). Role mapping is identity;
// images are forwarded as multi-modal content parts when the target
// model's registry entry marks it vision-capable, and tools pass
// through as upstream function/tool specs.
func ChatToUpstream(req ollamaapi.ChatRequest) (openaiapi.ChatCompletionRequest, error) {
	if req.Model == "" {
		return openaiapi.ChatCompletionRequest{}, gatewayerr.RequestShape("model", "must not be empty")
	}
	if len(req.Messages) == 0 {
		return openaiapi.ChatCompletionRequest{}, gatewayerr.RequestShape("messages", "must not be empty")
	}

	hasImages := false
	for _, m := range req.Messages {
		if len(m.Images) > 0 {
			hasImages = true
			break
		}
	}
	if hasImages && !registry.VisionCapable(req.Model) {
		return openaiapi.ChatCompletionRequest{}, gatewayerr.New(gatewayerr.KindRequestShape, "images not supported for this model")
	}

	messages := make([]openaiapi.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg := openaiapi.Message{Role: m.Role}

		if len(m.Images) > 0 {
			parts := []openaiapi.ContentPart{{Type: "text", Text: m.Content}}
			for _, img := range m.Images {
				parts = append(parts, openaiapi.ContentPart{
					Type:     "image_url",
					ImageURL: &openaiapi.ImageURL{URL: "data:image/png;base64," + img},
				})
			}
			msg.Content = parts
		} else {
			msg.Content = m.Content
		}

		messages = append(messages, msg)
	}

	out := openaiapi.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	}
	applyOptions(req.Options, &out)
	applyFormat(req.Format, &out)

	if len(req.Tools) > 0 {
		tools := make([]openaiapi.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, openaiapi.Tool{Type: t.Type, Function: t.Function})
		}
		out.Tools = tools
	}

	return out, nil
}

// ChatResponseFromUpstream assembles the unary ChatResponse from an
// upstream chat completion (spec.md §4.2.5), attaching any tool_calls
// verbatim.
func ChatResponseFromUpstream(
	model string,
	createdAt string,
	resp *openaiapi.ChatCompletionResponse,
	timings ollamaapi.Timings,
) ollamaapi.ChatResponse {
	var content string
	var finishReason string
	var toolCalls []ollamaapi.ToolCall

	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		content, _ = choice.Message.Content.(string)
		finishReason = choice.FinishReason
		for _, tc := range choice.Message.ToolCalls {
			toolCalls = append(toolCalls, ollamaapi.ToolCall{
				Function: ollamaapi.ToolCallFunction{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
	}

	out := ollamaapi.ChatResponse{
		Model:     model,
		CreatedAt: createdAt,
		Message: ollamaapi.ChatResponseMessage{
			Role:      "assistant",
			Content:   content,
			ToolCalls: toolCalls,
		},
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

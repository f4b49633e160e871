// Package ollamaapi defines the wire shapes of the Ollama HTTP API as seen
// by clients of this gateway (the Ollama Go SDK and the ollama CLI).
package ollamaapi

// ModelDetails carries the optional per-model metadata block in a tags entry.
type ModelDetails struct {
	ParentModel       string   `json:"parent_model,omitempty"`
	Format            string   `json:"format,omitempty"`
	Family            string   `json:"family,omitempty"`
	Families          []string `json:"families,omitempty"`
	ParameterSize     string   `json:"parameter_size,omitempty"`
	QuantizationLevel string   `json:"quantization_level,omitempty"`
}

// ModelEntry is a single item of a TagsResponse.
type ModelEntry struct {
	Name       string        `json:"name"`
	Model      string        `json:"model"`
	ModifiedAt string        `json:"modified_at"`
	Size       uint64        `json:"size"`
	Digest     string        `json:"digest"`
	Details    *ModelDetails `json:"details,omitempty"`
}

// TagsResponse is the body of GET /api/tags.
type TagsResponse struct {
	Models []ModelEntry `json:"models"`
}

// Options carries the free-form Ollama "options" map accepted by
// generate/chat requests. Only fields the gateway understands are
// typed; any other option key is ignored on decode, so callers adding
// new knobs do not fail the request (forward compatibility, P5).
type Options struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	TopK             *int     `json:"top_k,omitempty"`
	Seed             *int     `json:"seed,omitempty"`
	NumPredict       *int     `json:"num_predict,omitempty"`
	NumCtx           *int     `json:"num_ctx,omitempty"`
	Stop             []string `json:"stop,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
}

// GenerateRequest is the body of POST /api/generate.
type GenerateRequest struct {
	Model     string  `json:"model"`
	Prompt    string  `json:"prompt"`
	Stream    *bool   `json:"stream,omitempty"`
	Raw       bool    `json:"raw,omitempty"`
	Format    any     `json:"format,omitempty"`
	System    string  `json:"system,omitempty"`
	Template  string  `json:"template,omitempty"`
	Context   []int32 `json:"context,omitempty"`
	Options   Options `json:"options,omitempty"`
	KeepAlive string  `json:"keep_alive,omitempty"`
}

// StreamOrDefault reports the effective stream flag, defaulting to true
// when the caller omits it (Ollama's own default).
func (r GenerateRequest) StreamOrDefault() bool {
	if r.Stream == nil {
		return true
	}
	return *r.Stream
}

// ToolCall mirrors an upstream function/tool invocation, forwarded
// verbatim on assistant messages.
type ToolCall struct {
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction is the function payload of a ToolCall.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments"`
}

// ChatMessage is one turn of a ChatRequest/ChatFrame conversation.
type ChatMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Images    []string   `json:"images,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolSchema is an Ollama tool/function definition, forwarded to the
// upstream as-is.
type ToolSchema struct {
	Type     string `json:"type"`
	Function any    `json:"function"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Model     string        `json:"model"`
	Messages  []ChatMessage `json:"messages"`
	Stream    *bool         `json:"stream,omitempty"`
	Format    any           `json:"format,omitempty"`
	Options   Options       `json:"options,omitempty"`
	Tools     []ToolSchema  `json:"tools,omitempty"`
	KeepAlive string        `json:"keep_alive,omitempty"`
}

// StreamOrDefault reports the effective stream flag, defaulting to true.
func (r ChatRequest) StreamOrDefault() bool {
	if r.Stream == nil {
		return true
	}
	return *r.Stream
}

// EmbedRequest is the body of POST /api/embeddings and /api/embed.
// Prompt is the canonical field; Input is accepted as a synonym
// (§4.2.4, §9 Open Questions).
type EmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Input  string `json:"input,omitempty"`
}

// EffectivePrompt resolves the text to embed, preferring Prompt and
// falling back to Input when the caller used the OpenAI-style field
// name instead.
func (r EmbedRequest) EffectivePrompt() string {
	if r.Prompt != "" {
		return r.Prompt
	}
	return r.Input
}

// EmbedResponse is the body of a successful embeddings call. The field
// is deliberately singular ("embedding", not "embeddings") to match
// the Ollama wire shape exactly (I6, §6).
type EmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Timings carries the nanosecond duration/count fields attached to a
// terminal generate/chat frame or a unary response.
type Timings struct {
	TotalDuration      int64 `json:"total_duration"`
	LoadDuration       int64 `json:"load_duration"`
	PromptEvalCount    int   `json:"prompt_eval_count"`
	PromptEvalDuration int64 `json:"prompt_eval_duration"`
	EvalCount          int   `json:"eval_count"`
	EvalDuration       int64 `json:"eval_duration"`
}

// GenerateResponse is the body of the unary (stream=false) /api/generate
// response. Timing fields are always present, even when zero (§4.2.5).
type GenerateResponse struct {
	Model      string  `json:"model"`
	CreatedAt  string  `json:"created_at"`
	Response   string  `json:"response"`
	Done       bool    `json:"done"`
	DoneReason string  `json:"done_reason,omitempty"`
	Context    []int32 `json:"context,omitempty"`
	Timings
}

// GenerateFrame is one line of a streamed /api/generate response. The
// *Timings embed is nil on every non-terminal frame so those timing
// keys are absent from the JSON entirely (I4); the terminal frame sets
// it so they appear.
type GenerateFrame struct {
	Model      string  `json:"model"`
	CreatedAt  string  `json:"created_at"`
	Response   string  `json:"response"`
	Done       bool    `json:"done"`
	DoneReason string  `json:"done_reason,omitempty"`
	Context    []int32 `json:"context,omitempty"`
	Error      string  `json:"error,omitempty"`
	*Timings
}

// ChatResponseMessage is the assistant message carried by a chat
// response or frame.
type ChatResponseMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ChatResponse is the body of the unary (stream=false) /api/chat
// response. Timing fields are always present, even when zero.
type ChatResponse struct {
	Model      string              `json:"model"`
	CreatedAt  string              `json:"created_at"`
	Message    ChatResponseMessage `json:"message"`
	Done       bool                `json:"done"`
	DoneReason string              `json:"done_reason,omitempty"`
	Timings
}

// ChatFrame is one line of a streamed /api/chat response. See
// GenerateFrame for the nil-Timings-on-non-terminal-frame rationale.
type ChatFrame struct {
	Model      string              `json:"model"`
	CreatedAt  string              `json:"created_at"`
	Message    ChatResponseMessage `json:"message"`
	Done       bool                `json:"done"`
	DoneReason string              `json:"done_reason,omitempty"`
	Error      string              `json:"error,omitempty"`
	*Timings
}

// ErrorBody is the shape of any error response the gateway emits.
type ErrorBody struct {
	Error string `json:"error"`
}

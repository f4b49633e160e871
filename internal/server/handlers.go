package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelplex/ollamagw/internal/corrid"
	"github.com/modelplex/ollamagw/internal/gatewayerr"
	"github.com/modelplex/ollamagw/internal/ollamaapi"
	"github.com/modelplex/ollamagw/internal/openaiapi"
	"github.com/modelplex/ollamagw/internal/stream"
	"github.com/modelplex/ollamagw/internal/translate"
	"github.com/modelplex/ollamagw/internal/upstream"
)

// gatewayVersion is reported by GET /api/version.
const gatewayVersion = "0.1.0"

// Handlers implements the four Ollama endpoints plus the liveness
// probe and the static optional endpoints (spec.md §4.1).
type Handlers struct {
	client upstream.Client
}

// NewHandlers builds Handlers backed by client.
func NewHandlers(client upstream.Client) *Handlers {
	return &Handlers{client: client}
}

// Health serves GET /health.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Version serves GET /api/version.
func (h *Handlers) Version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": gatewayVersion})
}

// StaticSuccess serves the optional model-management endpoints that
// exist only so unmodified Ollama clients don't error out when they
// probe for them (spec.md §1, §6): /api/pull, /api/push, /api/delete,
// /api/show, /api/copy, /api/create, /api/ps.
func (h *Handlers) StaticSuccess(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// Tags serves GET /api/tags.
func (h *Handlers) Tags(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	models, err := h.client.ListModels(ctx)
	if err != nil {
		writeGatewayError(w, upstream.ToGatewayError(err, ""))
		return
	}

	resp := translate.Tags(models)
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, resp)
}

// Generate serves POST /api/generate.
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	var req ollamaapi.GenerateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Model == "" {
		writeGatewayError(w, gatewayerr.RequestShape("model", "must not be empty"))
		return
	}

	upstreamReq, err := translate.GenerateToUpstream(req)
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	if req.StreamOrDefault() {
		h.streamGenerate(w, r, req.Model, upstreamReq)
		return
	}
	h.unaryGenerate(w, r, req.Model, upstreamReq)
}

func (h *Handlers) unaryGenerate(w http.ResponseWriter, r *http.Request, model string, upstreamReq openaiapi.ChatCompletionRequest) {
	start := time.Now()
	resp, err := h.client.Chat(r.Context(), upstreamReq)
	if err != nil {
		writeGatewayError(w, upstream.ToGatewayError(err, model))
		return
	}

	timings := unaryTimings(start)
	out := translate.GenerateResponseFromUpstream(model, rfc3339Now(), resp, timings)
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) streamGenerate(w http.ResponseWriter, r *http.Request, model string, upstreamReq openaiapi.ChatCompletionRequest) {
	events, err := h.client.ChatStream(r.Context(), upstreamReq)
	if err != nil {
		writeGatewayError(w, upstream.ToGatewayError(err, model))
		return
	}

	flusher, ok := prepareNDJSON(w)
	if !ok {
		return
	}

	adapter := stream.NewGenerateAdapter(model, events)
	for {
		frame, ok := adapter.Next()
		if !ok {
			return
		}
		if !writeFrame(w, flusher, r.Context(), frame) {
			return
		}
		if frame.Done {
			return
		}
	}
}

// Chat serves POST /api/chat.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req ollamaapi.ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Model == "" {
		writeGatewayError(w, gatewayerr.RequestShape("model", "must not be empty"))
		return
	}
	if len(req.Messages) == 0 {
		writeGatewayError(w, gatewayerr.RequestShape("messages", "must not be empty"))
		return
	}

	upstreamReq, err := translate.ChatToUpstream(req)
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	if req.StreamOrDefault() {
		h.streamChat(w, r, req.Model, upstreamReq)
		return
	}
	h.unaryChat(w, r, req.Model, upstreamReq)
}

func (h *Handlers) unaryChat(w http.ResponseWriter, r *http.Request, model string, upstreamReq openaiapi.ChatCompletionRequest) {
	start := time.Now()
	resp, err := h.client.Chat(r.Context(), upstreamReq)
	if err != nil {
		writeGatewayError(w, upstream.ToGatewayError(err, model))
		return
	}

	timings := unaryTimings(start)
	out := translate.ChatResponseFromUpstream(model, rfc3339Now(), resp, timings)
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) streamChat(w http.ResponseWriter, r *http.Request, model string, upstreamReq openaiapi.ChatCompletionRequest) {
	events, err := h.client.ChatStream(r.Context(), upstreamReq)
	if err != nil {
		writeGatewayError(w, upstream.ToGatewayError(err, model))
		return
	}

	flusher, ok := prepareNDJSON(w)
	if !ok {
		return
	}

	adapter := stream.NewChatAdapter(model, events)
	for {
		frame, ok := adapter.Next()
		if !ok {
			return
		}
		if !writeFrame(w, flusher, r.Context(), frame) {
			return
		}
		if frame.Done {
			return
		}
	}
}

// Embed serves POST /api/embeddings and /api/embed.
func (h *Handlers) Embed(w http.ResponseWriter, r *http.Request) {
	var req ollamaapi.EmbedRequest
	if !decodeBody(w, r, &req) {
		return
	}

	upstreamReq, err := translate.EmbedToUpstream(req)
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	resp, err := h.client.Embed(r.Context(), upstreamReq)
	if err != nil {
		writeGatewayError(w, upstream.ToGatewayError(err, req.Model))
		return
	}

	out, err := translate.EmbedResponseFromUpstream(resp)
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

// decodeBody parses r's JSON body into dst, ignoring unrecognized
// fields for forward compatibility (P5: encoding/json already ignores
// unknown fields unless DisallowUnknownFields is called, which this
// gateway never does). On a malformed body it writes the 400 response
// itself and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeGatewayError(w, gatewayerr.RequestShape("body", "invalid JSON"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeGatewayError(w http.ResponseWriter, err error) {
	status, body := gatewayerr.StatusAndBody(err)
	writeJSON(w, status, body)
}

// prepareNDJSON sets the streaming response headers (§4.3, §6) and
// returns the flusher the caller needs to push each frame as it's
// written. It writes the 200 status immediately, since Ollama clients
// expect the header before the first frame arrives.
func prepareNDJSON(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeGatewayError(w, gatewayerr.New(gatewayerr.KindInternal, "streaming unsupported by response writer"))
		return nil, false
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	return flusher, true
}

// writeFrame marshals frame, writes it followed by a single '\n', and
// flushes. It returns false (and leaves the connection for the caller
// to abandon) if the client has disconnected or the write fails,
// satisfying the cancellation contract of spec.md §5 without logging
// the frame contents.
func writeFrame(w http.ResponseWriter, flusher http.Flusher, ctx context.Context, frame any) bool {
	if ctx.Err() != nil {
		return false
	}

	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error("failed to marshal stream frame", "error", err)
		return false
	}
	data = append(data, '\n')

	if _, err := w.Write(data); err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Warn("failed to write stream frame", "correlation_id", corrid.FromContext(ctx))
		}
		return false
	}
	flusher.Flush()
	return true
}

func rfc3339Now() string {
	return time.Now().Format("2006-01-02T15:04:05.999999999-07:00")
}

func unaryTimings(start time.Time) ollamaapi.Timings {
	total := time.Since(start)
	return ollamaapi.Timings{
		TotalDuration:      total.Nanoseconds(),
		LoadDuration:       0,
		PromptEvalDuration: 0,
		EvalDuration:       total.Nanoseconds(),
	}
}

package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelplex/ollamagw/internal/ollamaapi"
	"github.com/modelplex/ollamagw/internal/openaiapi"
	"github.com/modelplex/ollamagw/internal/upstream"
)

type fakeClient struct {
	listModelsResp *openaiapi.ListModelsResponse
	listModelsErr  error
	chatResp       *openaiapi.ChatCompletionResponse
	chatErr        error
	streamEvents   []upstream.StreamEvent
	streamErr      error
	embedResp      *openaiapi.EmbeddingResponse
	embedErr       error
}

func (f *fakeClient) ListModels(context.Context) (*openaiapi.ListModelsResponse, error) {
	return f.listModelsResp, f.listModelsErr
}

func (f *fakeClient) Chat(context.Context, openaiapi.ChatCompletionRequest) (*openaiapi.ChatCompletionResponse, error) {
	return f.chatResp, f.chatErr
}

func (f *fakeClient) ChatStream(context.Context, openaiapi.ChatCompletionRequest) (<-chan upstream.StreamEvent, error) {
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	ch := make(chan upstream.StreamEvent, len(f.streamEvents))
	for _, ev := range f.streamEvents {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (f *fakeClient) Embed(context.Context, openaiapi.EmbeddingRequest) (*openaiapi.EmbeddingResponse, error) {
	return f.embedResp, f.embedErr
}

func strPtr(s string) *string { return &s }

func TestHandlers_Health(t *testing.T) {
	h := NewHandlers(&fakeClient{})
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlers_Tags(t *testing.T) {
	h := NewHandlers(&fakeClient{listModelsResp: &openaiapi.ListModelsResponse{
		Data: []openaiapi.Model{{ID: "gpt-4o"}},
	}})
	rec := httptest.NewRecorder()
	h.Tags(rec, httptest.NewRequest(http.MethodGet, "/api/tags", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out ollamaapi.TagsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.NotEmpty(t, out.Models)
}

func TestHandlers_Tags_UpstreamError(t *testing.T) {
	h := NewHandlers(&fakeClient{listModelsErr: &upstream.Error{Class: upstream.ClassTransient, StatusCode: 503}})
	rec := httptest.NewRecorder()
	h.Tags(rec, httptest.NewRequest(http.MethodGet, "/api/tags", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandlers_Generate_MissingModel(t *testing.T) {
	h := NewHandlers(&fakeClient{})
	body := bytes.NewBufferString(`{"prompt":"hi"}`)
	rec := httptest.NewRecorder()
	h.Generate(rec, httptest.NewRequest(http.MethodPost, "/api/generate", body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_Generate_Unary(t *testing.T) {
	h := NewHandlers(&fakeClient{chatResp: &openaiapi.ChatCompletionResponse{
		Choices: []openaiapi.Choice{{Message: openaiapi.Message{Content: "hi there"}, FinishReason: "stop"}},
	}})
	body := bytes.NewBufferString(`{"model":"gpt-4o","prompt":"hello","stream":false}`)
	rec := httptest.NewRecorder()
	h.Generate(rec, httptest.NewRequest(http.MethodPost, "/api/generate", body))
	require.Equal(t, http.StatusOK, rec.Code)

	var out ollamaapi.GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "hi there", out.Response)
	assert.True(t, out.Done)
}

func TestHandlers_Generate_Stream(t *testing.T) {
	h := NewHandlers(&fakeClient{streamEvents: []upstream.StreamEvent{
		{Chunk: &openaiapi.ChatCompletionChunk{Choices: []openaiapi.StreamChoice{{Delta: openaiapi.Delta{Content: "hi"}}}}},
		{Chunk: &openaiapi.ChatCompletionChunk{Choices: []openaiapi.StreamChoice{{Delta: openaiapi.Delta{}, FinishReason: strPtr("stop")}}}},
	}})
	body := bytes.NewBufferString(`{"model":"gpt-4o","prompt":"hello"}`)
	rec := httptest.NewRecorder()
	h.Generate(rec, httptest.NewRequest(http.MethodPost, "/api/generate", body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	lines := splitNonEmptyLines(rec.Body.String())
	require.Len(t, lines, 2)

	var first, last map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &last))

	_, hasTimings := first["total_duration"]
	assert.False(t, hasTimings)
	assert.Contains(t, last, "total_duration")
	assert.Equal(t, true, last["done"])
}

func TestHandlers_Chat_MissingMessages(t *testing.T) {
	h := NewHandlers(&fakeClient{})
	body := bytes.NewBufferString(`{"model":"gpt-4o"}`)
	rec := httptest.NewRecorder()
	h.Chat(rec, httptest.NewRequest(http.MethodPost, "/api/chat", body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_Chat_Unary(t *testing.T) {
	h := NewHandlers(&fakeClient{chatResp: &openaiapi.ChatCompletionResponse{
		Choices: []openaiapi.Choice{{Message: openaiapi.Message{Content: "hi"}, FinishReason: "stop"}},
	}})
	body := bytes.NewBufferString(`{"model":"gpt-4o","messages":[{"role":"user","content":"hello"}],"stream":false}`)
	rec := httptest.NewRecorder()
	h.Chat(rec, httptest.NewRequest(http.MethodPost, "/api/chat", body))
	require.Equal(t, http.StatusOK, rec.Code)

	var out ollamaapi.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "assistant", out.Message.Role)
	assert.Equal(t, "hi", out.Message.Content)
}

func TestHandlers_Embed_MissingModel(t *testing.T) {
	h := NewHandlers(&fakeClient{})
	body := bytes.NewBufferString(`{"prompt":"hello"}`)
	rec := httptest.NewRecorder()
	h.Embed(rec, httptest.NewRequest(http.MethodPost, "/api/embeddings", body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_Embed(t *testing.T) {
	h := NewHandlers(&fakeClient{embedResp: &openaiapi.EmbeddingResponse{
		Data: []openaiapi.Embedding{{Embedding: []float32{0.1, 0.2, 0.3}}},
	}})
	body := bytes.NewBufferString(`{"model":"text-embedding-3-small","prompt":"hello"}`)
	rec := httptest.NewRecorder()
	h.Embed(rec, httptest.NewRequest(http.MethodPost, "/api/embeddings", body))
	require.Equal(t, http.StatusOK, rec.Code)

	var out ollamaapi.EmbedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out.Embedding, 3)
}

func TestHandlers_Chat_CancelledContextStopsStreaming(t *testing.T) {
	h := NewHandlers(&fakeClient{streamEvents: []upstream.StreamEvent{
		{Chunk: &openaiapi.ChatCompletionChunk{Choices: []openaiapi.StreamChoice{{Delta: openaiapi.Delta{Content: "hi"}}}}},
	}})
	body := bytes.NewBufferString(`{"model":"gpt-4o","messages":[{"role":"user","content":"hello"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/chat", body)
	ctx, cancel := context.WithCancel(req.Context())
	cancel()
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	h.Chat(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, strings.TrimSpace(rec.Body.String()))
}

func splitNonEmptyLines(s string) []string {
	var out []string
	scanner := bufio.NewScanner(strings.NewReader(s))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

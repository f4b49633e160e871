package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelplex/ollamagw/internal/config"
	"github.com/modelplex/ollamagw/internal/openaiapi"
)

func newTestClient(t *testing.T, baseURL string) *HTTPClient {
	cfg := &config.Config{
		OpenAIAPIKey:   "test-key",
		OpenAIBaseURL:  baseURL,
		RequestTimeout: 30 * time.Second,
		StreamTimeout:  2 * time.Second,
	}
	return NewHTTPClient(cfg)
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(openaiapi.ListModelsResponse{Data: []openaiapi.Model{{ID: "gpt-4o"}}})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	out, err := client.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, out.Data, 1)
	assert.Equal(t, "gpt-4o", out.Data[0].ID)
}

func TestChat_Unary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openaiapi.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		_ = json.NewEncoder(w).Encode(openaiapi.ChatCompletionResponse{
			Choices: []openaiapi.Choice{{Message: openaiapi.Message{Content: "hi"}, FinishReason: "stop"}},
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	out, err := client.Chat(context.Background(), openaiapi.ChatCompletionRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out.Choices[0].Message.Content)
}

func TestChat_RetriesOn5xxThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(openaiapi.ChatCompletionResponse{
			Choices: []openaiapi.Choice{{Message: openaiapi.Message{Content: "ok"}}},
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	out, err := client.Chat(context.Background(), openaiapi.ChatCompletionRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Choices[0].Message.Content)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestChat_DoesNotRetryOn401(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Chat(context.Background(), openaiapi.ChatCompletionRequest{Model: "gpt-4o"})
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestChat_GivesUpAfterMaxAttempts(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := &config.Config{OpenAIAPIKey: "k", OpenAIBaseURL: srv.URL, RequestTimeout: 30 * time.Second, StreamTimeout: 2 * time.Second}
	client := NewHTTPClient(cfg)

	_, err := client.Chat(context.Background(), openaiapi.ChatCompletionRequest{Model: "gpt-4o"})
	require.Error(t, err)
	assert.Equal(t, int32(maxAttempts), attempts.Load())
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openaiapi.EmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req.Input)
		_ = json.NewEncoder(w).Encode(openaiapi.EmbeddingResponse{
			Data: []openaiapi.Embedding{{Embedding: []float32{1, 2, 3}}},
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	out, err := client.Embed(context.Background(), openaiapi.EmbeddingRequest{Model: "text-embedding-3-small", Input: "hello"})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, out.Data[0].Embedding)
}

func TestChatStream_DeliversChunksThenCloses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"a\"},\"finish_reason\":null}]}\n\n")
		flusher.Flush()
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		flusher.Flush()
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	events, err := client.ChatStream(context.Background(), openaiapi.ChatCompletionRequest{Model: "gpt-4o"})
	require.NoError(t, err)

	var received []StreamEvent
	for ev := range events {
		received = append(received, ev)
	}

	require.Len(t, received, 2)
	assert.Equal(t, "a", received[0].Chunk.Choices[0].Delta.Content)
	assert.Equal(t, "stop", *received[1].Chunk.Choices[0].FinishReason)
}

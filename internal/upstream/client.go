// Package upstream is a thin wrapper over an OpenAI-compatible HTTP
// API (spec.md §4.4): list models, create a chat completion (unary or
// streaming), and create an embedding. It owns connection pooling,
// per-request timeouts, and retry-with-backoff; it never retries once
// a streaming response has begun delivering bytes.
package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/modelplex/ollamagw/internal/config"
	"github.com/modelplex/ollamagw/internal/corrid"
	"github.com/modelplex/ollamagw/internal/openaiapi"
)

const (
	maxConnections = 100
	maxKeepalive   = 20
	maxAttempts    = 4 // 1 initial + 3 retries
	baseBackoff    = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// Client is the capability interface the Router depends on. Tests substitute a fake implementation instead of mocking
// *http.Client (spec.md §9 "Design Notes").
type Client interface {
	ListModels(ctx context.Context) (*openaiapi.ListModelsResponse, error)
	Chat(ctx context.Context, req openaiapi.ChatCompletionRequest) (*openaiapi.ChatCompletionResponse, error)
	ChatStream(ctx context.Context, req openaiapi.ChatCompletionRequest) (<-chan StreamEvent, error)
	Embed(ctx context.Context, req openaiapi.EmbeddingRequest) (*openaiapi.EmbeddingResponse, error)
}

// StreamEvent is one item delivered on a ChatStream channel: either a
// decoded chunk or a terminal error. Exactly one of Chunk/Err is set,
// and an Err event is always the last one sent.
type StreamEvent struct {
	Chunk *openaiapi.ChatCompletionChunk
	Err   error
}

// HTTPClient is the production Client backed by net/http, matching the
// teacher's OpenAIProvider/streaming.go shape generalized to a single
// configured backend with retries.
type HTTPClient struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	requestTimeout time.Duration
	streamTimeout  time.Duration

	requestCount atomic.Int64
	errorCount   atomic.Int64
}

// NewHTTPClient builds a Client from the resolved gateway configuration.
func NewHTTPClient(cfg *config.Config) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:        maxConnections,
		MaxIdleConnsPerHost: maxKeepalive,
		MaxConnsPerHost:     maxConnections,
	}
	return &HTTPClient{
		baseURL:        cfg.OpenAIBaseURL,
		apiKey:         cfg.OpenAIAPIKey,
		httpClient:     &http.Client{Transport: transport},
		requestTimeout: cfg.RequestTimeout,
		streamTimeout:  cfg.StreamTimeout,
	}
}

// RequestCount returns the number of attempts issued so far. Relaxed,
// observability-only (spec.md §5).
func (c *HTTPClient) RequestCount() int64 { return c.requestCount.Load() }

// ErrorCount returns the number of attempts that failed, counting each
// failed attempt of a retried call.
func (c *HTTPClient) ErrorCount() int64 { return c.errorCount.Load() }

// ListModels fetches the upstream model catalogue.
func (c *HTTPClient) ListModels(ctx context.Context) (*openaiapi.ListModelsResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var out openaiapi.ListModelsResponse
	err := c.doWithRetry(ctx, "models", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", http.NoBody)
		if err != nil {
			return err
		}
		c.setHeaders(req)
		return c.doJSON(req, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Chat performs a unary chat completion.
func (c *HTTPClient) Chat(ctx context.Context, cr openaiapi.ChatCompletionRequest) (*openaiapi.ChatCompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	cr.Stream = false
	var out openaiapi.ChatCompletionResponse
	err := c.doWithRetry(ctx, "chat", func(ctx context.Context) error {
		body, err := json.Marshal(cr)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return err
		}
		c.setHeaders(req)
		return c.doJSON(req, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Embed performs an embedding request.
func (c *HTTPClient) Embed(ctx context.Context, er openaiapi.EmbeddingRequest) (*openaiapi.EmbeddingResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var out openaiapi.EmbeddingResponse
	err := c.doWithRetry(ctx, "embeddings", func(ctx context.Context) error {
		body, err := json.Marshal(er)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
		if err != nil {
			return err
		}
		c.setHeaders(req)
		return c.doJSON(req, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatStream performs a streaming chat completion. Retries (spec.md
// §4.4) apply only until the first byte of the upstream body is
// observed; once streaming has begun, any failure is surfaced as a
// single terminal StreamEvent and the channel is closed.
func (c *HTTPClient) ChatStream(ctx context.Context, cr openaiapi.ChatCompletionRequest) (<-chan StreamEvent, error) {
	cr.Stream = true
	cr.StreamOptions = &openaiapi.StreamOptions{IncludeUsage: true}

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, c.streamTimeout)

	var resp *http.Response
	err := c.doWithRetry(ctx, "chat_stream", func(ctx context.Context) error {
		body, err := json.Marshal(cr)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return err
		}
		c.setHeaders(req)

		r, err := c.httpClient.Do(req)
		if err != nil {
			return classifyTransportError(err)
		}
		if r.StatusCode != http.StatusOK {
			defer r.Body.Close()
			return classifyStatusError(r)
		}
		resp = r
		return nil
	})
	if err != nil {
		cancel()
		return nil, err
	}

	events := make(chan StreamEvent)
	go func() {
		defer cancel()
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				return
			}

			var chunk openaiapi.ChatCompletionChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}

			select {
			case events <- StreamEvent{Chunk: &chunk}:
			case <-parent.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil {
			select {
			case events <- StreamEvent{Err: classifyTransportError(err)}:
			case <-parent.Done():
			}
			return
		}
		if ctx.Err() != nil {
			select {
			case events <- StreamEvent{Err: classifyTransportError(ctx.Err())}:
			case <-parent.Done():
			}
		}
	}()

	return events, nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json, text/event-stream")
}

func (c *HTTPClient) doJSON(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifyStatusError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransportError(err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Class: ClassFatal, Message: fmt.Sprintf("failed to decode upstream response: %v", err)}
	}
	return nil
}

// doWithRetry runs attempt up to maxAttempts times, applying exponential
// backoff (no jitter) between retryable failures (spec.md §4.4). It
// logs one metadata record per attempt: correlation id, endpoint,
// attempt number, duration, status — never the request/response body.
func (c *HTTPClient) doWithRetry(ctx context.Context, endpoint string, attemptFn func(context.Context) error) error {
	var lastErr error
	id := corrid.FromContext(ctx)

	for n := 0; n < maxAttempts; n++ {
		if n > 0 {
			delay := backoffDelay(n)
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return classifyTransportError(ctx.Err())
			}
		}

		start := time.Now()
		c.requestCount.Add(1)
		err := attemptFn(ctx)
		duration := time.Since(start)

		status := "ok"
		if err != nil {
			status = "error"
		}
		slog.Info("upstream attempt",
			"correlation_id", id,
			"endpoint", endpoint,
			"attempt", n+1,
			"duration_ms", duration.Milliseconds(),
			"status", status,
		)

		if err == nil {
			return nil
		}

		lastErr = err
		c.errorCount.Add(1)

		if !isRetryable(err) {
			return err
		}
	}

	return lastErr
}

func backoffDelay(attempt int) time.Duration {
	d := time.Duration(float64(baseBackoff) * math.Pow(2, float64(attempt)))
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

package stream

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelplex/ollamagw/internal/openaiapi"
	"github.com/modelplex/ollamagw/internal/upstream"
)

func fakeClock(t *testing.T) (clock, func(time.Duration)) {
	t.Helper()
	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time { return current }, func(d time.Duration) { current = current.Add(d) }
}

func strPtr(s string) *string { return &s }

func TestGenerateAdapter_NonTerminalFramesHaveNoTimings(t *testing.T) {
	events := make(chan upstream.StreamEvent, 2)
	events <- upstream.StreamEvent{Chunk: &openaiapi.ChatCompletionChunk{
		Choices: []openaiapi.StreamChoice{{Delta: openaiapi.Delta{Content: "hel"}}},
	}}
	events <- upstream.StreamEvent{Chunk: &openaiapi.ChatCompletionChunk{
		Choices: []openaiapi.StreamChoice{{Delta: openaiapi.Delta{Content: "lo"}}},
	}}
	close(events)

	now, advance := fakeClock(t)
	adapter := NewGenerateAdapter("gpt-4o", events)
	adapter.now = now
	_ = advance

	frame, ok := adapter.Next()
	require.True(t, ok)
	assert.False(t, frame.Done)
	assert.Nil(t, frame.Timings)
	assert.Equal(t, "hel", frame.Response)

	frame, ok = adapter.Next()
	require.True(t, ok)
	assert.False(t, frame.Done)
	assert.Nil(t, frame.Timings)
}

func TestGenerateAdapter_TerminalFrameHasTimingsAndDoneReason(t *testing.T) {
	events := make(chan upstream.StreamEvent, 2)
	events <- upstream.StreamEvent{Chunk: &openaiapi.ChatCompletionChunk{
		Choices: []openaiapi.StreamChoice{{Delta: openaiapi.Delta{Content: "hi"}}},
	}}
	events <- upstream.StreamEvent{Chunk: &openaiapi.ChatCompletionChunk{
		Choices: []openaiapi.StreamChoice{{Delta: openaiapi.Delta{}, FinishReason: strPtr("stop")}},
	}}
	close(events)

	now, advance := fakeClock(t)
	adapter := NewGenerateAdapter("gpt-4o", events)
	adapter.now = now

	_, ok := adapter.Next()
	require.True(t, ok)
	advance(50 * time.Millisecond)

	frame, ok := adapter.Next()
	require.True(t, ok)
	require.True(t, frame.Done)
	assert.Equal(t, "stop", frame.DoneReason)
	require.NotNil(t, frame.Timings)
	assert.Equal(t, int64(50*time.Millisecond), frame.Timings.TotalDuration)

	_, ok = adapter.Next()
	assert.False(t, ok)
}

func TestGenerateAdapter_MidStreamErrorProducesErrorFrame(t *testing.T) {
	events := make(chan upstream.StreamEvent, 2)
	events <- upstream.StreamEvent{Chunk: &openaiapi.ChatCompletionChunk{
		Choices: []openaiapi.StreamChoice{{Delta: openaiapi.Delta{Content: "partial"}}},
	}}
	events <- upstream.StreamEvent{Err: errors.New("upstream reset connection")}
	close(events)

	now, _ := fakeClock(t)
	adapter := NewGenerateAdapter("gpt-4o", events)
	adapter.now = now

	_, ok := adapter.Next()
	require.True(t, ok)

	frame, ok := adapter.Next()
	require.True(t, ok)
	assert.True(t, frame.Done)
	assert.Equal(t, "error", frame.DoneReason)
	assert.Equal(t, "upstream reset connection", frame.Error)
	require.NotNil(t, frame.Timings)
	require.Error(t, adapter.Err())

	_, ok = adapter.Next()
	assert.False(t, ok)
}

func TestChatAdapter_AlwaysSetsAssistantRole(t *testing.T) {
	events := make(chan upstream.StreamEvent, 1)
	events <- upstream.StreamEvent{Chunk: &openaiapi.ChatCompletionChunk{
		Choices: []openaiapi.StreamChoice{{Delta: openaiapi.Delta{}, FinishReason: strPtr("stop")}},
	}}
	close(events)

	now, _ := fakeClock(t)
	adapter := NewChatAdapter("gpt-4o", events)
	adapter.inner.now = now

	frame, ok := adapter.Next()
	require.True(t, ok)
	assert.Equal(t, "assistant", frame.Message.Role)
	assert.True(t, frame.Done)
}

func TestChatAdapter_PropagatesErrorFromInner(t *testing.T) {
	events := make(chan upstream.StreamEvent, 1)
	events <- upstream.StreamEvent{Err: errors.New("boom")}
	close(events)

	now, _ := fakeClock(t)
	adapter := NewChatAdapter("gpt-4o", events)
	adapter.inner.now = now

	frame, ok := adapter.Next()
	require.True(t, ok)
	assert.Equal(t, "assistant", frame.Message.Role)
	assert.Equal(t, "boom", frame.Error)
	assert.Equal(t, "error", frame.DoneReason)
	require.Error(t, adapter.Err())
}

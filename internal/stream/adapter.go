// Package stream is the Stream Adapter (spec.md §4.3): it converts an
// asynchronous sequence of upstream delta chunks into a lazy sequence
// of Ollama frames, accumulating token counts and wall-clock timings,
// and emitting the single required terminal frame.
//
// Pull semantics are one-for-one: the adapter only reads the next
// upstream chunk once the previous Ollama frame has been consumed, so
// there is no internal buffering beyond the single in-flight chunk
// waiting to be received from the upstream.Client's channel.
package stream

import (
	"time"

	"github.com/modelplex/ollamagw/internal/ollamaapi"
	"github.com/modelplex/ollamagw/internal/openaiapi"
	"github.com/modelplex/ollamagw/internal/translate"
	"github.com/modelplex/ollamagw/internal/upstream"
)

// clock abstracts time.Now so tests can supply a deterministic
// sequence of timestamps without sleeping.
type clock func() time.Time

// GenerateAdapter drains events and yields one GenerateFrame per call
// to Next, returning ok=false once the sequence is exhausted. The
// final frame returned has Done=true; no frame is returned after it
// (I3).
type GenerateAdapter struct {
	model  string
	events <-chan upstream.StreamEvent
	now    clock

	t0           time.Time
	tPromptDone  time.Time
	gotFirstByte bool
	evalCount    int
	promptCount  int
	finishReason string
	done         bool
	err          error
}

// NewGenerateAdapter builds an adapter over events for model.
func NewGenerateAdapter(model string, events <-chan upstream.StreamEvent) *GenerateAdapter {
	return &GenerateAdapter{model: model, events: events, now: time.Now}
}

// Err returns the transport error observed, if any. A mid-stream error
// is recorded here once Next has returned the terminal error frame
// that surfaces it (spec.md §4.6).
func (a *GenerateAdapter) Err() error { return a.err }

// Next pulls the next upstream chunk and returns the Ollama frame it
// produces. ok is false once the sequence (including the terminal
// frame) is exhausted.
func (a *GenerateAdapter) Next() (frame ollamaapi.GenerateFrame, ok bool) {
	if a.done {
		return ollamaapi.GenerateFrame{}, false
	}
	if a.t0.IsZero() {
		a.t0 = a.now()
	}

	for ev := range a.events {
		if ev.Err != nil {
			a.done = true
			a.err = ev.Err
			return a.errorFrame(ev.Err), true
		}

		delta, finish := extractDelta(ev.Chunk)
		if ev.Chunk.Usage != nil {
			a.promptCount = ev.Chunk.Usage.PromptTokens
			a.evalCount = ev.Chunk.Usage.CompletionTokens
		}
		if finish != "" {
			a.finishReason = finish
		}

		if delta == "" {
			continue
		}

		if !a.gotFirstByte {
			a.gotFirstByte = true
			a.tPromptDone = a.now()
		}
		if ev.Chunk.Usage == nil {
			a.evalCount++
		}

		return ollamaapi.GenerateFrame{
			Model:     a.model,
			CreatedAt: rfc3339Now(a.now),
			Response:  delta,
			Done:      false,
		}, true
	}

	a.done = true
	return a.terminalFrame(), true
}

func (a *GenerateAdapter) terminalFrame() ollamaapi.GenerateFrame {
	timings := a.computeTimings()
	return ollamaapi.GenerateFrame{
		Model:      a.model,
		CreatedAt:  rfc3339Now(a.now),
		Response:   "",
		Done:       true,
		DoneReason: translate.MapFinishReason(a.finishReason),
		Timings:    &timings,
	}
}

func (a *GenerateAdapter) errorFrame(err error) ollamaapi.GenerateFrame {
	timings := a.computeTimings()
	return ollamaapi.GenerateFrame{
		Model:      a.model,
		CreatedAt:  rfc3339Now(a.now),
		Response:   "",
		Done:       true,
		DoneReason: "error",
		Error:      err.Error(),
		Timings:    &timings,
	}
}

func (a *GenerateAdapter) computeTimings() ollamaapi.Timings {
	now := a.now()
	if !a.gotFirstByte {
		a.tPromptDone = now
	}
	return ollamaapi.Timings{
		TotalDuration:      now.Sub(a.t0).Nanoseconds(),
		LoadDuration:       0,
		PromptEvalCount:    a.promptCount,
		PromptEvalDuration: a.tPromptDone.Sub(a.t0).Nanoseconds(),
		EvalCount:          a.evalCount,
		EvalDuration:       now.Sub(a.tPromptDone).Nanoseconds(),
	}
}

// ChatAdapter is the /api/chat analogue of GenerateAdapter.
type ChatAdapter struct {
	inner *GenerateAdapter
}

// NewChatAdapter builds an adapter over events for model.
func NewChatAdapter(model string, events <-chan upstream.StreamEvent) *ChatAdapter {
	return &ChatAdapter{inner: NewGenerateAdapter(model, events)}
}

// Err returns the terminal transport error observed, if any.
func (a *ChatAdapter) Err() error { return a.inner.Err() }

// Next pulls the next upstream chunk and returns the Ollama chat frame
// it produces.
func (a *ChatAdapter) Next() (frame ollamaapi.ChatFrame, ok bool) {
	gf, ok := a.inner.Next()
	if !ok {
		return ollamaapi.ChatFrame{}, false
	}

	return ollamaapi.ChatFrame{
		Model:      gf.Model,
		CreatedAt:  gf.CreatedAt,
		Message:    ollamaapi.ChatResponseMessage{Role: "assistant", Content: gf.Response},
		Done:       gf.Done,
		DoneReason: gf.DoneReason,
		Error:      gf.Error,
		Timings:    gf.Timings,
	}, true
}

func extractDelta(chunk *openaiapi.ChatCompletionChunk) (content string, finishReason string) {
	if chunk == nil || len(chunk.Choices) == 0 {
		return "", ""
	}
	choice := chunk.Choices[0]
	if choice.FinishReason != nil {
		finishReason = *choice.FinishReason
	}
	return choice.Delta.Content, finishReason
}

func rfc3339Now(now clock) string {
	return now().Format("2006-01-02T15:04:05.999999999-07:00")
}

// Package gatewayerr is the Error Mapper (spec.md §4.6): it classifies
// any failure raised by the Translator, Upstream Client, or Stream
// Adapter into an HTTP status code and an Ollama-shaped ErrorBody.
// It is the single translation point between typed internal failures
// and the HTTP-visible shape; lower layers never write HTTP responses
// themselves.
package gatewayerr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/modelplex/ollamagw/internal/ollamaapi"
)

// Kind names a failure class (spec.md §7 taxonomy).
type Kind string

const (
	KindRequestShape      Kind = "request_shape"
	KindAuthentication    Kind = "authentication"
	KindNotFound          Kind = "not_found"
	KindRateLimit         Kind = "rate_limit"
	KindUpstreamTransient Kind = "upstream_transient"
	KindUpstreamFatal     Kind = "upstream_fatal"
	KindTimeout           Kind = "timeout"
	KindCancellation      Kind = "cancellation"
	KindInternal          Kind = "internal"
)

// Error is a typed gateway failure. It carries enough information for
// the Error Mapper to pick a status code and message without the
// raising layer having to know about HTTP at all.
type Error struct {
	Kind    Kind
	Model   string // populated for KindNotFound
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a gateway Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs a gateway Error of the given kind wrapping err.
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// NotFound constructs a KindNotFound error for the given model id
// (spec.md §4.6 "model '<id>' not found").
func NotFound(model string) *Error {
	return &Error{Kind: KindNotFound, Model: model}
}

// RequestShape constructs a KindRequestShape error naming the
// offending field, matching the "brief human message identifying the
// field" requirement of spec.md §4.6.
func RequestShape(field, reason string) *Error {
	return &Error{Kind: KindRequestShape, Message: fmt.Sprintf("%s: %s", field, reason)}
}

// StatusAndBody maps err to the HTTP status code and ErrorBody the
// gateway should write, per the table in spec.md §4.6. Any error not
// constructed by this package falls back to KindInternal.
func StatusAndBody(err error) (int, ollamaapi.ErrorBody) {
	var ge *Error
	if !errors.As(err, &ge) {
		return http.StatusInternalServerError, ollamaapi.ErrorBody{Error: "internal error"}
	}

	switch ge.Kind {
	case KindRequestShape:
		return http.StatusBadRequest, ollamaapi.ErrorBody{Error: ge.Error()}
	case KindNotFound:
		return http.StatusNotFound, ollamaapi.ErrorBody{Error: fmt.Sprintf("model '%s' not found", ge.Model)}
	case KindAuthentication:
		return http.StatusUnauthorized, ollamaapi.ErrorBody{Error: "unauthorized"}
	case KindRateLimit:
		return http.StatusTooManyRequests, ollamaapi.ErrorBody{Error: "rate limit exceeded"}
	case KindUpstreamFatal, KindUpstreamTransient:
		return http.StatusBadGateway, ollamaapi.ErrorBody{Error: "upstream error"}
	case KindTimeout:
		return http.StatusGatewayTimeout, ollamaapi.ErrorBody{Error: "upstream timeout"}
	case KindCancellation:
		return 499, ollamaapi.ErrorBody{Error: "client closed request"}
	default:
		return http.StatusInternalServerError, ollamaapi.ErrorBody{Error: "internal error"}
	}
}

// DoneReason returns the done_reason a terminal error frame should
// carry for this failure (always "error", per spec.md §4.6).
func DoneReason(_ error) string {
	return "error"
}

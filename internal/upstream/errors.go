package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/modelplex/ollamagw/internal/gatewayerr"
)

// Class names a failure class for retry purposes (spec.md §4.4).
type Class int

const (
	// ClassTransient failures are retried: upstream 5xx, 429, connect
	// error, read timeout.
	ClassTransient Class = iota
	// ClassFatal failures are never retried: other 4xx, schema mismatch.
	ClassFatal
	// ClassCancelled means the caller's context was cancelled.
	ClassCancelled
	// ClassTimeout means the deadline elapsed.
	ClassTimeout
)

// Error is a classified upstream failure.
type Error struct {
	Class      Class
	StatusCode int
	Model      string
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("upstream error (status %d)", e.StatusCode)
}

func isRetryable(err error) bool {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Class == ClassTransient
	}
	return false
}

// classifyStatusError builds an *Error from a non-200 HTTP response,
// per the retryable/non-retryable split of spec.md §4.4.
func classifyStatusError(resp *http.Response) *Error {
	body, _ := io.ReadAll(resp.Body)
	status := resp.StatusCode

	switch {
	case status == http.StatusTooManyRequests:
		return &Error{Class: ClassTransient, StatusCode: status, Message: "rate limited"}
	case status >= 500:
		return &Error{Class: ClassTransient, StatusCode: status, Message: fmt.Sprintf("upstream 5xx: %s", truncate(body))}
	case status == http.StatusUnauthorized:
		return &Error{Class: ClassFatal, StatusCode: status, Message: "unauthorized"}
	case status == http.StatusNotFound:
		return &Error{Class: ClassFatal, StatusCode: status, Message: "not found"}
	default:
		return &Error{Class: ClassFatal, StatusCode: status, Message: fmt.Sprintf("upstream %d: %s", status, truncate(body))}
	}
}

// classifyTransportError classifies a transport-level (connect/read/
// timeout/cancellation) failure.
func classifyTransportError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Class: ClassCancelled, Message: "request cancelled"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Class: ClassTimeout, Message: "request timed out"}
	}
	return &Error{Class: ClassTransient, Message: err.Error()}
}

// ToGatewayError converts a classified upstream error (or any other
// error) into the gatewayerr shape consumed by the Error Mapper.
func ToGatewayError(err error, model string) error {
	if err == nil {
		return nil
	}

	var ue *Error
	if errors.As(err, &ue) {
		switch {
		case ue.Class == ClassCancelled:
			return gatewayerr.Wrap(gatewayerr.KindCancellation, err)
		case ue.Class == ClassTimeout:
			return gatewayerr.Wrap(gatewayerr.KindTimeout, err)
		case ue.StatusCode == http.StatusUnauthorized:
			return gatewayerr.Wrap(gatewayerr.KindAuthentication, err)
		case ue.StatusCode == http.StatusNotFound:
			return gatewayerr.NotFound(model)
		case ue.StatusCode == http.StatusTooManyRequests:
			return gatewayerr.Wrap(gatewayerr.KindRateLimit, err)
		case ue.Class == ClassTransient:
			return gatewayerr.Wrap(gatewayerr.KindUpstreamTransient, err)
		default:
			return gatewayerr.Wrap(gatewayerr.KindUpstreamFatal, err)
		}
	}

	return gatewayerr.Wrap(gatewayerr.KindInternal, err)
}

func truncate(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "...(truncated)"
	}
	return string(b)
}

// Package corrid generates and threads per-request correlation ids.
// A correlation id has no business effect; it exists purely so that
// every log record for one request can be tied together (spec.md §2.7).
package corrid

import (
	"context"

	"github.com/google/uuid"
)

type contextKey struct{}

// New returns a fresh, opaque 8-character correlation id.
func New() string {
	return uuid.NewString()[:8]
}

// WithID attaches id to ctx, returning the derived context.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the correlation id attached to ctx, or "" if none
// was attached.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

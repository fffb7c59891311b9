// Package requestctx carries the per-request correlation id through the
// context so log lines and API envelopes can be tied back to one request.
package requestctx

import "context"

type idKey struct{}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idKey{}, id)
}

// GetRequestID returns the stored id, or "" outside the HTTP request path
// (background jobs, tests).
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(idKey{}).(string)
	return id
}

package policy

import "context"

type ctxKey struct{}

// WithContext attaches the request's policy snapshot to ctx.
func WithContext(ctx context.Context, p *Policy) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the snapshot attached to ctx, or the built-in
// default when none is attached.
func FromContext(ctx context.Context) *Policy {
	if p, ok := ctx.Value(ctxKey{}).(*Policy); ok && p != nil {
		return p
	}
	return Default()
}

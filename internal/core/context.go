package core

import "context"

type contextKey string

const ctxKeyRequester contextKey = "requester"

// Requester identifies who started an import.
type Requester struct {
	IPAddress string
	UserAgent string
	Client    string // API key name, or "cli"
}

// ContextWithRequester attaches the requester of an import to ctx.
func ContextWithRequester(ctx context.Context, r Requester) context.Context {
	return context.WithValue(ctx, ctxKeyRequester, r)
}

// RequesterFromContext returns the requester stored in ctx, if any.
func RequesterFromContext(ctx context.Context) (Requester, bool) {
	r, ok := ctx.Value(ctxKeyRequester).(Requester)
	return r, ok
}

// logAttrs returns the requester as slog key/value pairs.
func (r Requester) logAttrs() []any {
	attrs := make([]any, 0, 6)
	if r.Client != "" {
		attrs = append(attrs, "client", r.Client)
	}
	if r.IPAddress != "" {
		attrs = append(attrs, "ip", r.IPAddress)
	}
	if r.UserAgent != "" {
		attrs = append(attrs, "user_agent", r.UserAgent)
	}
	return attrs
}

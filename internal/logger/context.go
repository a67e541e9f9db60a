package logger

import "context"

// fields carries request-scoped identifiers injected into every log line
// emitted through the *Ctx helpers, so a session's or connection's log
// output can be grepped without threading ids through every call site.
type fields struct {
	ConnectionID uint64
	SessionID    uint32
	Operation    string
}

type fieldsKey struct{}

// WithConnection returns a context carrying the given connection id, to be
// merged with any fields already present.
func WithConnection(ctx context.Context, connID uint64) context.Context {
	f := fromContext(ctx)
	f.ConnectionID = connID
	return context.WithValue(ctx, fieldsKey{}, f)
}

// WithSession returns a context carrying the given session id.
func WithSession(ctx context.Context, sessionID uint32) context.Context {
	f := fromContext(ctx)
	f.SessionID = sessionID
	return context.WithValue(ctx, fieldsKey{}, f)
}

// WithOperation returns a context carrying the given operation name.
func WithOperation(ctx context.Context, op string) context.Context {
	f := fromContext(ctx)
	f.Operation = op
	return context.WithValue(ctx, fieldsKey{}, f)
}

func fromContext(ctx context.Context) fields {
	if f, ok := ctx.Value(fieldsKey{}).(fields); ok {
		return f
	}
	return fields{}
}

func withCtx(ctx context.Context, args []any) []any {
	f := fromContext(ctx)
	out := make([]any, 0, 6+len(args))
	if f.ConnectionID != 0 {
		out = append(out, "conn_id", f.ConnectionID)
	}
	if f.SessionID != 0 {
		out = append(out, "session_id", f.SessionID)
	}
	if f.Operation != "" {
		out = append(out, "operation", f.Operation)
	}
	return append(out, args...)
}

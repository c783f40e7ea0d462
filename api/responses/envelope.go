package responses

import "context"

// Envelope wraps every successful payload.
type Envelope struct {
	Data any `json:"data"`
}

// ErrorBody is the client-facing shape of a failed request. RequestID echoes
// the X-Request-Id so support can find the matching log lines.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

type requestIDKey struct{}

// WithRequestID stores the request id for error bodies written later in the chain.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

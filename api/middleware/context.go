package middleware

import (
	"context"

	"github.com/angelmondragon/cartcore-backend/pkg/auth"
)

type contextKey string

const (
	ctxCustomerID   contextKey = "customer_id"
	ctxServiceName  contextKey = "service_name"
	ctxActorKind    contextKey = "actor_kind"
	ctxSessionToken contextKey = "session_token"
)

func stringFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// CustomerIDFromContext returns the authenticated customer, or "" for guests.
func CustomerIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxCustomerID)
}

func ServiceNameFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxServiceName)
}

func ActorKindFromContext(ctx context.Context) auth.Kind {
	return auth.Kind(stringFromContext(ctx, ctxActorKind))
}

// SessionTokenFromContext returns the guest cart token sent in the
// X-Cart-Session header.
func SessionTokenFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxSessionToken)
}

// WithCustomerID marks the request as coming from an authenticated customer.
func WithCustomerID(ctx context.Context, customerID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxActorKind, string(auth.KindCustomer))
	return context.WithValue(ctx, ctxCustomerID, customerID)
}

func WithServiceName(ctx context.Context, name string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxActorKind, string(auth.KindService))
	return context.WithValue(ctx, ctxServiceName, name)
}

func WithSessionToken(ctx context.Context, token string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxSessionToken, token)
}

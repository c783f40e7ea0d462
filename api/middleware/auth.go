package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/cartcore-backend/api/responses"
	pkgAuth "github.com/angelmondragon/cartcore-backend/pkg/auth"
	"github.com/angelmondragon/cartcore-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/cartcore-backend/pkg/errors"
	"github.com/angelmondragon/cartcore-backend/pkg/logger"
)

// SessionHeader carries the opaque guest cart token.
const SessionHeader = "X-Cart-Session"

// Identify resolves who is calling. A bearer token is optional: guests shop
// with only a session token. A bearer token that is present but invalid is
// rejected rather than downgraded to guest access.
func Identify(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if token := strings.TrimSpace(r.Header.Get(SessionHeader)); token != "" {
				ctx = WithSessionToken(ctx, token)
			}

			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.Parse(cfg, token)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			switch claims.Kind {
			case pkgAuth.KindCustomer:
				ctx = WithCustomerID(ctx, claims.CustomerID())
				if logg != nil {
					ctx = logg.WithCustomerID(ctx, claims.CustomerID())
				}
			case pkgAuth.KindService:
				ctx = WithServiceName(ctx, claims.ServiceName())
				if logg != nil {
					ctx = logg.WithActor(ctx, string(pkgAuth.KindService), claims.ServiceName())
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCustomer only lets authenticated customers through.
func RequireCustomer(logg *logger.Logger) func(http.Handler) http.Handler {
	return requireKind(pkgAuth.KindCustomer, logg)
}

// RequireService guards the internal routes called by other services.
func RequireService(logg *logger.Logger) func(http.Handler) http.Handler {
	return requireKind(pkgAuth.KindService, logg)
}

func requireKind(kind pkgAuth.Kind, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actual := ActorKindFromContext(r.Context())
			if actual == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
				return
			}
			if actual != kind {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "caller not allowed"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/cartcore-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/cartcore-backend/api/controllers/cart"
	"github.com/angelmondragon/cartcore-backend/api/middleware"
	"github.com/angelmondragon/cartcore-backend/internal/cart"
	"github.com/angelmondragon/cartcore-backend/pkg/config"
	"github.com/angelmondragon/cartcore-backend/pkg/logger"
)

// Store is the redis surface the HTTP layer needs: readiness, response
// replay and rate limit counters.
type Store interface {
	Ping(context.Context) error
	Get(context.Context, string) (string, error)
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
	RateLimitKey(policy, scope, id string) string
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	store Store,
	cartService cart.Service,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)

	couponPolicy := middleware.CouponRateLimitPolicy(cfg.RateLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": dbP,
			"redis":    store,
		}))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identify(cfg.JWT, logg))
		r.Use(middleware.Idempotency(store, logg))

		r.Route("/carts", func(r chi.Router) {
			r.Post("/", cartcontrollers.CartCreate(cartService, logg))
			r.Get("/current", cartcontrollers.CartCurrent(cartService, logg))
			r.With(middleware.RequireCustomer(logg)).Post("/merge", cartcontrollers.CartMerge(cartService, logg))

			r.Route("/{cartId}", func(r chi.Router) {
				r.Get("/", cartcontrollers.CartFetch(cartService, logg))
				r.Patch("/", cartcontrollers.CartUpdateDetails(cartService, logg))
				r.Delete("/", cartcontrollers.CartDelete(cartService, logg))

				r.Post("/items", cartcontrollers.ItemAdd(cartService, logg))
				r.Delete("/items", cartcontrollers.ItemsClear(cartService, logg))
				r.Patch("/items/{itemId}", cartcontrollers.ItemUpdate(cartService, logg))
				r.Delete("/items/{itemId}", cartcontrollers.ItemRemove(cartService, logg))

				r.With(middleware.RateLimit(couponPolicy, store, logg)).Put("/coupon", cartcontrollers.CouponApply(cartService, logg))
				r.Delete("/coupon", cartcontrollers.CouponRemove(cartService, logg))
			})
		})
	})

	r.Route("/internal/v1", func(r chi.Router) {
		r.Use(middleware.Identify(cfg.JWT, logg))
		r.Use(middleware.RequireService(logg))
		r.Use(middleware.Idempotency(store, logg))

		r.Post("/carts/{cartId}/convert", cartcontrollers.CartConvert(cartService, logg))
	})

	return r
}

package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/cartcore-backend/pkg/config"
)

// CORS applies the configured origin policy. The session header is exposed
// so browsers can read the token minted for a new guest cart.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", SessionHeader, "Idempotency-Key", "X-Requested-With"},
		ExposedHeaders:   []string{SessionHeader, "Retry-After", requestIDHeader},
		AllowCredentials: !allowsAny(origins),
		MaxAge:           300,
	}).Handler
}

func allowsAny(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

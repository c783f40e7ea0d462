package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/cartcore-backend/api/responses"
	"github.com/angelmondragon/cartcore-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/cartcore-backend/pkg/errors"
	"github.com/angelmondragon/cartcore-backend/pkg/logger"
)

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
	RateLimitKey(policy, scope, id string) string
}

// RateLimitPolicy defines fixed-window limits per client IP and per cart.
type RateLimitPolicy struct {
	name      string
	window    time.Duration
	ipLimit   int
	cartLimit int
}

func NewRateLimitPolicy(name string, window time.Duration, ipLimit, cartLimit int) RateLimitPolicy {
	return RateLimitPolicy{
		name:      strings.ToLower(strings.TrimSpace(name)),
		window:    window,
		ipLimit:   ipLimit,
		cartLimit: cartLimit,
	}
}

// CouponRateLimitPolicy reads the coupon limits from config.
func CouponRateLimitPolicy(cfg config.RateLimitConfig) RateLimitPolicy {
	return NewRateLimitPolicy("coupon", cfg.CouponWindow, cfg.CouponIPLimit, cfg.CouponCartLimit)
}

func (p RateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.cartLimit > 0)
}

func (p RateLimitPolicy) normalizedName() string {
	if p.name == "" {
		return "default"
	}
	return p.name
}

// RateLimit counts every request, successful or not, against both windows.
// The cart scope reads the cartId route parameter.
func RateLimit(policy RateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if policy.ipLimit > 0 {
				if ip := clientIP(r); ip != "" {
					key := store.RateLimitKey(policy.normalizedName(), "ip", ip)
					if !checkLimit(ctx, w, store, logg, policy, key, "ip", int64(policy.ipLimit)) {
						return
					}
				}
			}

			if policy.cartLimit > 0 {
				if cartID := strings.TrimSpace(chi.URLParam(r, "cartId")); cartID != "" {
					key := store.RateLimitKey(policy.normalizedName(), "cart", cartID)
					if !checkLimit(ctx, w, store, logg, policy, key, "cart", int64(policy.cartLimit)) {
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func checkLimit(ctx context.Context, w http.ResponseWriter, store rateLimiterStore, logg *logger.Logger, policy RateLimitPolicy, key, scope string, limit int64) bool {
	count, err := store.IncrWithTTL(ctx, key, policy.window)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
		return false
	}
	if count <= limit {
		return true
	}

	if logg != nil {
		logCtx := logg.WithFields(ctx, map[string]any{
			"scope":          scope,
			"policy":         policy.normalizedName(),
			"attempts":       count,
			"limit":          limit,
			"window_seconds": int(policy.window.Seconds()),
		})
		logg.Warn(logCtx, "rate_limit.blocked")
	}
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
	return false
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

// hashValue keeps raw session tokens out of redis keys.
func hashValue(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

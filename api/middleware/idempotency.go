package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/cartcore-backend/api/responses"
	pkgerrors "github.com/angelmondragon/cartcore-backend/pkg/errors"
	"github.com/angelmondragon/cartcore-backend/pkg/logger"
)

// IdempotencyHeader carries the client supplied request key.
const IdempotencyHeader = "Idempotency-Key"

const (
	cartReplayTTL    = 24 * time.Hour
	convertReplayTTL = 7 * 24 * time.Hour

	// bodies past this size are rejected downstream anyway
	maxReplayBody = 64 << 10
)

// replayRoute selects a request for response replay. Pattern segments
// written as {name} match any single path segment.
type replayRoute struct {
	method   string
	pattern  string
	ttl      time.Duration
	required bool
}

// Item and coupon mutations are deduplicated inside the cart service. These
// routes create or close carts, so the first response is replayed verbatim.
var replayRoutes = []replayRoute{
	{method: http.MethodPost, pattern: "/api/v1/carts", ttl: cartReplayTTL},
	{method: http.MethodPost, pattern: "/api/v1/carts/merge", ttl: cartReplayTTL},
	{method: http.MethodPost, pattern: "/internal/v1/carts/{cartId}/convert", ttl: convertReplayTTL, required: true},
}

// A new guest cart is only reachable through its session header, so it
// travels with the stored body.
var replayHeaders = []string{"Content-Type", SessionHeader}

type replayStore interface {
	Get(context.Context, string) (string, error)
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
}

type storedResponse struct {
	Status      int               `json:"status"`
	Body        []byte            `json:"body"`
	Headers     map[string]string `json:"headers,omitempty"`
	Fingerprint string            `json:"fingerprint"`
}

func (s storedResponse) writeTo(w http.ResponseWriter) {
	for name, value := range s.Headers {
		w.Header().Set(name, value)
	}
	w.WriteHeader(s.Status)
	_, _ = w.Write(s.Body)
}

// Idempotency replays the stored response when a client retries one of the
// replayRoutes with the same Idempotency-Key and body. A different body
// under a used key is a conflict. Server errors, conflicts and throttled
// responses are never stored, so the retry runs again.
func Idempotency(store replayStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, ok := matchReplayRoute(r.Method, r.URL.Path)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if clientKey == "" {
				if route.required {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, IdempotencyHeader+" header required"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxReplayBody+1))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := store.IdempotencyKey(replayScope(r), clientKey)
			fingerprint := hashValue(string(body))

			prior, found, err := loadResponse(ctx, store, key)
			switch {
			case err != nil:
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency key"))
				return
			case found && prior.Fingerprint != fingerprint:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different request body"))
				return
			case found:
				prior.writeTo(w)
				return
			}

			capture := &bodyRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(capture, r)
			if !replayable(capture.status) {
				return
			}

			saved := storedResponse{
				Status:      capture.status,
				Body:        capture.body.Bytes(),
				Headers:     pickHeaders(capture.Header()),
				Fingerprint: fingerprint,
			}
			if err := saveResponse(ctx, store, key, saved, route.ttl); err != nil && logg != nil {
				logg.Error(ctx, "store idempotent response", err)
			}
		})
	}
}

func matchReplayRoute(method, path string) (replayRoute, bool) {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	for _, route := range replayRoutes {
		if route.method == method && pathMatches(route.pattern, path) {
			return route, true
		}
	}
	return replayRoute{}, false
}

func pathMatches(pattern, path string) bool {
	want := strings.Split(pattern, "/")
	got := strings.Split(path, "/")
	if len(want) != len(got) {
		return false
	}
	for i, segment := range want {
		if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
			if got[i] == "" {
				return false
			}
			continue
		}
		if segment != got[i] {
			return false
		}
	}
	return true
}

// replayScope keeps keys from different callers apart. Session tokens are
// hashed before they reach redis.
func replayScope(r *http.Request) string {
	ctx := r.Context()
	return strings.Join([]string{
		string(ActorKindFromContext(ctx)),
		CustomerIDFromContext(ctx),
		ServiceNameFromContext(ctx),
		hashValue(SessionTokenFromContext(ctx)),
		r.Method,
		r.URL.Path,
	}, "|")
}

func replayable(status int) bool {
	switch {
	case status >= http.StatusInternalServerError:
		return false
	case status == http.StatusConflict, status == http.StatusTooManyRequests:
		return false
	}
	return true
}

func pickHeaders(h http.Header) map[string]string {
	var out map[string]string
	for _, name := range replayHeaders {
		value := h.Get(name)
		if value == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(replayHeaders))
		}
		out[name] = value
	}
	return out
}

func loadResponse(ctx context.Context, store replayStore, key string) (storedResponse, bool, error) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return storedResponse{}, false, nil
	}
	if err != nil {
		return storedResponse{}, false, err
	}
	var resp storedResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return storedResponse{}, false, err
	}
	return resp, true, nil
}

func saveResponse(ctx context.Context, store replayStore, key string, resp storedResponse, ttl time.Duration) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	// a concurrent first request may have stored already; keep the earlier one
	_, err = store.SetNX(ctx, key, string(payload), ttl)
	return err
}

type bodyRecorder struct {
	http.ResponseWriter
	body        bytes.Buffer
	status      int
	wroteHeader bool
}

func (b *bodyRecorder) WriteHeader(code int) {
	if !b.wroteHeader {
		b.status = code
		b.wroteHeader = true
	}
	b.ResponseWriter.WriteHeader(code)
}

func (b *bodyRecorder) Write(p []byte) (int, error) {
	b.wroteHeader = true
	b.body.Write(p)
	return b.ResponseWriter.Write(p)
}

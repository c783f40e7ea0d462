package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/cartcore-backend/pkg/errors"
)

type memoryReplayStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newMemoryReplayStore() *memoryReplayStore {
	return &memoryReplayStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryReplayStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryReplayStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryReplayStore) IdempotencyKey(scope, id string) string {
	return "test:idem:" + scope + ":" + id
}

func post(path, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	return req
}

func TestMatchReplayRoute(t *testing.T) {
	cases := []struct {
		method   string
		path     string
		ok       bool
		ttl      time.Duration
		required bool
	}{
		{http.MethodPost, "/api/v1/carts", true, cartReplayTTL, false},
		{http.MethodPost, "/api/v1/carts/", true, cartReplayTTL, false},
		{http.MethodPost, "/api/v1/carts/merge", true, cartReplayTTL, false},
		{http.MethodPost, "/internal/v1/carts/3f1c/convert", true, convertReplayTTL, true},
		{http.MethodPost, "/internal/v1/carts//convert", false, 0, false},
		{http.MethodPost, "/api/v1/carts/3f1c/items", false, 0, false},
		{http.MethodGet, "/api/v1/carts", false, 0, false},
	}
	for _, tc := range cases {
		route, ok := matchReplayRoute(tc.method, tc.path)
		require.Equal(t, tc.ok, ok, "%s %s", tc.method, tc.path)
		if ok {
			assert.Equal(t, tc.ttl, route.ttl, tc.path)
			assert.Equal(t, tc.required, route.required, tc.path)
		}
	}
}

func TestConvertRequiresIdempotencyKey(t *testing.T) {
	called := false
	h := Idempotency(newMemoryReplayStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, post("/internal/v1/carts/c1/convert", "", `{"order_id":"o-1"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)
}

func TestReplayReturnsFirstResponse(t *testing.T) {
	store := newMemoryReplayStore()
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set(SessionHeader, "tok-new")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"c1"}}`))
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, post("/api/v1/carts", "k-1", `{"currency":"USD"}`))
	require.Equal(t, http.StatusCreated, first.Code)

	again := httptest.NewRecorder()
	h.ServeHTTP(again, post("/api/v1/carts", "k-1", `{"currency":"USD"}`))
	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, again.Code)
	assert.Equal(t, "application/json", again.Header().Get("Content-Type"))
	assert.Equal(t, "tok-new", again.Header().Get(SessionHeader))
	assert.JSONEq(t, `{"data":{"id":"c1"}}`, again.Body.String())

	for key, ttl := range store.ttls {
		assert.Equal(t, cartReplayTTL, ttl, key)
	}
}

func TestReplayRejectsChangedBody(t *testing.T) {
	h := Idempotency(newMemoryReplayStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	h.ServeHTTP(httptest.NewRecorder(), post("/api/v1/carts", "k-2", `{"currency":"USD"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, post("/api/v1/carts", "k-2", `{"currency":"EUR"}`))

	require.Equal(t, http.StatusConflict, rec.Code)
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(pkgerrors.CodeIdempotency), body.Error.Code)
}

func TestReplayWithoutKeyAlwaysRuns(t *testing.T) {
	store := newMemoryReplayStore()
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	h.ServeHTTP(httptest.NewRecorder(), post("/api/v1/carts", "", `{}`))
	h.ServeHTTP(httptest.NewRecorder(), post("/api/v1/carts", "", `{}`))
	assert.Equal(t, 2, calls)
	assert.Empty(t, store.data)
}

func TestReplaySkipsRetryableStatuses(t *testing.T) {
	for _, status := range []int{http.StatusServiceUnavailable, http.StatusConflict, http.StatusTooManyRequests} {
		store := newMemoryReplayStore()
		calls := 0
		h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls == 1 {
				w.WriteHeader(status)
				return
			}
			w.WriteHeader(http.StatusCreated)
		}))

		h.ServeHTTP(httptest.NewRecorder(), post("/api/v1/carts", "k-3", `{}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, post("/api/v1/carts", "k-3", `{}`))
		assert.Equal(t, 2, calls, "status %d", status)
		assert.Equal(t, http.StatusCreated, rec.Code)
	}
}

func TestReplayScopedPerCaller(t *testing.T) {
	calls := 0
	h := Idempotency(newMemoryReplayStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	for _, customer := range []string{"cust-1", "cust-2"} {
		req := post("/api/v1/carts/merge", "same-key", `{}`)
		req = req.WithContext(WithCustomerID(req.Context(), customer))
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, calls)
}

func TestReplayIgnoresOtherRoutes(t *testing.T) {
	store := newMemoryReplayStore()
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	h.ServeHTTP(httptest.NewRecorder(), post("/api/v1/carts/c1/items", "k-4", `{}`))
	assert.Empty(t, store.data)
}

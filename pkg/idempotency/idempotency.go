package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Store is the redis surface the claim manager needs.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	ClaimKey(scope, op, id string) string
}

// Manager records which client-supplied idempotency keys have already been
// applied. Keys follow the `cc:claim:<scope>:<op>:<key>` pattern.
type Manager struct {
	store Store
	ttl   time.Duration
}

func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// Claim marks key as in use for scope/op. It returns false when the key was
// already claimed, meaning the operation ran before. An empty key always
// claims, so callers that did not send a key are never deduplicated.
func (m *Manager) Claim(ctx context.Context, scope, op, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return true, nil
	}
	if scope == "" || op == "" {
		return false, errors.New("scope and op are required")
	}
	return m.store.SetNX(ctx, m.store.ClaimKey(scope, op, key), "1", m.ttl)
}

// Release drops a claim so a failed operation can be retried with the same key.
func (m *Manager) Release(ctx context.Context, scope, op, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	return m.store.Del(ctx, m.store.ClaimKey(scope, op, key))
}

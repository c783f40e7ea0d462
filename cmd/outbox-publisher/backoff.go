package main

import (
	"context"
	"math/rand/v2"
	"time"
)

const (
	maxBackoff   = 10 * time.Second
	jitterWindow = 250 * time.Millisecond
)

// pollBackoff doubles the wait after each failed batch, up to max, and
// spreads every wait by up to jitterWindow so replicas do not poll in step.
type pollBackoff struct {
	base    time.Duration
	max     time.Duration
	current time.Duration
}

func newPollBackoff(base, max time.Duration) *pollBackoff {
	return &pollBackoff{base: base, max: max, current: base}
}

func (b *pollBackoff) fail() time.Duration {
	if b.current <= 0 {
		b.current = b.base
	}
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return withJitter(b.current)
}

func (b *pollBackoff) idle() time.Duration {
	return withJitter(b.base)
}

func (b *pollBackoff) reset() {
	b.current = b.base
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/cartcore-backend/pkg/logger"
)

const (
	defaultExpiryBatch = 500
	maxExpiryRounds    = 20
)

type cartSweeper interface {
	ExpireSweep(ctx context.Context, now time.Time) (int, error)
}

type CartExpiryJobParams struct {
	Logger  *logger.Logger
	Sweeper cartSweeper
	// Batch must match the sweeper's per-call cap; a short batch ends the run.
	Batch int
	Now   func() time.Time
}

// NewCartExpiryJob flips active carts past their expiry to expired in
// batches, each batch in its own transaction.
func NewCartExpiryJob(params CartExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("cart sweeper required")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &cartExpiryJob{logg: params.Logger, sweeper: params.Sweeper, batch: batch, now: now}, nil
}

type cartExpiryJob struct {
	logg    *logger.Logger
	sweeper cartSweeper
	batch   int
	now     func() time.Time
}

func (j *cartExpiryJob) Name() string { return "cart-expiry" }

func (j *cartExpiryJob) Run(ctx context.Context) (Result, error) {
	cutoff := j.now().UTC()
	var total int64
	rounds := 0
	for rounds < maxExpiryRounds {
		rounds++
		n, err := j.sweeper.ExpireSweep(ctx, cutoff)
		if err != nil {
			return Result{Rows: total}, fmt.Errorf("cart expiry round %d: %w", rounds, err)
		}
		total += int64(n)
		if n < j.batch || ctx.Err() != nil {
			break
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":        cutoff,
		"rounds":        rounds,
		"carts_expired": total,
	}), "cart expiry sweep complete")
	return Result{Rows: total}, nil
}

package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/cartcore-backend/pkg/logger"
)

const defaultOutboxRetention = 7 * 24 * time.Hour

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository outboxPruner
	Retention  time.Duration
	Now        func() time.Time
}

// NewOutboxRetentionJob deletes published outbox rows older than the
// retention window. Unpublished and dead-lettered rows are never touched.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &outboxRetentionJob{logg: params.Logger, repo: params.Repository, retention: retention, now: now}, nil
}

type outboxRetentionJob struct {
	logg      *logger.Logger
	repo      outboxPruner
	retention time.Duration
	now       func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) (Result, error) {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.repo.DeletePublishedBefore(ctx, cutoff)
	if err != nil {
		return Result{}, fmt.Errorf("outbox retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	}), "outbox retention cleanup complete")
	return Result{Rows: deleted}, nil
}

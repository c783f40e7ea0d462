package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/cartcore-backend/pkg/logger"
	"github.com/angelmondragon/cartcore-backend/pkg/metrics"
)

const defaultInterval = 5 * time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// JobTimeout bounds a single job run. Zero means the interval.
	JobTimeout time.Duration
}

// Report summarizes one cycle.
type Report struct {
	Skipped bool
	Ran     []string
	Failed  []string
	Rows    int64
}

// Service runs the registered jobs in order once per interval, only on the
// worker holding the lease.
type Service struct {
	logg       *logger.Logger
	jobs       *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	jobs := params.Registry
	if jobs == nil {
		jobs, _ = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	jobTimeout := params.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = interval
	}
	return &Service{
		logg:       params.Logger,
		jobs:       jobs,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   interval,
		jobTimeout: jobTimeout,
	}, nil
}

// Run starts a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce takes the lease and runs every job. A failing job does not stop
// the ones after it; its name is listed in the report.
func (s *Service) RunOnce(ctx context.Context) (Report, error) {
	var report Report
	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		return report, fmt.Errorf("acquire cron lease: %w", err)
	}
	if !acquired {
		report.Skipped = true
		s.logg.Info(ctx, "cron lease held by another worker")
		return report, nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "release cron lease", err)
		}
	}()

	for _, job := range s.jobs.Jobs() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		rows, err := s.runJob(ctx, job)
		report.Ran = append(report.Ran, job.Name())
		report.Rows += rows
		if err != nil {
			report.Failed = append(report.Failed, job.Name())
		}
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs":   len(report.Ran),
		"failed": len(report.Failed),
		"rows":   report.Rows,
	}), "cron cycle finished")
	return report, nil
}

func (s *Service) runJob(ctx context.Context, job Job) (int64, error) {
	name := job.Name()
	jobCtx, cancel := context.WithTimeout(s.logg.WithField(ctx, "job", name), s.jobTimeout)
	defer cancel()

	started := time.Now()
	res, err := job.Run(jobCtx)
	elapsed := time.Since(started)
	s.metrics.ObserveDuration(name, elapsed)

	logCtx := s.logg.WithFields(jobCtx, map[string]any{
		"duration_ms": elapsed.Milliseconds(),
		"rows":        res.Rows,
	})
	if err != nil {
		s.metrics.IncFailure(name)
		s.logg.Error(logCtx, "cron job failed", err)
		return res.Rows, err
	}
	s.metrics.AddRows(name, res.Rows)
	s.metrics.IncSuccess(name)
	s.logg.Info(logCtx, "cron job finished")
	return res.Rows, nil
}

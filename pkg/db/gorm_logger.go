package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/cartcore-backend/pkg/logger"
)

// queryLogger routes gorm's statement log into the structured logger. Only
// slow statements and unexpected failures are logged; missing rows and
// unique violations are ordinary outcomes for the cart repositories.
type queryLogger struct {
	logg      *logger.Logger
	slow      time.Duration
	level     gormlogger.LogLevel
	maxSQLLen int
}

func newQueryLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	if logg == nil {
		return gormlogger.Discard
	}
	return &queryLogger{logg: logg, slow: slow, level: gormlogger.Warn, maxSQLLen: 512}
}

func (l *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *queryLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.logg.Debug(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *queryLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.logg.Warn(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *queryLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.logg.Error(ctx, "db.error", fmt.Errorf(msg, args...))
	}
}

func (l *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && !IsUniqueViolation(err, "")
	slow := l.slow > 0 && elapsed > l.slow
	if !failed && !slow {
		return
	}

	sql, rows := fc()
	if len(sql) > l.maxSQLLen {
		sql = sql[:l.maxSQLLen]
	}
	ctx = l.logg.WithFields(ctx, map[string]any{
		"sql":         sql,
		"rows":        rows,
		"duration_ms": elapsed.Milliseconds(),
	})
	if failed {
		l.logg.Error(ctx, "db.query_failed", err)
		return
	}
	l.logg.Warn(ctx, "db.slow_query")
}

package database

import (
	"context"
	"errors"
	"time"

	"github.com/kart-io/logger"
	gormlogger "gorm.io/gorm/logger"
)

var _ gormlogger.Interface = (*queryLogger)(nil)

// queryLogger sends gorm output to the global logger. Missing rows are
// normal lookups for plans, sessions and threads, so they are not errors.
type queryLogger struct {
	level gormlogger.LogLevel
	slow  time.Duration
}

func (l *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &queryLogger{level: level, slow: l.slow}
}

func (l *queryLogger) Info(ctx context.Context, msg string, args ...any) {
	l.printf(ctx, gormlogger.Info, msg, args...)
}

func (l *queryLogger) Warn(ctx context.Context, msg string, args ...any) {
	l.printf(ctx, gormlogger.Warn, msg, args...)
}

func (l *queryLogger) Error(ctx context.Context, msg string, args ...any) {
	l.printf(ctx, gormlogger.Error, msg, args...)
}

func (l *queryLogger) printf(ctx context.Context, at gormlogger.LogLevel, msg string, args ...any) {
	if l.level < at {
		return
	}
	log := logger.Global().WithCtx(ctx)
	switch at {
	case gormlogger.Error:
		log.Errorf(msg, args...)
	case gormlogger.Warn:
		log.Warnf(msg, args...)
	default:
		log.Infof(msg, args...)
	}
}

func (l *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound)
	slow := l.slow > 0 && elapsed > l.slow

	var at gormlogger.LogLevel
	switch {
	case failed:
		at = gormlogger.Error
	case slow:
		at = gormlogger.Warn
	default:
		at = gormlogger.Info
	}
	if l.level < at {
		return
	}

	sql, rows := fc()
	kv := []any{"sql", sql, "rows", rows, "elapsed", elapsed.String()}
	log := logger.Global().WithCtx(ctx)
	switch at {
	case gormlogger.Error:
		log.Errorw("Database query failed", append(kv, "error", err)...)
	case gormlogger.Warn:
		log.Warnw("Slow database query", append(kv, "threshold", l.slow.String())...)
	default:
		log.Infow("Database query", kv...)
	}
}

package infra

import (
	"context"
	"errors"
	"time"

	"usagehub/internal/logger"
	"usagehub/internal/metrics"

	"go.uber.org/zap"
	gormLogger "gorm.io/gorm/logger"
)

// maxLoggedSQL 日志中保留的 SQL 最大长度
const maxLoggedSQL = 2048

// GormZapLogger GORM 日志适配器（输出到 Zap），同时记录日志库查询耗时
type GormZapLogger struct {
	ZapLogger                 *zap.Logger
	LogLevel                  gormLogger.LogLevel
	SlowThreshold             time.Duration
	IgnoreRecordNotFoundError bool
}

// LogMode 设置日志级别
func (l *GormZapLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

func (l *GormZapLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Info {
		l.with(ctx).Sugar().Infof(msg, data...)
	}
}

func (l *GormZapLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Warn {
		l.with(ctx).Sugar().Warnf(msg, data...)
	}
}

func (l *GormZapLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Error {
		l.with(ctx).Sugar().Errorf(msg, data...)
	}
}

// Trace SQL 执行日志；查询耗时无论日志级别都会计入指标
func (l *GormZapLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	failed := err != nil && (!errors.Is(err, gormLogger.ErrRecordNotFound) || !l.IgnoreRecordNotFoundError)

	status := "ok"
	switch {
	case failed:
		status = "error"
	case l.SlowThreshold > 0 && elapsed > l.SlowThreshold:
		status = "slow"
	}
	metrics.LogStoreQueryDuration.WithLabelValues(status).Observe(elapsed.Seconds())

	if l.LogLevel <= gormLogger.Silent {
		return
	}

	sql, rows := fc()
	if len(sql) > maxLoggedSQL {
		sql = sql[:maxLoggedSQL] + "..."
	}
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	log := l.with(ctx)
	switch status {
	case "error":
		if l.LogLevel >= gormLogger.Error {
			log.Error("SQL 执行错误", append(fields, zap.Error(err))...)
		}
	case "slow":
		if l.LogLevel >= gormLogger.Warn {
			log.Warn("SQL 慢查询", fields...)
		}
	default:
		if l.LogLevel >= gormLogger.Info {
			log.Debug("SQL 执行", fields...)
		}
	}
}

func (l *GormZapLogger) with(ctx context.Context) *zap.Logger {
	if traceID := logger.GetTraceID(ctx); traceID != "" {
		return l.ZapLogger.With(zap.String("trace_id", traceID))
	}
	return l.ZapLogger
}

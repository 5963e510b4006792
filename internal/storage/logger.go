package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"followreq/internal/ctxkeys"
	"followreq/internal/logger"
)

// GormLogger 将 gorm 日志转发到项目日志器
type GormLogger struct {
	log           logger.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// NewGormLogger 创建 gorm 日志桥接，默认只输出告警和错误
func NewGormLogger(l logger.Logger) *GormLogger {
	return &GormLogger{
		log:           l.With("component", "journal"),
		level:         gormlogger.Warn,
		slowThreshold: 200 * time.Millisecond,
	}
}

// LogMode 设置日志级别
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		l.log.Info(msg, "traceId", ctxkeys.TraceID(ctx), "data", data)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		l.log.Warn(msg, "traceId", ctxkeys.TraceID(ctx), "data", data)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		l.log.Error(msg, "traceId", ctxkeys.TraceID(ctx), "data", data)
	}
}

// Trace 输出 SQL 执行情况，未找到记录不算错误
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	kv := []any{"traceId", ctxkeys.TraceID(ctx), "sql", sql, "rows", rows, "elapsed", elapsed}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		l.log.Err(err, "流水SQL执行失败", kv...)
	case elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		l.log.Warn("流水SQL执行缓慢", kv...)
	case l.level >= gormlogger.Info:
		l.log.Debug("流水SQL", kv...)
	}
}

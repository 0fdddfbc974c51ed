// Package logger configures the process-wide logrus logger and adapts it to
// gorm's logging interface.
package logger

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	gormlogger "gorm.io/gorm/logger"
)

// New builds a logrus logger writing to stderr at the given level. Invalid
// level strings fall back to info.
func New(level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)
	return log
}

// GormLogger adapts a logrus logger to gorm's logger.Interface, flagging
// slow queries.
type GormLogger struct {
	logger        *logrus.Logger
	slowThreshold time.Duration
}

// NewGormLogger wraps a logrus logger for use as a gorm logger.
func NewGormLogger(log *logrus.Logger) *GormLogger {
	return &GormLogger{logger: log, slowThreshold: 200 * time.Millisecond}
}

func (l *GormLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	return &clone
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.logger.WithContext(ctx).Infof(msg, data...)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.logger.WithContext(ctx).Warnf(msg, data...)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.logger.WithContext(ctx).Errorf(msg, data...)
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()
	entry := l.logger.WithContext(ctx).WithFields(logrus.Fields{
		"elapsed": elapsed,
		"rows":    rows,
		"sql":     sql,
	})
	switch {
	case err != nil:
		entry.Error(err)
	case elapsed > l.slowThreshold:
		entry.Warnf("slow sql >= %s", l.slowThreshold)
	default:
		entry.Debug("sql")
	}
}

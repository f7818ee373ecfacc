package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger writes GORM statements to zap with the company and actor of
// the command that issued them. Statements that take row locks get their
// own slow threshold since they hold up concurrent allocations.
type GormLogger struct {
	logger                    *zap.Logger
	logLevel                  gormlogger.LogLevel
	slowThreshold             time.Duration
	lockSlowThreshold         time.Duration
	ignoreRecordNotFoundError bool
}

// GormLoggerOption configures a GormLogger
type GormLoggerOption func(*GormLogger)

// WithSlowThreshold sets the slow statement threshold. Zero disables it.
func WithSlowThreshold(threshold time.Duration) GormLoggerOption {
	return func(l *GormLogger) {
		l.slowThreshold = threshold
	}
}

// WithLockSlowThreshold sets the slow threshold for SELECT ... FOR UPDATE
func WithLockSlowThreshold(threshold time.Duration) GormLoggerOption {
	return func(l *GormLogger) {
		l.lockSlowThreshold = threshold
	}
}

// WithIgnoreRecordNotFoundError drops not-found errors
func WithIgnoreRecordNotFoundError(ignore bool) GormLoggerOption {
	return func(l *GormLogger) {
		l.ignoreRecordNotFoundError = ignore
	}
}

// NewGormLogger creates a GORM logger backed by zap
func NewGormLogger(zapLogger *zap.Logger, level gormlogger.LogLevel, opts ...GormLoggerOption) *GormLogger {
	gl := &GormLogger{
		logger:                    zapLogger.Named("gorm"),
		logLevel:                  level,
		slowThreshold:             200 * time.Millisecond,
		lockSlowThreshold:         100 * time.Millisecond,
		ignoreRecordNotFoundError: true,
	}
	for _, opt := range opts {
		opt(gl)
	}
	return gl
}

// LogMode implements gormlogger.Interface
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	newLogger := *l
	newLogger.logLevel = level
	return &newLogger
}

// Info implements gormlogger.Interface
func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.logLevel >= gormlogger.Info {
		WithLogger(ctx, l.logger).Zap().Sugar().Infof(msg, data...)
	}
}

// Warn implements gormlogger.Interface
func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.logLevel >= gormlogger.Warn {
		WithLogger(ctx, l.logger).Zap().Sugar().Warnf(msg, data...)
	}
}

// Error implements gormlogger.Interface
func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.logLevel >= gormlogger.Error {
		WithLogger(ctx, l.logger).Zap().Sugar().Errorf(msg, data...)
	}
}

// Trace implements gormlogger.Interface.
//
// Unique violations and lock contention are logged as warnings: the
// command runner turns the former into an idempotent replay and the
// latter is retried or reported to the caller as a conflict.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.logLevel <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	stmt := ClassifyStatement(sql)

	fields := []zap.Field{
		zap.String("op", stmt.Operation),
		zap.String("table", stmt.Table),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", sql),
	}
	if stmt.Locking {
		fields = append(fields, zap.Bool("row_lock", true))
	}
	log := WithLogger(ctx, l.logger)

	threshold := l.slowThreshold
	if stmt.Locking && l.lockSlowThreshold > 0 {
		threshold = l.lockSlowThreshold
	}

	switch {
	case err != nil && l.logLevel >= gormlogger.Error:
		if l.ignoreRecordNotFoundError && errors.Is(err, gormlogger.ErrRecordNotFound) {
			return
		}
		fields = append(fields, zap.Error(err))
		switch {
		case errors.Is(err, gorm.ErrDuplicatedKey):
			log.Warn("SQL unique violation", fields...)
		case IsLockContention(err):
			log.Warn("SQL lock contention", fields...)
		default:
			log.Error("SQL error", fields...)
		}

	case threshold > 0 && elapsed > threshold && l.logLevel >= gormlogger.Warn:
		log.Warn("SQL slow", append(fields, zap.Duration("threshold", threshold))...)

	case l.logLevel >= gormlogger.Info:
		log.Debug("SQL", fields...)
	}
}

// Statement summarises a SQL statement for log fields
type Statement struct {
	Operation string
	Table     string
	Locking   bool
}

// ClassifyStatement extracts the operation, the first table and whether the
// statement takes row locks. Unknown shapes yield an empty table.
func ClassifyStatement(sql string) Statement {
	words := strings.Fields(sql)
	if len(words) == 0 {
		return Statement{}
	}
	upper := strings.ToUpper(sql)
	stmt := Statement{
		Operation: strings.ToLower(words[0]),
		Locking:   strings.Contains(upper, " FOR UPDATE") || strings.Contains(upper, " FOR SHARE"),
	}

	var after string
	switch stmt.Operation {
	case "select", "delete":
		after = "FROM"
	case "insert":
		after = "INTO"
	case "update":
		after = "UPDATE"
	default:
		return stmt
	}
	for i, w := range words {
		if strings.EqualFold(w, after) && i+1 < len(words) {
			stmt.Table = strings.Trim(words[i+1], "`\"(;")
			break
		}
	}
	return stmt
}

// IsLockContention reports deadlocks, lock timeouts and busy sqlite files
func IsLockContention(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"deadlock detected",
		"could not obtain lock",
		"lock timeout",
		"could not serialize access",
		"database is locked",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// MapGormLogLevel maps a config log level to a GORM log level
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "warn":
		return gormlogger.Warn
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

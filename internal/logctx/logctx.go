// Package logctx is a thin structured-logging wrapper over logrus:
// logctx.Warn(msg, logctx.Ctx{"key": val}) and logctx.AddContext(...) for a
// logger bound to a fixed set of fields.
package logctx

import "github.com/sirupsen/logrus"

// Ctx is a set of structured fields attached to a single log line.
type Ctx map[string]any

// base is the package-level logger every helper ultimately writes through.
var base = logrus.StandardLogger()

// SetLevel adjusts the minimum severity emitted; used by cmd/opensmd's
// --verbose/--debug flags.
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}

// Logger is a context-bound logger returned by AddContext.
type Logger struct {
	fields logrus.Fields
}

// AddContext returns a Logger that includes ctx on every subsequent call:
// l := logctx.AddContext(logctx.Ctx{...}).
func AddContext(ctx Ctx) *Logger {
	return &Logger{fields: logrus.Fields(ctx)}
}

func (l *Logger) entry() *logrus.Entry {
	return base.WithFields(l.fields)
}

// Debug logs at debug level with additional per-call context merged in.
func (l *Logger) Debug(msg string, ctx ...Ctx) { logWith(l.entry(), msg, ctx, (*logrus.Entry).Debug) }

// Info logs at info level with additional per-call context merged in.
func (l *Logger) Info(msg string, ctx ...Ctx) { logWith(l.entry(), msg, ctx, (*logrus.Entry).Info) }

// Warn logs at warn level with additional per-call context merged in.
func (l *Logger) Warn(msg string, ctx ...Ctx) { logWith(l.entry(), msg, ctx, (*logrus.Entry).Warn) }

// Error logs at error level with additional per-call context merged in.
func (l *Logger) Error(msg string, ctx ...Ctx) { logWith(l.entry(), msg, ctx, (*logrus.Entry).Error) }

func logWith(e *logrus.Entry, msg string, ctxs []Ctx, level func(*logrus.Entry, ...any)) {
	for _, c := range ctxs {
		e = e.WithFields(logrus.Fields(c))
	}

	level(e, msg)
}

// Debug logs at debug level directly on the package logger.
func Debug(msg string, ctx ...Ctx) { logWith(base.WithFields(nil), msg, ctx, (*logrus.Entry).Debug) }

// Info logs at info level directly on the package logger.
func Info(msg string, ctx ...Ctx) { logWith(base.WithFields(nil), msg, ctx, (*logrus.Entry).Info) }

// Warn logs at warn level directly on the package logger.
func Warn(msg string, ctx ...Ctx) { logWith(base.WithFields(nil), msg, ctx, (*logrus.Entry).Warn) }

// Error logs at error level directly on the package logger.
func Error(msg string, ctx ...Ctx) { logWith(base.WithFields(nil), msg, ctx, (*logrus.Entry).Error) }

// Package log provides structured logging for mwemu using zap.
package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with the stub/trace helpers the rest of the
// core and its stub packages call into.
type Logger struct {
	*zap.Logger
	onTrace func(rip uint64, category, name, detail string)
}

var (
	// L is the global logger instance.
	L    *Logger
	once sync.Once
)

// Init initializes the global logger. Safe to call multiple times;
// only the first call takes effect.
func Init(debug bool) {
	once.Do(func() {
		L = New(debug)
	})
}

// New builds a Logger: development config (colorized, debug level) or
// production config (JSON, warn level and above), matching the
// teacher's two-mode zap setup.
func New(debug bool) *Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		logger = zap.NewNop()
	}
	return &Logger{Logger: logger}
}

// NewNop creates a no-op logger for testing.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// SetOnTrace wires the callback that mirrors stub/fault events into
// the CSV execution trace (internal/trace).
func (l *Logger) SetOnTrace(fn func(rip uint64, category, name, detail string)) {
	l.onTrace = fn
}

// Trace logs a stub or runtime event and forwards it to the trace
// callback, if one is set. This is the single entry point stub
// packages and the exception/scheduler machinery use to report
// activity.
func (l *Logger) Trace(rip uint64, category, name, detail string) {
	if l.onTrace != nil {
		l.onTrace(rip, category, name, detail)
	}
	l.Debug("event",
		zap.String("cat", category),
		zap.String("fn", name),
		zap.String("detail", detail),
		zap.Uint64("rip", rip),
	)
}

// StubInstall logs when a stub is bound to a resolved import address.
func (l *Logger) StubInstall(category, name string, addr uint64, source string) {
	l.Debug("installed",
		zap.String("cat", category),
		zap.String("fn", name),
		Addr(addr),
		zap.String("src", source),
	)
}

// StubFallback logs when an unrecognized import falls through to the
// no-op stub (returns 0, advances past the call).
func (l *Logger) StubFallback(name string) {
	l.Debug("fallback", zap.String("fn", name), zap.String("ret", "0"))
}

// FaultRaised logs a guest fault before it is handed to exception().
func (l *Logger) FaultRaised(kind string, addr, rip uint64) {
	l.Warn("fault", zap.String("kind", kind), Addr(addr), zap.Uint64("rip", rip))
}

// WithCategory returns a logger with the category field preset, for
// per-stub-package loggers that always log the same category.
func (l *Logger) WithCategory(category string) *Logger {
	return &Logger{
		Logger:  l.Logger.With(zap.String("cat", category)),
		onTrace: l.onTrace,
	}
}

func hexString(v uint64) string {
	const digits = "0123456789abcdef"
	if v == 0 {
		return "0"
	}
	buf := make([]byte, 16)
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return string(buf[i:])
}

// Hex formats a uint64 as a 0x-prefixed hex string for logging.
func Hex(addr uint64) string { return "0x" + hexString(addr) }

// Addr creates an address field.
func Addr(addr uint64) zap.Field { return zap.String("addr", Hex(addr)) }

// Size creates a size field.
func Size(size uint64) zap.Field { return zap.Uint64("size", size) }

// Ptr creates a named pointer field.
func Ptr(name string, ptr uint64) zap.Field { return zap.String(name, Hex(ptr)) }

// Fn creates a function-name field.
func Fn(name string) zap.Field { return zap.String("fn", name) }

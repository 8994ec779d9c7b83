// Package logger wraps go.uber.org/zap behind a small package-level
// API, the way the teacher repo's own pkg/logger wraps its structured
// logging backend behind package-level Debug/Info/Warn/Error helpers
// and a lazily-initialized singleton.
package logger

import (
	"os"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"
)

var singleton atomic.Pointer[zap.SugaredLogger]

// unstructuredLogsEnvVar switches the default encoder from JSON to a
// human-readable console format. Unset, empty, or unparseable values
// default to true (console), matching the teacher's "default to the
// friendlier local-dev format" convention for this env var.
const unstructuredLogsEnvVar = "VMCP_UNSTRUCTURED_LOGS"

func unstructuredLogs() bool {
	v, ok := os.LookupEnv(unstructuredLogsEnvVar)
	if !ok {
		return true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return b
}

// Init builds the process-wide logger. debug raises the level to
// Debug; otherwise Info. Safe to call more than once (e.g. once from
// CLI flag parsing, once from a test) — the last call wins.
func Init(debug bool) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if debug {
		level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	cfg := zap.NewProductionConfig()
	if unstructuredLogs() {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = level

	l, err := cfg.Build()
	if err != nil {
		// Fall back to a minimal logger rather than leaving the
		// singleton nil; this should only happen on malformed config.
		l = zap.NewNop()
	}
	singleton.Store(l.Sugar())
}

// Get returns the process-wide logger, initializing a default
// (console, info-level) one on first use if Init was never called.
func Get() *zap.SugaredLogger {
	if l := singleton.Load(); l != nil {
		return l
	}
	Init(false)
	return singleton.Load()
}

// With returns a child logger carrying the given key/value pairs on
// every subsequent log call, e.g. logger.With("backend", name).
func With(kv ...any) *zap.SugaredLogger {
	return Get().With(kv...)
}

// Package-level convenience wrappers, mirroring the teacher's
// Debug/Debugf/Debugw-style API.

func Debug(args ...any)                  { Get().Debug(args...) }
func Debugf(format string, args ...any)  { Get().Debugf(format, args...) }
func Debugw(msg string, kv ...any)       { Get().Debugw(msg, kv...) }
func Info(args ...any)                   { Get().Info(args...) }
func Infof(format string, args ...any)   { Get().Infof(format, args...) }
func Infow(msg string, kv ...any)        { Get().Infow(msg, kv...) }
func Warn(args ...any)                   { Get().Warn(args...) }
func Warnf(format string, args ...any)   { Get().Warnf(format, args...) }
func Warnw(msg string, kv ...any)        { Get().Warnw(msg, kv...) }
func Error(args ...any)                  { Get().Error(args...) }
func Errorf(format string, args ...any)  { Get().Errorf(format, args...) }
func Errorw(msg string, kv ...any)       { Get().Errorw(msg, kv...) }

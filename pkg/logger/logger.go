// Package logger provides the structured logging setup shared across the
// Ignite segment cache: the engine, the reactor, the listener and worker
// threads, and the command-log sink all build their loggers through here so
// that field names and levels stay consistent across subsystems.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-configured, sampled logger scoped to the given
// service name. Sampling keeps the hot path (one log line per accepted
// connection, per expire tick, ...) from dominating output under load.
func New(service string) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	cfg.Sampling = &zap.SamplingConfig{Initial: 100, Thereafter: 100}

	base, err := cfg.Build()
	if err != nil {
		// Fall back to a no-op logger rather than panicking during startup;
		// the cache can still serve traffic without structured logging.
		base = zap.NewNop()
	}

	return base.Named(service).Sugar()
}

// NewDevelopment returns an unsampled, human-readable logger for local
// development and for the test suites that assert on log output.
func NewDevelopment(service string) *zap.SugaredLogger {
	base, err := zap.NewDevelopment()
	if err != nil {
		base = zap.NewNop()
	}
	return base.Named(service).Sugar()
}

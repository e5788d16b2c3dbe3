package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// NewObserverLogger returns a logger that records every entry at or above
// level in memory, for tests that assert on what was logged.
func NewObserverLogger(level zapcore.Level) (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &ZapLogger{zap.New(core)}, logs
}

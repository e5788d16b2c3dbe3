package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name  string
		log   func(Logger)
		level zapcore.Level
	}{
		{"debug", func(l Logger) { l.Debug("entry") }, zapcore.DebugLevel},
		{"info", func(l Logger) { l.Info("entry") }, zapcore.InfoLevel},
		{"warn", func(l Logger) { l.Warn("entry") }, zapcore.WarnLevel},
		{"error", func(l Logger) { l.Error("entry") }, zapcore.ErrorLevel},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			l, logs := NewObserverLogger(zapcore.DebugLevel)

			test.log(l)

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			require.Equal(t, "entry", entry.Message)
			require.Equal(t, test.level, entry.Level)
			require.Empty(t, entry.ContextMap())
		})
	}
}

func TestObserverLoggerFiltersBelowLevel(t *testing.T) {
	l, logs := NewObserverLogger(zapcore.WarnLevel)

	l.Debug("dropped")
	l.Info("dropped")
	l.Warn("kept")

	require.Equal(t, 1, logs.Len())
	require.Equal(t, "kept", logs.All()[0].Message)
}

func TestWithStampsFieldsOnChildOnly(t *testing.T) {
	parent, logs := NewObserverLogger(zapcore.DebugLevel)

	child := parent.With(zap.String("connection", "staging"))
	child.Info("from child")
	parent.Info("from parent")

	entries := logs.All()
	require.Equal(t, map[string]interface{}{"connection": "staging"}, entries[0].ContextMap())
	require.Empty(t, entries[1].ContextMap())
}

func TestNewLogger(t *testing.T) {
	t.Run("none_level_silences_output", func(t *testing.T) {
		l, err := NewLogger("json", "none", "Unix")
		require.NoError(t, err)
		require.False(t, l.Logger.Core().Enabled(zapcore.FatalLevel))
	})

	t.Run("text_format_builds", func(t *testing.T) {
		l, err := NewLogger("text", "info", "ISO8601")
		require.NoError(t, err)
		require.NotNil(t, l)
	})

	t.Run("unknown_level", func(t *testing.T) {
		_, err := NewLogger("json", "loud", "Unix")
		require.ErrorContains(t, err, "unknown log level")
	})

	t.Run("unknown_timestamp_format", func(t *testing.T) {
		_, err := NewLogger("json", "info", "sundial")
		require.ErrorContains(t, err, "unknown log timestamp format")
	})
}

func TestMustNewLoggerPanicsOnBadConfig(t *testing.T) {
	require.Panics(t, func() {
		MustNewLogger("json", "loud", "Unix")
	})
}

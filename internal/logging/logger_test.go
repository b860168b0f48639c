package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "default config", config: nil},
		{name: "debug level", config: &Config{Level: LevelDebug, Develop: true}},
		{name: "error level", config: &Config{Level: LevelError, Develop: false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.config)
			require.NotNil(t, logger)
			logger.Info("smoke test")
		})
	}
}

func TestLoggerWith(t *testing.T) {
	logger := NewLogger(&Config{Level: LevelDebug, Develop: true})
	child := logger.With("component", "imu")
	require.NotNil(t, child)
	child.Info("child logger message")
}

func TestLoggerErrorArgs(t *testing.T) {
	logger := NewLogger(&Config{Level: LevelDebug, Develop: true})
	err := errors.New("boom")
	logger.Error("operation failed", "err", err)
}

func TestGlobalLoggerFunctions(t *testing.T) {
	SetDefault(NewLogger(&Config{Level: LevelDebug, Develop: true}))
	defer SetDefault(NewLogger(DefaultConfig()))

	Debug("debug message", "key", "value")
	Info("info message")
	Warn("warning message")
	Error("error message")
}

func TestDefaultIsSingleton(t *testing.T) {
	SetDefault(nil) //nolint:staticcheck // reset to force lazy init below
	a := Default()
	b := Default()
	require.Same(t, a, b)
}

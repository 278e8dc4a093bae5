package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		level  zerolog.Level
	}{
		{"default", Config{}, zerolog.InfoLevel},
		{"explicit level", Config{Level: "warn"}, zerolog.WarnLevel},
		{"debug wins", Config{Level: "error", Debug: true}, zerolog.DebugLevel},
		{"console on stdout", Config{Output: "stdout", Format: "console"}, zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, Init(tt.config))
			assert.Equal(t, tt.level, GetLogger().GetLevel())
		})
	}
}

func TestInitRejectsBadConfig(t *testing.T) {
	assert.Error(t, Init(Config{Level: "loud"}))
	assert.Error(t, Init(Config{Output: "syslog"}))
}

func TestDefaultConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_OUTPUT", "stdout")
	t.Setenv("DEBUG", "yes")

	cfg := DefaultConfig()
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, "stdout", cfg.Output)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "json", cfg.Format)
}

func TestNewTestLogger(t *testing.T) {
	l := NewTestLogger()
	assert.Equal(t, zerolog.Disabled, l.GetLevel())
}

func TestSetLevel(t *testing.T) {
	require.NoError(t, Init(Config{}))
	SetLevel(zerolog.ErrorLevel)
	assert.Equal(t, zerolog.ErrorLevel, GetLogger().GetLevel())
}

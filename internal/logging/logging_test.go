package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "defaults", config: Config{}},
		{name: "console debug", config: Config{Level: "debug", Format: "console"}},
		{name: "json warn", config: Config{Level: "warn", Format: "json"}},
		{name: "unknown level", config: Config{Level: "loud", Format: "json"}, wantErr: true},
		{name: "unknown format", config: Config{Level: "info", Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
		})
	}
}

func TestNewLoggerLevelEnabled(t *testing.T) {
	logger, err := NewLogger(Config{Level: "warn", Format: "json"})
	require.NoError(t, err)

	core := logger.Core()
	assert.False(t, core.Enabled(zapcore.InfoLevel))
	assert.True(t, core.Enabled(zapcore.WarnLevel))
}

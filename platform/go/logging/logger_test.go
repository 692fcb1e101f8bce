package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerLevelParsing(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger("api-server", "")
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	require.False(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = NewLogger("api-server", "WARN")
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(zapcore.WarnLevel))
	require.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	_, err = NewLogger("api-server", "loudest")
	require.Error(t, err)
}

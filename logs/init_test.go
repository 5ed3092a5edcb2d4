package logs

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestSetLevel(t *testing.T) {
	prev := level.Level()
	t.Cleanup(func() { level.SetLevel(prev) })

	require.NoError(t, SetLevel("debug"))
	require.True(t, Logger.Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, SetLevel("error"))
	require.False(t, Named("registry").Core().Enabled(zapcore.WarnLevel))

	require.Error(t, SetLevel("loud"))
}

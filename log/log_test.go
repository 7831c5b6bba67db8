package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestSetLevel(t *testing.T) {
	defer level.SetLevel(zapcore.InfoLevel)

	require.NoError(t, SetLevel("debug"))
	assert.Equal(t, zapcore.DebugLevel, level.Level())

	require.NoError(t, SetLevel(""))
	assert.Equal(t, zapcore.DebugLevel, level.Level())

	assert.Error(t, SetLevel("loud"))
}

func TestInitLogger(t *testing.T) {
	defer func() {
		level.SetLevel(zapcore.InfoLevel)
		Logger = zap.NewNop()
	}()

	require.NoError(t, InitLogger(Options{Level: "debug", Output: []string{"stderr"}}))
	assert.True(t, IsDebug())

	require.NoError(t, SetLevel("warn"))
	assert.False(t, IsDebug())

	assert.Error(t, InitLogger(Options{Location: "Nowhere/Special"}))
}

package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel(" warning "))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
}

func TestNewWithRotatingFile(t *testing.T) {
	log, err := New(Options{
		Level: "debug",
		File:  filepath.Join(t.TempDir(), "api.log"),
	})
	require.NoError(t, err)
	require.NotNil(t, log)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
	log.Info("logger ready", WithUserID("u-1"), WithMovieID(27205))
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}

package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel(" warning "))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("nonsense"))
}

func TestFromFallsBackToProcessLogger(t *testing.T) {
	assert.NotNil(t, From(context.Background()))

	scoped := zap.NewNop()
	ctx := ToContext(context.Background(), scoped)
	assert.Same(t, scoped, From(ctx))
}

func TestInitReplacesLogger(t *testing.T) {
	l := Init(Config{Env: "prod", Level: "warn", ServiceName: "user-agreement"})
	assert.Same(t, l, L())
	assert.False(t, L().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, L().Core().Enabled(zapcore.WarnLevel))
}

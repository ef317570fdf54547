package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestNewDefaultsUnknownLevelToInfo(t *testing.T) {
	logger, err := New("not-a-level", true)
	assert.NoError(t, err)
	assert.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestNewAcceptsDebug(t *testing.T) {
	logger, err := New("debug", false)
	assert.NoError(t, err)
	assert.NotNil(t, logger)
}

package streamprobe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyFailure(t *testing.T) {
	assert.Equal(t, ReasonAuthRequired, classifyFailure("error: 403 Forbidden").Reason)
	assert.Equal(t, ReasonNotFound, classifyFailure("error: 404 Not Found").Reason)
	assert.Equal(t, ReasonNotLive, classifyFailure("connection refused").Reason)
}

func TestBinaryOrDefault(t *testing.T) {
	assert.Equal(t, "streamlink", binaryOrDefault(""))
	assert.Equal(t, "/usr/bin/streamlink", binaryOrDefault("/usr/bin/streamlink"))
}

package ytdlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFormatExpression(t *testing.T) {
	assert.True(t, isFormatExpression("bestvideo+bestaudio"))
	assert.True(t, isFormatExpression("[height<=720]"))
	assert.True(t, isFormatExpression("b/w"))
	assert.False(t, isFormatExpression("res,fps"))
}

func TestBuildArgsQualitySortKey(t *testing.T) {
	args := buildArgs(Options{
		HLSURL:    "https://example.invalid/hls.m3u8",
		PageURL:   "https://twitcasting.tv/c:someone",
		UserAgent: "ua",
		OutputDir: "/tmp/out",
		Quality:   "res,fps",
	})
	assert.Contains(t, args, "-S")
	assert.NotContains(t, args, "-f")
}

func TestBuildArgsForceBestOverridesExpression(t *testing.T) {
	args := buildArgs(Options{
		HLSURL:           "https://example.invalid/hls.m3u8",
		PageURL:          "https://twitcasting.tv/c:someone",
		UserAgent:        "ua",
		OutputDir:        "/tmp/out",
		Quality:          "[height<=480]",
		ForceBestQuality: true,
	})
	assert.Contains(t, args, "-f")
	idx := indexOf(args, "-f")
	assert.Equal(t, "best", args[idx+1])
}

func TestBuildArgsDurationWindow(t *testing.T) {
	args := buildArgs(Options{
		HLSURL:          "https://example.invalid/hls.m3u8",
		PageURL:         "https://twitcasting.tv/c:someone",
		UserAgent:       "ua",
		OutputDir:       "/tmp/out",
		DurationSeconds: 600,
	})
	assert.Contains(t, args, "--download-sections")
}

func TestClassify(t *testing.T) {
	assert.Equal(t, "http_403", Classify(Result{}, &ExecError{Stderr: "HTTP Error 403: Forbidden"}))
	assert.Equal(t, "http_401", Classify(Result{}, &ExecError{Stderr: "401 Unauthorized"}))
	assert.Equal(t, "bad_format", Classify(Result{}, &ExecError{Stderr: "requested format is not available"}))
	assert.Equal(t, "network_or_http", Classify(Result{}, &ExecError{Stderr: "connection reset"}))
}

func TestIsJITRetryable(t *testing.T) {
	assert.True(t, IsJITRetryable("bad_format"))
	assert.False(t, IsJITRetryable("cancelled"))
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

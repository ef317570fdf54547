package recorder

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSupervisorHLSTimeout(t *testing.T) {
	sup := newSupervisor(30*time.Millisecond, time.Second)
	defer sup.stop()

	var reason string
	done := make(chan struct{})
	go func() {
		sup.run(context.Background(), func(r string) { reason = r; close(done) }, func() string { return "" })
	}()

	select {
	case <-done:
		assert.Equal(t, "hls_timeout", reason)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not report hls_timeout")
	}
}

func TestSupervisorObserveLineMarksDescriptorSeen(t *testing.T) {
	sup := newSupervisor(time.Second, time.Second)
	assert.False(t, sup.sawDescriptor())
	sup.observeLine("[download] Destination: /tmp/out/video.ts")
	assert.True(t, sup.sawDescriptor())
}

func TestPrimaryOutputFilePicksLargest(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "small.txt"), []byte("a"), 0o644)
	os.WriteFile(filepath.Join(dir, "big.txt"), []byte("aaaaaaaaaa"), 0o644)

	got := primaryOutputFile(dir)
	assert.Equal(t, filepath.Join(dir, "big.txt"), got)
}

func TestPrimaryOutputFileEmptyDir(t *testing.T) {
	assert.Equal(t, "", primaryOutputFile(t.TempDir()))
}

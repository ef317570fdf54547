package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tomasbasham/twitcastrec/internal/recorder"
	"github.com/tomasbasham/twitcastrec/internal/state"
)

func newTestEngine() *Engine {
	registry := state.NewRegistry(nil)
	wrapper := recorder.New(recorder.Config{MaxConcurrent: 1}, nil, registry, nil, nil)
	return New(Config{PollInterval: time.Second, MaxConcurrent: 1}, wrapper, nil, registry, nil, state.NewHeartbeatWriter("/tmp/unused-heartbeat.json"), nil)
}

func TestHandleTimeoutBelowCapDoesNotRecover(t *testing.T) {
	e := newTestEngine()
	e.handleTimeout()
	e.handleTimeout()
	assert.Equal(t, 2, e.consecutiveTimeouts)
	assert.Equal(t, EngineStopped, e.engineState)
}

func TestConsecutiveResetClearsCounter(t *testing.T) {
	e := newTestEngine()
	e.handleTimeout()
	e.consecutiveReset()
	assert.Equal(t, 0, e.consecutiveTimeouts)
}

func TestMarkActivityUpdatesIdleSeconds(t *testing.T) {
	e := newTestEngine()
	e.mu.Lock()
	e.lastActivity = time.Now().Add(-10 * time.Second)
	e.mu.Unlock()
	assert.True(t, e.idleSeconds() >= 10)
	e.markActivity()
	assert.True(t, e.idleSeconds() < 1)
}

func TestEscalateAuthRequiredCapsReLoginAttempts(t *testing.T) {
	e := newTestEngine()
	e.mu.Lock()
	e.reLoginAttempts["https://twitcasting.tv/c:a"] = maxReLoginPerCycle
	e.mu.Unlock()
	// With attempts already at cap, escalateAuthRequired should give up
	// immediately without touching the wrapper's login path (its browser is
	// nil).
	e.escalateAuthRequired(context.Background(), "https://twitcasting.tv/c:a")
}

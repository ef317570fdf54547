// Package monitor implements the Monitor Engine (§4.4): the single
// long-running supervisor owning the poll loop, heartbeat pulse, idle
// watchdog, and AUTH_REQUIRED escalation.
package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tomasbasham/twitcastrec/internal/detector"
	"github.com/tomasbasham/twitcastrec/internal/recorder"
	"github.com/tomasbasham/twitcastrec/internal/state"
	"github.com/tomasbasham/twitcastrec/internal/target"
)

// EngineState mirrors the Monitor Engine's own lifecycle states (§4.4),
// distinct from the per-URL TargetState the Wrapper owns.
type EngineState string

const (
	EngineStopped    EngineState = "STOPPED"
	EngineStarting   EngineState = "STARTING"
	EngineRunning    EngineState = "RUNNING"
	EngineStopping   EngineState = "STOPPING"
	EngineRecovering EngineState = "RECOVERING"
)

const (
	defaultPollInterval    = 30 * time.Second
	livenessCheckTimeout   = 20 * time.Second
	authEscalationSettle   = 1500 * time.Millisecond
	maxReLoginPerCycle     = 2
	idleRecoveryThreshold  = 300 * time.Second
	consecutiveTimeoutCap  = 3
	stopGracePeriod        = 10 * time.Second
)

// Config configures an Engine.
type Config struct {
	PollInterval  time.Duration
	MaxConcurrent int64
	TargetsPath   string
	CookiePath    string
}

// Engine is the Monitor Engine.
type Engine struct {
	cfg      Config
	wrapper  *recorder.Wrapper
	det      *detector.Detector
	registry *state.Registry
	eventLog *state.EventLog
	hbWriter *state.HeartbeatWriter
	log      *zap.SugaredLogger

	mu                 sync.Mutex
	engineState        EngineState
	targets            []string
	reLoginAttempts    map[string]int
	consecutiveTimeouts int
	lastActivity       time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds an Engine. None of the dependencies are optional in
// production use.
func New(cfg Config, wrapper *recorder.Wrapper, det *detector.Detector, registry *state.Registry, eventLog *state.EventLog, hbWriter *state.HeartbeatWriter, log *zap.SugaredLogger) *Engine {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Engine{
		cfg:             cfg,
		wrapper:         wrapper,
		det:             det,
		registry:        registry,
		eventLog:        eventLog,
		hbWriter:        hbWriter,
		log:             log,
		engineState:     EngineStopped,
		reLoginAttempts: make(map[string]int),
		lastActivity:    time.Now(),
	}
}

// Initialize loads the targets file and configures the wrapper's
// max_concurrent (§4.4 initialize()).
func (e *Engine) Initialize() error {
	f, err := target.Load(e.cfg.TargetsPath)
	if err != nil {
		return err
	}

	var normalized []string
	for _, raw := range f.URLs {
		t, err := target.Normalize(raw)
		if err != nil {
			continue
		}
		normalized = append(normalized, t.CanonicalURL)
	}

	e.mu.Lock()
	e.targets = normalized
	e.mu.Unlock()

	e.wrapper.Configure(e.cfg.MaxConcurrent)
	return nil
}

func (e *Engine) state() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.engineState
}

func (e *Engine) setState(s EngineState) {
	e.mu.Lock()
	e.engineState = s
	e.mu.Unlock()
}

// Start is start(): idempotent — calling it while already running is a
// no-op.
func (e *Engine) Start(ctx context.Context) {
	if e.state() != EngineStopped {
		return
	}
	e.setState(EngineStarting)

	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})

	e.setState(EngineRunning)

	go e.pulseLoop(ctx)
	go e.watchdogLoop(ctx)
	go e.pollLoop(ctx)
}

// GetHealthStatus is get_health_status().
func (e *Engine) GetHealthStatus() state.Health {
	states := e.wrapper.GetRecordingStates()
	idleCount := 0
	for _, url := range e.targetsSnapshot() {
		if _, ok := states[url]; !ok {
			idleCount++
		}
	}
	return e.wrapper.GetSystemHealth(idleCount)
}

func (e *Engine) targetsSnapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.targets))
	copy(out, e.targets)
	return out
}

func (e *Engine) markActivity() {
	e.mu.Lock()
	e.lastActivity = time.Now()
	e.mu.Unlock()
}

func (e *Engine) idleSeconds() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return time.Since(e.lastActivity).Seconds()
}

func (e *Engine) writeHeartbeat() {
	states := e.wrapper.GetRecordingStates()
	active := 0
	for _, ts := range states {
		if ts.State.IsActive() {
			active++
		}
	}
	health := e.GetHealthStatus()
	e.hbWriter.Write(state.Heartbeat{
		TS:             time.Now().Unix(),
		State:          string(e.state()),
		ActiveJobs:     active,
		Targets:        len(e.targetsSnapshot()),
		MaxConcurrent:  int(e.cfg.MaxConcurrent),
		TotalChecks:    health.TotalChecks,
		TotalSuccesses: health.TotalSuccesses,
		TotalErrors:    health.TotalErrors,
		RecoveryCount:  health.RecoveryCount,
		LastActivity:   time.Now().Add(-time.Duration(e.idleSeconds()) * time.Second).Unix(),
	})
}

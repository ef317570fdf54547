package state

import "testing"

func TestGetDefaultsToIdle(t *testing.T) {
	r := NewRegistry(nil)
	ts := r.Get("https://twitcasting.tv/alice")
	if ts.State != StateIdle || ts.Phase != PhaseIdle {
		t.Fatalf("got %+v", ts)
	}
}

func TestSetStateTransitionsAndEmits(t *testing.T) {
	log := NewEventLog(t.TempDir()+"/wrapper_%s.jsonl", 1)
	defer log.Close()

	r := NewRegistry(log)
	r.SetState("https://twitcasting.tv/alice", StateRecording, PhaseRecording, "")

	ts := r.Get("https://twitcasting.tv/alice")
	if ts.State != StateRecording {
		t.Fatalf("got %+v", ts)
	}
}

func TestActiveCountCountsStartingAndRecording(t *testing.T) {
	r := NewRegistry(nil)
	r.SetState("a", StateStarting, PhaseStarting, "")
	r.SetState("b", StateRecording, PhaseRecording, "")
	r.SetState("c", StateIdle, PhaseIdle, "")

	if got := r.ActiveCount(); got != 2 {
		t.Fatalf("got %d", got)
	}
}

func TestResetClearsAllStates(t *testing.T) {
	r := NewRegistry(nil)
	r.SetState("a", StateRecording, PhaseRecording, "")
	r.Reset()
	if got := r.ActiveCount(); got != 0 {
		t.Fatalf("got %d", got)
	}
	if len(r.All()) != 0 {
		t.Fatalf("expected empty registry after reset")
	}
}

func TestHealthIncludesIdleTargetCount(t *testing.T) {
	r := NewRegistry(nil)
	r.SetState("a", StateRecording, PhaseRecording, "")
	r.IncChecks(3)
	r.IncSuccesses(1)
	r.IncErrors(1)
	r.IncRecoveries(1)

	h := r.Health(5)
	if h.StateCounts[StateIdle] != 5 {
		t.Fatalf("got idle count %d", h.StateCounts[StateIdle])
	}
	if h.StateCounts[StateRecording] != 1 {
		t.Fatalf("got recording count %d", h.StateCounts[StateRecording])
	}
	if h.TotalChecks != 3 || h.TotalSuccesses != 1 || h.TotalErrors != 1 || h.RecoveryCount != 1 {
		t.Fatalf("got %+v", h)
	}
}

func TestIsActive(t *testing.T) {
	if !StateStarting.IsActive() || !StateRecording.IsActive() {
		t.Fatal("expected STARTING and RECORDING to be active")
	}
	if StateIdle.IsActive() || StateWaiting.IsActive() {
		t.Fatal("expected IDLE and WAITING to be inactive")
	}
}

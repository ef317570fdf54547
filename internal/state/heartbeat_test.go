package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestHeartbeatWriteIsAtomicAndReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.json")
	w := NewHeartbeatWriter(path)

	hb := Heartbeat{
		TS:            1234,
		State:         "RUNNING",
		ActiveJobs:    1,
		Targets:       2,
		MaxConcurrent: 2,
	}
	if err := w.Write(hb); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Heartbeat
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != hb {
		t.Fatalf("got %+v, want %+v", got, hb)
	}
}

func TestHeartbeatWriteOverwritesPreviousDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.json")
	w := NewHeartbeatWriter(path)

	if err := w.Write(Heartbeat{TS: 1, State: "RUNNING"}); err != nil {
		t.Fatalf("write 1: %v", err)
	}
	if err := w.Write(Heartbeat{TS: 2, State: "STOPPED"}); err != nil {
		t.Fatalf("write 2: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Heartbeat
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.TS != 2 || got.State != "STOPPED" {
		t.Fatalf("expected latest write to win, got %+v", got)
	}
}

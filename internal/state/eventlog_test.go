package state

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestEmitAppendsJSONLine(t *testing.T) {
	dir := t.TempDir()
	log := NewEventLog(filepath.Join(dir, "wrapper_%s.jsonl"), 10)
	defer log.Close()

	if err := log.Emit(EventRecordingStart, map[string]any{"url": "https://twitcasting.tv/alice", "job_id": "abc"}); err != nil {
		t.Fatalf("emit: %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "wrapper_*.jsonl"))
	if len(matches) != 1 {
		t.Fatalf("expected one log file, got %v", matches)
	}

	f, err := os.Open(matches[0])
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatal("expected at least one line")
	}
	var rec map[string]any
	if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec["event"] != EventRecordingStart {
		t.Fatalf("got event %v", rec["event"])
	}
	if rec["job_id"] != "abc" {
		t.Fatalf("got job_id %v", rec["job_id"])
	}
	if _, ok := rec["ts"]; !ok {
		t.Fatal("expected ts field")
	}
}

func TestGUIBridgeStartedAndStoppedHaveNoEventField(t *testing.T) {
	dir := t.TempDir()
	log := NewEventLog(filepath.Join(dir, "monitor_gui_bridge%.0s.jsonl"), 10)
	defer log.Close()

	bridge := NewGUIBridge(log)
	if err := bridge.Started("https://twitcasting.tv/alice", "job1", "sess1"); err != nil {
		t.Fatalf("started: %v", err)
	}
	if err := bridge.Stopped("https://twitcasting.tv/alice", "job1", "sess1", true); err != nil {
		t.Fatalf("stopped: %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "monitor_gui_bridge*.jsonl"))
	if len(matches) != 1 {
		t.Fatalf("expected one log file, got %v", matches)
	}

	f, err := os.Open(matches[0])
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		lines++
		var rec map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if _, ok := rec["event"]; ok {
			t.Fatal("GUI-bridge lines must not carry an event field")
		}
		if rec["type"] != "GUI-STATE" {
			t.Fatalf("got type %v", rec["type"])
		}
	}
	if lines != 2 {
		t.Fatalf("expected 2 lines (start + stop), got %d", lines)
	}
}

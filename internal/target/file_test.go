package target

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.json")

	if err := Save(path, []string{"https://twitcasting.tv/bob", "https://twitcasting.tv/alice"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(f.URLs) != 2 {
		t.Fatalf("got %d urls", len(f.URLs))
	}
	if f.URLs[0] != "https://twitcasting.tv/alice" {
		t.Fatalf("expected sorted output, got %v", f.URLs)
	}
	if f.UpdatedAt.IsZero() {
		t.Fatal("expected UpdatedAt to be set")
	}
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.URLs) != 0 {
		t.Fatalf("expected empty file, got %v", f.URLs)
	}
}

func TestWatcherFiresOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.json")
	if err := Save(path, []string{"https://twitcasting.tv/alice"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	w, err := NewWatcher(path, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Stop()

	changed := make(chan File, 1)
	w.Start(func(f File) {
		select {
		case changed <- f:
		default:
		}
	})

	if err := Save(path, []string{"https://twitcasting.tv/alice", "https://twitcasting.tv/bob"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	select {
	case f := <-changed:
		if len(f.URLs) != 2 {
			t.Fatalf("expected 2 urls after reload, got %v", f.URLs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watcher callback")
	}
}

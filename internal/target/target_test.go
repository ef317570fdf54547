package target

import "testing"

func TestNormalizeBareUsername(t *testing.T) {
	tg, err := Normalize("alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tg.CanonicalURL != "https://twitcasting.tv/alice" {
		t.Fatalf("got %q", tg.CanonicalURL)
	}
	if tg.Prefix != PrefixChannel {
		t.Fatalf("got prefix %q", tg.Prefix)
	}
}

func TestNormalizeChannelPrefix(t *testing.T) {
	tg, err := Normalize("c:alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tg.CanonicalURL != "https://twitcasting.tv/alice" {
		t.Fatalf("got %q", tg.CanonicalURL)
	}
}

func TestNormalizeGroupPrefixIsKept(t *testing.T) {
	tg, err := Normalize("g:team1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tg.CanonicalURL != "https://twitcasting.tv/g:team1" {
		t.Fatalf("got %q", tg.CanonicalURL)
	}
	if tg.Prefix != PrefixGroup {
		t.Fatalf("got prefix %q", tg.Prefix)
	}
}

func TestNormalizeExistingURLStripsBroadcasterSuffix(t *testing.T) {
	tg, err := Normalize("http://twitcasting.tv/alice/broadcaster/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tg.CanonicalURL != "https://twitcasting.tv/alice" {
		t.Fatalf("got %q", tg.CanonicalURL)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	first, err := Normalize("c:alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Normalize(first.CanonicalURL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.CanonicalURL != first.CanonicalURL {
		t.Fatalf("not idempotent: %q != %q", second.CanonicalURL, first.CanonicalURL)
	}
}

func TestNormalizeRejectsEmpty(t *testing.T) {
	if _, err := Normalize("   "); err == nil {
		t.Fatal("expected error for blank input")
	}
}

func TestNormalizeRejectsInvalidChars(t *testing.T) {
	if _, err := Normalize("not a valid target!!"); err == nil {
		t.Fatal("expected error for invalid input")
	}
}

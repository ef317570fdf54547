package cookie

import (
	"path/filepath"
	"testing"
)

func TestClassifyStrongOnPrimaryCookie(t *testing.T) {
	got := Classify([]Cookie{{Name: "tc_ss", Value: "x"}})
	if got != Strong {
		t.Fatalf("got %q", got)
	}
}

func TestClassifyWeakOnSecondaryOnly(t *testing.T) {
	got := Classify([]Cookie{{Name: "tc_id", Value: "x"}})
	if got != Weak {
		t.Fatalf("got %q", got)
	}
}

func TestClassifyNoneOnEmpty(t *testing.T) {
	if got := Classify(nil); got != None {
		t.Fatalf("got %q", got)
	}
}

func TestClassifyPrimaryWinsOverSecondary(t *testing.T) {
	got := Classify([]Cookie{{Name: "tc_id", Value: "x"}, {Name: "tc_s", Value: "y"}})
	if got != Strong {
		t.Fatalf("got %q", got)
	}
}

func TestHasSessionCookie(t *testing.T) {
	if !HasSessionCookie([]Cookie{{Name: "_twitcasting_session", Value: "x"}}) {
		t.Fatal("expected true")
	}
	if HasSessionCookie([]Cookie{{Name: "tc_id", Value: "x"}}) {
		t.Fatal("expected false for secondary-only cookies")
	}
}

func TestNetscapeRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.txt")
	want := []Cookie{
		{Domain: ".twitcasting.tv", IncludeSub: true, Path: "/", Secure: true, Expires: 1999999999, Name: "tc_ss", Value: "abc"},
		{Domain: ".twitcasting.tv", IncludeSub: true, Path: "/", Secure: false, Expires: 0, Name: "tc_id", Value: "def"},
	}

	if err := WriteNetscape(path, want); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ReadNetscape(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d cookies, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("cookie %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestHeaderValueOrdersSessionCookiesFirst(t *testing.T) {
	cookies := []Cookie{
		{Name: "tc_u", Value: "u"},
		{Name: "tc_ss", Value: "ss"},
		{Name: "other", Value: "o"},
	}
	got := HeaderValue(cookies)
	want := "tc_ss=ss; tc_u=u; other=o"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestLatestPointerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	pointer := filepath.Join(dir, "latest_cookie_path.txt")
	target := filepath.Join(dir, "cookies_enter_20260730_120000.txt")

	if err := WriteLatestPointer(pointer, target); err != nil {
		t.Fatalf("write pointer: %v", err)
	}
	got, err := ReadLatestPointer(pointer)
	if err != nil {
		t.Fatalf("read pointer: %v", err)
	}
	if filepath.Base(got) != filepath.Base(target) {
		t.Fatalf("got %q", got)
	}
}

// Package cookie implements the Netscape cookie-jar snapshot format and the
// strong/weak/none classification used by the Browser Singleton, the
// Liveness Detector, and the Recorder Wrapper (§3 "Cookie Snapshot", DESIGN
// NOTES "Cookie strength is a ranked classification").
package cookie

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Strength ranks a cookie snapshot by the session cookies it contains.
type Strength string

const (
	Strong Strength = "STRONG"
	Weak   Strength = "WEAK"
	None   Strength = "NONE"
)

// primaryNames are the cookies whose presence makes a snapshot Strong.
var primaryNames = map[string]bool{
	"tc_ss":                 true,
	"_twitcasting_session":  true,
	"tc_s":                  true,
}

// secondaryNames are the cookies whose presence (absent any primary) makes a
// snapshot Weak.
var secondaryNames = map[string]bool{
	"tc_id": true,
	"tc_u":  true,
}

// orderedRequestNames is the ordering the detector's HTTP stage uses when
// assembling its Cookie request header (§4.2 stage 1).
var orderedRequestNames = []string{
	"_twitcasting_session", "tc_ss", "tc_s", "tc_id", "tc_u",
}

// Cookie is a single entry in a Netscape cookie-jar file.
type Cookie struct {
	Domain      string
	IncludeSub  bool
	Path        string
	Secure      bool
	Expires     int64
	Name        string
	Value       string
}

// Snapshot is a parsed cookie-jar file plus its classification.
type Snapshot struct {
	Path     string
	Cookies  []Cookie
	Strength Strength
}

// Classify ranks a cookie set: any primary name present yields Strong;
// failing that, any secondary name yields Weak; otherwise None.
func Classify(cookies []Cookie) Strength {
	hasPrimary := false
	hasSecondary := false
	for _, c := range cookies {
		if primaryNames[c.Name] {
			hasPrimary = true
		}
		if secondaryNames[c.Name] {
			hasSecondary = true
		}
	}
	switch {
	case hasPrimary:
		return Strong
	case hasSecondary:
		return Weak
	default:
		return None
	}
}

// HasSessionCookie reports whether cookies contains any primary (strong)
// session cookie — used by the detector to set cookie_incomplete on
// AUTH_REQUIRED.
func HasSessionCookie(cookies []Cookie) bool {
	for _, c := range cookies {
		if primaryNames[c.Name] {
			return true
		}
	}
	return false
}

// WriteNetscape writes cookies to path in Netscape cookie-jar format,
// atomically via temp-file + rename. Every given cookie is written; no domain
// filtering is done here.
func WriteNetscape(path string, cookies []Cookie) error {
	var b strings.Builder
	b.WriteString("# Netscape HTTP Cookie File\n")
	b.WriteString("# This is a generated file! Do not edit.\n")
	for _, c := range cookies {
		fmt.Fprintf(&b, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			c.Domain,
			boolFlag(c.IncludeSub),
			c.Path,
			boolFlag(c.Secure),
			c.Expires,
			c.Name,
			c.Value,
		)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cookie: create directory %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-cookie-*")
	if err != nil {
		return fmt.Errorf("cookie: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("cookie: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("cookie: close temp file: %w", err)
	}

	var renameErr error
	for attempt := 0; attempt < 5; attempt++ {
		renameErr = os.Rename(tmpPath, path)
		if renameErr == nil {
			return nil
		}
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	os.Remove(tmpPath)
	return fmt.Errorf("cookie: rename to %q failed after retries: %w", path, renameErr)
}

// ReadNetscape parses a Netscape cookie-jar file.
func ReadNetscape(path string) ([]Cookie, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cookie: open %q: %w", path, err)
	}
	defer f.Close()

	var cookies []Cookie
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 7 {
			continue
		}
		expires, _ := strconv.ParseInt(parts[4], 10, 64)
		cookies = append(cookies, Cookie{
			Domain:     parts[0],
			IncludeSub: parts[1] == "TRUE",
			Path:       parts[2],
			Secure:     parts[3] == "TRUE",
			Expires:    expires,
			Name:       parts[5],
			Value:      parts[6],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cookie: scan %q: %w", path, err)
	}
	return cookies, nil
}

// WriteLatestPointer writes the absolute path of the freshest cookie jar to
// the single-line pointer file (§3 "latest_cookie_path.txt").
func WriteLatestPointer(pointerPath, latestPath string) error {
	abs, err := filepath.Abs(latestPath)
	if err != nil {
		return fmt.Errorf("cookie: resolve absolute path for %q: %w", latestPath, err)
	}
	dir := filepath.Dir(pointerPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cookie: create directory %q: %w", dir, err)
	}
	return os.WriteFile(pointerPath, []byte(abs+"\n"), 0o644)
}

// ReadLatestPointer reads the path written by WriteLatestPointer.
func ReadLatestPointer(pointerPath string) (string, error) {
	data, err := os.ReadFile(pointerPath)
	if err != nil {
		return "", fmt.Errorf("cookie: read %q: %w", pointerPath, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// HeaderValue builds the "Cookie:" request-header value in the ordering the
// detector's HTTP stage requires: the primary session cookies first (in
// orderedRequestNames order), then any remaining cookies in their original
// order.
func HeaderValue(cookies []Cookie) string {
	byName := make(map[string]Cookie, len(cookies))
	seen := make(map[string]bool, len(cookies))
	for _, c := range cookies {
		byName[c.Name] = c
	}

	var parts []string
	for _, name := range orderedRequestNames {
		if c, ok := byName[name]; ok {
			parts = append(parts, c.Name+"="+c.Value)
			seen[name] = true
		}
	}
	for _, c := range cookies {
		if seen[c.Name] {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
		seen[c.Name] = true
	}
	return strings.Join(parts, "; ")
}

func boolFlag(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// Package ytdlp wraps the external HLS download tool invoked by the
// Recorder Wrapper (§6.4): argv construction, exit-code/stderr
// classification, and discovery of the files it produced.
package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// LogCallback receives one line at a time from the subprocess's stdout
// ("stdout") or stderr ("stderr") streams as they arrive.
type LogCallback func(stream string, line string)

// ExecError reports a failed invocation with enough context for the
// Recorder Wrapper's error classification (§7).
type ExecError struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("ytdlp: exit %d: %v", e.ExitCode, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// formatHintSubstrings are the substrings whose presence in a configured quality
// string signals a format *expression* rather than a sort key (§6.4).
var formatHintSubstrings = []string{"[", "]", "+", "/", "bestvideo", "bestaudio"}

// Options configures one Invoke call.
type Options struct {
	BinaryPath       string
	PageURL          string
	HLSURL           string
	CookieJarPath    string
	UserAgent        string
	OutputDir        string
	OutputTemplate   string
	Quality          string
	FragmentConcurrency int
	RetryCount       int
	FragmentRetries  int
	RetrySleepSeconds int
	DurationSeconds  int // 0 means unbounded
	ForceBestQuality bool // JIT-retry override (§6.4 "force a neutral best")
	LogCallback      LogCallback
	ExtraArgs        []string
}

// hlsDescriptorPattern matches the destination line yt-dlp prints once it
// has resolved the manifest to a concrete stream descriptor.
var hlsDescriptorPattern = regexp.MustCompile(`(?i)\[download\]\s+Destination:\s+(.+)$`)

// Result is returned by Invoke after the subprocess has exited. The
// HLS-acquisition milestone (§4.3.3) is detected while the process runs,
// through Options.LogCallback.
type Result struct {
	ExitCode     int
	OutputFiles  []string
	HLSDescriptor string
}

func buildArgs(o Options) []string {
	args := []string{
		o.HLSURL,
		"--no-part",
		"--concurrent-fragments", strconv.Itoa(nonZero(o.FragmentConcurrency, 4)),
		"--retries", strconv.Itoa(nonZero(o.RetryCount, 20)),
		"--fragment-retries", strconv.Itoa(nonZero(o.FragmentRetries, 20)),
		"--retry-sleep", strconv.Itoa(nonZero(o.RetrySleepSeconds, 3)),
		"--add-header", "Referer:" + o.PageURL,
		"--add-header", "Origin:https://twitcasting.tv",
		"--user-agent", o.UserAgent,
		"-o", filepath.Join(o.OutputDir, o.OutputTemplate),
	}
	if o.CookieJarPath != "" {
		args = append(args, "--cookies", o.CookieJarPath)
	}
	if o.DurationSeconds > 0 {
		args = append(args, "--download-sections", fmt.Sprintf("*0-%d", o.DurationSeconds))
	}

	quality := o.Quality
	if o.ForceBestQuality {
		quality = "best"
	}
	if quality != "" {
		if o.ForceBestQuality || isFormatExpression(quality) {
			args = append(args, "-f", quality)
		} else {
			args = append(args, "-S", quality)
		}
	}

	args = append(args, o.ExtraArgs...)
	return args
}

func isFormatExpression(quality string) bool {
	for _, hint := range formatHintSubstrings {
		if strings.Contains(quality, hint) {
			return true
		}
	}
	return false
}

func nonZero(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

// Invoke runs the download tool to completion, streaming each output line to
// o.LogCallback as it arrives and returning the files it wrote to
// o.OutputDir.
func Invoke(ctx context.Context, o Options) (Result, error) {
	if err := os.MkdirAll(o.OutputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("ytdlp: create output dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, binaryOrDefault(o.BinaryPath), buildArgs(o)...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("ytdlp: stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("ytdlp: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("ytdlp: start: %w", err)
	}

	var stdoutTail, stderrTail lineBuffer
	var descriptor string
	done := make(chan struct{}, 2)

	go func() {
		scanLines(stdoutPipe, func(line string) {
			stdoutTail.add(line)
			if m := hlsDescriptorPattern.FindStringSubmatch(line); len(m) == 2 && descriptor == "" {
				descriptor = m[1]
			}
			if o.LogCallback != nil {
				o.LogCallback("stdout", line)
			}
		})
		done <- struct{}{}
	}()
	go func() {
		scanLines(stderrPipe, func(line string) {
			stderrTail.add(line)
			if o.LogCallback != nil {
				o.LogCallback("stderr", line)
			}
		})
		done <- struct{}{}
	}()
	<-done
	<-done

	waitErr := cmd.Wait()

	files, _ := filepath.Glob(filepath.Join(o.OutputDir, "*"))

	res := Result{
		ExitCode:      cmd.ProcessState.ExitCode(),
		OutputFiles:   files,
		HLSDescriptor: descriptor,
	}

	if waitErr != nil {
		return res, &ExecError{
			ExitCode: res.ExitCode,
			Stdout:   stdoutTail.String(),
			Stderr:   stderrTail.String(),
			Err:      waitErr,
		}
	}
	return res, nil
}

func binaryOrDefault(path string) string {
	if path == "" {
		return "yt-dlp"
	}
	return path
}

func scanLines(r interface{ Read([]byte) (int, error) }, fn func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fn(scanner.Text())
	}
}

// lineBuffer keeps the last ~120 lines seen, per §6.4's "last ~120 lines of
// combined stdout/stderr" error-classification input.
type lineBuffer struct {
	lines []string
}

const maxTailLines = 120

func (b *lineBuffer) add(line string) {
	b.lines = append(b.lines, line)
	if len(b.lines) > maxTailLines {
		b.lines = b.lines[len(b.lines)-maxTailLines:]
	}
}

func (b *lineBuffer) String() string {
	var buf bytes.Buffer
	for _, l := range b.lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	return buf.String()
}

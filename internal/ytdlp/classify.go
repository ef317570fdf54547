package ytdlp

import "strings"

// Classify maps a failed Invoke's tail output to the subprocess-derived
// reason vocabulary the Recorder Wrapper surfaces in Result.reason (§7).
func Classify(res Result, execErr *ExecError) string {
	combined := strings.ToLower(execErr.Stdout + "\n" + execErr.Stderr)

	switch {
	case strings.Contains(combined, "http error 401") || strings.Contains(combined, "401 unauthorized"):
		return "http_401"
	case strings.Contains(combined, "http error 403") || strings.Contains(combined, "403 forbidden"):
		return "http_403"
	case strings.Contains(combined, "requested format is not available") || strings.Contains(combined, "format not available"):
		return "bad_format"
	case res.ExitCode != 0 && len(res.OutputFiles) == 0 && !strings.Contains(combined, "http"):
		return "no_bytes"
	default:
		return "network_or_http"
	}
}

// IsJITRetryable reports whether reason warrants exactly one retry with
// ensure_login(force=true) and, for bad_format, a forced neutral quality
// (§4.3.5, §6.4).
func IsJITRetryable(reason string) bool {
	switch reason {
	case "network_or_http", "no_bytes", "http_401", "http_403", "bad_format":
		return true
	default:
		return false
	}
}

package storage

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Uploader persists recording artefacts to a storage backend and returns
// signed URLs for retrieval.
type Uploader interface {
	Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error)
}

// ArtifactKind identifies what a backup upload contains. The object path an
// Uploader writes to is derived from Kind rather than handed in by the
// caller, so every backend lays artefacts out the same way regardless of
// which one is wired in.
type ArtifactKind string

const (
	// ArtifactRecording is one output file produced by a completed
	// recording job.
	ArtifactRecording ArtifactKind = "recording"

	// ArtifactCookieSnapshot is a cookie-jar snapshot taken after a login
	// or refresh (§6.2).
	ArtifactCookieSnapshot ArtifactKind = "cookie_snapshot"
)

// UploadRequest describes one artefact to persist. JobID is required for
// ArtifactRecording and ignored for ArtifactCookieSnapshot, whose path is
// keyed by the day the snapshot was taken instead.
type UploadRequest struct {
	Kind ArtifactKind

	// JobID is the recording job that produced Content, used to group an
	// uploaded recording's files under a common prefix.
	JobID string

	// Filename is the base name of the artefact, e.g. "part-000.ts" or
	// "cookies_enter_20260730_120000.txt".
	Filename string

	// Day is the UTC calendar day (YYYYMMDD) a cookie snapshot was taken.
	// Ignored for ArtifactRecording.
	Day string

	// Content is the data to be uploaded.
	Content io.Reader

	// ContentType is the MIME type of the content, e.g. "video/mp2t".
	ContentType string
}

// ObjectName computes the backend-agnostic object path for req, following
// the same recordings/<job_id>/<filename> and cookies/<YYYYMMDD>/<filename>
// layout regardless of which Uploader implementation writes it.
func (req *UploadRequest) ObjectName() (string, error) {
	switch req.Kind {
	case ArtifactRecording:
		if req.JobID == "" {
			return "", fmt.Errorf("storage: recording upload requires a job id")
		}
		return fmt.Sprintf("recordings/%s/%s", req.JobID, req.Filename), nil
	case ArtifactCookieSnapshot:
		if req.Day == "" {
			return "", fmt.Errorf("storage: cookie snapshot upload requires a day")
		}
		return fmt.Sprintf("cookies/%s/%s", req.Day, req.Filename), nil
	default:
		return "", fmt.Errorf("storage: unknown artefact kind %q", req.Kind)
	}
}

// UploadResult is the outcome of a successful upload.
type UploadResult struct {
	// Kind and JobID echo the request, so callers fanning out over many
	// uploads can match results back to their source file without
	// re-deriving the object path.
	Kind  ArtifactKind
	JobID string

	// ObjectName is the backend object path the artefact was written to.
	ObjectName string

	// SignedURL provides time-limited access to the object.
	SignedURL string

	// ExpiresAt is when the signed URL becomes invalid.
	ExpiresAt time.Time
}

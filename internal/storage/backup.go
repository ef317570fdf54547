package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Backup mirrors completed recordings and cookie snapshots to an Uploader —
// the optional off-box backup channel mentioned in SPEC_FULL.md's domain
// stack (recordings are otherwise left on local disk only).
type Backup struct {
	uploader Uploader
}

// NewBackup wraps an Uploader (LocalUploader or GCSUploader) as the backup
// channel. A nil uploader makes every Backup call a no-op, so callers don't
// need to branch on whether backup is configured.
func NewBackup(uploader Uploader) *Backup {
	return &Backup{uploader: uploader}
}

// Recording uploads every file produced by a completed recording job. The
// object path (recordings/<job_id>/<filename>) is decided by the Uploader
// from the request's Kind and JobID, not by Backup.
func (b *Backup) Recording(ctx context.Context, jobID string, files []string) error {
	if b.uploader == nil {
		return nil
	}
	for _, path := range files {
		if err := b.uploadFile(ctx, &UploadRequest{
			Kind:     ArtifactRecording,
			JobID:    jobID,
			Filename: filepath.Base(path),
		}, path); err != nil {
			return err
		}
	}
	return nil
}

// CookieSnapshot uploads a cookie jar snapshot under its own file name,
// keyed by the UTC day of the upload.
func (b *Backup) CookieSnapshot(ctx context.Context, path string) error {
	if b.uploader == nil {
		return nil
	}
	return b.uploadFile(ctx, &UploadRequest{
		Kind:     ArtifactCookieSnapshot,
		Day:      time.Now().UTC().Format("20060102"),
		Filename: filepath.Base(path),
	}, path)
}

func (b *Backup) uploadFile(ctx context.Context, req *UploadRequest, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("storage: open %q for backup: %w", path, err)
	}
	defer f.Close()

	req.Content = f
	req.ContentType = contentTypeFor(path)

	_, err = b.uploader.Upload(ctx, req)
	return err
}

func contentTypeFor(path string) string {
	switch filepath.Ext(path) {
	case ".txt":
		return "text/plain"
	case ".json":
		return "application/json"
	case ".mp4":
		return "video/mp4"
	case ".ts":
		return "video/mp2t"
	default:
		return "application/octet-stream"
	}
}

// Package media abstracts "put a file into durable storage and get back a
// stable reference". Two implementations exist: DiskUploader spools incoming
// files to the local filesystem first (so previews can be rasterized from
// them), BufferUploader streams them straight from memory for deployments
// with a read-only filesystem. The choice is made once at process start.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"os"
	"regexp"
	"time"
)

// ResourceKindRaw is the resource kind recorded for every attachment this
// system uploads. Previews are plain PNGs and keep the same kind.
const ResourceKindRaw = "raw"

// Asset is the remote store's reference for one uploaded file.
type Asset struct {
	// PublicID is the object key; deletion uses it.
	PublicID string
	// URL is the stable public URL.
	URL string
	// LocalPath is where the disk uploader spooled the original, so the
	// preview generator can read it. Empty in buffer mode.
	LocalPath string
}

// Uploader is the dual-mode upload strategy.
type Uploader interface {
	// Upload stores one incoming multipart file under folder.
	Upload(ctx context.Context, fh *multipart.FileHeader, folder string) (*Asset, error)

	// UploadPath stores an already-materialized local file (generated
	// previews). Fails with FileNotFound if the path does not exist, or in
	// buffer mode, where no local files exist.
	UploadPath(ctx context.Context, path, folder string) (*Asset, error)

	// Remove deletes a previously uploaded object.
	Remove(ctx context.Context, publicID string) error
}

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// objectName builds a collision-free object name from the original filename:
// a millisecond timestamp plus the sanitized name.
func objectName(original string) string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), unsafeKeyChars.ReplaceAllString(original, "_"))
}

// RemoveLocal deletes a spooled temp file after its remote upload completed.
// Best-effort: failures are logged, never escalated.
func RemoveLocal(ctx context.Context, logger *slog.Logger, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.WarnContext(ctx, "Failed to remove spooled file", "path", path, "error", err)
	}
}

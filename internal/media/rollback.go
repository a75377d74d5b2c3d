package media

import (
	"context"
	"log/slog"
)

// Rollback tracks every object uploaded during one request so they can be
// deleted again if the request fails before the record is persisted. Without
// this, a failure on file N+1 leaks the already-uploaded object for file N.
type Rollback struct {
	uploader  Uploader
	publicIDs []string
	committed bool
}

func NewRollback(uploader Uploader) *Rollback {
	return &Rollback{uploader: uploader}
}

// Track records an uploaded asset as pending.
func (r *Rollback) Track(asset *Asset) {
	r.publicIDs = append(r.publicIDs, asset.PublicID)
}

// Commit marks the request as persisted; Undo becomes a no-op.
func (r *Rollback) Commit() {
	r.committed = true
}

// Undo best-effort deletes every tracked object. Intended for defer: it does
// nothing after Commit. Deletion failures are logged, not returned, since the
// request is already failing for another reason.
func (r *Rollback) Undo(ctx context.Context, logger *slog.Logger) {
	if r.committed {
		return
	}
	for _, id := range r.publicIDs {
		if err := r.uploader.Remove(ctx, id); err != nil {
			logger.ErrorContext(ctx, "Failed to roll back uploaded object", "public_id", id, "error", err)
		} else {
			logger.InfoContext(ctx, "Rolled back uploaded object", "public_id", id)
		}
	}
	r.publicIDs = nil
}

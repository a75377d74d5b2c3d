package media

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"path"

	apperrors "takeoffs/internal/errors"
	"takeoffs/internal/storage"
)

var _ Uploader = (*BufferUploader)(nil)

// BufferUploader reads each incoming file fully into memory and streams the
// buffer to the remote store. Used where the filesystem is read-only, so no
// spool path is ever reported and preview generation is off the table.
type BufferUploader struct {
	provider storage.Provider
}

func NewBufferUploader(provider storage.Provider) *BufferUploader {
	return &BufferUploader{provider: provider}
}

func (u *BufferUploader) Upload(ctx context.Context, fh *multipart.FileHeader, folder string) (*Asset, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, apperrors.New(apperrors.ErrUploadFailed, "Failed to read uploaded file", err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrUploadFailed, "Failed to buffer uploaded file", err)
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := path.Join(folder, objectName(fh.Filename))
	obj, err := u.provider.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrUploadFailed, "Upload to remote storage failed", err)
	}

	return &Asset{PublicID: obj.Key, URL: obj.URL}, nil
}

// UploadPath always fails in buffer mode: the process has no local files.
func (u *BufferUploader) UploadPath(ctx context.Context, localPath, folder string) (*Asset, error) {
	return nil, apperrors.New(apperrors.ErrFileNotFound, "Local files are unavailable in buffer mode", nil)
}

func (u *BufferUploader) Remove(ctx context.Context, publicID string) error {
	return u.provider.Remove(ctx, publicID)
}

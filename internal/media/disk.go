package media

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"

	apperrors "takeoffs/internal/errors"
	"takeoffs/internal/storage"
)

var _ Uploader = (*DiskUploader)(nil)

// DiskUploader spools each incoming file to spoolDir before streaming it to
// the remote store. The spool path is reported on the Asset and stays on disk
// until the caller is done with it (preview rasterization reads it).
type DiskUploader struct {
	provider storage.Provider
	spoolDir string
}

func NewDiskUploader(provider storage.Provider, spoolDir string) *DiskUploader {
	if spoolDir == "" {
		spoolDir = os.TempDir()
	}
	return &DiskUploader{provider: provider, spoolDir: spoolDir}
}

func (u *DiskUploader) Upload(ctx context.Context, fh *multipart.FileHeader, folder string) (*Asset, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, apperrors.New(apperrors.ErrUploadFailed, "Failed to read uploaded file", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(u.spoolDir, "takeoff-*"+filepath.Ext(fh.Filename))
	if err != nil {
		return nil, apperrors.New(apperrors.ErrUploadFailed, "Failed to spool uploaded file", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, apperrors.New(apperrors.ErrUploadFailed, "Failed to spool uploaded file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, apperrors.New(apperrors.ErrUploadFailed, "Failed to spool uploaded file", err)
	}

	contentType := fh.Header.Get("Content-Type")
	asset, err := u.putFile(ctx, tmp.Name(), fh.Filename, folder, contentType)
	if err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}

	asset.LocalPath = tmp.Name()
	return asset, nil
}

func (u *DiskUploader) UploadPath(ctx context.Context, localPath, folder string) (*Asset, error) {
	if _, err := os.Stat(localPath); err != nil {
		return nil, apperrors.New(apperrors.ErrFileNotFound, "File not found: "+localPath, err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(localPath))
	return u.putFile(ctx, localPath, filepath.Base(localPath), folder, contentType)
}

func (u *DiskUploader) Remove(ctx context.Context, publicID string) error {
	return u.provider.Remove(ctx, publicID)
}

// putFile streams one local file into the remote store.
func (u *DiskUploader) putFile(ctx context.Context, localPath, originalName, folder, contentType string) (*Asset, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrFileNotFound, "File not found: "+localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, apperrors.New(apperrors.ErrUploadFailed, "Failed to stat spooled file", err)
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := path.Join(folder, objectName(originalName))
	obj, err := u.provider.Put(ctx, key, f, info.Size(), contentType)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrUploadFailed, "Upload to remote storage failed", err)
	}

	return &Asset{PublicID: obj.Key, URL: obj.URL}, nil
}

package preview

import "context"

var _ Generator = NoopGenerator{}

// NoopGenerator is the buffer-mode generator: originals never touch the local
// filesystem there, so previews are always skipped.
type NoopGenerator struct{}

func (NoopGenerator) FirstPage(ctx context.Context, pdfPath string) (string, bool) {
	return "", false
}

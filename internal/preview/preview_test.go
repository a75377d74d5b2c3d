package preview

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A complete single-page PDF with a US Letter media box and no content.
const minimalPDF = "%PDF-1.4\n" +
	"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n" +
	"2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n" +
	"3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>\nendobj\n" +
	"xref\n0 4\n" +
	"0000000000 65535 f \n" +
	"0000000009 00000 n \n" +
	"0000000058 00000 n \n" +
	"0000000115 00000 n \n" +
	"trailer\n<< /Size 4 /Root 1 0 R >>\n" +
	"startxref\n186\n%%EOF\n"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestNoopGenerator(t *testing.T) {
	path, ok := NoopGenerator{}.FirstPage(context.Background(), "/tmp/anything.pdf")
	assert.False(t, ok)
	assert.Empty(t, path)
}

func TestFitzGenerator_RendersFirstPage(t *testing.T) {
	g := NewFitzGenerator(discardLogger())

	pdfPath := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte(minimalPDF), 0o644))

	out, ok := g.FirstPage(context.Background(), pdfPath)

	require.True(t, ok)
	assert.Equal(t, strings.TrimSuffix(pdfPath, ".pdf")+".png", out)

	// The PNG fits inside the fixed bounds with aspect ratio kept
	img, err := imaging.Open(out)
	require.NoError(t, err)
	assert.LessOrEqual(t, img.Bounds().Dx(), boundsWidth)
	assert.LessOrEqual(t, img.Bounds().Dy(), boundsHeight)
}

func TestFitzGenerator_MissingFileDegrades(t *testing.T) {
	g := NewFitzGenerator(discardLogger())

	path, ok := g.FirstPage(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"))

	assert.False(t, ok)
	assert.Empty(t, path)
}

func TestFitzGenerator_CorruptFileDegrades(t *testing.T) {
	g := NewFitzGenerator(discardLogger())

	bad := filepath.Join(t.TempDir(), "bad.pdf")
	require.NoError(t, os.WriteFile(bad, []byte("not a pdf at all"), 0o644))

	path, ok := g.FirstPage(context.Background(), bad)

	assert.False(t, ok)
	assert.Empty(t, path)
}

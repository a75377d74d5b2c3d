package preview

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
)

// Fixed raster settings for every preview.
const (
	renderDPI    = 150
	boundsWidth  = 800
	boundsHeight = 600
)

var _ Generator = (*FitzGenerator)(nil)

// FitzGenerator renders page 1 through MuPDF.
type FitzGenerator struct {
	logger *slog.Logger
}

func NewFitzGenerator(logger *slog.Logger) *FitzGenerator {
	return &FitzGenerator{logger: logger}
}

func (g *FitzGenerator) FirstPage(ctx context.Context, pdfPath string) (string, bool) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		g.logger.WarnContext(ctx, "Preview skipped: cannot open PDF", "path", pdfPath, "error", err)
		return "", false
	}
	defer doc.Close()

	img, err := doc.ImageDPI(0, renderDPI)
	if err != nil {
		g.logger.WarnContext(ctx, "Preview skipped: cannot rasterize page 1", "path", pdfPath, "error", err)
		return "", false
	}

	// Fit keeps aspect ratio inside the fixed bounds and never upscales.
	fitted := imaging.Fit(img, boundsWidth, boundsHeight, imaging.Lanczos)

	outPath := strings.TrimSuffix(pdfPath, filepath.Ext(pdfPath)) + ".png"
	if err := imaging.Save(fitted, outPath); err != nil {
		g.logger.WarnContext(ctx, "Preview skipped: cannot write PNG", "path", outPath, "error", err)
		return "", false
	}

	return outPath, true
}

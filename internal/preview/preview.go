// Package preview renders the first page of an uploaded PDF to a PNG that is
// stored next to the attachment as a secondary asset. Rasterization needs the
// original on the local filesystem, so it only runs in disk mode; the buffer
// deployment gets the no-op generator.
package preview

import "context"

// Generator produces a first-page PNG for a local PDF.
type Generator interface {
	// FirstPage rasterizes page 1 of the PDF at pdfPath and writes the PNG
	// beside it. It reports the generated path, or ok=false if generation
	// failed for any reason. It never fails the surrounding request: a
	// missing preview degrades to "no preview".
	FirstPage(ctx context.Context, pdfPath string) (path string, ok bool)
}

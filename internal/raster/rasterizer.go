// Package raster renders the region of interest of a single-page PDF to
// a PNG. MuPDF document handles are not safe for concurrent use, so the
// orchestrator calls Rasterize strictly sequentially.
package raster

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	fitz "github.com/gen2brain/go-fitz"

	"github.com/qianyu2019/firedoor-extractor/internal/models"
	"github.com/qianyu2019/firedoor-extractor/pkg/logger"
)

// Result is one rasterized document page.
type Result struct {
	PNG        []byte
	PageWidth  int // rendered page size after rotation, before cropping
	PageHeight int
	Crop       image.Rectangle
	Rotated    bool
}

// Rasterizer crops and renders door sheets at a fixed DPI.
type Rasterizer struct {
	dpi      int
	roi      models.ROI
	debugDir string
	log      logger.Logger
}

// New creates a Rasterizer. debugDir may be empty to disable the debug
// image side effect.
func New(dpi int, roi models.ROI, debugDir string, log logger.Logger) (*Rasterizer, error) {
	if dpi <= 0 {
		return nil, fmt.Errorf("raster: dpi must be positive, got %d", dpi)
	}
	if !roi.Valid() {
		return nil, fmt.Errorf("raster: invalid roi %+v", roi)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Rasterizer{dpi: dpi, roi: roi, debugDir: debugDir, log: log}, nil
}

// Rasterize loads the first page of the document at path, rotates
// portrait pages -90 degrees so sheet content reads landscape, crops the
// normalized region of interest and returns the encoded PNG. Any load or
// geometry failure is fatal for this one document only.
func (r *Rasterizer) Rasterize(path string) (*Result, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("raster: failed to open %s: %w", path, err)
	}
	defer doc.Close()

	if doc.NumPage() < 1 {
		return nil, fmt.Errorf("raster: %s has no pages", path)
	}

	// MuPDF scales against the 72-DPI page unit internally.
	page, err := doc.ImageDPI(0, float64(r.dpi))
	if err != nil {
		return nil, fmt.Errorf("raster: failed to render %s: %w", path, err)
	}

	var img image.Image = page
	rotated := false
	if NeedsRotation(img.Bounds().Dx(), img.Bounds().Dy()) {
		img = imaging.Rotate90(img)
		rotated = true
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	crop := CropRect(w, h, r.roi)
	if crop.Empty() {
		return nil, fmt.Errorf("raster: degenerate crop %v for %s (page %dx%d, roi %+v)", crop, path, w, h, r.roi)
	}
	r.log.Info("rasterized page",
		logger.String("path", path),
		logger.Int("width", w),
		logger.Int("height", h),
		logger.Bool("rotated", rotated),
		logger.String("crop", crop.String()),
	)

	cropped := imaging.Crop(img, crop)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, cropped, imaging.PNG); err != nil {
		return nil, fmt.Errorf("raster: failed to encode %s: %w", path, err)
	}

	r.saveDebugImage(path, cropped)

	return &Result{
		PNG:        buf.Bytes(),
		PageWidth:  w,
		PageHeight: h,
		Crop:       crop,
		Rotated:    rotated,
	}, nil
}

// saveDebugImage persists the crop for diagnostics. Failures are logged
// and ignored; the pipeline result does not depend on this.
func (r *Rasterizer) saveDebugImage(srcPath string, img image.Image) {
	if r.debugDir == "" {
		return
	}
	if err := os.MkdirAll(r.debugDir, 0755); err != nil {
		r.log.Warn("can't create debug image dir", logger.String("dir", r.debugDir), logger.Error(err))
		return
	}
	base := filepath.Base(srcPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	out := filepath.Join(r.debugDir, stem+".png")
	if err := imaging.Save(img, out); err != nil {
		r.log.Warn("can't save debug image", logger.String("path", out), logger.Error(err))
	}
}

// NeedsRotation reports whether a page must be rotated -90 degrees
// before cropping: portrait pages are, landscape pages are not.
func NeedsRotation(width, height int) bool {
	return width < height
}

// CropRect maps the normalized region of interest onto a w x h page and
// intersects it with the page bounds.
func CropRect(w, h int, roi models.ROI) image.Rectangle {
	rect := image.Rect(
		int(math.Round(roi.X0*float64(w))),
		int(math.Round(roi.Y0*float64(h))),
		int(math.Round(roi.X1*float64(w))),
		int(math.Round(roi.Y1*float64(h))),
	)
	return rect.Intersect(image.Rect(0, 0, w, h))
}

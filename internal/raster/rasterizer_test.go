package raster

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qianyu2019/firedoor-extractor/internal/models"
	"github.com/qianyu2019/firedoor-extractor/pkg/logger"
)

func TestNeedsRotation(t *testing.T) {
	// portrait pages are rotated so sheet content reads landscape
	assert.True(t, NeedsRotation(2000, 3000))
	assert.False(t, NeedsRotation(3000, 2000))
	assert.False(t, NeedsRotation(2000, 2000))
}

func TestCropRect(t *testing.T) {
	roi := models.ROI{X0: 0.6, Y0: 0.55, X1: 0.85, Y1: 1.0}

	// a portrait 2000x3000 page is rotated first, so the roi applies to
	// the 3000x2000 landscape geometry
	w, h := 2000, 3000
	if NeedsRotation(w, h) {
		w, h = h, w
	}
	got := CropRect(w, h, roi)
	assert.Equal(t, image.Rect(1800, 1100, 2550, 2000), got)

	// a landscape page is not rotated
	got = CropRect(3000, 2000, roi)
	assert.Equal(t, image.Rect(1800, 1100, 2550, 2000), got)
}

func TestCropRectClampedToPage(t *testing.T) {
	roi := models.ROI{X0: 0.5, Y0: 0.5, X1: 1.0, Y1: 1.0}
	got := CropRect(100, 80, roi)
	assert.Equal(t, image.Rect(50, 40, 100, 80), got)

	// full page roi is the identity
	got = CropRect(640, 480, models.FullPage)
	assert.Equal(t, image.Rect(0, 0, 640, 480), got)
}

func TestNewValidation(t *testing.T) {
	log := logger.NewTestLogger()

	_, err := New(0, models.FullPage, "", log)
	assert.Error(t, err)

	_, err = New(300, models.ROI{X0: 0.9, Y0: 0, X1: 0.1, Y1: 1}, "", log)
	assert.Error(t, err)

	r, err := New(300, models.FullPage, "", log)
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestRasterizeMissingFile(t *testing.T) {
	r, err := New(300, models.FullPage, "", logger.NewTestLogger())
	require.NoError(t, err)

	_, err = r.Rasterize("/nonexistent/sheet_FHM.pdf")
	assert.Error(t, err)
}

package vision

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"track-control/closed_loop/control"
)

// lemon is a saturated yellow-orange that lands near hue 26 in OpenCV's HSV scale.
var lemon = color.RGBA{R: 255, G: 220, B: 0, A: 0}

func blankFrame(t *testing.T) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 480, 640, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestLocateFindsDisc(t *testing.T) {
	frame := blankFrame(t)
	gocv.Circle(&frame, image.Pt(320, 120), 40, lemon, -1)

	loc := NewLocator(control.DefaultConfig())
	defer loc.Close()

	det := loc.Locate(frame)
	require.True(t, det.Found)
	assert.InDelta(t, 320, det.X, 2)
	assert.InDelta(t, 120, det.Y, 2)
	assert.InDelta(t, 40, det.Radius, 3)
	assert.True(t, det.Significant(10))
}

func TestLocatePicksLargestBlob(t *testing.T) {
	frame := blankFrame(t)
	gocv.Circle(&frame, image.Pt(100, 400), 15, lemon, -1)
	gocv.Circle(&frame, image.Pt(500, 200), 60, lemon, -1)

	loc := NewLocator(control.DefaultConfig())
	defer loc.Close()

	det := loc.Locate(frame)
	require.True(t, det.Found)
	assert.InDelta(t, 500, det.X, 2)
	assert.InDelta(t, 200, det.Y, 2)
}

func TestLocateIgnoresOtherColors(t *testing.T) {
	frame := blankFrame(t)
	gocv.Circle(&frame, image.Pt(320, 240), 50, color.RGBA{R: 0, G: 0, B: 255, A: 0}, -1)

	loc := NewLocator(control.DefaultConfig())
	defer loc.Close()

	assert.False(t, loc.Locate(frame).Found)
}

func TestLocateErodesSpecks(t *testing.T) {
	frame := blankFrame(t)
	gocv.Rectangle(&frame, image.Rect(10, 10, 12, 12), lemon, -1)

	loc := NewLocator(control.DefaultConfig())
	defer loc.Close()

	assert.False(t, loc.Locate(frame).Found)
}

func TestLocateEmptyFrame(t *testing.T) {
	loc := NewLocator(control.DefaultConfig())
	defer loc.Close()

	empty := gocv.NewMat()
	defer empty.Close()

	assert.Equal(t, control.Detection{}, loc.Locate(empty))
}

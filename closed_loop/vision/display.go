package vision

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"track-control/closed_loop/control"
)

var overlayColor = color.RGBA{R: 255, G: 255, B: 0, A: 0}

// Display shows the annotated, mirrored camera feed and polls the exit key.
type Display struct {
	window    *gocv.Window
	exitKey   int
	threshold float64
	mirrored  gocv.Mat
}

func NewDisplay(title string, cfg control.Config) *Display {
	return &Display{
		window:    gocv.NewWindow(title),
		exitKey:   int(cfg.ExitKey[0]),
		threshold: cfg.ThresholdContour,
		mirrored:  gocv.NewMat(),
	}
}

// Show draws the enclosing circle of a significant detection onto frame and
// displays it flipped horizontally, so the operator sees a mirror.
func (d *Display) Show(frame *gocv.Mat, det control.Detection) {
	if det.Significant(d.threshold) {
		center := image.Pt(int(det.X), int(det.Y))
		gocv.Circle(frame, center, int(det.Radius), overlayColor, 2)
	}
	gocv.Flip(*frame, &d.mirrored, 1)
	d.window.IMShow(d.mirrored)
}

func (d *Display) ExitRequested() bool {
	return d.window.WaitKey(1)&0xFF == d.exitKey
}

func (d *Display) Close() error {
	if err := d.mirrored.Close(); err != nil {
		return err
	}
	return d.window.Close()
}

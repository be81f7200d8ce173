package vision

import (
	"context"

	"gocv.io/x/gocv"

	"track-control/closed_loop/control"
)

// CameraSource reads, locates and (optionally) displays one frame per Next.
type CameraSource struct {
	camera  *Camera
	locator *Locator
	display *Display
	frame   gocv.Mat
}

// NewCameraSource takes ownership of its parts; display may be nil for
// headless runs.
func NewCameraSource(camera *Camera, locator *Locator, display *Display) *CameraSource {
	return &CameraSource{
		camera:  camera,
		locator: locator,
		display: display,
		frame:   gocv.NewMat(),
	}
}

func (s *CameraSource) Next(ctx context.Context) (control.Detection, error) {
	if err := ctx.Err(); err != nil {
		return control.Detection{}, err
	}
	if err := s.camera.Read(&s.frame); err != nil {
		return control.Detection{}, err
	}

	det := s.locator.Locate(s.frame)
	if s.display != nil {
		s.display.Show(&s.frame, det)
	}
	return det, nil
}

// ExitRequested is the loop's exit check. Headless sources never request exit.
func (s *CameraSource) ExitRequested() bool {
	if s.display == nil {
		return false
	}
	return s.display.ExitRequested()
}

func (s *CameraSource) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.display != nil {
		keep(s.display.Close())
	}
	keep(s.locator.Close())
	keep(s.camera.Close())
	keep(s.frame.Close())
	return firstErr
}

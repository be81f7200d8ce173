package vision

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

var ErrEmptyFrame = errors.New("camera returned an empty frame")

type Camera struct {
	device int
	cap    *gocv.VideoCapture
}

func OpenCamera(device int) (*Camera, error) {
	vc, err := gocv.VideoCaptureDevice(device)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", device, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("open camera %d: device not available", device)
	}
	return &Camera{device: device, cap: vc}, nil
}

// Read blocks for the next frame. A failed or empty read is a capture failure.
func (c *Camera) Read(frame *gocv.Mat) error {
	if ok := c.cap.Read(frame); !ok {
		return fmt.Errorf("read camera %d: capture failed", c.device)
	}
	if frame.Empty() {
		return fmt.Errorf("read camera %d: %w", c.device, ErrEmptyFrame)
	}
	return nil
}

// Size reports the capture resolution the driver settled on.
func (c *Camera) Size() (width, height float64) {
	return c.cap.Get(gocv.VideoCaptureFrameWidth), c.cap.Get(gocv.VideoCaptureFrameHeight)
}

func (c *Camera) Close() error {
	return c.cap.Close()
}

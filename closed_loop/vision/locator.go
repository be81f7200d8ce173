package vision

import (
	"image"

	"gocv.io/x/gocv"

	"track-control/closed_loop/control"
)

// morphIterations matches the erode/dilate passes used to clean the color mask.
const morphIterations = 2

// Locator finds the largest blob inside an HSV color range.
type Locator struct {
	lower  gocv.Scalar
	upper  gocv.Scalar
	kernel gocv.Mat

	hsv  gocv.Mat
	mask gocv.Mat
	tmp  gocv.Mat
}

func NewLocator(cfg control.Config) *Locator {
	return &Locator{
		lower:  hsvScalar(cfg.ColorLower),
		upper:  hsvScalar(cfg.ColorUpper),
		kernel: gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3)),
		hsv:    gocv.NewMat(),
		mask:   gocv.NewMat(),
		tmp:    gocv.NewMat(),
	}
}

func hsvScalar(c control.HSV) gocv.Scalar {
	return gocv.NewScalar(c[0], c[1], c[2], 0)
}

// Locate returns the min enclosing circle of the largest external contour in a
// BGR frame. The radius is not filtered here; callers decide significance.
func (l *Locator) Locate(frame gocv.Mat) control.Detection {
	if frame.Empty() {
		return control.Detection{}
	}

	gocv.CvtColor(frame, &l.hsv, gocv.ColorBGRToHSV)
	gocv.InRangeWithScalar(l.hsv, l.lower, l.upper, &l.mask)
	for i := 0; i < morphIterations; i++ {
		gocv.Erode(l.mask, &l.tmp, l.kernel)
		l.tmp.CopyTo(&l.mask)
	}
	for i := 0; i < morphIterations; i++ {
		gocv.Dilate(l.mask, &l.tmp, l.kernel)
		l.tmp.CopyTo(&l.mask)
	}

	contours := gocv.FindContours(l.mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	if contours.Size() == 0 {
		return control.Detection{}
	}

	best, bestArea := 0, -1.0
	for i := 0; i < contours.Size(); i++ {
		if area := gocv.ContourArea(contours.At(i)); area > bestArea {
			best, bestArea = i, area
		}
	}

	x, y, radius := gocv.MinEnclosingCircle(contours.At(best))
	return control.Detection{
		Found:  true,
		X:      float64(x),
		Y:      float64(y),
		Radius: float64(radius),
	}
}

func (l *Locator) Close() error {
	for _, m := range []*gocv.Mat{&l.kernel, &l.hsv, &l.mask, &l.tmp} {
		if err := m.Close(); err != nil {
			return err
		}
	}
	return nil
}

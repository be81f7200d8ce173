package control

// Detection is the Object Locator's result for one frame. Found is false when no
// blob matched the color range at all.
type Detection struct {
	Found  bool
	X      float64
	Y      float64
	Radius float64
}

// Significant reports whether the blob is large enough to steer by.
func (d Detection) Significant(threshold float64) bool {
	return d.Found && d.Radius > threshold
}

// Command is a throttle/steering pair. Positive throttle drives forward and
// positive steering corresponds to an object left of the image centre.
type Command struct {
	Throttle float64
	Steering float64
}

// Stop is sent whenever nothing is tracked.
var Stop = Command{}

func (c Command) Reverse() bool {
	return c.Throttle < 0
}

// Mapper converts image coordinates into a Command. Outputs are not clamped.
type Mapper struct {
	dimX         float64
	dimY         float64
	forwardRatio float64
}

func NewMapper(cfg Config) Mapper {
	return Mapper{dimX: cfg.DimX, dimY: cfg.DimY, forwardRatio: cfg.ForwardRatio}
}

// Map centres (x, y) on the capture frame. Above centre is forward, scaled by
// the forward ratio; below centre is reverse at unit scale.
func (m Mapper) Map(x, y float64) Command {
	throttle := -(y - m.dimY/2) / m.dimY
	steering := -(x - m.dimX/2) / m.dimX

	if throttle > 0 {
		throttle *= m.forwardRatio
	}
	return Command{Throttle: throttle, Steering: steering}
}

package control

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
	"unicode/utf8"
)

// HSV is an OpenCV-scaled color bound: hue in [0, 180], saturation and value in [0, 255].
type HSV [3]float64

// Config holds every tunable of the tracker and controller. It is passed by value
// and never mutated after startup.
type Config struct {
	ColorLower HSV `json:"color_lower"`
	ColorUpper HSV `json:"color_upper"`

	// Expected capture resolution in pixels.
	DimX float64 `json:"dim_x"`
	DimY float64 `json:"dim_y"`

	// Minimum enclosing-circle radius (pixels) for a blob to count as a detection.
	ThresholdContour float64 `json:"threshold_contour"`

	// How many times more sensitive forward throttle is than reverse.
	ForwardRatio float64 `json:"forward_ratio"`

	ThrottleThreshold float64 `json:"control_throttle_threshold"`
	SteeringThreshold float64 `json:"control_steering_threshold"`

	RefreshRateS float64 `json:"refresh_rate_s"`
	ExitKey      string  `json:"exit_key"`
}

// DefaultConfig tracks a yellow toy on a 640x480 capture.
func DefaultConfig() Config {
	return Config{
		ColorLower:        HSV{20, 100, 100},
		ColorUpper:        HSV{30, 255, 255},
		DimX:              640,
		DimY:              480,
		ThresholdContour:  10,
		ForwardRatio:      2,
		ThrottleThreshold: 0.1,
		SteeringThreshold: 0.1,
		RefreshRateS:      0.1,
		ExitKey:           "x",
	}
}

// LoadConfig overlays a JSON file onto DefaultConfig. Fields absent from the
// file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read file: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.DimX <= 0 || c.DimY <= 0 {
		return fmt.Errorf("invalid capture dimensions %gx%g", c.DimX, c.DimY)
	}
	if c.RefreshRateS <= 0 {
		return fmt.Errorf("invalid refresh_rate_s: %f", c.RefreshRateS)
	}
	if c.ThresholdContour < 0 {
		return fmt.Errorf("invalid threshold_contour: %f", c.ThresholdContour)
	}
	if c.ForwardRatio < 0 {
		return fmt.Errorf("invalid forward_ratio: %f", c.ForwardRatio)
	}
	if c.ThrottleThreshold < 0 || c.SteeringThreshold < 0 {
		return fmt.Errorf("invalid control thresholds: throttle=%f steering=%f",
			c.ThrottleThreshold, c.SteeringThreshold)
	}
	if utf8.RuneCountInString(c.ExitKey) != 1 {
		return fmt.Errorf("exit_key must be a single character, got %q", c.ExitKey)
	}
	for i := range c.ColorLower {
		if c.ColorLower[i] > c.ColorUpper[i] {
			return fmt.Errorf("color_lower %v exceeds color_upper %v on channel %d", c.ColorLower, c.ColorUpper, i)
		}
	}
	return nil
}

func (c Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshRateS * float64(time.Second))
}

package control

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Scenario scripts what the locator would have reported over time, so the
// controller can drive a simulator without a camera.
type Scenario struct {
	Meta     ScenarioMeta      `json:"meta"`
	Timing   ScenarioTiming    `json:"timing"`
	Defaults ScenarioFrame     `json:"defaults"`
	Segments []ScenarioSegment `json:"segments"`
}

type ScenarioMeta struct {
	Name        string `json:"name"`
	Version     int    `json:"version"`
	Description string `json:"description"`
}

// ScenarioTiming: with real_time_mode the scenario clock is wall time since the
// first read; otherwise it advances by dt_s per read.
type ScenarioTiming struct {
	DtS          float64 `json:"dt_s"`
	DurationS    float64 `json:"duration_s"`
	RealTimeMode bool    `json:"real_time_mode"`
}

// ScenarioFrame is one scripted locator result. Lost means no blob at all.
type ScenarioFrame struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
	Lost   bool    `json:"lost,omitempty"`
}

// ScenarioSegment holds a frame over [T0, T1). A negative T1 runs to the end.
type ScenarioSegment struct {
	T0 float64 `json:"t0"`
	T1 float64 `json:"t1"`
	ScenarioFrame
	Comment string `json:"comment,omitempty"`
}

func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read file: %w", err)
	}

	var scen Scenario
	if err := json.Unmarshal(data, &scen); err != nil {
		return Scenario{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := scen.Validate(); err != nil {
		return Scenario{}, err
	}
	return scen, nil
}

func (s Scenario) Validate() error {
	if s.Timing.DurationS <= 0 {
		return fmt.Errorf("invalid duration_s: %f", s.Timing.DurationS)
	}
	if !s.Timing.RealTimeMode && s.Timing.DtS <= 0 {
		return fmt.Errorf("invalid dt_s: %f (required unless real_time_mode)", s.Timing.DtS)
	}
	for i, seg := range s.Segments {
		if seg.T1 >= 0 && seg.T1 <= seg.T0 {
			return fmt.Errorf("segment %d: t1 %.3f not after t0 %.3f", i, seg.T1, seg.T0)
		}
	}
	return nil
}

// EvalDetection returns the scripted detection at scenario time t. The first
// matching segment wins; outside all segments the defaults apply.
func EvalDetection(scen *Scenario, t float64) Detection {
	frame := scen.Defaults
	for _, seg := range scen.Segments {
		t1 := seg.T1
		if t1 < 0 {
			t1 = scen.Timing.DurationS
		}
		if t >= seg.T0 && t < t1 {
			frame = seg.ScenarioFrame
			break
		}
	}

	if frame.Lost {
		return Detection{}
	}
	return Detection{Found: true, X: frame.X, Y: frame.Y, Radius: frame.Radius}
}

// ScenarioSource replays a Scenario as a Source.
type ScenarioSource struct {
	scen  Scenario
	now   func() time.Time
	start time.Time
	reads int
}

func NewScenarioSource(scen Scenario) *ScenarioSource {
	return &ScenarioSource{scen: scen, now: time.Now}
}

func (s *ScenarioSource) Next(ctx context.Context) (Detection, error) {
	if err := ctx.Err(); err != nil {
		return Detection{}, err
	}

	var t float64
	if s.scen.Timing.RealTimeMode {
		if s.start.IsZero() {
			s.start = s.now()
		}
		t = s.now().Sub(s.start).Seconds()
	} else {
		t = float64(s.reads) * s.scen.Timing.DtS
	}
	s.reads++

	if t >= s.scen.Timing.DurationS {
		return Detection{}, io.EOF
	}
	return EvalDetection(&s.scen, t), nil
}

func (s *ScenarioSource) Name() string {
	return s.scen.Meta.Name
}

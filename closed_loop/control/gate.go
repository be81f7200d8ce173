package control

import (
	"context"
	"math"
)

// Sender delivers a command to the simulated vehicle. reverse selects manual
// gear -1; otherwise the vehicle stays in automatic gear.
type Sender interface {
	SetControls(ctx context.Context, throttle, steering float64, reverse bool) error
}

// Gate forwards a command only when it moved more than a threshold away from
// the last command the Sender accepted, on either axis.
type Gate struct {
	throttleThreshold float64
	steeringThreshold float64
	sender            Sender

	last Command
}

func NewGate(cfg Config, sender Sender) *Gate {
	return &Gate{
		throttleThreshold: cfg.ThrottleThreshold,
		steeringThreshold: cfg.SteeringThreshold,
		sender:            sender,
	}
}

// MaybeSend reports whether cand was transmitted. A failed send leaves the
// last-sent state untouched.
func (g *Gate) MaybeSend(ctx context.Context, cand Command) (bool, error) {
	diffThrottle := math.Abs(g.last.Throttle-cand.Throttle) > g.throttleThreshold
	diffSteering := math.Abs(g.last.Steering-cand.Steering) > g.steeringThreshold
	if !diffThrottle && !diffSteering {
		return false, nil
	}

	if err := g.sender.SetControls(ctx, cand.Throttle, cand.Steering, cand.Reverse()); err != nil {
		return false, err
	}
	g.last = cand
	return true, nil
}

func (g *Gate) LastSent() Command {
	return g.last
}

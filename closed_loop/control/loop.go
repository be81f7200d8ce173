package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"track-control/utils"
)

// Source yields one detection per control cycle. io.EOF ends the run cleanly;
// any other error is a capture failure.
type Source interface {
	Next(ctx context.Context) (Detection, error)
}

type RunnerOption func(*Runner)

// WithExitCheck installs the per-iteration termination poll (e.g. an exit key).
func WithExitCheck(exit func() bool) RunnerOption {
	return func(r *Runner) { r.exit = exit }
}

// StepResult describes one loop iteration.
type StepResult struct {
	Detection Detection
	Tracked   bool
	Command   Command
	Sent      bool
}

// RunStats is logged when Run returns.
type RunStats struct {
	Cycles     uint64
	Tracked    uint64
	Sent       uint64
	Suppressed uint64
}

type Runner struct {
	cfg    Config
	log    *utils.Logger
	src    Source
	mapper Mapper
	gate   *Gate
	exit   func() bool
	stats  RunStats
}

func NewRunner(cfg Config, log *utils.Logger, src Source, sender Sender, opts ...RunnerOption) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if src == nil || sender == nil {
		return nil, errors.New("runner needs a detection source and a sender")
	}
	r := &Runner{
		cfg:    cfg,
		log:    log.With("component", "runner"),
		src:    src,
		mapper: NewMapper(cfg),
		gate:   NewGate(cfg, sender),
		exit:   func() bool { return false },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Step runs one cycle: detect, map (or stop), gate.
func (r *Runner) Step(ctx context.Context) (StepResult, error) {
	det, err := r.src.Next(ctx)
	if err != nil {
		return StepResult{}, fmt.Errorf("read detection: %w", err)
	}
	r.stats.Cycles++

	res := StepResult{Detection: det, Command: Stop}
	if det.Significant(r.cfg.ThresholdContour) {
		res.Tracked = true
		res.Command = r.mapper.Map(det.X, det.Y)
		r.stats.Tracked++
	}

	sent, err := r.gate.MaybeSend(ctx, res.Command)
	if err != nil {
		return res, fmt.Errorf("send controls throttle=%.3f steering=%.3f: %w",
			res.Command.Throttle, res.Command.Steering, err)
	}
	res.Sent = sent
	if sent {
		r.stats.Sent++
		r.log.Debug("sent throttle=%+.3f steering=%+.3f reverse=%t",
			res.Command.Throttle, res.Command.Steering, res.Command.Reverse())
	} else {
		r.stats.Suppressed++
	}

	r.log.Trace("cycle=%d found=%t x=%.1f y=%.1f r=%.1f tracked=%t cmd=(%+.3f,%+.3f) sent=%t",
		r.stats.Cycles, det.Found, det.X, det.Y, det.Radius, res.Tracked,
		res.Command.Throttle, res.Command.Steering, sent)
	return res, nil
}

// Run loops until the exit check fires, the source is exhausted, ctx is
// cancelled, or a capture/send failure occurs. Cancellation is only observed
// between iterations.
func (r *Runner) Run(ctx context.Context) error {
	interval := r.cfg.RefreshInterval()
	r.log.Info("Starting control loop: refresh=%s dims=%gx%g forward_ratio=%g thresholds=(%g,%g)",
		interval, r.cfg.DimX, r.cfg.DimY, r.cfg.ForwardRatio, r.cfg.ThrottleThreshold, r.cfg.SteeringThreshold)
	defer func() {
		r.log.Info("Completed control loop. cycles=%d tracked=%d sent=%d suppressed=%d",
			r.stats.Cycles, r.stats.Tracked, r.stats.Sent, r.stats.Suppressed)
	}()

	for {
		if _, err := r.Step(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				r.log.Info("Detection source exhausted")
				return nil
			}
			return err
		}

		if r.exit() {
			r.log.Info("Exit requested")
			return nil
		}

		wait := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			wait.Stop()
			r.log.Warn("Context canceled; stopping control loop")
			return ctx.Err()
		case <-wait.C:
		}
	}
}

func (r *Runner) Stats() RunStats {
	return r.stats
}

// LastSent is the command the simulator currently holds.
func (r *Runner) LastSent() Command {
	return r.gate.LastSent()
}

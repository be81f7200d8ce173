package sim

import (
	"context"
	"fmt"
	"time"

	"track-control/utils"
)

// Frame names the CAN bridge map must define.
const (
	FrameAPICtrl     = "SIM_API_CTRL"
	FrameCarControls = "CAR_CONTROLS"
	FrameSimStatus   = "SIM_STATUS"
)

// vehicle_type reported in SIM_STATUS when the simulator runs in car mode.
const vehicleTypeCar = 0

// CANSession drives a simulator bridged onto a CAN bus.
type CANSession struct {
	cmap      *utils.CANMap
	writer    utils.CANWriter
	reader    utils.CANReader
	statusID  uint32
	connected bool
	log       *utils.Logger
}

// DialCAN opens iface and performs the API-control handshake. ctx bounds the
// handshake.
func DialCAN(ctx context.Context, iface string, cmap *utils.CANMap, log *utils.Logger) (*CANSession, error) {
	port, err := utils.DialSocketCAN(ctx, iface)
	if err != nil {
		return nil, err
	}

	s, err := NewCANSession(cmap, port, port, log)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	if err := s.Connect(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	s.log.Info("Connected over %s", iface)
	return s, nil
}

func NewCANSession(cmap *utils.CANMap, writer utils.CANWriter, reader utils.CANReader, log *utils.Logger) (*CANSession, error) {
	for _, name := range []string{FrameAPICtrl, FrameCarControls} {
		fd, err := cmap.FrameByName(name)
		if err != nil {
			return nil, fmt.Errorf("can map: %w", err)
		}
		if fd.Direction != utils.DirectionTX {
			return nil, fmt.Errorf("can map: frame %s must be TX, is %q", name, fd.Direction)
		}
	}
	status, err := cmap.FrameByName(FrameSimStatus)
	if err != nil {
		return nil, fmt.Errorf("can map: %w", err)
	}
	return &CANSession{
		cmap:     cmap,
		writer:   writer,
		reader:   reader,
		statusID: status.ID,
		log:      log.With("component", "can"),
	}, nil
}

// Connect requests API control and waits for a SIM_STATUS frame confirming it.
func (s *CANSession) Connect(ctx context.Context) error {
	if err := s.send(ctx, FrameAPICtrl, map[string]float64{"api_enable": 1}); err != nil {
		return fmt.Errorf("request api control: %w", err)
	}

	for {
		frame, err := s.reader.ReadFrame(ctx)
		if err != nil {
			return fmt.Errorf("await %s: %w", FrameSimStatus, err)
		}
		if frame.ID != s.statusID {
			continue
		}
		values, err := s.cmap.DecodeEinrideFrame(frame)
		if err != nil {
			return fmt.Errorf("decode %s: %w", FrameSimStatus, err)
		}
		if values["vehicle_type"] != vehicleTypeCar {
			return fmt.Errorf("simulator is not in car mode (vehicle_type=%.0f)", values["vehicle_type"])
		}
		if values["api_control_enabled"] == 1 {
			s.connected = true
			return nil
		}
		s.log.Debug("%s without api control yet", FrameSimStatus)
	}
}

func (s *CANSession) SetControls(ctx context.Context, throttle, steering float64, reverse bool) error {
	if !s.connected {
		return ErrNotConnected
	}
	gear := 0.0
	if reverse {
		gear = 1
	}
	return s.send(ctx, FrameCarControls, map[string]float64{
		"throttle":     throttle,
		"steering":     steering,
		"reverse_gear": gear,
	})
}

func (s *CANSession) send(ctx context.Context, frameName string, values map[string]float64) error {
	frame, err := s.cmap.EncodeEinrideFrame(frameName, values)
	if err != nil {
		return err
	}
	if err := s.writer.WriteFrame(ctx, frame); err != nil {
		return fmt.Errorf("transmit %s: %w", frameName, err)
	}
	s.log.Trace("TX %s id=0x%X data=% X", frameName, frame.ID, frame.Data[:frame.Length])
	return nil
}

// Close releases API control (best effort) and closes both sockets.
func (s *CANSession) Close() error {
	if s.connected {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := s.send(ctx, FrameAPICtrl, map[string]float64{"api_enable": 0}); err != nil {
			s.log.Warn("Release api control: %v", err)
		}
		cancel()
		s.connected = false
	}
	rerr := s.reader.Close()
	if werr := s.writer.Close(); werr != nil {
		return werr
	}
	return rerr
}

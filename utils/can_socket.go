package utils

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

type CANWriter interface {
	WriteFrame(ctx context.Context, frame can.Frame) error
	Close() error
}

type CANReader interface {
	ReadFrame(ctx context.Context) (can.Frame, error)
	Close() error
}

// SocketCANPort is one raw CAN socket used for both directions. A raw socket
// does not receive its own transmissions.
type SocketCANPort struct {
	iface     string
	conn      net.Conn
	tx        *socketcan.Transmitter
	rx        *socketcan.Receiver
	closeOnce sync.Once
	closeErr  error
}

// DialSocketCAN opens iface (e.g. "vcan0").
func DialSocketCAN(ctx context.Context, iface string) (*SocketCANPort, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial %s: %w", iface, err)
	}
	return &SocketCANPort{
		iface: iface,
		conn:  conn,
		tx:    socketcan.NewTransmitter(conn),
		rx:    socketcan.NewReceiver(conn),
	}, nil
}

func (p *SocketCANPort) WriteFrame(ctx context.Context, frame can.Frame) error {
	return p.tx.TransmitFrame(ctx, frame)
}

// ReadFrame blocks for the next data frame, skipping error frames. The receive
// runs on a helper goroutine so ctx can abandon the wait; the goroutine ends
// when a frame arrives or the port is closed.
func (p *SocketCANPort) ReadFrame(ctx context.Context) (can.Frame, error) {
	type result struct {
		frame can.Frame
		err   error
	}
	done := make(chan result, 1)

	go func() {
		for p.rx.Receive() {
			if p.rx.HasErrorFrame() {
				continue
			}
			done <- result{frame: p.rx.Frame()}
			return
		}
		err := p.rx.Err()
		if err == nil {
			err = fmt.Errorf("socketcan %s: receiver closed", p.iface)
		}
		done <- result{err: err}
	}()

	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case res := <-done:
		return res.frame, res.err
	}
}

// Close is idempotent so the port can be handed out as both reader and writer.
func (p *SocketCANPort) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.conn.Close()
	})
	return p.closeErr
}

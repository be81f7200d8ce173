package sim

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"track-control/utils"
)

const DefaultAirSimAddr = "127.0.0.1:41451"

var (
	ErrNotConnected = errors.New("simulator session not connected")
	ErrNoAPIControl = errors.New("simulator did not grant API control")
)

// msgpack-RPC message types.
const (
	rpcRequest  = 0
	rpcResponse = 1
)

// CarControls mirrors the simulator's car control record; field names are the
// wire keys.
type CarControls struct {
	Throttle      float32 `msgpack:"throttle"`
	Steering      float32 `msgpack:"steering"`
	Brake         float32 `msgpack:"brake"`
	Handbrake     bool    `msgpack:"handbrake"`
	IsManualGear  bool    `msgpack:"is_manual_gear"`
	ManualGear    int     `msgpack:"manual_gear"`
	GearImmediate bool    `msgpack:"gear_immediate"`
}

// NewCarControls selects manual gear -1 for reverse and automatic gear otherwise.
func NewCarControls(throttle, steering float64, reverse bool) CarControls {
	cc := CarControls{
		Throttle:      float32(throttle),
		Steering:      float32(steering),
		GearImmediate: true,
	}
	if reverse {
		cc.IsManualGear = true
		cc.ManualGear = -1
	}
	return cc
}

// RPCError is an error value returned by the simulator for a call.
type RPCError struct {
	Method string
	Detail any
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc %s: %v", e.Method, e.Detail)
}

// AirSimClient is a car-mode control session over msgpack-RPC. Calls are
// serialized; the protocol allows one outstanding request on this connection.
type AirSimClient struct {
	mu        sync.Mutex
	conn      net.Conn
	dec       *msgpack.Decoder
	seq       uint32
	vehicle   string
	connected bool
	log       *utils.Logger
}

// DialAirSim connects, pings, and takes API control of vehicle ("" is the
// default vehicle). The simulator must already be running in car mode.
func DialAirSim(ctx context.Context, addr, vehicle string, log *utils.Logger) (*AirSimClient, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial airsim %s: %w", addr, err)
	}

	c := &AirSimClient{
		conn:    conn,
		dec:     msgpack.NewDecoder(bufio.NewReader(conn)),
		vehicle: vehicle,
		log:     log.With("component", "airsim"),
	}
	if err := c.handshake(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	c.log.Info("Connected to %s vehicle=%q", addr, vehicle)
	return c, nil
}

func (c *AirSimClient) handshake(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var pong bool
	if err := c.call(ctx, "ping", &pong); err != nil {
		return fmt.Errorf("confirm connection: %w", err)
	}
	if !pong {
		return errors.New("confirm connection: ping returned false")
	}

	if err := c.call(ctx, "enableApiControl", nil, true, c.vehicle); err != nil {
		return fmt.Errorf("enable api control: %w", err)
	}
	var enabled bool
	if err := c.call(ctx, "isApiControlEnabled", &enabled, c.vehicle); err != nil {
		return fmt.Errorf("check api control: %w", err)
	}
	if !enabled {
		return fmt.Errorf("vehicle %q: %w", c.vehicle, ErrNoAPIControl)
	}

	c.connected = true
	return nil
}

func (c *AirSimClient) SetControls(ctx context.Context, throttle, steering float64, reverse bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return ErrNotConnected
	}
	cc := NewCarControls(throttle, steering, reverse)
	if err := c.call(ctx, "setCarControls", nil, cc, c.vehicle); err != nil {
		return err
	}
	c.log.Trace("setCarControls throttle=%.3f steering=%.3f manual_gear=%t/%d",
		cc.Throttle, cc.Steering, cc.IsManualGear, cc.ManualGear)
	return nil
}

// Close hands control back to the simulator (best effort) and closes the socket.
func (c *AirSimClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	if c.connected {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := c.call(ctx, "enableApiControl", nil, false, c.vehicle); err != nil {
			c.log.Warn("Release api control: %v", err)
		}
		cancel()
		c.connected = false
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// call performs one request/response exchange. c.mu must be held. A nil result
// discards the returned value.
func (c *AirSimClient) call(ctx context.Context, method string, result any, params ...any) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return err
	}
	if params == nil {
		params = []any{}
	}

	c.seq++
	id := c.seq
	req, err := msgpack.Marshal([]any{rpcRequest, id, method, params})
	if err != nil {
		return fmt.Errorf("rpc %s: encode: %w", method, err)
	}
	if _, err := c.conn.Write(req); err != nil {
		return fmt.Errorf("rpc %s: write: %w", method, err)
	}

	n, err := c.dec.DecodeArrayLen()
	if err != nil {
		return fmt.Errorf("rpc %s: read: %w", method, err)
	}
	if n != 4 {
		return fmt.Errorf("rpc %s: malformed response of %d elements", method, n)
	}
	kind, err := c.dec.DecodeInt()
	if err != nil {
		return fmt.Errorf("rpc %s: read type: %w", method, err)
	}
	if kind != rpcResponse {
		return fmt.Errorf("rpc %s: unexpected message type %d", method, kind)
	}
	gotID, err := c.dec.DecodeUint32()
	if err != nil {
		return fmt.Errorf("rpc %s: read id: %w", method, err)
	}
	if gotID != id {
		return fmt.Errorf("rpc %s: response id %d, want %d", method, gotID, id)
	}

	rpcErr, err := c.dec.DecodeInterface()
	if err != nil {
		return fmt.Errorf("rpc %s: read error: %w", method, err)
	}
	if rpcErr != nil {
		_ = c.dec.Skip()
		return &RPCError{Method: method, Detail: rpcErr}
	}

	if result == nil {
		return c.dec.Skip()
	}
	if err := c.dec.Decode(result); err != nil {
		return fmt.Errorf("rpc %s: decode result: %w", method, err)
	}
	return nil
}

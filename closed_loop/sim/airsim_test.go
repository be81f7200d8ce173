package sim

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"track-control/utils"
)

type rpcCall struct {
	method string
	params []any
}

// fakeAirSim answers the handful of msgpack-RPC methods the client uses.
type fakeAirSim struct {
	addr      string
	refuseAPI bool

	mu         sync.Mutex
	apiEnabled bool
	calls      []rpcCall
}

func startFakeAirSim(t *testing.T, refuseAPI bool) *fakeAirSim {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	f := &fakeAirSim{addr: ln.Addr().String(), refuseAPI: refuseAPI}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		f.serve(conn)
	}()
	return f
}

func (f *fakeAirSim) serve(conn net.Conn) {
	dec := msgpack.NewDecoder(conn)
	for {
		var req []any
		if err := dec.Decode(&req); err != nil {
			return
		}
		method, _ := req[2].(string)
		params, _ := req[3].([]any)

		f.mu.Lock()
		f.calls = append(f.calls, rpcCall{method: method, params: params})
		var result, rpcErr any
		switch method {
		case "ping":
			result = true
		case "enableApiControl":
			if !f.refuseAPI {
				f.apiEnabled, _ = params[0].(bool)
			}
		case "isApiControlEnabled":
			result = f.apiEnabled
		case "setCarControls":
		default:
			rpcErr = "unknown method " + method
		}
		f.mu.Unlock()

		resp, err := msgpack.Marshal([]any{rpcResponse, req[1], rpcErr, result})
		if err != nil {
			return
		}
		if _, err := conn.Write(resp); err != nil {
			return
		}
	}
}

func (f *fakeAirSim) recorded() []rpcCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rpcCall(nil), f.calls...)
}

func testLogger() *utils.Logger {
	return utils.NewLogger(io.Discard, utils.TRACE)
}

func dialCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestDialAirSimHandshake(t *testing.T) {
	fake := startFakeAirSim(t, false)

	c, err := DialAirSim(dialCtx(t), fake.addr, "", testLogger())
	require.NoError(t, err)
	defer c.Close()

	calls := fake.recorded()
	require.Len(t, calls, 3)
	assert.Equal(t, "ping", calls[0].method)
	assert.Equal(t, "enableApiControl", calls[1].method)
	assert.Equal(t, []any{true, ""}, calls[1].params)
	assert.Equal(t, "isApiControlEnabled", calls[2].method)
}

func TestAirSimSetControlsReverse(t *testing.T) {
	fake := startFakeAirSim(t, false)
	ctx := dialCtx(t)

	c, err := DialAirSim(ctx, fake.addr, "Car1", testLogger())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SetControls(ctx, -0.3, 0.125, true))
	require.NoError(t, c.SetControls(ctx, 0.5, 0, false))

	calls := fake.recorded()
	require.Len(t, calls, 5)

	rev := calls[3]
	assert.Equal(t, "setCarControls", rev.method)
	require.Len(t, rev.params, 2)
	assert.Equal(t, "Car1", rev.params[1])
	cc, ok := rev.params[0].(map[string]any)
	require.True(t, ok, "controls encoded as %T", rev.params[0])
	assert.InDelta(t, -0.3, cc["throttle"], 1e-6)
	assert.InDelta(t, 0.125, cc["steering"], 1e-6)
	assert.Equal(t, true, cc["is_manual_gear"])
	assert.EqualValues(t, -1, cc["manual_gear"])
	assert.Equal(t, true, cc["gear_immediate"])

	fwd := calls[4].params[0].(map[string]any)
	assert.Equal(t, false, fwd["is_manual_gear"])
	assert.InDelta(t, 0.5, fwd["throttle"], 1e-6)
}

func TestAirSimCloseReleasesControl(t *testing.T) {
	fake := startFakeAirSim(t, false)
	ctx := dialCtx(t)

	c, err := DialAirSim(ctx, fake.addr, "", testLogger())
	require.NoError(t, err)
	require.NoError(t, c.Close())

	calls := fake.recorded()
	last := calls[len(calls)-1]
	assert.Equal(t, "enableApiControl", last.method)
	assert.Equal(t, []any{false, ""}, last.params)

	assert.ErrorIs(t, c.SetControls(ctx, 0.5, 0, false), ErrNotConnected)
	assert.NoError(t, c.Close())
}

func TestDialAirSimWithoutAPIControl(t *testing.T) {
	fake := startFakeAirSim(t, true)

	_, err := DialAirSim(dialCtx(t), fake.addr, "", testLogger())
	assert.ErrorIs(t, err, ErrNoAPIControl)
}

func TestNewCarControls(t *testing.T) {
	fwd := NewCarControls(0.5, -0.25, false)
	assert.Equal(t, CarControls{Throttle: 0.5, Steering: -0.25, GearImmediate: true}, fwd)

	rev := NewCarControls(-0.3, 0, true)
	assert.True(t, rev.IsManualGear)
	assert.Equal(t, -1, rev.ManualGear)
}

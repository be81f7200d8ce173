package utils

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestMap(t *testing.T) *CANMap {
	t.Helper()
	m, err := LoadCANMap("../config/can/can_map.csv")
	require.NoError(t, err)
	return m
}

func TestLoadCANMapGroupsSignalsByFrame(t *testing.T) {
	m := loadTestMap(t)

	assert.Equal(t, []string{"CAR_CONTROLS", "SIM_API_CTRL", "SIM_STATUS"}, m.FrameNames())

	fd, err := m.FrameByName("CAR_CONTROLS")
	require.NoError(t, err)
	assert.Equal(t, uint32(0x101), fd.ID)
	assert.Equal(t, 5, fd.DLC)
	assert.Equal(t, DirectionTX, fd.Direction)
	require.Len(t, fd.Signals, 3)
	assert.Equal(t, "throttle", fd.Signals[0].Name)
	assert.Equal(t, "reverse_gear", fd.Signals[2].Name)

	status, err := m.FrameByID(0x300)
	require.NoError(t, err)
	assert.Equal(t, DirectionRX, status.Direction)

	_, err = m.FrameByName("NOPE")
	assert.Error(t, err)
}

func TestParseCANMapRejectsBadRows(t *testing.T) {
	header := strings.Join(requiredColumns, ",") + "\n"

	cases := map[string]string{
		"missing column": "direction,frame_id\nTX,0x1\n",
		"bad dlc":        header + "TX,0x1,F,10,9,s,0,8,little,false,1,0,0,1,0,,\n",
		"bad number":     header + "TX,0x1,F,10,1,s,zero,8,little,false,1,0,0,1,0,,\n",
		"overflow bits":  header + "TX,0x1,F,10,1,s,4,8,little,false,1,0,0,1,0,,\n",
		"big endian":     header + "TX,0x1,F,10,1,s,0,8,big,false,1,0,0,1,0,,\n",
		"zero factor":    header + "TX,0x1,F,10,1,s,0,8,little,false,0,0,0,1,0,,\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCANMap(strings.NewReader(src))
			assert.Error(t, err)
		})
	}
}

func TestEncodeDecodeSignedSignals(t *testing.T) {
	m := loadTestMap(t)

	frame, err := m.EncodeEinrideFrame("CAR_CONTROLS", map[string]float64{
		"throttle":     -0.3,
		"steering":     0.125,
		"reverse_gear": 1,
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(0x101), frame.ID)
	assert.Equal(t, uint8(5), frame.Length)

	values, err := m.DecodeEinrideFrame(frame)
	require.NoError(t, err)
	assert.InDelta(t, -0.3, values["throttle"], 1e-4)
	assert.InDelta(t, 0.125, values["steering"], 1e-4)
	assert.Equal(t, 1.0, values["reverse_gear"])
}

func TestEncodeSaturatesAndDefaults(t *testing.T) {
	m := loadTestMap(t)

	payload, id, err := m.EncodeFrame("CAR_CONTROLS", map[string]float64{"throttle": 9})
	require.NoError(t, err)

	values, err := m.DecodeFrame(id, payload)
	require.NoError(t, err)
	assert.InDelta(t, 3.2767, values["throttle"], 1e-4)
	assert.Equal(t, 0.0, values["steering"])
	assert.Equal(t, 0.0, values["reverse_gear"])
}

func TestEncodeRejectsUnknownSignal(t *testing.T) {
	m := loadTestMap(t)

	_, _, err := m.EncodeFrame("SIM_API_CTRL", map[string]float64{"api_enabled": 1})
	assert.Error(t, err)
}

func TestDecodeShortPayload(t *testing.T) {
	m := loadTestMap(t)

	_, err := m.DecodeFrame(0x101, []byte{0x01})
	assert.Error(t, err)
}

func TestSignExtend(t *testing.T) {
	assert.Equal(t, int64(-1), signExtend(0xFFFF, 16, true))
	assert.Equal(t, int64(0xFFFF), signExtend(0xFFFF, 16, false))
	assert.Equal(t, int64(-32768), signExtend(0x8000, 16, true))
	assert.Equal(t, int64(5), signExtend(5, 4, true))
}

func TestLoadCANMapMissingFile(t *testing.T) {
	_, err := LoadCANMap("does-not-exist.csv")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

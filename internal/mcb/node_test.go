package mcb

import (
	"errors"
	"testing"

	"github.com/KevinKickass/OpenDriveEmulator/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// memInterface is an in-memory physical interface.
type memInterface struct {
	in       [][]byte
	out      [][]byte
	readErr  error
	writeErr error
}

func (m *memInterface) RawRead() ([]byte, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	if len(m.in) == 0 {
		return nil, ErrEmpty
	}
	raw := m.in[0]
	m.in = m.in[1:]
	return raw, nil
}

func (m *memInterface) RawWrite(frame []byte) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.out = append(m.out, append([]byte(nil), frame...))
	return nil
}

func encode(t *testing.T, f *Frame) []byte {
	t.Helper()
	raw, err := f.Encode()
	require.NoError(t, err)
	return raw
}

func lastResponse(t *testing.T, m *memInterface) *Frame {
	t.Helper()
	require.NotEmpty(t, m.out)
	f, err := DecodeFrame(m.out[len(m.out)-1])
	require.NoError(t, err)
	return f
}

func TestNodeListenEmpty(t *testing.T) {
	node := NewNode(&memInterface{}, ModeExtended, zaptest.NewLogger(t))

	ready, err := node.Listen()
	require.NoError(t, err)
	assert.False(t, ready)

	_, err = node.Read()
	assert.ErrorIs(t, err, ErrInterface)
}

func TestNodeReadCommands(t *testing.T) {
	phy := &memInterface{in: [][]byte{
		encode(t, ReadRequest(1, 0x11)),
		encode(t, WriteRequest(0, 0x20, []byte{1})),
		encode(t, &Frame{Address: 0x30, Command: 7}),
		encode(t, &Frame{Address: 0x30, Command: CmdAck}),
	}}
	node := NewNode(phy, ModeExtended, zaptest.NewLogger(t))

	want := []types.Request{
		{Subnode: 1, Address: 0x11, Command: types.CommandRead},
		{Subnode: 0, Address: 0x20, Command: types.CommandWrite},
		{Subnode: 0, Address: 0x30, Command: types.CommandOther},
	}
	for _, w := range want {
		ready, err := node.Listen()
		require.NoError(t, err)
		require.True(t, ready)
		req, err := node.Read()
		require.NoError(t, err)
		assert.Equal(t, w, req)
	}

	ready, err := node.Listen()
	require.NoError(t, err)
	require.True(t, ready)
	_, err = node.Read()
	assert.ErrorIs(t, err, ErrWrongCommand)
}

func TestNodeReadBadCRC(t *testing.T) {
	raw := encode(t, ReadRequest(0, 0x6E1))
	raw[12] ^= 0x01
	node := NewNode(&memInterface{in: [][]byte{raw}}, ModeExtended, zaptest.NewLogger(t))

	_, err := node.Listen()
	require.NoError(t, err)
	_, err = node.Read()
	assert.ErrorIs(t, err, ErrCRC)
}

func TestNodeListenInterfaceFault(t *testing.T) {
	boom := errors.New("socket gone")
	node := NewNode(&memInterface{readErr: boom}, ModeExtended, zaptest.NewLogger(t))

	_, err := node.Listen()
	assert.ErrorIs(t, err, ErrInterface)
	assert.ErrorIs(t, err, boom)
}

func TestNodeWrites(t *testing.T) {
	phy := &memInterface{in: [][]byte{encode(t, ReadRequest(1, 0x5E))}}
	node := NewNode(phy, ModeExtended, zaptest.NewLogger(t))

	_, err := node.Listen()
	require.NoError(t, err)
	_, err = node.Read()
	require.NoError(t, err)

	require.NoError(t, node.WriteF32(94, 24.0))
	f := lastResponse(t, phy)
	assert.Equal(t, CmdAck, f.Command)
	assert.Equal(t, uint8(1), f.Subnode())
	assert.Equal(t, uint16(94), f.Address)
	assert.Equal(t, float32(24.0), f.F32())

	require.NoError(t, node.WriteI16(0x20, -3))
	assert.Equal(t, int16(-3), lastResponse(t, phy).I16())

	require.NoError(t, node.WriteI8(0x20, -4))
	assert.Equal(t, int8(-4), lastResponse(t, phy).I8())

	require.NoError(t, node.WriteI32(0x20, -70000))
	assert.Equal(t, int32(-70000), lastResponse(t, phy).I32())

	require.NoError(t, node.WriteStr(0x20, "short"))
	f = lastResponse(t, phy)
	assert.False(t, f.Extended)
	assert.Equal(t, "short", f.Str())

	require.NoError(t, node.WriteStr(0x6E4, "1.0.0.000"))
	f = lastResponse(t, phy)
	assert.True(t, f.Extended)
	assert.Equal(t, "1.0.0.000", f.Str())

	require.NoError(t, node.Error(0x20, 0x7B))
	f = lastResponse(t, phy)
	assert.Equal(t, CmdError, f.Command)
	assert.Equal(t, uint32(0x7B), f.ErrorCode())
}

func TestNodeStandardModeRejectsLongStrings(t *testing.T) {
	phy := &memInterface{}
	node := NewNode(phy, ModeStandard, zaptest.NewLogger(t))

	err := node.WriteStr(0x6E4, "1.0.0.000")
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.ErrorIs(t, err, types.ErrResponseRejected)
	assert.Empty(t, phy.out, "nothing reaches the wire")
}

func TestNodeWriteFailure(t *testing.T) {
	node := NewNode(&memInterface{writeErr: errors.New("unreachable")}, ModeExtended, zaptest.NewLogger(t))

	assert.ErrorIs(t, node.WriteU16(1, 2), ErrInterface)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("extended")
	require.NoError(t, err)
	assert.Equal(t, ModeExtended, m)

	m, err = ParseMode("STD")
	require.NoError(t, err)
	assert.Equal(t, ModeStandard, m)

	_, err = ParseMode("burst")
	assert.Error(t, err)
}

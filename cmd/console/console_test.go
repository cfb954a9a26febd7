package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/KevinKickass/OpenDriveEmulator/internal/dictionary"
	"github.com/KevinKickass/OpenDriveEmulator/internal/emulator"
	"github.com/KevinKickass/OpenDriveEmulator/internal/mcb"
	"github.com/KevinKickass/OpenDriveEmulator/internal/protolog"
	"github.com/KevinKickass/OpenDriveEmulator/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// startEmulator serves a small register set on loopback UDP.
func startEmulator(t *testing.T) string {
	t.Helper()
	identity := types.DeviceIdentity{ProductCode: 61939713, RevisionNumber: 196635}
	sub1 := dictionary.New(identity, []types.RegisterEntry{
		{Address: 0x640, UID: "CL_POS_FBK_VALUE", DataType: types.DataTypeS32, Subnode: 1},
	})
	defaults := dictionary.NewDefaultTable(identity, []types.DefaultEntry{
		{UID: "CL_POS_FBK_VALUE", DataType: types.DataTypeS32, StoredValue: "-5"},
	})
	engine := emulator.NewEngine(dictionary.New(identity, nil), sub1, defaults, zap.NewNop())

	phy, err := mcb.ListenUDP("127.0.0.1:0", 20*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	loop := emulator.NewLoop(mcb.NewNode(phy, mcb.ModeExtended, zap.NewNop()), engine, zap.NewNop())
	go func() {
		defer close(done)
		loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		phy.Close()
		<-done
	})
	return phy.LocalAddr().String()
}

func testConsole(t *testing.T, target string) (*Console, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	c := &Console{timeout: time.Second, interval: 5 * time.Millisecond, out: out, logger: zap.NewNop()}
	require.NoError(t, c.connect(target))
	t.Cleanup(func() { c.client.Close() })
	return c, out
}

func TestConsoleRead(t *testing.T) {
	c, out := testConsole(t, startEmulator(t))
	ctx := context.Background()

	assert.False(t, c.Execute(ctx, "read 1 0x640 s32"))
	assert.Equal(t, "1/0x640 = -5\n", out.String())

	out.Reset()
	c.Execute(ctx, "read 1 0x11 u16")
	assert.Equal(t, "1/0x11 = 592\n", out.String())

	out.Reset()
	c.Execute(ctx, "r 0 0x6E4 str")
	assert.Equal(t, "0/0x6E4 = \"1.0.0.000\"\n", out.String())

	out.Reset()
	c.Execute(ctx, "read 1 0x999")
	assert.Equal(t, "Error reply 0x7B\n", out.String())

	out.Reset()
	c.Execute(ctx, "write 1 0x640 10")
	assert.Equal(t, "Error reply 0x7B\n", out.String())
}

func TestConsoleUsageErrors(t *testing.T) {
	c, out := testConsole(t, "127.0.0.1:1")
	ctx := context.Background()

	for _, line := range []string{"read", "read x 0x11", "read 1 0xZZ", "read 1 0x11 bool", "write 1 0x11 abc", "bogus"} {
		out.Reset()
		assert.False(t, c.Execute(ctx, line))
		assert.NotEmpty(t, out.String(), line)
	}

	assert.True(t, c.Execute(ctx, "exit"))
	assert.False(t, c.Execute(ctx, "   "))
}

func TestConsoleWatch(t *testing.T) {
	c, out := testConsole(t, startEmulator(t))

	c.Execute(context.Background(), "watch 1 0x640 s32 3")
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		assert.True(t, strings.HasSuffix(line, " 1/0x640 = -5"), line)
	}

	out.Reset()
	c.Execute(context.Background(), "watch 1 0x999 2")
	lines = strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], " 1/0x999 error 0x7B"), lines[0])

	out.Reset()
	c.Execute(context.Background(), "watch 1 0x640 bool")
	assert.Equal(t, "Unknown type: bool\n", out.String())
}

func TestConsoleTarget(t *testing.T) {
	c, out := testConsole(t, "127.0.0.1:1061")

	c.Execute(context.Background(), "target")
	assert.Equal(t, "Target: 127.0.0.1:1061\n", out.String())

	out.Reset()
	c.Execute(context.Background(), "target 127.0.0.1:2000")
	assert.Equal(t, "Target: 127.0.0.1:2000\n", out.String())
}

func TestConsoleLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.cbor")
	logger, err := protolog.NewFileLogger(path)
	require.NoError(t, err)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	logger.Log(protolog.Event{Timestamp: ts, Sequence: 1, Kind: protolog.KindTransaction, Subnode: 1, Address: 0x11, Command: "read", Value: "u16(592)"})
	logger.Log(protolog.Event{Timestamp: ts, Sequence: 2, Kind: protolog.KindTransaction, Subnode: 0, Address: 0x6E1, Command: "read", Value: "u32(1)"})
	logger.Log(protolog.Event{Timestamp: ts, Kind: protolog.KindFault, Reason: "crc mismatch"})
	require.NoError(t, logger.Close())

	c, out := testConsole(t, "127.0.0.1:1")

	c.Execute(context.Background(), "log "+path)
	assert.Contains(t, out.String(), "#1 read 1/0x11 -> u16(592)")
	assert.Contains(t, out.String(), "FAULT crc mismatch")
	assert.Contains(t, out.String(), "3 events")

	out.Reset()
	c.Execute(context.Background(), "log "+path+" 0")
	assert.Contains(t, out.String(), "0/0x6E1")
	assert.NotContains(t, out.String(), "0x11")
	assert.Contains(t, out.String(), "1 events")
}

func TestEncodeValue(t *testing.T) {
	tests := []struct {
		text string
		want []byte
	}{
		{"10", []byte{10, 0, 0, 0}},
		{"0x1E", []byte{0x1E, 0, 0, 0}},
		{"-1", []byte{0xFF, 0xFF, 0xFF, 0xFF}},
		{"1.5", []byte{0x00, 0x00, 0xC0, 0x3F}},
	}
	for _, tt := range tests {
		got, err := EncodeValue(tt.text)
		require.NoError(t, err, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}

	_, err := EncodeValue("abc")
	assert.Error(t, err)
}

func TestFormatFrame(t *testing.T) {
	f := &mcb.Frame{Command: mcb.CmdAck, Data: [mcb.DataSize]byte{0x50, 0x02}}
	assert.Equal(t, "592", FormatFrame(f, types.DataTypeU16))
	assert.Equal(t, "50 02 00 00 00 00 00 00 (u32 592)", FormatFrame(f, types.DataTypeUnknown))
}

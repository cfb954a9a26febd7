package emulator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/KevinKickass/OpenDriveEmulator/internal/mcb"
	"github.com/KevinKickass/OpenDriveEmulator/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type nodeStep struct {
	ready     bool
	listenErr error
	req       types.Request
	readErr   error
}

// scriptedNode replays steps, then cancels the loop.
type scriptedNode struct {
	recordingWriter
	steps   []nodeStep
	next    int
	current nodeStep
	done    func()
}

func (n *scriptedNode) Listen() (bool, error) {
	if n.next >= len(n.steps) {
		n.done()
		return false, nil
	}
	n.current = n.steps[n.next]
	n.next++
	return n.current.ready, n.current.listenErr
}

func (n *scriptedNode) Read() (types.Request, error) {
	return n.current.req, n.current.readErr
}

type recordingObserver struct {
	transactions []Transaction
	faults       []Fault
}

func (o *recordingObserver) ObserveTransaction(tx Transaction) { o.transactions = append(o.transactions, tx) }
func (o *recordingObserver) ObserveFault(f Fault)              { o.faults = append(o.faults, f) }

func runScript(t *testing.T, steps []nodeStep) (*scriptedNode, *recordingObserver, *Loop) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	node := &scriptedNode{steps: steps, done: cancel}
	obs := &recordingObserver{}
	loop := NewLoop(node, newTestEngine(), zaptest.NewLogger(t), obs)

	require.NoError(t, loop.Run(ctx))
	return node, obs, loop
}

func TestLoopServesRequests(t *testing.T) {
	node, obs, loop := runScript(t, []nodeStep{
		{ready: false},
		{ready: true, req: read(0, 0x6E4)},
		{ready: false},
		{ready: true, req: read(1, 94)},
		{ready: true, req: types.Request{Subnode: 0, Address: 0x102, Command: types.CommandWrite}},
	})

	assert.Equal(t, []writeCall{
		{op: "str", address: 0x6E4, value: "1.0.0.000"},
		{op: "float", address: 94, value: float32(24.0)},
		{op: "error", address: 0x102, value: uint32(0x7B)},
	}, node.calls)

	require.Len(t, obs.transactions, 3)
	assert.Equal(t, uint64(1), obs.transactions[0].Sequence)
	assert.Equal(t, Str("1.0.0.000"), obs.transactions[0].Value)
	assert.Equal(t, uint64(3), obs.transactions[2].Sequence)

	stats := loop.Stats()
	assert.Equal(t, uint64(3), stats.Requests)
	assert.Equal(t, uint64(2), stats.Reads)
	assert.Equal(t, uint64(1), stats.ErrorReplies)
	assert.Zero(t, stats.Faults)
	assert.False(t, stats.LastRequest.IsZero())
	assert.Equal(t, StateIdle, loop.State())
}

func TestLoopSurvivesFaults(t *testing.T) {
	crc := errors.New("wrong crc")
	node, obs, loop := runScript(t, []nodeStep{
		{ready: true, readErr: crc},
		{listenErr: fmt.Errorf("recv: %w", errors.New("temporary"))},
		{ready: true, req: read(0, 0x102)},
	})

	assert.Equal(t, []writeCall{{op: "u16", address: 0x102, value: uint16(592)}}, node.calls)
	require.Len(t, obs.faults, 2)
	assert.ErrorIs(t, obs.faults[0].Err, crc)
	assert.Equal(t, uint64(2), loop.Stats().Faults)
}

func TestLoopCountsWriteFailures(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	node := &scriptedNode{
		recordingWriter: recordingWriter{err: errors.New("send failed")},
		steps:           []nodeStep{{ready: true, req: read(0, 0x6E6)}},
		done:            cancel,
	}
	obs := &recordingObserver{}
	loop := NewLoop(node, newTestEngine(), zaptest.NewLogger(t), obs)

	require.NoError(t, loop.Run(ctx))
	assert.Equal(t, uint64(1), loop.Stats().WriteFailures)
	require.Len(t, obs.transactions, 1)
	assert.Error(t, obs.transactions[0].WriteErr)
}

func TestLoopAnswersRejectedResponseWithError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	node := &scriptedNode{
		recordingWriter: recordingWriter{reject: "str"},
		steps:           []nodeStep{{ready: true, req: read(0, 0x6E4)}},
		done:            cancel,
	}
	obs := &recordingObserver{}
	loop := NewLoop(node, newTestEngine(), zaptest.NewLogger(t), obs)

	require.NoError(t, loop.Run(ctx))
	assert.Equal(t, []writeCall{{op: "error", address: 0x6E4, value: uint32(0x7B)}}, node.calls)

	require.Len(t, obs.transactions, 1)
	tx := obs.transactions[0]
	require.NoError(t, tx.WriteErr)
	require.IsType(t, Error{}, tx.Value)
	assert.ErrorIs(t, tx.Value.(Error).Reason, types.ErrResponseRejected)

	stats := loop.Stats()
	assert.Equal(t, uint64(1), stats.ErrorReplies)
	assert.Zero(t, stats.WriteFailures)
}

func TestLoopStandardModeStringOverUDP(t *testing.T) {
	phy, err := mcb.ListenUDP("127.0.0.1:0", 20*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	loop := NewLoop(mcb.NewNode(phy, mcb.ModeStandard, zap.NewNop()), newTestEngine(), zap.NewNop())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	defer func() {
		cancel()
		phy.Close()
		<-done
	}()

	client := mcb.NewClient(phy.LocalAddr().String(), time.Second)
	require.NoError(t, client.Connect())
	defer client.Close()

	_, err = client.Read(context.Background(), 0, 0x6E4)
	var reply *mcb.ErrorReply
	require.ErrorAs(t, err, &reply)
	assert.Equal(t, uint32(0x7B), reply.Code)

	f, err := client.Read(context.Background(), 0, 0x6E6)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x12345678), f.U32())

	stats := loop.Stats()
	assert.Equal(t, uint64(1), stats.ErrorReplies)
	assert.Zero(t, stats.WriteFailures)
}

func TestLoopStopsWhenTransportClosed(t *testing.T) {
	node := &scriptedNode{
		steps: []nodeStep{{listenErr: fmt.Errorf("recv: %w", net.ErrClosed)}, {ready: true, req: read(0, 0x6E4)}},
		done:  func() {},
	}
	loop := NewLoop(node, newTestEngine(), zaptest.NewLogger(t))

	require.NoError(t, loop.Run(context.Background()))
	assert.Empty(t, node.calls)
}

func TestLoopStateString(t *testing.T) {
	assert.Equal(t, "IDLE", StateIdle.String())
	assert.Equal(t, "REQUEST_PENDING", StateRequestPending.String())
	assert.Equal(t, "RESOLVED", StateResolved.String())
	assert.Equal(t, "RESPONDED", StateResponded.String())
}

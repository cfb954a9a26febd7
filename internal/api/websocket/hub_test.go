package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KevinKickass/OpenDriveEmulator/internal/emulator"
	"github.com/KevinKickass/OpenDriveEmulator/internal/types"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type staticStatus struct{}

func (staticStatus) GetStatus() any { return map[string]string{"state": "RUNNING"} }

type received struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	// Client pumps outlive the test; a test-bound logger would panic.
	hub := NewHub(zap.NewNop())
	hub.SetStatusProvider(staticStatus{})

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *gorilla.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func next(t *testing.T, conn *gorilla.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg received
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func transaction(subnode uint8, value emulator.ResolvedValue) emulator.Transaction {
	return emulator.Transaction{
		Sequence: 1,
		Request:  types.Request{Subnode: subnode, Address: 0x11, Command: types.CommandRead},
		Value:    value,
		Received: time.Now(),
		Elapsed:  250 * time.Microsecond,
	}
}

func TestHubSendsStatusOnConnect(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv)

	msg := next(t, conn)
	assert.Equal(t, MessageTypeSystemStatus, msg.Type)
	assert.JSONEq(t, `{"state":"RUNNING"}`, string(msg.Data))
	assert.Equal(t, 1, hub.GetClientCount())
}

func TestHubBroadcastsTransactions(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv)
	next(t, conn)

	hub.ObserveTransaction(transaction(1, emulator.U16(0x250)))

	msg := next(t, conn)
	require.Equal(t, MessageTypeTransaction, msg.Type)

	var data TransactionData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, uint8(1), data.Subnode)
	assert.Equal(t, "0x11", data.Address)
	assert.Equal(t, "read", data.Command)
	assert.Equal(t, "u16", data.Type)
	assert.Equal(t, float64(592), data.Value)
	assert.Nil(t, data.ErrorCode)
	assert.Equal(t, int64(250), data.ElapsedUs)

	hub.ObserveTransaction(transaction(1, emulator.Error{Code: emulator.ErrorCodeUnsupported, Reason: emulator.ErrUnknownSubnode}))
	msg = next(t, conn)
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	require.NotNil(t, data.ErrorCode)
	assert.Equal(t, uint32(0x7B), *data.ErrorCode)
	assert.Equal(t, "unknown subnode", data.Reason)
}

func TestHubBroadcastsNonFiniteFloats(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv)
	next(t, conn)

	hub.ObserveTransaction(transaction(0, emulator.F32(math.Inf(-1))))

	msg := next(t, conn)
	require.Equal(t, MessageTypeTransaction, msg.Type)

	var data TransactionData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "float", data.Type)
	assert.Equal(t, "-Inf", data.Value)
}

func TestHubSubscriptionFiltersTransactions(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv)
	next(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "subscribe", "subnodes": []int{0}}))
	msg := next(t, conn)
	require.Equal(t, MessageTypeSubscribed, msg.Type)
	assert.JSONEq(t, `{"subnodes":[0]}`, string(msg.Data))

	hub.ObserveTransaction(transaction(1, emulator.U16(1)))
	hub.ObserveFault(emulator.Fault{Time: time.Now(), Err: errors.New("crc mismatch")})
	hub.ObserveTransaction(transaction(0, emulator.U32(7)))

	msg = next(t, conn)
	assert.Equal(t, MessageTypeFault, msg.Type)
	assert.JSONEq(t, `{"error":"crc mismatch"}`, string(msg.Data))

	msg = next(t, conn)
	require.Equal(t, MessageTypeTransaction, msg.Type)
	var data TransactionData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, uint8(0), data.Subnode)
}

func TestHubRejectsUnknownCommand(t *testing.T) {
	_, srv := startHub(t)
	conn := dial(t, srv)
	next(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "auth"}))
	msg := next(t, conn)
	assert.Equal(t, MessageTypeError, msg.Type)
}

func TestHubUnregistersOnClose(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv)
	next(t, conn)
	require.Equal(t, 1, hub.GetClientCount())

	conn.Close()
	assert.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubRunStopsOnCancel(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
}

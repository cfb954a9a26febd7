package emulator

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/KevinKickass/OpenDriveEmulator/internal/dictionary"
	"github.com/KevinKickass/OpenDriveEmulator/internal/types"
	"go.uber.org/zap"
)

// Node is the protocol engine the loop drives. Listen reports whether a
// request is ready to be read; Read decodes it.
type Node interface {
	ResponseWriter
	Listen() (bool, error)
	Read() (types.Request, error)
}

// Transaction describes one served request.
type Transaction struct {
	Sequence uint64
	Request  types.Request
	Value    ResolvedValue
	Received time.Time
	Elapsed  time.Duration
	WriteErr error
}

// Fault describes a frame that was dropped before it could be resolved.
type Fault struct {
	Time time.Time
	Err  error
}

// Observer receives loop events. Calls are made from the loop goroutine and
// must not block.
type Observer interface {
	ObserveTransaction(tx Transaction)
	ObserveFault(fault Fault)
}

type Stats struct {
	Requests      uint64    `json:"requests"`
	Reads         uint64    `json:"reads"`
	ErrorReplies  uint64    `json:"error_replies"`
	Faults        uint64    `json:"faults"`
	WriteFailures uint64    `json:"write_failures"`
	LastRequest   time.Time `json:"last_request,omitempty"`
}

// Loop serves one request at a time, end to end.
type Loop struct {
	node      Node
	engine    *Engine
	logger    *zap.Logger
	observers []Observer

	state         atomic.Int32
	sequence      atomic.Uint64
	reads         atomic.Uint64
	errorReplies  atomic.Uint64
	faults        atomic.Uint64
	writeFailures atomic.Uint64
	lastRequest   atomic.Int64
}

func NewLoop(node Node, engine *Engine, logger *zap.Logger, observers ...Observer) *Loop {
	return &Loop{
		node:      node,
		engine:    engine,
		logger:    logger,
		observers: observers,
	}
}

// Run serves requests until ctx is cancelled or the node's transport is
// closed. Malformed frames and write failures are logged and skipped.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("Request loop started")
	defer l.logger.Info("Request loop stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		l.setState(StateIdle)
		ready, err := l.node.Listen()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.fault("Listen failed", err)
			continue
		}
		if !ready {
			continue
		}

		l.serve()
	}
}

func (l *Loop) serve() {
	l.setState(StateRequestPending)

	req, err := l.node.Read()
	if err != nil {
		l.fault("Dropped malformed request", err)
		return
	}

	received := time.Now()
	l.lastRequest.Store(received.UnixNano())
	tx := Transaction{
		Sequence: l.sequence.Add(1),
		Request:  req,
		Received: received,
	}

	if ce := l.logger.Check(zap.DebugLevel, "Request received"); ce != nil {
		ce.Write(l.requestFields(req)...)
	}

	tx.Value = l.engine.Resolve(req)
	l.setState(StateResolved)

	if req.Command == types.CommandRead {
		l.reads.Add(1)
	}
	tx.WriteErr = tx.Value.WriteTo(l.node, req.Address)
	if errors.Is(tx.WriteErr, types.ErrResponseRejected) {
		l.logger.Warn("Response rejected by node, answering with error",
			zap.Uint8("subnode", req.Subnode),
			zap.String("address", dictionary.FormatAddress(req.Address)),
			zap.Stringer("value", tx.Value),
			zap.Error(tx.WriteErr))
		tx.Value = errorValue(tx.WriteErr)
		tx.WriteErr = tx.Value.WriteTo(l.node, req.Address)
	}
	if _, isErr := tx.Value.(Error); isErr {
		l.errorReplies.Add(1)
	}
	tx.Elapsed = time.Since(received)
	l.setState(StateResponded)

	if tx.WriteErr != nil {
		l.writeFailures.Add(1)
		l.logger.Error("Failed to write response",
			zap.Uint8("subnode", req.Subnode),
			zap.String("address", dictionary.FormatAddress(req.Address)),
			zap.Stringer("value", tx.Value),
			zap.Error(tx.WriteErr))
	} else {
		l.logger.Debug("Response sent",
			zap.Uint64("seq", tx.Sequence),
			zap.Stringer("value", tx.Value),
			zap.Duration("elapsed", tx.Elapsed))
	}

	for _, o := range l.observers {
		o.ObserveTransaction(tx)
	}
}

func (l *Loop) requestFields(req types.Request) []zap.Field {
	fields := []zap.Field{
		zap.Uint8("subnode", req.Subnode),
		zap.String("address", dictionary.FormatAddress(req.Address)),
		zap.Stringer("command", req.Command),
	}
	for i := 0; i < Subnodes; i++ {
		dict := l.engine.Dictionary(uint8(i))
		if dict == nil {
			continue
		}
		if uid, err := dict.LookupUID(req.Address); err == nil {
			fields = append(fields, zap.String(subnodeUIDKey[i], uid))
		}
	}
	return fields
}

var subnodeUIDKey = [Subnodes]string{"uid_subnode0", "uid_subnode1"}

func (l *Loop) fault(msg string, err error) {
	l.faults.Add(1)
	l.logger.Warn(msg, zap.Error(err))

	f := Fault{Time: time.Now(), Err: err}
	for _, o := range l.observers {
		o.ObserveFault(f)
	}
}

func (l *Loop) setState(s LoopState) {
	l.state.Store(int32(s))
}

func (l *Loop) State() LoopState {
	return LoopState(l.state.Load())
}

func (l *Loop) Stats() Stats {
	s := Stats{
		Requests:      l.sequence.Load(),
		Reads:         l.reads.Load(),
		ErrorReplies:  l.errorReplies.Load(),
		Faults:        l.faults.Load(),
		WriteFailures: l.writeFailures.Load(),
	}
	if ns := l.lastRequest.Load(); ns != 0 {
		s.LastRequest = time.Unix(0, ns)
	}
	return s
}

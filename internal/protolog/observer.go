package protolog

import (
	"github.com/KevinKickass/OpenDriveEmulator/internal/emulator"
)

// Recorder turns loop events into captured events for one session.
type Recorder struct {
	logger    Logger
	sessionID string
}

func NewRecorder(logger Logger, sessionID string) *Recorder {
	if logger == nil {
		logger = NoopLogger{}
	}
	return &Recorder{logger: logger, sessionID: sessionID}
}

func (r *Recorder) ObserveTransaction(tx emulator.Transaction) {
	event := Event{
		Timestamp: tx.Received,
		SessionID: r.sessionID,
		Sequence:  tx.Sequence,
		Kind:      KindTransaction,
		Subnode:   tx.Request.Subnode,
		Address:   tx.Request.Address,
		Command:   tx.Request.Command.String(),
		Elapsed:   tx.Elapsed,
	}
	if tx.Value != nil {
		event.DataType = tx.Value.DataType().String()
		event.Value = tx.Value.String()

		if reply, ok := tx.Value.(emulator.Error); ok {
			event.ErrorCode = reply.Code
			if reply.Reason != nil {
				event.Reason = reply.Reason.Error()
			}
		}
	}
	if tx.WriteErr != nil {
		event.Reason = joinReason(event.Reason, tx.WriteErr)
	}

	r.logger.Log(event)
}

func (r *Recorder) ObserveFault(fault emulator.Fault) {
	event := Event{
		Timestamp: fault.Time,
		SessionID: r.sessionID,
		Kind:      KindFault,
	}
	if fault.Err != nil {
		event.Reason = fault.Err.Error()
	}
	r.logger.Log(event)
}

func joinReason(reason string, err error) string {
	if reason == "" {
		return "write: " + err.Error()
	}
	return reason + "; write: " + err.Error()
}

var _ emulator.Observer = (*Recorder)(nil)

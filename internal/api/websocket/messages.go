package websocket

import (
	"time"

	"github.com/KevinKickass/OpenDriveEmulator/internal/dictionary"
	"github.com/KevinKickass/OpenDriveEmulator/internal/emulator"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Emulator loop messages
	MessageTypeTransaction MessageType = "transaction"
	MessageTypeFault       MessageType = "fault"

	// System messages
	MessageTypeSystemState  MessageType = "system_state"
	MessageTypeSystemStatus MessageType = "system_status"

	// Replies to client commands
	MessageTypeSubscribed MessageType = "subscribed"
	MessageTypeError      MessageType = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`

	// subnode is set on transaction messages for subscription filtering.
	subnode *uint8
}

// TransactionData describes one served request.
type TransactionData struct {
	Sequence  uint64  `json:"sequence"`
	Subnode   uint8   `json:"subnode"`
	Address   string  `json:"address"`
	Command   string  `json:"command"`
	Type      string  `json:"type"`
	Value     any     `json:"value,omitempty"`
	ErrorCode *uint32 `json:"error_code,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	ElapsedUs int64   `json:"elapsed_us"`
}

type FaultData struct {
	Error string `json:"error"`
}

// SystemStateData represents a lifecycle state change
type SystemStateData struct {
	State    string `json:"state"`
	Previous string `json:"previous_state"`
}

type ErrorData struct {
	Error string `json:"error"`
}

// SubscriptionData echoes the active filter of a client.
type SubscriptionData struct {
	Subnodes []int `json:"subnodes"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewTransactionMessage(tx emulator.Transaction) Message {
	data := TransactionData{
		Sequence:  tx.Sequence,
		Subnode:   tx.Request.Subnode,
		Address:   dictionary.FormatAddress(tx.Request.Address),
		Command:   tx.Request.Command.String(),
		ElapsedUs: tx.Elapsed.Microseconds(),
	}
	if tx.Value != nil {
		data.Type = tx.Value.DataType().String()
		data.Value = emulator.DisplayValue(tx.Value)
		if reply, ok := tx.Value.(emulator.Error); ok {
			code := reply.Code
			data.ErrorCode = &code
			if reply.Reason != nil {
				data.Reason = reply.Reason.Error()
			}
		}
	}

	msg := NewMessage(MessageTypeTransaction, data)
	msg.Timestamp = tx.Received
	subnode := tx.Request.Subnode
	msg.subnode = &subnode
	return msg
}

func NewFaultMessage(fault emulator.Fault) Message {
	var data FaultData
	if fault.Err != nil {
		data.Error = fault.Err.Error()
	}
	msg := NewMessage(MessageTypeFault, data)
	msg.Timestamp = fault.Time
	return msg
}

func NewSystemStateMessage(newState, previousState string) Message {
	return NewMessage(MessageTypeSystemState, SystemStateData{
		State:    newState,
		Previous: previousState,
	})
}

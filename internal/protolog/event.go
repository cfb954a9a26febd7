// Package protolog captures served MCB transactions to a CBOR file so
// sessions can be replayed and inspected offline.
package protolog

import (
	"time"
)

// Kind classifies an event.
type Kind uint8

const (
	KindTransaction Kind = 0
	KindFault       Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindTransaction:
		return "TRANSACTION"
	case KindFault:
		return "FAULT"
	default:
		return "UNKNOWN"
	}
}

// Event is one captured loop event. CBOR encoding uses integer keys.
type Event struct {
	Timestamp time.Time `cbor:"1,keyasint"`
	SessionID string    `cbor:"2,keyasint"`
	Sequence  uint64    `cbor:"3,keyasint"`
	Kind      Kind      `cbor:"4,keyasint"`

	Subnode  uint8  `cbor:"5,keyasint,omitempty"`
	Address  uint16 `cbor:"6,keyasint,omitempty"`
	Command  string `cbor:"7,keyasint,omitempty"`
	DataType string `cbor:"8,keyasint,omitempty"`

	// Value is the rendered response, e.g. "u16(592)".
	Value string `cbor:"9,keyasint,omitempty"`

	// ErrorCode is set when the response was an error reply.
	ErrorCode uint32 `cbor:"10,keyasint,omitempty"`
	Reason    string `cbor:"11,keyasint,omitempty"`

	Elapsed time.Duration `cbor:"12,keyasint,omitempty"`
}

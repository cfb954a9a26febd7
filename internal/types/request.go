package types

import "errors"

// ErrResponseRejected marks a response the node refused to encode. Nothing
// was sent for it.
var ErrResponseRejected = errors.New("response rejected")

// Command is the kind of register access carried by a request.
type Command uint8

const (
	CommandRead Command = iota
	CommandWrite
	CommandOther
)

func (c Command) String() string {
	switch c {
	case CommandRead:
		return "read"
	case CommandWrite:
		return "write"
	default:
		return "other"
	}
}

// Request is a decoded register-access request addressed to a sub-node.
type Request struct {
	Subnode uint8   `json:"subnode"`
	Address uint16  `json:"address"`
	Command Command `json:"command"`
}

func (c Command) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

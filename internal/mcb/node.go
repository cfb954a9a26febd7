// Package mcb implements the drive side and the master side of the Motion
// Control Bus framing used by the emulator, over a pluggable physical
// interface.
package mcb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/KevinKickass/OpenDriveEmulator/internal/types"
	"go.uber.org/zap"
)

type Mode int

const (
	ModeStandard Mode = iota
	ModeExtended
)

func (m Mode) String() string {
	if m == ModeExtended {
		return "extended"
	}
	return "standard"
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "extended", "ext", "":
		return ModeExtended, nil
	case "standard", "std":
		return ModeStandard, nil
	default:
		return ModeStandard, fmt.Errorf("unknown MCB mode: %q", s)
	}
}

// PhysicalInterface moves raw frames. RawRead returns ErrEmpty when no
// frame arrived in time.
type PhysicalInterface interface {
	RawWrite(frame []byte) error
	RawRead() ([]byte, error)
}

// Node is the drive side of the bus: it listens for master requests and
// answers them, one at a time.
type Node struct {
	phy     PhysicalInterface
	mode    Mode
	logger  *zap.Logger
	pending []byte
	header  uint16
}

func NewNode(phy PhysicalInterface, mode Mode, logger *zap.Logger) *Node {
	return &Node{
		phy:    phy,
		mode:   mode,
		logger: logger,
	}
}

func (n *Node) Mode() Mode {
	return n.mode
}

// Listen waits for the next frame. It returns false while nothing arrives.
func (n *Node) Listen() (bool, error) {
	raw, err := n.phy.RawRead()
	if errors.Is(err, ErrEmpty) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInterface, err)
	}

	n.pending = raw
	if ce := n.logger.Check(zap.DebugLevel, "Frame received"); ce != nil {
		ce.Write(zap.Int("size", len(raw)))
	}
	return true, nil
}

// Read decodes the frame captured by the last successful Listen.
func (n *Node) Read() (types.Request, error) {
	raw := n.pending
	n.pending = nil
	if raw == nil {
		return types.Request{}, fmt.Errorf("%w: read without pending frame", ErrInterface)
	}

	f, err := DecodeFrame(raw)
	if err != nil {
		return types.Request{}, err
	}

	var cmd types.Command
	switch f.Command {
	case CmdRead:
		cmd = types.CommandRead
	case CmdWrite:
		cmd = types.CommandWrite
	case CmdAck, CmdError:
		return types.Request{}, fmt.Errorf("%w: %d", ErrWrongCommand, f.Command)
	default:
		cmd = types.CommandOther
	}

	n.header = f.Header
	return types.Request{
		Subnode: f.Subnode(),
		Address: f.Address,
		Command: cmd,
	}, nil
}

func (n *Node) WriteU8(address uint16, value uint8) error {
	var data [DataSize]byte
	data[0] = value
	return n.ack(address, data)
}

func (n *Node) WriteI8(address uint16, value int8) error {
	return n.WriteU8(address, uint8(value))
}

func (n *Node) WriteU16(address uint16, value uint16) error {
	var data [DataSize]byte
	binary.LittleEndian.PutUint16(data[0:2], value)
	return n.ack(address, data)
}

func (n *Node) WriteI16(address uint16, value int16) error {
	return n.WriteU16(address, uint16(value))
}

func (n *Node) WriteU32(address uint16, value uint32) error {
	var data [DataSize]byte
	binary.LittleEndian.PutUint32(data[0:4], value)
	return n.ack(address, data)
}

func (n *Node) WriteI32(address uint16, value int32) error {
	return n.WriteU32(address, uint32(value))
}

func (n *Node) WriteF32(address uint16, value float32) error {
	return n.WriteU32(address, math.Float32bits(value))
}

// WriteStr answers with a string; strings longer than the data field need
// extended mode.
func (n *Node) WriteStr(address uint16, value string) error {
	if len(value) <= DataSize {
		var data [DataSize]byte
		copy(data[:], value)
		return n.ack(address, data)
	}

	if n.mode != ModeExtended {
		return fmt.Errorf("%w: %w: %d byte string in standard mode",
			types.ErrResponseRejected, ErrPayloadTooLarge, len(value))
	}

	return n.respond(&Frame{
		Address:  address,
		Command:  CmdAck,
		Extended: true,
		Payload:  []byte(value),
	})
}

// Error answers the pending request with an error code.
func (n *Node) Error(address uint16, code uint32) error {
	f := &Frame{Address: address, Command: CmdError}
	binary.LittleEndian.PutUint32(f.Data[0:4], code)
	return n.respond(f)
}

func (n *Node) ack(address uint16, data [DataSize]byte) error {
	return n.respond(&Frame{Address: address, Command: CmdAck, Data: data})
}

func (n *Node) respond(f *Frame) error {
	f.Header = n.header

	raw, err := f.Encode()
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	if err := n.phy.RawWrite(raw); err != nil {
		return fmt.Errorf("%w: %w", ErrInterface, err)
	}
	return nil
}

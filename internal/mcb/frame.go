package mcb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Static frame: header(2) + config(2) + data(8) + CRC(2). In extended mode
// the payload follows the CRC and its length sits in the first two data bytes.
const (
	StaticFrameSize = 14
	DataSize        = 8
	MaxPayloadSize  = 512
	MaxFrameSize    = StaticFrameSize + MaxPayloadSize
	MaxAddress      = 0x0FFF
)

// Command codes carried in bits 3..1 of the config word.
const (
	CmdRead  uint8 = 1
	CmdWrite uint8 = 2
	CmdAck   uint8 = 3
	CmdError uint8 = 5
)

var (
	ErrEmpty           = errors.New("no frame pending")
	ErrInterface       = errors.New("interface fault")
	ErrWrongCommand    = errors.New("unexpected command")
	ErrCRC             = errors.New("wrong CRC")
	ErrFrameTooShort   = errors.New("frame too short")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrAddressRange    = errors.New("address out of range")
)

type Frame struct {
	Header   uint16 // bits 15..4 node, bits 3..0 sub-node
	Address  uint16 // 12 bits
	Command  uint8  // 3 bits
	Extended bool
	Data     [DataSize]byte
	Payload  []byte // extended payload, nil otherwise
}

func (f *Frame) Subnode() uint8 {
	return uint8(f.Header & 0x0F)
}

func (f *Frame) SetSubnode(subnode uint8) {
	f.Header = f.Header&0xFFF0 | uint16(subnode&0x0F)
}

// Encode serialises the frame, computing the CRC and, for extended frames,
// the payload length field.
func (f *Frame) Encode() ([]byte, error) {
	if f.Address > MaxAddress {
		return nil, fmt.Errorf("%w: 0x%X", ErrAddressRange, f.Address)
	}
	if len(f.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(f.Payload))
	}

	size := StaticFrameSize
	if f.Extended {
		size += len(f.Payload)
		binary.LittleEndian.PutUint16(f.Data[0:2], uint16(len(f.Payload)))
	}
	frame := make([]byte, size)

	config := f.Address<<4 | uint16(f.Command&0x07)<<1
	if f.Extended {
		config |= 1
	}

	binary.LittleEndian.PutUint16(frame[0:2], f.Header)
	binary.LittleEndian.PutUint16(frame[2:4], config)
	copy(frame[4:12], f.Data[:])
	binary.LittleEndian.PutUint16(frame[12:14], CRC16(frame[:12]))

	if f.Extended {
		copy(frame[StaticFrameSize:], f.Payload)
	}

	return frame, nil
}

// DecodeFrame parses a received frame and validates its CRC.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < StaticFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(data))
	}

	if got, want := binary.LittleEndian.Uint16(data[12:14]), CRC16(data[:12]); got != want {
		return nil, fmt.Errorf("%w: got 0x%04X, want 0x%04X", ErrCRC, got, want)
	}

	config := binary.LittleEndian.Uint16(data[2:4])
	f := &Frame{
		Header:   binary.LittleEndian.Uint16(data[0:2]),
		Address:  config >> 4,
		Command:  uint8(config>>1) & 0x07,
		Extended: config&1 == 1,
	}
	copy(f.Data[:], data[4:12])

	if f.Extended {
		n := int(binary.LittleEndian.Uint16(f.Data[0:2]))
		if n > MaxPayloadSize {
			return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, n)
		}
		if len(data) < StaticFrameSize+n {
			return nil, fmt.Errorf("%w: extended payload of %d bytes, have %d",
				ErrFrameTooShort, n, len(data)-StaticFrameSize)
		}
		f.Payload = make([]byte, n)
		copy(f.Payload, data[StaticFrameSize:StaticFrameSize+n])
	}

	return f, nil
}

// ReadRequest builds a master read request.
func ReadRequest(subnode uint8, address uint16) *Frame {
	f := &Frame{Address: address, Command: CmdRead}
	f.SetSubnode(subnode)
	return f
}

// WriteRequest builds a master write request carrying up to 8 data bytes.
func WriteRequest(subnode uint8, address uint16, data []byte) *Frame {
	f := &Frame{Address: address, Command: CmdWrite}
	f.SetSubnode(subnode)
	copy(f.Data[:], data)
	return f
}

// Value accessors for acknowledge frames.

func (f *Frame) U8() uint8   { return f.Data[0] }
func (f *Frame) I8() int8    { return int8(f.Data[0]) }
func (f *Frame) U16() uint16 { return binary.LittleEndian.Uint16(f.Data[0:2]) }
func (f *Frame) I16() int16  { return int16(f.U16()) }
func (f *Frame) U32() uint32 { return binary.LittleEndian.Uint32(f.Data[0:4]) }
func (f *Frame) I32() int32  { return int32(f.U32()) }

func (f *Frame) F32() float32 {
	return math.Float32frombits(f.U32())
}

// Str returns the string carried by the frame, trimmed at the first NUL.
func (f *Frame) Str() string {
	raw := f.Data[:]
	if f.Extended {
		raw = f.Payload
	}
	for i, b := range raw {
		if b == 0 {
			return string(raw[:i])
		}
	}
	return string(raw)
}

// ErrorCode returns the code of an error frame.
func (f *Frame) ErrorCode() uint32 {
	return f.U32()
}

package emulator

import (
	"fmt"
	"math"
	"strconv"

	"github.com/KevinKickass/OpenDriveEmulator/internal/types"
)

// ErrorCodeUnsupported is the single error code answered for every request
// the emulator cannot serve.
const ErrorCodeUnsupported uint32 = 0x7B

// ResponseWriter is the typed-write surface of the protocol node. Each
// method answers the pending request at address.
type ResponseWriter interface {
	WriteU8(address uint16, value uint8) error
	WriteI8(address uint16, value int8) error
	WriteU16(address uint16, value uint16) error
	WriteI16(address uint16, value int16) error
	WriteU32(address uint16, value uint32) error
	WriteI32(address uint16, value int32) error
	WriteF32(address uint16, value float32) error
	WriteStr(address uint16, value string) error
	Error(address uint16, code uint32) error
}

// ResolvedValue is the outcome of resolving one request: one of U8, I8,
// U16, I16, U32, I32, F32, Str or Error.
type ResolvedValue interface {
	// DataType is DataTypeUnknown for Error.
	DataType() types.DataType
	// Value is the Go value carried, or nil for Error.
	Value() any
	WriteTo(w ResponseWriter, address uint16) error
	fmt.Stringer
	resolved()
}

type (
	U8  uint8
	I8  int8
	U16 uint16
	I16 int16
	U32 uint32
	I32 int32
	F32 float32
	Str string
)

// Error is answered with Code on the wire. Reason never leaves the process.
type Error struct {
	Code   uint32
	Reason error
}

func errorValue(reason error) Error {
	return Error{Code: ErrorCodeUnsupported, Reason: reason}
}

func (U8) DataType() types.DataType    { return types.DataTypeU8 }
func (I8) DataType() types.DataType    { return types.DataTypeS8 }
func (U16) DataType() types.DataType   { return types.DataTypeU16 }
func (I16) DataType() types.DataType   { return types.DataTypeS16 }
func (U32) DataType() types.DataType   { return types.DataTypeU32 }
func (I32) DataType() types.DataType   { return types.DataTypeS32 }
func (F32) DataType() types.DataType   { return types.DataTypeFloat }
func (Str) DataType() types.DataType   { return types.DataTypeStr }
func (Error) DataType() types.DataType { return types.DataTypeUnknown }

func (v U8) Value() any  { return uint8(v) }
func (v I8) Value() any  { return int8(v) }
func (v U16) Value() any { return uint16(v) }
func (v I16) Value() any { return int16(v) }
func (v U32) Value() any { return uint32(v) }
func (v I32) Value() any { return int32(v) }
func (v F32) Value() any { return float32(v) }
func (v Str) Value() any { return string(v) }
func (Error) Value() any { return nil }

func (v U8) WriteTo(w ResponseWriter, address uint16) error  { return w.WriteU8(address, uint8(v)) }
func (v I8) WriteTo(w ResponseWriter, address uint16) error  { return w.WriteI8(address, int8(v)) }
func (v U16) WriteTo(w ResponseWriter, address uint16) error { return w.WriteU16(address, uint16(v)) }
func (v I16) WriteTo(w ResponseWriter, address uint16) error { return w.WriteI16(address, int16(v)) }
func (v U32) WriteTo(w ResponseWriter, address uint16) error { return w.WriteU32(address, uint32(v)) }
func (v I32) WriteTo(w ResponseWriter, address uint16) error { return w.WriteI32(address, int32(v)) }
func (v F32) WriteTo(w ResponseWriter, address uint16) error { return w.WriteF32(address, float32(v)) }
func (v Str) WriteTo(w ResponseWriter, address uint16) error { return w.WriteStr(address, string(v)) }
func (v Error) WriteTo(w ResponseWriter, address uint16) error {
	return w.Error(address, v.Code)
}

func (v U8) String() string  { return fmt.Sprintf("u8(%d)", uint8(v)) }
func (v I8) String() string  { return fmt.Sprintf("s8(%d)", int8(v)) }
func (v U16) String() string { return fmt.Sprintf("u16(%d)", uint16(v)) }
func (v I16) String() string { return fmt.Sprintf("s16(%d)", int16(v)) }
func (v U32) String() string { return fmt.Sprintf("u32(%d)", uint32(v)) }
func (v I32) String() string { return fmt.Sprintf("s32(%d)", int32(v)) }
func (v F32) String() string { return fmt.Sprintf("float(%g)", float32(v)) }
func (v Str) String() string { return fmt.Sprintf("str(%q)", string(v)) }
func (v Error) String() string {
	if v.Reason != nil {
		return fmt.Sprintf("error(0x%X: %v)", v.Code, v.Reason)
	}
	return fmt.Sprintf("error(0x%X)", v.Code)
}

func (U8) resolved()    {}
func (I8) resolved()    {}
func (U16) resolved()   {}
func (I16) resolved()   {}
func (U32) resolved()   {}
func (I32) resolved()   {}
func (F32) resolved()   {}
func (Str) resolved()   {}
func (Error) resolved() {}

// DisplayValue is Value for JSON views. NaN and infinite floats have no JSON
// encoding and are rendered as "NaN", "+Inf" or "-Inf".
func DisplayValue(v ResolvedValue) any {
	if f, ok := v.(F32); ok {
		x := float64(f)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return strconv.FormatFloat(x, 'g', -1, 32)
		}
	}
	return v.Value()
}

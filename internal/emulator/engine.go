// Package emulator resolves register requests into typed responses and runs
// the request/response loop against a protocol node.
package emulator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/KevinKickass/OpenDriveEmulator/internal/dictionary"
	"github.com/KevinKickass/OpenDriveEmulator/internal/types"
	"go.uber.org/zap"
)

// Reasons attached to Error values.
var (
	ErrUnsupportedCommand = errors.New("unsupported command")
	ErrUnknownSubnode     = errors.New("unknown subnode")
	ErrNoDefault          = errors.New("no default value")
	ErrUnknownType        = errors.New("unknown data type")
	ErrMalformedDefault   = errors.New("malformed default value")
)

// Subnodes is the number of sub-nodes the emulated drive exposes.
const Subnodes = 2

// Engine resolves requests against read-only dictionaries. It keeps no
// per-request state; Resolve is safe for concurrent use.
type Engine struct {
	dictionaries [Subnodes]*dictionary.Dictionary
	fixed        [Subnodes]map[uint16]ResolvedValue
	defaults     *dictionary.DefaultTable
	logger       *zap.Logger
}

func NewEngine(sub0, sub1 *dictionary.Dictionary, defaults *dictionary.DefaultTable, logger *zap.Logger) *Engine {
	e := &Engine{
		dictionaries: [Subnodes]*dictionary.Dictionary{sub0, sub1},
		defaults:     defaults,
		logger:       logger,
	}
	for i := range e.dictionaries {
		e.fixed[i] = identityRegisters(uint8(i), e.dictionaries[i])
	}
	return e
}

// Dictionary returns the register dictionary of subnode, or nil.
func (e *Engine) Dictionary(subnode uint8) *dictionary.Dictionary {
	if int(subnode) >= Subnodes {
		return nil
	}
	return e.dictionaries[subnode]
}

func (e *Engine) Defaults() *dictionary.DefaultTable {
	return e.defaults
}

// Resolve determines the response to req.
func (e *Engine) Resolve(req types.Request) ResolvedValue {
	if req.Command != types.CommandRead {
		return errorValue(ErrUnsupportedCommand)
	}
	if int(req.Subnode) >= Subnodes {
		return errorValue(ErrUnknownSubnode)
	}

	if v, ok := e.fixed[req.Subnode][req.Address]; ok {
		return v
	}

	return e.resolveDefault(req.Subnode, req.Address)
}

func (e *Engine) resolveDefault(subnode uint8, address uint16) ResolvedValue {
	dict := e.dictionaries[subnode]
	if dict == nil {
		return errorValue(dictionary.ErrNotFound)
	}

	entry, ok := dict.Lookup(address)
	if !ok {
		return errorValue(dictionary.ErrNotFound)
	}

	if e.defaults == nil {
		return errorValue(ErrNoDefault)
	}
	text, err := e.defaults.Default(entry.UID)
	if err != nil {
		return errorValue(ErrNoDefault)
	}

	if !entry.DataType.Known() {
		return errorValue(ErrUnknownType)
	}

	v, err := ParseValue(entry.DataType, text)
	if err != nil {
		e.logger.Warn("Malformed default value",
			zap.Uint8("subnode", subnode),
			zap.String("address", dictionary.FormatAddress(address)),
			zap.String("uid", entry.UID),
			zap.String("data_type", entry.DataType.String()),
			zap.String("stored_value", text),
			zap.Error(err))
		return errorValue(ErrMalformedDefault)
	}

	return v
}

// ParseValue parses stored default text as dt. A leading '+' is accepted
// for every numeric type.
func ParseValue(dt types.DataType, text string) (ResolvedValue, error) {
	switch dt {
	case types.DataTypeU8:
		n, err := parseUint(text, 8)
		return U8(n), err
	case types.DataTypeS8:
		n, err := strconv.ParseInt(text, 10, 8)
		return I8(n), err
	case types.DataTypeU16:
		n, err := parseUint(text, 16)
		return U16(n), err
	case types.DataTypeS16:
		n, err := strconv.ParseInt(text, 10, 16)
		return I16(n), err
	case types.DataTypeU32:
		n, err := parseUint(text, 32)
		return U32(n), err
	case types.DataTypeS32:
		n, err := strconv.ParseInt(text, 10, 32)
		return I32(n), err
	case types.DataTypeFloat:
		f, err := strconv.ParseFloat(text, 32)
		if errors.Is(err, strconv.ErrRange) {
			// Overflow saturates to ±Inf.
			err = nil
		}
		return F32(f), err
	case types.DataTypeStr:
		return Str(text), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, dt)
	}
}

func parseUint(text string, bits int) (uint64, error) {
	digits := text
	if strings.HasPrefix(digits, "+") && len(digits) > 1 && digits[1] != '-' && digits[1] != '+' {
		digits = digits[1:]
	}
	return strconv.ParseUint(digits, 10, bits)
}

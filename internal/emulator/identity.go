package emulator

import (
	"github.com/KevinKickass/OpenDriveEmulator/internal/dictionary"
)

// Identity registers answered from fixed values instead of the dictionary.
const (
	AddrProductCode     uint16 = 0x6E1
	AddrRevisionNumber  uint16 = 0x6E2
	AddrFirmwareVersion uint16 = 0x6E4
	AddrSerialNumber    uint16 = 0x6E6

	AddrStatusWord    uint16 = 0x11
	AddrBusVoltage    uint16 = 94
	AddrErrorLastCode uint16 = 0x64D
)

const (
	FirmwareVersion = "1.0.0.000"
	SerialNumber    = 0x12345678
	StatusWord      = 0x250
	BusVoltage      = 24.0
)

// identityRegisters builds the fixed register table of one sub-node. The
// product code and revision come from that sub-node's own dictionary.
func identityRegisters(subnode uint8, dict *dictionary.Dictionary) map[uint16]ResolvedValue {
	fixed := map[uint16]ResolvedValue{
		AddrFirmwareVersion: Str(FirmwareVersion),
		AddrSerialNumber:    U32(SerialNumber),
	}
	if dict != nil {
		fixed[AddrProductCode] = U32(dict.ProductCode())
		fixed[AddrRevisionNumber] = U32(dict.RevisionNumber())
	}

	if subnode == 1 {
		fixed[AddrStatusWord] = U16(StatusWord)
		fixed[AddrBusVoltage] = F32(BusVoltage)
		fixed[AddrErrorLastCode] = U16(0)
	}

	return fixed
}

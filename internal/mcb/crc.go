package mcb

import "github.com/snksoft/crc"

var xmodemTable = crc.NewTable(crc.XMODEM)

// CRC16 computes CRC-16/XMODEM (poly 0x1021, init 0, no reflection).
func CRC16(data []byte) uint16 {
	return xmodemTable.CRC16(xmodemTable.UpdateCrc(xmodemTable.InitCrc(), data))
}

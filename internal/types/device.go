package types

import (
	"fmt"
)

// DataType is the declared type of a register, decided once when a
// description source is loaded.
type DataType uint8

const (
	DataTypeUnknown DataType = iota
	DataTypeU8
	DataTypeS8
	DataTypeU16
	DataTypeS16
	DataTypeU32
	DataTypeS32
	DataTypeFloat
	DataTypeStr
)

var dataTypeTags = map[DataType]string{
	DataTypeU8:    "u8",
	DataTypeS8:    "s8",
	DataTypeU16:   "u16",
	DataTypeS16:   "s16",
	DataTypeU32:   "u32",
	DataTypeS32:   "s32",
	DataTypeFloat: "float",
	DataTypeStr:   "str",
}

// ParseDataType maps a dtype tag from a description source to a DataType.
// Tags are case-sensitive; anything else is DataTypeUnknown.
func ParseDataType(tag string) DataType {
	for dt, t := range dataTypeTags {
		if t == tag {
			return dt
		}
	}
	return DataTypeUnknown
}

func (d DataType) String() string {
	if tag, ok := dataTypeTags[d]; ok {
		return tag
	}
	return "unknown"
}

// Known reports whether d is one of the eight servable types.
func (d DataType) Known() bool {
	_, ok := dataTypeTags[d]
	return ok
}

func (d DataType) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *DataType) UnmarshalText(text []byte) error {
	dt := ParseDataType(string(text))
	if dt == DataTypeUnknown && string(text) != "unknown" {
		return fmt.Errorf("unknown data type: %q", text)
	}
	*d = dt
	return nil
}

// DeviceIdentity holds the top-level device fields of a description source.
type DeviceIdentity struct {
	ProductCode     uint32 `json:"product_code" yaml:"product_code"`
	RevisionNumber  uint32 `json:"revision_number" yaml:"revision_number"`
	FirmwareVersion string `json:"firmware_version" yaml:"firmware_version"`
	PartNumber      string `json:"part_number,omitempty" yaml:"part_number,omitempty"`
	Interface       string `json:"interface" yaml:"interface"`
	Family          string `json:"family,omitempty" yaml:"family,omitempty"`
	Name            string `json:"name,omitempty" yaml:"name,omitempty"`
}

// RegisterEntry is one register of a register dictionary.
type RegisterEntry struct {
	Address     uint16   `json:"address" yaml:"address"`
	UID         string   `json:"uid" yaml:"uid"`
	DataType    DataType `json:"data_type" yaml:"data_type"`
	Subnode     uint8    `json:"subnode" yaml:"subnode"`
	Access      string   `json:"access,omitempty" yaml:"access,omitempty"`
	Units       string   `json:"units,omitempty" yaml:"units,omitempty"`
	Cyclic      string   `json:"cyclic,omitempty" yaml:"cyclic,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// DefaultEntry is one row of the default value table. StoredValue is kept
// as text and parsed per request against the dictionary's declared type.
type DefaultEntry struct {
	UID          string   `json:"uid" yaml:"uid"`
	DataType     DataType `json:"data_type" yaml:"data_type"`
	DeclaredType string   `json:"declared_type" yaml:"declared_type"`
	StoredValue  string   `json:"stored_value" yaml:"stored_value"`
	Access       string   `json:"access,omitempty" yaml:"access,omitempty"`
	Subnode      uint8    `json:"subnode" yaml:"subnode"`
}

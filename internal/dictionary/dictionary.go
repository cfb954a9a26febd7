// Package dictionary holds the read-only lookup structures the emulator
// resolves requests against: one register dictionary per sub-node and the
// default value table.
package dictionary

import (
	"errors"

	"github.com/KevinKickass/OpenDriveEmulator/internal/types"
)

var ErrNotFound = errors.New("not found")

// Dictionary maps register addresses to their entries. It is built once and
// never mutated, so concurrent reads need no locking.
type Dictionary struct {
	identity   types.DeviceIdentity
	entries    []types.RegisterEntry
	byAddress  map[uint16]int
	duplicates []uint16
}

// New builds a dictionary from entries in source order. When two entries
// share an address the first one wins and the address is recorded in
// Duplicates.
func New(identity types.DeviceIdentity, entries []types.RegisterEntry) *Dictionary {
	d := &Dictionary{
		identity:  identity,
		entries:   make([]types.RegisterEntry, len(entries)),
		byAddress: make(map[uint16]int, len(entries)),
	}
	copy(d.entries, entries)

	seen := make(map[uint16]bool)
	for i, entry := range d.entries {
		if _, exists := d.byAddress[entry.Address]; exists {
			if !seen[entry.Address] {
				d.duplicates = append(d.duplicates, entry.Address)
				seen[entry.Address] = true
			}
			continue
		}
		d.byAddress[entry.Address] = i
	}

	return d
}

// Lookup returns the entry registered at address.
func (d *Dictionary) Lookup(address uint16) (types.RegisterEntry, bool) {
	i, ok := d.byAddress[address]
	if !ok {
		return types.RegisterEntry{}, false
	}
	return d.entries[i], true
}

// LookupUID returns the symbolic identifier of the register at address.
func (d *Dictionary) LookupUID(address uint16) (string, error) {
	entry, ok := d.Lookup(address)
	if !ok {
		return "", ErrNotFound
	}
	return entry.UID, nil
}

// LookupType returns the declared data type of the register at address.
// A register whose tag was not recognised reports DataTypeUnknown with a nil
// error; a missing register reports ErrNotFound.
func (d *Dictionary) LookupType(address uint16) (types.DataType, error) {
	entry, ok := d.Lookup(address)
	if !ok {
		return types.DataTypeUnknown, ErrNotFound
	}
	return entry.DataType, nil
}

func (d *Dictionary) ProductCode() uint32 {
	return d.identity.ProductCode
}

func (d *Dictionary) RevisionNumber() uint32 {
	return d.identity.RevisionNumber
}

func (d *Dictionary) Identity() types.DeviceIdentity {
	return d.identity
}

// Entries returns a copy of all entries in source order, duplicates included.
func (d *Dictionary) Entries() []types.RegisterEntry {
	out := make([]types.RegisterEntry, len(d.entries))
	copy(out, d.entries)
	return out
}

func (d *Dictionary) Len() int {
	return len(d.entries)
}

// Duplicates lists every address that appears more than once, in the order
// the second occurrence was found.
func (d *Dictionary) Duplicates() []uint16 {
	out := make([]uint16, len(d.duplicates))
	copy(out, d.duplicates)
	return out
}

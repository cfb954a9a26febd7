package dictionary

import (
	"github.com/KevinKickass/OpenDriveEmulator/internal/types"
)

// DefaultTable maps register UIDs to their stored default values.
type DefaultTable struct {
	identity   types.DeviceIdentity
	entries    []types.DefaultEntry
	byUID      map[string]int
	duplicates []string
}

// NewDefaultTable builds the table; the first entry for a UID wins.
func NewDefaultTable(identity types.DeviceIdentity, entries []types.DefaultEntry) *DefaultTable {
	t := &DefaultTable{
		identity: identity,
		entries:  make([]types.DefaultEntry, len(entries)),
		byUID:    make(map[string]int, len(entries)),
	}
	copy(t.entries, entries)

	seen := make(map[string]bool)
	for i, entry := range t.entries {
		if _, exists := t.byUID[entry.UID]; exists {
			if !seen[entry.UID] {
				t.duplicates = append(t.duplicates, entry.UID)
				seen[entry.UID] = true
			}
			continue
		}
		t.byUID[entry.UID] = i
	}

	return t
}

func (t *DefaultTable) Lookup(uid string) (types.DefaultEntry, bool) {
	i, ok := t.byUID[uid]
	if !ok {
		return types.DefaultEntry{}, false
	}
	return t.entries[i], true
}

// Default returns the stored value text for uid.
func (t *DefaultTable) Default(uid string) (string, error) {
	entry, ok := t.Lookup(uid)
	if !ok {
		return "", ErrNotFound
	}
	return entry.StoredValue, nil
}

// Type returns the type declared for uid in the defaults source.
func (t *DefaultTable) Type(uid string) (types.DataType, error) {
	entry, ok := t.Lookup(uid)
	if !ok {
		return types.DataTypeUnknown, ErrNotFound
	}
	return entry.DataType, nil
}

func (t *DefaultTable) Identity() types.DeviceIdentity {
	return t.identity
}

func (t *DefaultTable) Entries() []types.DefaultEntry {
	out := make([]types.DefaultEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *DefaultTable) Len() int {
	return len(t.entries)
}

func (t *DefaultTable) Duplicates() []string {
	out := make([]string, len(t.duplicates))
	copy(out, t.duplicates)
	return out
}

package devices

import (
	"fmt"
	"strconv"

	"github.com/KevinKickass/OpenDriveEmulator/internal/dictionary"
	"github.com/KevinKickass/OpenDriveEmulator/internal/types"
	"go.uber.org/zap"
)

// Set is the immutable register data the emulator serves: one dictionary
// per sub-node and the shared default table.
type Set struct {
	Subnodes [2]*dictionary.Dictionary
	Defaults *dictionary.DefaultTable
	Warnings []string
}

// Sources names the three description files of a Set.
type Sources struct {
	Subnode0 string
	Subnode1 string
	Defaults string
}

type Composer struct {
	loader *Loader
	logger *zap.Logger
}

func NewComposer(loader *Loader, logger *zap.Logger) *Composer {
	return &Composer{
		loader: loader,
		logger: logger,
	}
}

// Load resolves and decodes the three sources, then composes them.
func (c *Composer) Load(src Sources) (*Set, error) {
	sub0, err := c.loader.LoadDescription(src.Subnode0)
	if err != nil {
		return nil, fmt.Errorf("failed to load sub-node 0 dictionary: %w", err)
	}
	sub1, err := c.loader.LoadDescription(src.Subnode1)
	if err != nil {
		return nil, fmt.Errorf("failed to load sub-node 1 dictionary: %w", err)
	}
	defaults, err := c.loader.LoadConfiguration(src.Defaults)
	if err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	return c.Compose(sub0, sub1, defaults)
}

// Compose builds a Set from decoded documents. Only structural problems are
// errors; per-register problems are logged and collected in Set.Warnings.
func (c *Composer) Compose(sub0, sub1 *types.DeviceDescription, defaults *types.DeviceConfiguration) (*Set, error) {
	set := &Set{}

	for i, doc := range []*types.DeviceDescription{sub0, sub1} {
		dict, warnings, err := BuildDictionary(doc)
		if err != nil {
			return nil, fmt.Errorf("sub-node %d: %w", i, err)
		}
		set.Subnodes[i] = dict
		set.Warnings = append(set.Warnings, prefixed(fmt.Sprintf("sub-node %d", i), warnings)...)
	}

	table, warnings, err := BuildDefaults(defaults)
	if err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}
	set.Defaults = table
	set.Warnings = append(set.Warnings, prefixed("defaults", warnings)...)

	for i, dict := range set.Subnodes {
		set.Warnings = append(set.Warnings, prefixed(fmt.Sprintf("sub-node %d", i), typeMismatches(dict, table))...)
	}

	for _, w := range set.Warnings {
		c.logger.Warn("Description diagnostic", zap.String("detail", w))
	}

	c.logger.Info("Register set composed",
		zap.Int("subnode0_registers", set.Subnodes[0].Len()),
		zap.Int("subnode1_registers", set.Subnodes[1].Len()),
		zap.Int("defaults", table.Len()),
		zap.Int("warnings", len(set.Warnings)))

	return set, nil
}

// BuildDictionary converts an XDF document into a Dictionary.
func BuildDictionary(doc *types.DeviceDescription) (*dictionary.Dictionary, []string, error) {
	if doc == nil {
		return nil, nil, fmt.Errorf("missing description")
	}
	identity, err := doc.Identity()
	if err != nil {
		return nil, nil, err
	}

	var warnings []string
	entries := make([]types.RegisterEntry, 0, len(doc.Body.Device.Registers))

	for _, reg := range doc.Body.Device.Registers {
		addr, err := dictionary.ParseAddress(reg.Address)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("register %s: %v, using address 0x0", reg.ID, err))
		}

		dt := types.ParseDataType(reg.DataType)
		if !dt.Known() {
			warnings = append(warnings, fmt.Sprintf("register %s: unsupported data type %q", reg.ID, reg.DataType))
		}

		entries = append(entries, types.RegisterEntry{
			Address:     addr,
			UID:         reg.ID,
			DataType:    dt,
			Subnode:     parseSubnode(reg.Subnode),
			Access:      reg.Access,
			Units:       reg.Units,
			Cyclic:      reg.Cyclic,
			Description: reg.Description,
		})
	}

	dict := dictionary.New(identity, entries)
	for _, addr := range dict.Duplicates() {
		warnings = append(warnings, fmt.Sprintf("duplicate address %s, first entry kept", dictionary.FormatAddress(addr)))
	}

	return dict, warnings, nil
}

// BuildDefaults converts an XCF document into a DefaultTable.
func BuildDefaults(doc *types.DeviceConfiguration) (*dictionary.DefaultTable, []string, error) {
	if doc == nil {
		return nil, nil, fmt.Errorf("missing configuration")
	}
	identity, identityErrs := doc.Identity()

	var warnings []string
	for _, err := range identityErrs {
		warnings = append(warnings, fmt.Sprintf("%v, using 0", err))
	}
	entries := make([]types.DefaultEntry, 0, len(doc.Body.Device.Registers))

	for _, reg := range doc.Body.Device.Registers {
		dt := types.ParseDataType(reg.DataType)
		if !dt.Known() {
			warnings = append(warnings, fmt.Sprintf("default %s: unsupported data type %q", reg.ID, reg.DataType))
		}

		entries = append(entries, types.DefaultEntry{
			UID:          reg.ID,
			DataType:     dt,
			DeclaredType: reg.DataType,
			StoredValue:  reg.Storage,
			Access:       reg.Access,
			Subnode:      parseSubnode(reg.Subnode),
		})
	}

	table := dictionary.NewDefaultTable(identity, entries)
	for _, uid := range table.Duplicates() {
		warnings = append(warnings, fmt.Sprintf("duplicate default %s, first entry kept", uid))
	}

	return table, warnings, nil
}

func typeMismatches(dict *dictionary.Dictionary, table *dictionary.DefaultTable) []string {
	var warnings []string
	for _, entry := range dict.Entries() {
		if winner, _ := dict.Lookup(entry.Address); winner.UID != entry.UID {
			continue
		}
		def, ok := table.Lookup(entry.UID)
		if !ok || def.DataType == entry.DataType {
			continue
		}
		warnings = append(warnings, fmt.Sprintf("register %s: dictionary type %s, default declared as %q",
			entry.UID, entry.DataType, def.DeclaredType))
	}
	return warnings
}

func parseSubnode(text string) uint8 {
	n, err := strconv.ParseUint(text, 10, 8)
	if err != nil {
		return 0
	}
	return uint8(n)
}

func prefixed(prefix string, lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = prefix + ": " + l
	}
	return out
}

package dictionary

import (
	"testing"

	"github.com/KevinKickass/OpenDriveEmulator/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTable(t *testing.T) {
	table := NewDefaultTable(types.DeviceIdentity{}, []types.DefaultEntry{
		{UID: "DRV_STATE_CONTROL", DataType: types.DataTypeU16, DeclaredType: "u16", StoredValue: "592"},
		{UID: "DRV_PROT_VBUS_VALUE", DataType: types.DataTypeFloat, DeclaredType: "float", StoredValue: "3.5"},
		{UID: "DRV_STATE_CONTROL", DataType: types.DataTypeU16, DeclaredType: "u16", StoredValue: "7"},
	})

	value, err := table.Default("DRV_STATE_CONTROL")
	require.NoError(t, err)
	assert.Equal(t, "592", value)

	dt, err := table.Type("DRV_PROT_VBUS_VALUE")
	require.NoError(t, err)
	assert.Equal(t, types.DataTypeFloat, dt)

	assert.Equal(t, []string{"DRV_STATE_CONTROL"}, table.Duplicates())
	assert.Equal(t, 3, table.Len())
}

func TestDefaultTableMiss(t *testing.T) {
	table := NewDefaultTable(types.DeviceIdentity{}, nil)

	value, err := table.Default("Hola")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, value)

	_, err = table.Type("Hola")
	assert.ErrorIs(t, err, ErrNotFound)
}

package devices

import (
	"os"
	"testing"

	"github.com/KevinKickass/OpenDriveEmulator/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func validDescription() *types.DeviceDescription {
	return &types.DeviceDescription{
		Header: types.DescriptionHeader{Version: "2"},
		Body: types.DescriptionBody{
			Device: types.DescriptionDevice{
				ProductCode:    "61939713",
				RevisionNumber: "196635",
				Registers: []types.DescriptionRegister{
					{ID: "DRV_OP_CMD", Address: "0x0014", DataType: "u16", Subnode: "1"},
				},
			},
		},
	}
}

func TestValidateDescription(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(*types.DeviceDescription)
		wantErr bool
	}{
		{"valid", func(*types.DeviceDescription) {}, false},
		{"no registers", func(d *types.DeviceDescription) { d.Body.Device.Registers = nil }, false},
		{"non-numeric product code", func(d *types.DeviceDescription) { d.Body.Device.ProductCode = "0x3B" }, true},
		{"empty revision", func(d *types.DeviceDescription) { d.Body.Device.RevisionNumber = "" }, true},
		{"register without id", func(d *types.DeviceDescription) { d.Body.Device.Registers[0].ID = "" }, true},
		{"register without dtype", func(d *types.DeviceDescription) { d.Body.Device.Registers[0].DataType = "" }, true},
		{"bad subnode", func(d *types.DeviceDescription) { d.Body.Device.Registers[0].Subnode = "one" }, true},
		{"malformed address passes", func(d *types.DeviceDescription) { d.Body.Device.Registers[0].Address = "0xZZ" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validDescription()
			tt.mutate(doc)
			err := v.ValidateDescription(doc)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateConfiguration(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	doc := &types.DeviceConfiguration{
		Header: types.DescriptionHeader{Version: "2"},
		Body: types.ConfigurationBody{
			Device: types.ConfigurationDevice{
				ProductCode:    "61939713",
				RevisionNumber: "196635",
				Registers: []types.ConfigurationRegister{
					{ID: "DRV_OP_CMD", DataType: "u16", Storage: "34", Subnode: "1"},
				},
			},
		},
	}
	assert.NoError(t, v.ValidateConfiguration(doc))

	doc.Body.Device.Registers[0].ID = ""
	assert.Error(t, v.ValidateConfiguration(doc))
}

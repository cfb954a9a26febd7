package dictionary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    uint16
		wantErr bool
	}{
		{"prefixed", "0x6E1", 0x6E1, false},
		{"lowercase digits", "0x64d", 0x64D, false},
		{"padded", "0x0011", 0x11, false},
		{"no prefix", "5E", 94, false},
		{"repeated prefix", "0x0x11", 0x11, false},
		{"max", "0xFFFF", 0xFFFF, false},
		{"overflow", "0x10000", 0, true},
		{"uppercase prefix", "0X11", 0, true},
		{"empty", "", 0, true},
		{"prefix only", "0x", 0, true},
		{"not hex", "0xZZ", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeAddressDegradesToZero(t *testing.T) {
	assert.Equal(t, uint16(0), DecodeAddress("garbage"))
	assert.Equal(t, uint16(0), DecodeAddress(""))
	assert.Equal(t, uint16(0x6E2), DecodeAddress("0x6E2"))
}

func TestFormatAddressRoundTrip(t *testing.T) {
	for addr := 0; addr <= 0xFFFF; addr++ {
		text := FormatAddress(uint16(addr))
		got, err := ParseAddress(text)
		require.NoError(t, err, text)
		require.Equal(t, uint16(addr), got, text)
	}
	assert.Equal(t, "0x6E1", FormatAddress(0x6E1))
}

func TestParseInputAddress(t *testing.T) {
	tests := []struct {
		text    string
		want    uint16
		wantErr bool
	}{
		{"0x6E1", 0x6E1, false},
		{"0X11", 0x11, false},
		{"94", 94, false},
		{"0100", 100, false},
		{"70000", 0, true},
		{"0xZZ", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseInputAddress(tt.text)
		if tt.wantErr {
			assert.Error(t, err, tt.text)
			continue
		}
		require.NoError(t, err, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}
}

package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		expected ByteSize
		wantErr  bool
	}{
		{"1024", 1024, false},
		{"1Ki", 1024, false},
		{"1KiB", 1024, false},
		{"1KB", 1000, false},
		{"500Mi", 500 * MiB, false},
		{"50Gi", 50 * GiB, false},
		{"100MB", 100 * MB, false},
		{"2Ti", 2 * TiB, false},
		{"1.5Gi", ByteSize(1.5 * float64(GiB)), false},
		{"  10 Mi  ", 10 * MiB, false},
		{"0", 0, false},
		{"", 0, true},
		{"abc", 0, true},
		{"10XB", 0, true},
		{"-5", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestUnmarshalText(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalText([]byte("700Mi")))
	assert.Equal(t, 700*MiB, b)

	assert.Error(t, b.UnmarshalText([]byte("bogus")))
}

func TestFormat(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{-1, "0 B"},
		{512, "512 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{600_000_000, "572.20 MB"},
		{500_000_000, "476.84 MB"},
		{1073741824, "1.00 GB"},
		{1099511627776, "1.00 TB"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, Format(tt.bytes))
		})
	}
}

package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  ByteSize
	}{
		{"1024", 1024},
		{"64Ki", 64 * KiB},
		{"64KiB", 64 * KiB},
		{"256Ki", 256 * KiB},
		{"10Mi", 10 * MiB},
		{"10MiB", 10 * MiB},
		{"100KB", 100 * KB},
		{"1.5Mi", ByteSize(1.5 * float64(MiB))},
		{"1GB", GB},
		{" 512 Mi ", 512 * MiB},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, input := range []string{"", "  ", "abc", "10XB", "-5Mi"} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			assert.Error(t, err)
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "256.00KiB", (256 * KiB).String())
	assert.Equal(t, "10.00MiB", (10 * MiB).String())
	assert.Equal(t, "100B", ByteSize(100).String())
}

func TestUnmarshalText(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalText([]byte("256Ki")))
	assert.Equal(t, 256*KiB, b)

	assert.Error(t, b.UnmarshalText([]byte("nope")))
}

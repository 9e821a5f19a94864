package hexdump

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptionsNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   Options
		want Options
	}{
		{name: "defaults untouched", in: DefaultOptions(), want: DefaultOptions()},
		{name: "valid custom", in: Options{RowBytes: 8, ColBytes: 4, Offset: 32}, want: Options{RowBytes: 8, ColBytes: 4, Offset: 32}},
		{name: "zero row falls back", in: Options{RowBytes: 0, ColBytes: 4}, want: Options{RowBytes: 16, ColBytes: 4}},
		{name: "row above max falls back", in: Options{RowBytes: 257, ColBytes: 1}, want: Options{RowBytes: 16, ColBytes: 1}},
		{name: "negative col falls back", in: Options{RowBytes: 8, ColBytes: -1}, want: Options{RowBytes: 8, ColBytes: 2}},
		{name: "negative offset falls back", in: Options{RowBytes: 8, ColBytes: 2, Offset: -5}, want: Options{RowBytes: 8, ColBytes: 2}},
		{name: "strip flag preserved", in: Options{StripOffsets: true}, want: Options{RowBytes: 16, ColBytes: 2, StripOffsets: true}},
		{name: "max bounds accepted", in: Options{RowBytes: 256, ColBytes: 256}, want: Options{RowBytes: 256, ColBytes: 256}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func TestOptionsClamped(t *testing.T) {
	assert.False(t, DefaultOptions().Clamped())
	assert.True(t, Options{}.Clamped())
	assert.True(t, Options{RowBytes: 16, ColBytes: 2, Offset: -1}.Clamped())
}

func TestOptionsEqual(t *testing.T) {
	a := DefaultOptions()
	b := DefaultOptions()
	assert.True(t, a.Equal(b))

	b.RowBytes = 8
	assert.False(t, a.Equal(b))

	b = DefaultOptions()
	b.StripOffsets = true
	assert.False(t, a.Equal(b))
}

func TestOptionsArgs(t *testing.T) {
	opts := Options{RowBytes: 8, ColBytes: 1, Offset: 1024}
	assert.Equal(t,
		[]string{"-c", "8", "-g", "1", "-s", "1024", "/tmp/file.bin"},
		opts.Args("/tmp/file.bin"),
	)
}

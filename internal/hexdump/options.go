package hexdump

import "strconv"

const (
	DefaultRowBytes = 16
	DefaultColBytes = 2
	DefaultOffset   = 0

	// MaxRowBytes and MaxColBytes bound the toolbar inputs.
	MaxRowBytes = 256
	MaxColBytes = 256
)

// Options controls how a dump is produced. Values are copied into each
// generation request; a session's cached Options never alias a caller's.
type Options struct {
	RowBytes     int   `json:"row_bytes" yaml:"row_bytes"`
	ColBytes     int   `json:"col_bytes" yaml:"col_bytes"`
	Offset       int64 `json:"offset" yaml:"offset"`
	StripOffsets bool  `json:"strip_offsets" yaml:"strip_offsets"`
}

// DefaultOptions returns 16 bytes per row, 2 bytes per column, offset 0.
func DefaultOptions() Options {
	return Options{
		RowBytes: DefaultRowBytes,
		ColBytes: DefaultColBytes,
		Offset:   DefaultOffset,
	}
}

// Normalize replaces every out-of-range field with its default. Invalid
// input is never reported as an error.
func (o Options) Normalize() Options {
	if o.RowBytes < 1 || o.RowBytes > MaxRowBytes {
		o.RowBytes = DefaultRowBytes
	}
	if o.ColBytes < 1 || o.ColBytes > MaxColBytes {
		o.ColBytes = DefaultColBytes
	}
	if o.Offset < 0 {
		o.Offset = DefaultOffset
	}
	return o
}

// Clamped reports whether Normalize would change o.
func (o Options) Clamped() bool {
	return o.Normalize() != o
}

// Equal compares field by field.
func (o Options) Equal(other Options) bool {
	return o.RowBytes == other.RowBytes &&
		o.ColBytes == other.ColBytes &&
		o.Offset == other.Offset &&
		o.StripOffsets == other.StripOffsets
}

// Args builds the xxd argument list: -c <row> -g <col> -s <offset> <path>.
func (o Options) Args(path string) []string {
	return []string{
		"-c", strconv.Itoa(o.RowBytes),
		"-g", strconv.Itoa(o.ColBytes),
		"-s", strconv.FormatInt(o.Offset, 10),
		path,
	}
}

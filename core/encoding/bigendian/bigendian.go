// Package bigendian encodes and decodes fixed-width big-endian unsigned
// integers of arbitrary byte width 1..8. Every multi-byte field in the
// namedex page format (node headers, entry trailers, the page file header)
// goes through this package.
package bigendian

import "errors"

// MaxWidth is the widest field the codec supports, in bytes.
const MaxWidth = 8

var (
	ErrInvalidWidth  = errors.New("field width must be between 1 and 8 bytes")
	ErrShortBuffer   = errors.New("buffer is shorter than the field width")
	ErrValueOverflow = errors.New("value does not fit in the field width")
)

// Uint interprets the first width bytes of b as a big-endian unsigned
// integer. There is no sign and no byte-order ambiguity.
func Uint(b []byte, width int) (uint64, error) {
	if width < 1 || width > MaxWidth {
		return 0, ErrInvalidWidth
	}
	if len(b) < width {
		return 0, ErrShortBuffer
	}
	var v uint64
	for i := 0; i < width; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}

// PutUint writes v into the first width bytes of b, big-endian. Truncation
// is an error, never a silent behavior: v must be representable in width
// bytes.
func PutUint(b []byte, v uint64, width int) error {
	if width < 1 || width > MaxWidth {
		return ErrInvalidWidth
	}
	if len(b) < width {
		return ErrShortBuffer
	}
	if width < MaxWidth && v >= uint64(1)<<(8*uint(width)) {
		return ErrValueOverflow
	}
	for i := width - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return nil
}

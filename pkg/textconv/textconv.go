// Package textconv converts on-disk wide-character (UTF-16) names into text.
package textconv

import (
	"errors"
	"fmt"

	"github.com/marmos91/catwalk/pkg/endian"
	"golang.org/x/text/encoding/unicode"
)

// Placeholder replaces every code unit that is not printable ASCII.
const Placeholder = '?'

// ToPrintable converts up to units 2-byte code units of uni into a printable
// ASCII string that fits a destination of the given capacity, one slot of
// which is reserved for a terminator. The result is therefore never longer
// than capacity-1 bytes.
//
// Conversion stops at the first all-zero unit. HFS+ has legitimate names with
// embedded NULs (the hard-link "HFS+ Private Data" directory starts with four
// of them), which this truncates; use DecodeUTF16 when the full name matters.
func ToPrintable(order endian.Order, uni []byte, units, capacity int) string {
	if capacity <= 0 || units <= 0 {
		return ""
	}

	limit := units
	if units+1 > capacity {
		limit = capacity - 1
	}
	if avail := len(uni) / 2; limit > avail {
		limit = avail
	}

	out := make([]byte, 0, limit)
	for i := 0; i < limit; i++ {
		unit := endian.Uint16(order, uni[i*2:])
		if unit == 0 {
			break
		}
		out = append(out, printable(unit))
	}
	return string(out)
}

func printable(unit uint16) byte {
	if unit >= 0x20 && unit <= 0x7e {
		return byte(unit)
	}
	return Placeholder
}

// ErrInvalidUTF16 is returned by DecodeUTF16 for an unpaired surrogate.
var ErrInvalidUTF16 = errors.New("invalid UTF-16")

// DecodeUTF16 decodes the whole of uni as UTF-16 in the given order, keeping
// embedded NULs and non-ASCII characters. A trailing odd byte is ignored.
//
// The x/text decoder would substitute U+FFFD for an unpaired surrogate;
// such names are rejected with ErrInvalidUTF16 instead.
func DecodeUTF16(order endian.Order, uni []byte) (string, error) {
	uni = uni[:len(uni)&^1]
	if err := checkSurrogates(order, uni); err != nil {
		return "", err
	}

	e := unicode.BigEndian
	if order == endian.Little {
		e = unicode.LittleEndian
	}
	out, err := unicode.UTF16(e, unicode.IgnoreBOM).NewDecoder().Bytes(uni)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func checkSurrogates(order endian.Order, uni []byte) error {
	units := len(uni) / 2
	for i := 0; i < units; i++ {
		unit := endian.Uint16(order, uni[i*2:])
		switch {
		case unit >= 0xdc00 && unit <= 0xdfff:
			return fmt.Errorf("%w: low surrogate %#04x at unit %d", ErrInvalidUTF16, unit, i)
		case unit >= 0xd800 && unit <= 0xdbff:
			if i+1 == units {
				return fmt.Errorf("%w: high surrogate %#04x at end of name", ErrInvalidUTF16, unit)
			}
			next := endian.Uint16(order, uni[(i+1)*2:])
			if next < 0xdc00 || next > 0xdfff {
				return fmt.Errorf("%w: high surrogate %#04x at unit %d not followed by a low surrogate", ErrInvalidUTF16, unit, i)
			}
			i++
		}
	}
	return nil
}

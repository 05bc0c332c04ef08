// Package endian decodes fixed-width integers from raw image bytes according
// to the byte order a filesystem declares.
//
// Every function here is pure: no state, no allocation. The unchecked
// functions (Uint16, Uint32, Uint64) panic on short input exactly like
// encoding/binary; the Read* variants validate bounds and return
// ErrShortBuffer instead, and are the ones to use on untrusted on-disk data.
package endian

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Order is the byte order declared by a filesystem.
type Order uint8

const (
	// Unknown means the order has not been determined yet.
	Unknown Order = iota

	// Little is least-significant byte first.
	Little

	// Big is most-significant byte first (HFS+, network order).
	Big
)

// ErrShortBuffer is returned when a buffer is too small for the requested read.
var ErrShortBuffer = errors.New("endian: short buffer")

// ErrUnknownOrder is returned when a value cannot be matched under either order.
var ErrUnknownOrder = errors.New("endian: cannot determine byte order")

func (o Order) String() string {
	switch o {
	case Little:
		return "little"
	case Big:
		return "big"
	default:
		return "unknown"
	}
}

// ByteOrder returns the encoding/binary order for o. Unknown maps to big
// endian, the order HFS+ uses on disk.
func (o Order) ByteOrder() binary.ByteOrder {
	if o == Little {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// Uint16 decodes the first 2 bytes of b. It panics if b is shorter.
func Uint16(o Order, b []byte) uint16 {
	return o.ByteOrder().Uint16(b)
}

// Uint32 decodes the first 4 bytes of b. It panics if b is shorter.
func Uint32(o Order, b []byte) uint32 {
	return o.ByteOrder().Uint32(b)
}

// Uint64 decodes the first 8 bytes of b. It panics if b is shorter.
func Uint64(o Order, b []byte) uint64 {
	return o.ByteOrder().Uint64(b)
}

// ReadU16 decodes the 2 bytes of b starting at off.
func ReadU16(o Order, b []byte, off int) (uint16, error) {
	if err := check(b, off, 2); err != nil {
		return 0, err
	}
	return Uint16(o, b[off:]), nil
}

// ReadU32 decodes the 4 bytes of b starting at off.
func ReadU32(o Order, b []byte, off int) (uint32, error) {
	if err := check(b, off, 4); err != nil {
		return 0, err
	}
	return Uint32(o, b[off:]), nil
}

// ReadU64 decodes the 8 bytes of b starting at off.
func ReadU64(o Order, b []byte, off int) (uint64, error) {
	if err := check(b, off, 8); err != nil {
		return 0, err
	}
	return Uint64(o, b[off:]), nil
}

func check(b []byte, off, n int) error {
	if off < 0 || off > len(b) || len(b)-off < n {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, n, off, len(b))
	}
	return nil
}

// Guess16 determines the byte order under which the first two bytes of b
// equal want. Little endian wins when both orders match (palindromic values).
func Guess16(b []byte, want uint16) (Order, error) {
	if err := check(b, 0, 2); err != nil {
		return Unknown, err
	}
	switch {
	case Uint16(Little, b) == want:
		return Little, nil
	case Uint16(Big, b) == want:
		return Big, nil
	default:
		return Unknown, ErrUnknownOrder
	}
}


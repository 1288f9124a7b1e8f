// Package bitfield implements the peer-wire bitfield: a bit vector
// where bit 0 is the most significant bit of byte 0, matching the
// BitTorrent wire format used by the "bitfield" and "have" messages.
package bitfield

import "fmt"

// Bitfield is a fixed-length bit vector.
type Bitfield struct {
	bytes []byte
	len   int
}

// New returns a zeroed Bitfield of the given bit length.
func New(length int) *Bitfield {
	return &Bitfield{bytes: make([]byte, numBytes(length)), len: length}
}

// NewBytes wraps an existing byte slice as a Bitfield of the given bit
// length, copying the data. It returns an error if b is not exactly the
// number of bytes required to hold length bits.
func NewBytes(b []byte, length int) (*Bitfield, error) {
	want := numBytes(length)
	if len(b) != want {
		return nil, fmt.Errorf("bitfield: expected %d bytes for %d bits, got %d", want, length, len(b))
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return &Bitfield{bytes: cp, len: length}, nil
}

func numBytes(length int) int {
	return (length + 7) / 8
}

// Len returns the number of bits.
func (bf *Bitfield) Len() int {
	return bf.len
}

// Bytes returns the underlying byte representation. The caller must
// not mutate it.
func (bf *Bitfield) Bytes() []byte {
	return bf.bytes
}

func (bf *Bitfield) checkIndex(i int) {
	if i < 0 || i >= bf.len {
		panic(fmt.Sprintf("bitfield: index %d out of range [0,%d)", i, bf.len))
	}
}

// Test reports whether bit i is set.
func (bf *Bitfield) Test(i int) bool {
	bf.checkIndex(i)
	return bf.bytes[i/8]&(0x80>>uint(i%8)) != 0
}

// Set sets bit i.
func (bf *Bitfield) Set(i int) {
	bf.checkIndex(i)
	bf.bytes[i/8] |= 0x80 >> uint(i%8)
}

// Clear clears bit i.
func (bf *Bitfield) Clear(i int) {
	bf.checkIndex(i)
	bf.bytes[i/8] &^= 0x80 >> uint(i%8)
}

// Count returns the number of set bits.
func (bf *Bitfield) Count() int {
	n := 0
	for i := 0; i < bf.len; i++ {
		if bf.Test(i) {
			n++
		}
	}
	return n
}

// All reports whether every bit is set.
func (bf *Bitfield) All() bool {
	return bf.Count() == bf.len
}

// Package bits implements fixed-size bit vectors indexed by small integer
// codes, in the layout produced by the EVIOCGBIT family of ioctls: bit N of
// byte N/8 corresponds to code N.
package bits

import "fmt"

type Bits struct {
	bytes []byte
}

// New returns an empty bit vector capable of holding nbits codes.
func New(nbits int) Bits {
	nbytes := nbits / 8
	if nbits%8 > 0 {
		nbytes++
	}
	return Bits{
		bytes: make([]byte, nbytes),
	}
}

// FromBytes wraps a kernel-provided bit vector without copying it.
func FromBytes(data []byte) Bits {
	return Bits{
		bytes: data,
	}
}

func (b Bits) Len() int {
	return len(b.bytes) * 8
}

func (b Bits) Bytes() []byte {
	return b.bytes
}

func (b Bits) IsSet(code int) bool {
	if code < 0 || code >= b.Len() {
		return false
	}
	return b.bytes[code/8]&(1<<(code%8)) != 0
}

func (b Bits) Set(code int) bool {
	if code < 0 || code >= b.Len() {
		return false
	}
	changed := b.bytes[code/8]&(1<<(code%8)) == 0
	b.bytes[code/8] |= 1 << (code % 8)
	return changed
}

func (b Bits) Clear(code int) bool {
	if code < 0 || code >= b.Len() {
		return false
	}
	changed := b.bytes[code/8]&(1<<(code%8)) != 0
	b.bytes[code/8] &^= 1 << (code % 8)
	return changed
}

func (b Bits) IsEmpty() bool {
	for _, byt := range b.bytes {
		if byt != 0 {
			return false
		}
	}
	return true
}

func (b Bits) CountSet() int {
	count := 0
	b.EachSet(func(int) bool {
		count++
		return true
	})
	return count
}

// EachSet calls f for every set code in ascending order until f returns
// false.
func (b Bits) EachSet(f func(code int) bool) {
	for nbyte, byt := range b.bytes {
		if byt == 0 {
			continue
		}
		for nbit := 0; nbit < 8; nbit++ {
			if byt&(1<<nbit) == 0 {
				continue
			}
			if !f(nbyte*8 + nbit) {
				return
			}
		}
	}
}

func (b Bits) Equal(other Bits) bool {
	if len(b.bytes) != len(other.bytes) {
		return false
	}
	for i, byt := range b.bytes {
		if byt != other.bytes[i] {
			return false
		}
	}
	return true
}

func (b Bits) Clone() Bits {
	bytes := make([]byte, len(b.bytes))
	copy(bytes, b.bytes)
	return Bits{
		bytes: bytes,
	}
}

func (b Bits) String() string {
	result := ""
	b.EachSet(func(code int) bool {
		if result != "" {
			result += " "
		}
		result += fmt.Sprintf("%#x", code)
		return true
	})
	return result
}

package program

import (
	"fmt"

	"github.com/BjoernBoss/wasmlator-sub001/transerrors"
)

// E_l is the fixed length little endian encoding of x in l bytes.
func E_l(x uint64, l uint32) []byte {
	out := make([]byte, l)
	for i := range out {
		out[i] = byte(x)
		x >>= 8
	}
	return out
}

func DecodeE_l(encoded []byte) uint64 {
	var x uint64
	for i := len(encoded) - 1; i >= 0; i-- {
		x = x<<8 | uint64(encoded[i])
	}
	return x
}

// E is the variable length natural number encoding: the count of leading
// one bits of the first byte is the number of trailing bytes.
func E(x uint64) []byte {
	for l := uint32(0); l < 8; l++ {
		if x < 1<<(7*(l+1)) {
			head := byte(256 - (1 << (8 - l)) + int(x>>(8*l)))
			return append([]byte{head}, E_l(x, l)...)
		}
	}
	return append([]byte{0xff}, E_l(x, 8)...)
}

// DecodeE returns the decoded value and the number of bytes consumed.
func DecodeE(encoded []byte) (uint64, uint32, error) {
	if len(encoded) == 0 {
		return 0, 0, fmt.Errorf("empty natural: %w", transerrors.ErrPInvalidProgram)
	}
	head := encoded[0]
	l := uint32(0)
	for l < 8 && head&(0x80>>l) != 0 {
		l++
	}
	if uint32(len(encoded)) < 1+l {
		return 0, 0, fmt.Errorf("natural needs %d bytes, have %d: %w", 1+l, len(encoded), transerrors.ErrPInvalidProgram)
	}
	if l == 8 {
		return DecodeE_l(encoded[1:9]), 9, nil
	}
	high := uint64(head) & (0xff >> (l + 1))
	return high<<(8*l) | DecodeE_l(encoded[1:1+l]), 1 + l, nil
}

// signExtend interprets the low n bytes of x as two's complement.
func signExtend(x uint64, n uint32) uint64 {
	if n == 0 || n >= 8 {
		return x
	}
	shift := 64 - 8*n
	return uint64(int64(x<<shift) >> shift)
}

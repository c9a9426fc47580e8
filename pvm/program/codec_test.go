package program

import (
	"errors"
	"testing"

	"github.com/BjoernBoss/wasmlator-sub001/transerrors"
)

func TestNaturalRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 300, 16383, 16384, 1 << 21, 1<<56 - 1, 1 << 56, 1<<64 - 1}
	for _, v := range values {
		encoded := E(v)
		got, n, err := DecodeE(encoded)
		if err != nil {
			t.Fatalf("DecodeE(%x): %v", encoded, err)
		}
		if got != v || int(n) != len(encoded) {
			t.Errorf("value %d: decoded %d using %d of %d bytes", v, got, n, len(encoded))
		}
	}
}

func TestNaturalLengths(t *testing.T) {
	cases := map[uint64]int{0: 1, 127: 1, 128: 2, 1<<14 - 1: 2, 1 << 14: 3, 1<<64 - 1: 9}
	for v, want := range cases {
		if got := len(E(v)); got != want {
			t.Errorf("E(%d) has %d bytes, want %d", v, got, want)
		}
	}
}

func TestDecodeTruncated(t *testing.T) {
	_, _, err := DecodeE([]byte{0xc0, 0x01})
	if !errors.Is(err, transerrors.ErrPInvalidProgram) {
		t.Errorf("expected invalid program, got %v", err)
	}
	_, _, err = DecodeE(nil)
	if !errors.Is(err, transerrors.ErrPInvalidProgram) {
		t.Errorf("expected invalid program, got %v", err)
	}
}

func TestSignExtend(t *testing.T) {
	if got := signExtend(0xff, 1); got != 1<<64-1 {
		t.Errorf("signExtend(0xff, 1) = %x", got)
	}
	if got := signExtend(0x7fff, 2); got != 0x7fff {
		t.Errorf("signExtend(0x7fff, 2) = %x", got)
	}
	if got := signExtend(0x80000000, 4); got != 0xffffffff80000000 {
		t.Errorf("signExtend(0x80000000, 4) = %x", got)
	}
}

package program

import (
	"fmt"

	"github.com/BjoernBoss/wasmlator-sub001/transerrors"
	"golang.org/x/crypto/blake2b"
)

const (
	// maxSkip bounds the operand bytes of one instruction.
	maxSkip = 24
	// jumpAlignment is the factor between jump table indices and dynamic
	// jump addresses.
	jumpAlignment = 2
	// HaltAddress is the dynamic jump address that terminates the program.
	HaltAddress = 1<<32 - 1<<16
	// RegisterCount is the number of 64 bit guest registers.
	RegisterCount = 13
	// RA is the register holding the return address of calls.
	RA = 0
)

type Program struct {
	Z    uint8
	J    []uint32
	Code []byte
	K    []bool
	blob []byte
}

// DecodeCorePart parses E(|J|) ++ E_1(z) ++ E(|c|) ++ E_z(J) ++ c ++ k,
// where k packs one bit per code byte.
func DecodeCorePart(blob []byte) (*Program, error) {
	jumps, n, err := DecodeE(blob)
	if err != nil {
		return nil, fmt.Errorf("jump table size: %w", err)
	}
	rest := blob[n:]
	if len(rest) < 1 {
		return nil, fmt.Errorf("jump entry size: %w", transerrors.ErrPInvalidProgram)
	}
	z := rest[0]
	rest = rest[1:]
	codeLen, n, err := DecodeE(rest)
	if err != nil {
		return nil, fmt.Errorf("code size: %w", err)
	}
	rest = rest[n:]

	tableLen := jumps * uint64(z)
	maskLen := (codeLen + 7) / 8
	if uint64(len(rest)) != tableLen+codeLen+maskLen {
		return nil, fmt.Errorf("blob has %d bytes after header, want %d: %w", len(rest), tableLen+codeLen+maskLen, transerrors.ErrPInvalidProgram)
	}
	if jumps > 0 && (z == 0 || z > 4) {
		return nil, fmt.Errorf("jump entry size %d: %w", z, transerrors.ErrPInvalidProgram)
	}

	p := &Program{Z: z, blob: blob}
	for i := uint64(0); i < jumps; i++ {
		p.J = append(p.J, uint32(DecodeE_l(rest[i*uint64(z):(i+1)*uint64(z)])))
	}
	p.Code = rest[tableLen : tableLen+codeLen]
	mask := rest[tableLen+codeLen:]
	p.K = make([]bool, codeLen)
	for i := range p.K {
		p.K[i] = mask[i/8]&(1<<(i%8)) != 0
	}
	return p, nil
}

// Encode is the inverse of DecodeCorePart.
func (p *Program) Encode() []byte {
	z := p.Z
	if z == 0 {
		z = 4
	}
	out := E(uint64(len(p.J)))
	out = append(out, z)
	out = append(out, E(uint64(len(p.Code)))...)
	for _, j := range p.J {
		out = append(out, E_l(uint64(j), uint32(z))...)
	}
	out = append(out, p.Code...)
	mask := make([]byte, (len(p.K)+7)/8)
	for i, set := range p.K {
		if set {
			mask[i/8] |= 1 << (i % 8)
		}
	}
	return append(out, mask...)
}

// Hash identifies the program blob.
func (p *Program) Hash() [32]byte {
	if p.blob == nil {
		p.blob = p.Encode()
	}
	return blake2b.Sum256(p.blob)
}

func (p *Program) instructionStart(pc uint64) bool {
	return pc >= uint64(len(p.K)) || p.K[pc]
}

// Skip is the number of operand bytes of the instruction at pc: the
// distance to the next bitmask bit, at most maxSkip.
func (p *Program) Skip(pc uint64) uint64 {
	for n := uint64(0); n < maxSkip; n++ {
		if p.instructionStart(pc + 1 + n) {
			return n
		}
	}
	return maxSkip
}

// byteAt reads code with an implicit zero extension.
func (p *Program) byteAt(pc uint64) byte {
	if pc >= uint64(len(p.Code)) {
		return 0
	}
	return p.Code[pc]
}

// JumpTarget translates a dynamic jump address through the jump table.
func (p *Program) JumpTarget(address uint64) (uint64, bool) {
	if address == 0 || address%jumpAlignment != 0 || address/jumpAlignment > uint64(len(p.J)) {
		return 0, false
	}
	return uint64(p.J[address/jumpAlignment-1]), true
}

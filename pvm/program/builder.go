package program

import (
	"fmt"

	"github.com/BjoernBoss/wasmlator-sub001/transerrors"
)

// Builder assembles PVM programs. Branch and jump destinations are named
// labels, resolved by Build.
type Builder struct {
	code   []byte
	mask   []bool
	labels map[string]uint64
	fixups []fixup
	jumps  []string
}

type fixup struct {
	label string
	pc    uint64
	at    int
}

func NewBuilder() *Builder {
	return &Builder{labels: make(map[string]uint64)}
}

func (b *Builder) PC() uint64 {
	return uint64(len(b.code))
}

// Label names the current pc.
func (b *Builder) Label(name string) *Builder {
	b.labels[name] = b.PC()
	return b
}

// JumpAddress adds label to the jump table and returns its dynamic jump
// address.
func (b *Builder) JumpAddress(label string) uint32 {
	b.jumps = append(b.jumps, label)
	return uint32(len(b.jumps) * jumpAlignment)
}

func (b *Builder) emit(op byte, args ...byte) uint64 {
	pc := b.PC()
	b.code = append(b.code, op)
	b.code = append(b.code, args...)
	b.mask = append(b.mask, true)
	for range args {
		b.mask = append(b.mask, false)
	}
	return pc
}

func (b *Builder) offset(label string, pc uint64) []byte {
	b.fixups = append(b.fixups, fixup{label: label, pc: pc, at: len(b.code)})
	return make([]byte, 4)
}

func regs(a int, b int) byte {
	return byte(a) | byte(b)<<4
}

func imm32(v uint32) []byte {
	return E_l(uint64(v), 4)
}

func (b *Builder) Op(op byte) *Builder {
	b.emit(op)
	return b
}

func (b *Builder) Ecalli(id uint32) *Builder {
	b.emit(ECALLI, imm32(id)...)
	return b
}

func (b *Builder) LoadImm(rA int, v uint32) *Builder {
	b.emit(LOAD_IMM, append([]byte{regs(rA, 0)}, imm32(v)...)...)
	return b
}

func (b *Builder) LoadImm64(rA int, v uint64) *Builder {
	b.emit(LOAD_IMM_64, append([]byte{regs(rA, 0)}, E_l(v, 8)...)...)
	return b
}

// Jump encodes JUMP to label.
func (b *Builder) Jump(label string) *Builder {
	pc := b.PC()
	b.code = append(b.code, JUMP)
	b.mask = append(b.mask, true)
	b.code = append(b.code, b.offset(label, pc)...)
	b.mask = append(b.mask, false, false, false, false)
	return b
}

// LoadImmJump encodes LOAD_IMM_JUMP rA, v, label.
func (b *Builder) LoadImmJump(rA int, v uint32, label string) *Builder {
	pc := b.PC()
	b.code = append(b.code, LOAD_IMM_JUMP, byte(rA)|4<<4)
	b.code = append(b.code, imm32(v)...)
	b.code = append(b.code, b.offset(label, pc)...)
	b.mask = append(b.mask, true)
	b.mask = append(b.mask, make([]bool, 9)...)
	return b
}

// Branch encodes a two register branch such as BRANCH_EQ rA, rB, label.
func (b *Builder) Branch(op byte, rA int, rB int, label string) *Builder {
	pc := b.PC()
	b.code = append(b.code, op, regs(rA, rB))
	b.code = append(b.code, b.offset(label, pc)...)
	b.mask = append(b.mask, true)
	b.mask = append(b.mask, make([]bool, 5)...)
	return b
}

// BranchImm encodes a register/immediate branch such as BRANCH_EQ_IMM.
func (b *Builder) BranchImm(op byte, rA int, v uint32, label string) *Builder {
	pc := b.PC()
	b.code = append(b.code, op, byte(rA)|4<<4)
	b.code = append(b.code, imm32(v)...)
	b.code = append(b.code, b.offset(label, pc)...)
	b.mask = append(b.mask, true)
	b.mask = append(b.mask, make([]bool, 9)...)
	return b
}

func (b *Builder) JumpInd(rA int, v uint32) *Builder {
	b.emit(JUMP_IND, append([]byte{regs(rA, 0)}, imm32(v)...)...)
	return b
}

func (b *Builder) LoadImmJumpInd(rA int, rB int, x uint32, y uint32) *Builder {
	args := []byte{regs(rA, rB), 4}
	args = append(args, imm32(x)...)
	b.emit(LOAD_IMM_JUMP_IND, append(args, imm32(y)...)...)
	return b
}

// RegImm encodes the one register one immediate loads and stores.
func (b *Builder) RegImm(op byte, rA int, v uint32) *Builder {
	b.emit(op, append([]byte{regs(rA, 0)}, imm32(v)...)...)
	return b
}

// TwoImm encodes STORE_IMM_* address, value.
func (b *Builder) TwoImm(op byte, x uint32, y uint32) *Builder {
	args := append([]byte{4}, imm32(x)...)
	b.emit(op, append(args, imm32(y)...)...)
	return b
}

func (b *Builder) RegTwoImm(op byte, rA int, x uint32, y uint32) *Builder {
	args := append([]byte{byte(rA) | 4<<4}, imm32(x)...)
	b.emit(op, append(args, imm32(y)...)...)
	return b
}

// TwoRegs encodes rD, rA.
func (b *Builder) TwoRegs(op byte, rD int, rA int) *Builder {
	b.emit(op, regs(rD, rA))
	return b
}

// TwoRegsImm encodes rA, rB, v.
func (b *Builder) TwoRegsImm(op byte, rA int, rB int, v uint32) *Builder {
	b.emit(op, append([]byte{regs(rA, rB)}, imm32(v)...)...)
	return b
}

// ThreeRegs encodes rD = rA op rB.
func (b *Builder) ThreeRegs(op byte, rA int, rB int, rD int) *Builder {
	b.emit(op, regs(rA, rB), byte(rD))
	return b
}

// Build resolves the labels and returns the encoded blob.
func (b *Builder) Build() ([]byte, error) {
	code := append([]byte(nil), b.code...)
	for _, f := range b.fixups {
		target, ok := b.labels[f.label]
		if !ok {
			return nil, fmt.Errorf("label %q: %w", f.label, transerrors.ErrPUnknownAddress)
		}
		copy(code[f.at:], E_l(target-f.pc, 4))
	}
	p := &Program{Z: 4, Code: code, K: append([]bool(nil), b.mask...)}
	for _, label := range b.jumps {
		target, ok := b.labels[label]
		if !ok {
			return nil, fmt.Errorf("jump table label %q: %w", label, transerrors.ErrPUnknownAddress)
		}
		p.J = append(p.J, uint32(target))
	}
	return p.Encode(), nil
}

// MustProgram builds and decodes the program, panicking on errors.
func (b *Builder) MustProgram() *Program {
	blob, err := b.Build()
	if err != nil {
		panic(err)
	}
	p, err := DecodeCorePart(blob)
	if err != nil {
		panic(err)
	}
	return p
}

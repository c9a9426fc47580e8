package program

// Inst is one decoded instruction. Depending on the format only some of
// the operand fields are meaningful; Target holds the absolute pc of
// offsets.
type Inst struct {
	PC     uint64
	Opcode byte
	Skip   uint64

	RegA   int
	RegB   int
	RegD   int
	ImmX   uint64
	ImmY   uint64
	Target uint64
}

// Next is the pc of the following instruction.
func (i Inst) Next() uint64 {
	return i.PC + 1 + i.Skip
}

func register(b byte) int {
	return min(RegisterCount-1, int(b))
}

// immediate decodes l bytes at pc as a sign extended value.
func (p *Program) immediate(pc uint64, l uint64) uint64 {
	var x uint64
	for i := l; i > 0; i-- {
		x = x<<8 | uint64(p.byteAt(pc+i-1))
	}
	return signExtend(x, uint32(l))
}

// Decode reads the operands of the instruction at pc. It does not check
// the bitmask.
func (p *Program) Decode(pc uint64) Inst {
	op := p.byteAt(pc)
	l := p.Skip(pc)
	inst := Inst{PC: pc, Opcode: op, Skip: l}
	first := p.byteAt(pc + 1)

	switch FormatOf(op) {
	case FormatOneImm:
		inst.ImmX = p.immediate(pc+1, min(4, l))

	case FormatOneRegExtImm:
		inst.RegA = register(first % 16)
		inst.ImmX = p.immediate(pc+2, 8)

	case FormatTwoImm:
		lx := min(4, uint64(first%8))
		ly := min(4, sat(l, lx+1))
		inst.ImmX = p.immediate(pc+2, lx)
		inst.ImmY = p.immediate(pc+2+lx, ly)

	case FormatOneOffset:
		inst.Target = pc + p.immediate(pc+1, min(4, l))

	case FormatOneRegOneImm:
		inst.RegA = register(first % 16)
		inst.ImmX = p.immediate(pc+2, min(4, sat(l, 1)))

	case FormatOneRegTwoImm:
		lx := min(4, uint64(first/16%8))
		ly := min(4, sat(l, lx+1))
		inst.RegA = register(first % 16)
		inst.ImmX = p.immediate(pc+2, lx)
		inst.ImmY = p.immediate(pc+2+lx, ly)

	case FormatOneRegImmOffset:
		lx := min(4, uint64(first/16%8))
		ly := min(4, sat(l, lx+1))
		inst.RegA = register(first % 16)
		inst.ImmX = p.immediate(pc+2, lx)
		inst.Target = pc + p.immediate(pc+2+lx, ly)

	case FormatTwoRegs:
		inst.RegD = register(first % 16)
		inst.RegA = register(first / 16)

	case FormatTwoRegsOneImm:
		inst.RegA = register(first % 16)
		inst.RegB = register(first / 16)
		inst.ImmX = p.immediate(pc+2, min(4, sat(l, 1)))

	case FormatTwoRegsOneOffset:
		inst.RegA = register(first % 16)
		inst.RegB = register(first / 16)
		inst.Target = pc + p.immediate(pc+2, min(4, sat(l, 1)))

	case FormatTwoRegsTwoImm:
		lx := min(4, uint64(p.byteAt(pc+2)%8))
		ly := min(4, sat(l, lx+2))
		inst.RegA = register(first % 16)
		inst.RegB = register(first / 16)
		inst.ImmX = p.immediate(pc+3, lx)
		inst.ImmY = p.immediate(pc+3+lx, ly)

	case FormatThreeRegs:
		inst.RegA = register(first % 16)
		inst.RegB = register(first / 16)
		inst.RegD = register(p.byteAt(pc + 2))
	}
	return inst
}

// sat is the saturating difference a-b.
func sat(a uint64, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}

package program

import "github.com/BjoernBoss/wasmlator-sub001/gen"

// Fetch classifies the instruction at pc for the superblock builder. The
// pc doubles as guest address and as the producer handle.
func (p *Program) Fetch(pc uint64) gen.Instruction {
	if pc >= uint64(len(p.Code)) || !p.K[pc] || !Valid(p.Code[pc]) {
		return gen.Instruction{Address: pc, Type: gen.InstInvalid}
	}
	op := p.Code[pc]
	inst := gen.Instruction{Data: pc, Address: pc, Size: 1 + p.Skip(pc), Type: gen.InstPrimitive}

	switch {
	case op == TRAP || op == JUMP_IND || op == LOAD_IMM_JUMP_IND:
		inst.Type = gen.InstEndOfBlock
	case op == JUMP || op == LOAD_IMM_JUMP:
		inst.Type = gen.InstJumpDirect
		inst.Target = p.Decode(pc).Target
	case IsBranch(op):
		inst.Type = gen.InstConditionalDirect
		inst.Target = p.Decode(pc).Target
	}
	return inst
}

package wasmgen

import (
	"github.com/BjoernBoss/wasmlator-sub001/gen"
	"github.com/BjoernBoss/wasmlator-sub001/pvm/program"
	"github.com/BjoernBoss/wasmlator-sub001/wasm"
)

const mask32 = 0xffffffff

type emitter struct {
	t    *Translator
	w    *gen.Writer
	sink *wasm.Sink
}

type lowerFunc func(e *emitter, i program.Inst) error

// operand pushes one i64 input of an instruction.
type operand func(e *emitter, i program.Inst)

func regA(e *emitter, i program.Inst) { e.get(i.RegA) }
func regB(e *emitter, i program.Inst) { e.get(i.RegB) }
func regD(e *emitter, i program.Inst) { e.get(i.RegD) }
func immX(e *emitter, i program.Inst) { e.imm(i.ImmX) }
func immY(e *emitter, i program.Inst) { e.imm(i.ImmY) }

func destA(i program.Inst) int { return i.RegA }
func destD(i program.Inst) int { return i.RegD }

func (e *emitter) get(r int) {
	e.sink.Add(wasm.I32Const(0), wasm.Access(wasm.OpI64Load, uint32(8*r)))
}

// set stores the single i64 pushed by value into register r.
func (e *emitter) set(r int, value func()) {
	e.sink.Add(wasm.I32Const(0))
	value()
	e.sink.Add(wasm.Access(wasm.OpI64Store, uint32(8*r)))
}

func (e *emitter) imm(v uint64) {
	e.sink.Add(wasm.U64Const(v))
}

func (e *emitter) op(ops ...wasm.Opcode) {
	for _, op := range ops {
		e.sink.Add(wasm.Op(op))
	}
}

func (e *emitter) stepped(i program.Inst) {
	e.imm(i.PC)
	e.sink.Add(wasm.Call(e.t.step))
}

type width uint8

const (
	wide width = iota
	narrow
	shiftLeft32
	shiftRightU32
	shiftRightS32
)

// binary computes a op b, truncating and sign extending 32 bit results.
func (e *emitter) binary(i program.Inst, a operand, b operand, op wasm.Opcode, k width) {
	a(e, i)
	switch k {
	case shiftRightU32:
		e.imm(mask32)
		e.op(wasm.OpI64And)
	case shiftRightS32:
		e.op(wasm.OpI64Extend32S)
	}
	b(e, i)
	if k >= shiftLeft32 {
		e.imm(31)
		e.op(wasm.OpI64And)
	}
	e.op(op)
	if k != wide {
		e.op(wasm.OpI64Extend32S)
	}
}

func arith(dest func(program.Inst) int, a operand, b operand, op wasm.Opcode, k width) lowerFunc {
	return func(e *emitter, i program.Inst) error {
		e.set(dest(i), func() { e.binary(i, a, b, op, k) })
		return nil
	}
}

// setCond stores 1 if the i64 comparison cmp holds, else 0.
func setCond(dest func(program.Inst) int, a operand, b operand, cmp wasm.Opcode) lowerFunc {
	return func(e *emitter, i program.Inst) error {
		e.set(dest(i), func() {
			a(e, i)
			b(e, i)
			e.op(cmp, wasm.OpI64ExtendI32U)
		})
		return nil
	}
}

// choose stores a if cond(b) holds, else keep.
func choose(dest func(program.Inst) int, a operand, keep operand, cond operand, zero bool) lowerFunc {
	return func(e *emitter, i program.Inst) error {
		e.set(dest(i), func() {
			a(e, i)
			keep(e, i)
			cond(e, i)
			e.op(wasm.OpI64Eqz)
			if !zero {
				e.op(wasm.OpI32Eqz)
			}
			e.op(wasm.OpSelect)
		})
		return nil
	}
}

// extreme stores the larger (or smaller) of a and b.
func extreme(cmp wasm.Opcode) lowerFunc {
	return func(e *emitter, i program.Inst) error {
		e.set(i.RegD, func() {
			regA(e, i)
			regB(e, i)
			regA(e, i)
			regB(e, i)
			e.op(cmp, wasm.OpSelect)
		})
		return nil
	}
}

func unary(ops ...wasm.Opcode) lowerFunc {
	return func(e *emitter, i program.Inst) error {
		e.set(i.RegD, func() {
			regA(e, i)
			e.op(ops...)
		})
		return nil
	}
}

func masked(m uint64, ops ...wasm.Opcode) lowerFunc {
	return func(e *emitter, i program.Inst) error {
		e.set(i.RegD, func() {
			regA(e, i)
			e.imm(m)
			e.op(wasm.OpI64And)
			e.op(ops...)
		})
		return nil
	}
}

// not pushes ^b.
func not(b operand) operand {
	return func(e *emitter, i program.Inst) {
		b(e, i)
		e.imm(1<<64 - 1)
		e.op(wasm.OpI64Xor)
	}
}

func sum(a operand, b operand) operand {
	return func(e *emitter, i program.Inst) {
		a(e, i)
		b(e, i)
		e.op(wasm.OpI64Add)
	}
}

func (e *emitter) read(size int32, signed bool) {
	e.sink.Add(wasm.I32Const(size))
	if signed {
		e.sink.Add(wasm.I32Const(1))
	} else {
		e.sink.Add(wasm.I32Const(0))
	}
	e.sink.Add(wasm.Call(e.t.read))
}

func load(dest func(program.Inst) int, address operand, size int32, signed bool) lowerFunc {
	return func(e *emitter, i program.Inst) error {
		e.set(dest(i), func() {
			address(e, i)
			e.read(size, signed)
		})
		return nil
	}
}

func store(address operand, value operand, size int32) lowerFunc {
	return func(e *emitter, i program.Inst) error {
		address(e, i)
		e.sink.Add(wasm.I32Const(size))
		value(e, i)
		e.sink.Add(wasm.Call(e.t.write))
		return nil
	}
}

func move(dest func(program.Inst) int, value operand) lowerFunc {
	return func(e *emitter, i program.Inst) error {
		e.set(dest(i), func() { value(e, i) })
		return nil
	}
}

// branch jumps to the target if the i32 comparison of a and b holds.
func branch(a operand, b operand, cmp wasm.Opcode) lowerFunc {
	return func(e *emitter, i program.Inst) error {
		a(e, i)
		b(e, i)
		e.op(cmp)
		taken := e.sink.If("")
		if err := e.w.Jump(i.Target); err != nil {
			return err
		}
		e.sink.End(taken)
		return nil
	}
}

func lowerTrap(e *emitter, i program.Inst) error {
	e.imm(i.PC)
	e.sink.Add(wasm.Call(e.t.panicF), wasm.Op(wasm.OpUnreachable))
	return nil
}

func lowerFallthrough(e *emitter, i program.Inst) error {
	return nil
}

func lowerEcalli(e *emitter, i program.Inst) error {
	e.sink.Add(wasm.I32Const(int32(uint32(i.ImmX))))
	e.imm(i.PC)
	e.sink.Add(wasm.Call(e.t.ecall))
	return nil
}

func lowerJump(e *emitter, i program.Inst) error {
	return e.w.Jump(i.Target)
}

// lowerLoadImmJump treats a jump that stores the jump table address of
// the following instruction in RA as a call.
func lowerLoadImmJump(e *emitter, i program.Inst) error {
	e.set(i.RegA, func() { e.imm(i.ImmX) })
	if i.RegA == program.RA {
		if ret, ok := e.t.prog.JumpTarget(i.ImmX); ok && ret == i.Next() {
			if err := e.w.Call(i.Target, i.Next()); err != nil {
				return err
			}
			return e.w.Jump(i.Next())
		}
	}
	return e.w.Jump(i.Target)
}

func (e *emitter) dynamic(address operand, i program.Inst) {
	address(e, i)
	e.imm(mask32)
	e.op(wasm.OpI64And)
	e.sink.Add(wasm.Call(e.t.djump))
}

func lowerJumpInd(e *emitter, i program.Inst) error {
	if i.RegA == program.RA && i.ImmX == 0 {
		e.dynamic(regA, i)
		e.w.Return()
		return nil
	}
	e.dynamic(sum(regA, immX), i)
	e.w.JumpIndirect()
	return nil
}

func lowerLoadImmJumpInd(e *emitter, i program.Inst) error {
	e.dynamic(sum(regB, immY), i)
	e.set(i.RegA, func() { e.imm(i.ImmX) })
	e.w.JumpIndirect()
	return nil
}

var lowering = map[byte]lowerFunc{
	// A.5.1 - A.5.3
	program.TRAP:        lowerTrap,
	program.FALLTHROUGH: lowerFallthrough,
	program.ECALLI:      lowerEcalli,
	program.LOAD_IMM_64: move(destA, immX),

	// A.5.4. two immediates
	program.STORE_IMM_U8:  store(immX, immY, 1),
	program.STORE_IMM_U16: store(immX, immY, 2),
	program.STORE_IMM_U32: store(immX, immY, 4),
	program.STORE_IMM_U64: store(immX, immY, 8),

	// A.5.5 - A.5.6
	program.JUMP:      lowerJump,
	program.JUMP_IND:  lowerJumpInd,
	program.LOAD_IMM:  move(destA, immX),
	program.LOAD_U8:   load(destA, immX, 1, false),
	program.LOAD_I8:   load(destA, immX, 1, true),
	program.LOAD_U16:  load(destA, immX, 2, false),
	program.LOAD_I16:  load(destA, immX, 2, true),
	program.LOAD_U32:  load(destA, immX, 4, false),
	program.LOAD_I32:  load(destA, immX, 4, true),
	program.LOAD_U64:  load(destA, immX, 8, false),
	program.STORE_U8:  store(immX, regA, 1),
	program.STORE_U16: store(immX, regA, 2),
	program.STORE_U32: store(immX, regA, 4),
	program.STORE_U64: store(immX, regA, 8),

	// A.5.7. one register, two immediates
	program.STORE_IMM_IND_U8:  store(sum(regA, immX), immY, 1),
	program.STORE_IMM_IND_U16: store(sum(regA, immX), immY, 2),
	program.STORE_IMM_IND_U32: store(sum(regA, immX), immY, 4),
	program.STORE_IMM_IND_U64: store(sum(regA, immX), immY, 8),

	// A.5.8. one register, one immediate, one offset
	program.LOAD_IMM_JUMP:   lowerLoadImmJump,
	program.BRANCH_EQ_IMM:   branch(regA, immX, wasm.OpI64Eq),
	program.BRANCH_NE_IMM:   branch(regA, immX, wasm.OpI64Ne),
	program.BRANCH_LT_U_IMM: branch(regA, immX, wasm.OpI64LtU),
	program.BRANCH_LE_U_IMM: branch(regA, immX, wasm.OpI64LeU),
	program.BRANCH_GE_U_IMM: branch(regA, immX, wasm.OpI64GeU),
	program.BRANCH_GT_U_IMM: branch(regA, immX, wasm.OpI64GtU),
	program.BRANCH_LT_S_IMM: branch(regA, immX, wasm.OpI64LtS),
	program.BRANCH_LE_S_IMM: branch(regA, immX, wasm.OpI64LeS),
	program.BRANCH_GE_S_IMM: branch(regA, immX, wasm.OpI64GeS),
	program.BRANCH_GT_S_IMM: branch(regA, immX, wasm.OpI64GtS),

	// A.5.9. two registers
	program.MOVE_REG:              move(destD, regA),
	program.COUNT_SET_BITS_64:     unary(wasm.OpI64Popcnt),
	program.COUNT_SET_BITS_32:     masked(mask32, wasm.OpI64Popcnt),
	program.LEADING_ZERO_BITS_64:  unary(wasm.OpI64Clz),
	program.TRAILING_ZERO_BITS_64: unary(wasm.OpI64Ctz),
	program.SIGN_EXTEND_8:         unary(wasm.OpI64Extend8S),
	program.SIGN_EXTEND_16:        unary(wasm.OpI64Extend16S),
	program.ZERO_EXTEND_16:        masked(0xffff),

	// A.5.10. two registers, one immediate
	program.STORE_IND_U8:      store(sum(regB, immX), regA, 1),
	program.STORE_IND_U16:     store(sum(regB, immX), regA, 2),
	program.STORE_IND_U32:     store(sum(regB, immX), regA, 4),
	program.STORE_IND_U64:     store(sum(regB, immX), regA, 8),
	program.LOAD_IND_U8:       load(destA, sum(regB, immX), 1, false),
	program.LOAD_IND_I8:       load(destA, sum(regB, immX), 1, true),
	program.LOAD_IND_U16:      load(destA, sum(regB, immX), 2, false),
	program.LOAD_IND_I16:      load(destA, sum(regB, immX), 2, true),
	program.LOAD_IND_U32:      load(destA, sum(regB, immX), 4, false),
	program.LOAD_IND_I32:      load(destA, sum(regB, immX), 4, true),
	program.LOAD_IND_U64:      load(destA, sum(regB, immX), 8, false),
	program.ADD_IMM_32:        arith(destA, regB, immX, wasm.OpI64Add, narrow),
	program.AND_IMM:           arith(destA, regB, immX, wasm.OpI64And, wide),
	program.XOR_IMM:           arith(destA, regB, immX, wasm.OpI64Xor, wide),
	program.OR_IMM:            arith(destA, regB, immX, wasm.OpI64Or, wide),
	program.MUL_IMM_32:        arith(destA, regB, immX, wasm.OpI64Mul, narrow),
	program.SET_LT_U_IMM:      setCond(destA, regB, immX, wasm.OpI64LtU),
	program.SET_LT_S_IMM:      setCond(destA, regB, immX, wasm.OpI64LtS),
	program.SHLO_L_IMM_32:     arith(destA, regB, immX, wasm.OpI64Shl, shiftLeft32),
	program.SHLO_R_IMM_32:     arith(destA, regB, immX, wasm.OpI64ShrU, shiftRightU32),
	program.SHAR_R_IMM_32:     arith(destA, regB, immX, wasm.OpI64ShrS, shiftRightS32),
	program.NEG_ADD_IMM_32:    arith(destA, immX, regB, wasm.OpI64Sub, narrow),
	program.SET_GT_U_IMM:      setCond(destA, regB, immX, wasm.OpI64GtU),
	program.SET_GT_S_IMM:      setCond(destA, regB, immX, wasm.OpI64GtS),
	program.SHLO_L_IMM_ALT_32: arith(destA, immX, regB, wasm.OpI64Shl, shiftLeft32),
	program.SHLO_R_IMM_ALT_32: arith(destA, immX, regB, wasm.OpI64ShrU, shiftRightU32),
	program.SHAR_R_IMM_ALT_32: arith(destA, immX, regB, wasm.OpI64ShrS, shiftRightS32),
	program.CMOV_IZ_IMM:       choose(destA, immX, regA, regB, true),
	program.CMOV_NZ_IMM:       choose(destA, immX, regA, regB, false),
	program.ADD_IMM_64:        arith(destA, regB, immX, wasm.OpI64Add, wide),
	program.MUL_IMM_64:        arith(destA, regB, immX, wasm.OpI64Mul, wide),
	program.SHLO_L_IMM_64:     arith(destA, regB, immX, wasm.OpI64Shl, wide),
	program.SHLO_R_IMM_64:     arith(destA, regB, immX, wasm.OpI64ShrU, wide),
	program.SHAR_R_IMM_64:     arith(destA, regB, immX, wasm.OpI64ShrS, wide),
	program.NEG_ADD_IMM_64:    arith(destA, immX, regB, wasm.OpI64Sub, wide),
	program.SHLO_L_IMM_ALT_64: arith(destA, immX, regB, wasm.OpI64Shl, wide),
	program.SHLO_R_IMM_ALT_64: arith(destA, immX, regB, wasm.OpI64ShrU, wide),
	program.SHAR_R_IMM_ALT_64: arith(destA, immX, regB, wasm.OpI64ShrS, wide),
	program.ROT_R_64_IMM:      arith(destA, regB, immX, wasm.OpI64Rotr, wide),
	program.ROT_R_64_IMM_ALT:  arith(destA, immX, regB, wasm.OpI64Rotr, wide),

	// A.5.11. two registers, one offset
	program.BRANCH_EQ:   branch(regA, regB, wasm.OpI64Eq),
	program.BRANCH_NE:   branch(regA, regB, wasm.OpI64Ne),
	program.BRANCH_LT_U: branch(regA, regB, wasm.OpI64LtU),
	program.BRANCH_LT_S: branch(regA, regB, wasm.OpI64LtS),
	program.BRANCH_GE_U: branch(regA, regB, wasm.OpI64GeU),
	program.BRANCH_GE_S: branch(regA, regB, wasm.OpI64GeS),

	// A.5.12
	program.LOAD_IMM_JUMP_IND: lowerLoadImmJumpInd,

	// A.5.13. three registers
	program.ADD_32:    arith(destD, regA, regB, wasm.OpI64Add, narrow),
	program.SUB_32:    arith(destD, regA, regB, wasm.OpI64Sub, narrow),
	program.MUL_32:    arith(destD, regA, regB, wasm.OpI64Mul, narrow),
	program.SHLO_L_32: arith(destD, regA, regB, wasm.OpI64Shl, shiftLeft32),
	program.SHLO_R_32: arith(destD, regA, regB, wasm.OpI64ShrU, shiftRightU32),
	program.SHAR_R_32: arith(destD, regA, regB, wasm.OpI64ShrS, shiftRightS32),
	program.ADD_64:    arith(destD, regA, regB, wasm.OpI64Add, wide),
	program.SUB_64:    arith(destD, regA, regB, wasm.OpI64Sub, wide),
	program.MUL_64:    arith(destD, regA, regB, wasm.OpI64Mul, wide),
	program.SHLO_L_64: arith(destD, regA, regB, wasm.OpI64Shl, wide),
	program.SHLO_R_64: arith(destD, regA, regB, wasm.OpI64ShrU, wide),
	program.SHAR_R_64: arith(destD, regA, regB, wasm.OpI64ShrS, wide),
	program.AND:       arith(destD, regA, regB, wasm.OpI64And, wide),
	program.XOR:       arith(destD, regA, regB, wasm.OpI64Xor, wide),
	program.OR:        arith(destD, regA, regB, wasm.OpI64Or, wide),
	program.SET_LT_U:  setCond(destD, regA, regB, wasm.OpI64LtU),
	program.SET_LT_S:  setCond(destD, regA, regB, wasm.OpI64LtS),
	program.CMOV_IZ:   choose(destD, regA, regD, regB, true),
	program.CMOV_NZ:   choose(destD, regA, regD, regB, false),
	program.ROT_L_64:  arith(destD, regA, regB, wasm.OpI64Rotl, wide),
	program.ROT_R_64:  arith(destD, regA, regB, wasm.OpI64Rotr, wide),
	program.AND_INV:   arith(destD, regA, not(regB), wasm.OpI64And, wide),
	program.OR_INV:    arith(destD, regA, not(regB), wasm.OpI64Or, wide),
	program.XNOR:      arith(destD, regA, not(regB), wasm.OpI64Xor, wide),
	program.MAX:       extreme(wasm.OpI64GtS),
	program.MAX_U:     extreme(wasm.OpI64GtU),
	program.MIN:       extreme(wasm.OpI64LtS),
	program.MIN_U:     extreme(wasm.OpI64LtU),
}

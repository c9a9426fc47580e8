package program

import (
	"errors"
	"testing"

	"github.com/BjoernBoss/wasmlator-sub001/gen"
	"github.com/BjoernBoss/wasmlator-sub001/transerrors"
)

func TestDecodeCorePart(t *testing.T) {
	b := NewBuilder()
	ret := b.JumpAddress("after")
	b.LoadImmJump(RA, ret, "callee").
		Label("after").
		Op(TRAP).
		Label("callee").
		JumpInd(RA, 0)
	blob, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	prog, err := DecodeCorePart(blob)
	if err != nil {
		t.Fatalf("DecodeCorePart: %v", err)
	}
	if len(prog.J) != 1 || prog.J[0] != 10 {
		t.Errorf("jump table %v, want [10]", prog.J)
	}
	if len(prog.Code) != 17 || len(prog.K) != 17 {
		t.Errorf("code has %d bytes and %d mask bits", len(prog.Code), len(prog.K))
	}
	target, ok := prog.JumpTarget(uint64(ret))
	if !ok || target != 10 {
		t.Errorf("JumpTarget(%d) = %d, %v", ret, target, ok)
	}
	if _, ok := prog.JumpTarget(3); ok {
		t.Errorf("odd jump address resolved")
	}
	if _, ok := prog.JumpTarget(4); ok {
		t.Errorf("jump address past the table resolved")
	}
	if prog.Hash() != (&Program{Z: 4, J: prog.J, Code: prog.Code, K: prog.K}).Hash() {
		t.Errorf("hash differs for the re-encoded program")
	}
}

func TestDecodeCorePartErrors(t *testing.T) {
	good, err := NewBuilder().Op(TRAP).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	cases := map[string][]byte{
		"empty":     nil,
		"truncated": good[:len(good)-1],
		"trailing":  append(append([]byte(nil), good...), 0),
	}
	for name, blob := range cases {
		if _, err := DecodeCorePart(blob); !errors.Is(err, transerrors.ErrPInvalidProgram) {
			t.Errorf("%s: expected invalid program, got %v", name, err)
		}
	}
}

func TestUnknownLabel(t *testing.T) {
	_, err := NewBuilder().Jump("nowhere").Build()
	if !errors.Is(err, transerrors.ErrPUnknownAddress) {
		t.Errorf("expected unknown address, got %v", err)
	}
}

func TestSkip(t *testing.T) {
	prog := &Program{
		Code: make([]byte, 40),
		K:    make([]bool, 40),
	}
	prog.K[0] = true
	prog.K[3] = true
	if got := prog.Skip(0); got != 2 {
		t.Errorf("Skip(0) = %d, want 2", got)
	}
	// capped at 24 even though the next start is further away
	if got := prog.Skip(3); got != 24 {
		t.Errorf("Skip(3) = %d, want 24", got)
	}
	prog.K[39] = true
	// the end of the code counts as an instruction start
	if got := prog.Skip(39); got != 0 {
		t.Errorf("Skip(39) = %d, want 0", got)
	}
}

func TestFetch(t *testing.T) {
	prog := NewBuilder().
		Label("top").
		TwoRegsImm(ADD_IMM_64, 1, 1, 1).
		Branch(BRANCH_LT_U, 1, 2, "top").
		Ecalli(3).
		Jump("top").
		Op(TRAP).
		MustProgram()

	cases := []struct {
		pc     uint64
		kind   gen.InstType
		size   uint64
		target uint64
	}{
		{0, gen.InstPrimitive, 6, 0},
		{6, gen.InstConditionalDirect, 6, 0},
		{12, gen.InstPrimitive, 5, 0},
		{17, gen.InstJumpDirect, 5, 0},
		{22, gen.InstEndOfBlock, 1, 0},
	}
	for _, c := range cases {
		inst := prog.Fetch(c.pc)
		if inst.Type != c.kind || inst.Size != c.size || inst.Target != c.target || inst.Address != c.pc {
			t.Errorf("Fetch(%d) = %+v", c.pc, inst)
		}
	}

	for _, pc := range []uint64{1, 23, 100} {
		if inst := prog.Fetch(pc); inst.Type != gen.InstInvalid {
			t.Errorf("Fetch(%d) = %v, want invalid", pc, inst.Type)
		}
	}
}

func TestDecodeOperands(t *testing.T) {
	prog := NewBuilder().
		LoadImm64(4, 0x1122334455667788).
		BranchImm(BRANCH_GT_S_IMM, 5, 0xffffffff, "back").
		Label("back").
		LoadImmJumpInd(6, 7, 0x10, 0x20).
		TwoImm(STORE_IMM_U32, 0x100, 0x80000000).
		ThreeRegs(SUB_64, 1, 2, 3).
		MustProgram()

	insts := prog.Instructions()
	if insts[0].RegA != 4 || insts[0].ImmX != 0x1122334455667788 {
		t.Errorf("LOAD_IMM_64 %+v", insts[0])
	}
	if insts[1].RegA != 5 || insts[1].ImmX != 1<<64-1 || insts[1].Target != insts[2].PC {
		t.Errorf("BRANCH_GT_S_IMM %+v", insts[1])
	}
	if insts[2].RegA != 6 || insts[2].RegB != 7 || insts[2].ImmX != 0x10 || insts[2].ImmY != 0x20 {
		t.Errorf("LOAD_IMM_JUMP_IND %+v", insts[2])
	}
	if insts[3].ImmX != 0x100 || insts[3].ImmY != 0xffffffff80000000 {
		t.Errorf("STORE_IMM_U32 %+v", insts[3])
	}
	if insts[4].RegA != 1 || insts[4].RegB != 2 || insts[4].RegD != 3 {
		t.Errorf("SUB_64 %+v", insts[4])
	}
}

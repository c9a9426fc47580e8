package wasmgen

import (
	"fmt"

	"github.com/BjoernBoss/wasmlator-sub001/gen"
	"github.com/BjoernBoss/wasmlator-sub001/log"
	"github.com/BjoernBoss/wasmlator-sub001/pvm/program"
	"github.com/BjoernBoss/wasmlator-sub001/wasm"
)

const (
	contextModule = "ctx"
	memoryModule  = "mem"
)

// Translator lowers PVM instructions to wasm. Guest registers live in the
// imported memory ctx.memory as 13 little endian i64 at offset 8*r;
// guest memory is reached through the mem.read and mem.write imports.
type Translator struct {
	prog *program.Program

	read   *wasm.Function
	write  *wasm.Function
	ecall  *wasm.Function
	step   *wasm.Function
	djump  *wasm.Function
	panicF *wasm.Function

	// Native and Stepped count the lowered instructions per opcode.
	Native  map[byte]int
	Stepped map[byte]int
}

var _ gen.Translator = (*Translator)(nil)

func New(prog *program.Program) *Translator {
	return &Translator{
		prog:    prog,
		Native:  make(map[byte]int),
		Stepped: make(map[byte]int),
	}
}

func (t *Translator) Setup(mw *gen.ModuleWriter) error {
	mod := mw.Module()
	mod.ImportMemory(contextModule, "memory", 1)

	i32, i64 := wasm.I32, wasm.I64
	t.read = mod.ImportFunction(memoryModule, "read", mod.Prototype([]wasm.ValType{i64, i32, i32}, []wasm.ValType{i64}))
	t.write = mod.ImportFunction(memoryModule, "write", mod.Prototype([]wasm.ValType{i64, i32, i64}, nil))
	t.ecall = mod.ImportFunction(contextModule, "ecall", mod.Prototype([]wasm.ValType{i32, i64}, nil))
	t.step = mod.ImportFunction(contextModule, "step", mod.Prototype([]wasm.ValType{i64}, nil))
	t.djump = mod.ImportFunction(contextModule, "djump", mod.Prototype([]wasm.ValType{i64}, []wasm.ValType{i64}))
	t.panicF = mod.ImportFunction(contextModule, "panic", mod.Prototype([]wasm.ValType{i64}, nil))
	return nil
}

func (t *Translator) Started(w *gen.Writer) error {
	log.Trace(log.PvmGenerating, "block started", "pc", w.Address())
	return nil
}

func (t *Translator) Completed(w *gen.Writer) error {
	log.Trace(log.PvmGenerating, "block completed", "pc", w.Address())
	return nil
}

func (t *Translator) Fetch(address uint64) gen.Instruction {
	return t.prog.Fetch(address)
}

func (t *Translator) Produce(w *gen.Writer, address uint64, chunk []gen.Instruction) error {
	e := &emitter{t: t, w: w, sink: w.Sink()}
	for _, in := range chunk {
		if in.Address != address {
			return fmt.Errorf("chunk gap at 0x%x, expected 0x%x", in.Address, address)
		}
		address += in.Size

		inst := t.prog.Decode(in.Data)
		lower, ok := lowering[inst.Opcode]
		if !ok {
			e.stepped(inst)
			t.Stepped[inst.Opcode]++
			continue
		}
		if err := lower(e, inst); err != nil {
			return fmt.Errorf("%s at %d: %w", program.OpcodeToString(inst.Opcode), inst.PC, err)
		}
		t.Native[inst.Opcode]++
	}
	return nil
}

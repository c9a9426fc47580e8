package wasm

import (
	"fmt"
	"strings"
)

// Instr is one recorded instruction. Structured control instructions are
// created through the Sink and carry their label.
type Instr struct {
	Op    Opcode
	Value int64
	Type  ValType
	Func  *Function
	Table *Table
	Proto *Prototype
	Label *Target
}

func Op(op Opcode) Instr {
	return Instr{Op: op}
}

func I32Const(v int32) Instr {
	return Instr{Op: OpI32Const, Value: int64(v)}
}

func I64Const(v int64) Instr {
	return Instr{Op: OpI64Const, Value: v}
}

// U64Const encodes v as the equivalent signed i64 constant.
func U64Const(v uint64) Instr {
	return Instr{Op: OpI64Const, Value: int64(v)}
}

func LocalGet(v Variable) Instr {
	return Instr{Op: OpLocalGet, Value: int64(v.Index), Type: v.Type}
}

func LocalSet(v Variable) Instr {
	return Instr{Op: OpLocalSet, Value: int64(v.Index), Type: v.Type}
}

func LocalTee(v Variable) Instr {
	return Instr{Op: OpLocalTee, Value: int64(v.Index), Type: v.Type}
}

func Call(f *Function) Instr {
	return Instr{Op: OpCall, Func: f}
}

func ReturnCall(f *Function) Instr {
	return Instr{Op: OpReturnCall, Func: f}
}

func CallIndirect(t *Table, p *Prototype) Instr {
	return Instr{Op: OpCallIndirect, Table: t, Proto: p}
}

func ReturnCallIndirect(t *Table, p *Prototype) Instr {
	return Instr{Op: OpReturnCallIndirect, Table: t, Proto: p}
}

func TableGet(t *Table) Instr {
	return Instr{Op: OpTableGet, Table: t}
}

func TableSet(t *Table) Instr {
	return Instr{Op: OpTableSet, Table: t}
}

func RefNull(t ValType) Instr {
	return Instr{Op: OpRefNull, Type: t}
}

// Access builds a load or store on memory 0 with natural alignment.
func Access(op Opcode, offset uint32) Instr {
	return Instr{Op: op, Value: int64(offset)}
}

// Br and BrIf resolve their relative depth when added to the sink.
func Br(t *Target) Instr {
	return Instr{Op: OpBr, Label: t}
}

func BrIf(t *Target) Instr {
	return Instr{Op: OpBrIf, Label: t}
}

func (i Instr) String() string {
	var sb strings.Builder
	sb.WriteString(i.Op.String())
	switch i.Op {
	case OpBlock, OpLoop, OpIf:
		if i.Label != nil && i.Label.name != "" {
			fmt.Fprintf(&sb, " $%s", i.Label.name)
		}
	case OpBr, OpBrIf:
		if i.Label != nil && i.Label.name != "" {
			fmt.Fprintf(&sb, " $%s", i.Label.name)
		}
		fmt.Fprintf(&sb, " (%d)", i.Value)
	case OpCall, OpReturnCall:
		fmt.Fprintf(&sb, " $%s", i.Func.Name)
	case OpCallIndirect, OpReturnCallIndirect:
		fmt.Fprintf(&sb, " $%s (type %s)", i.Table.Name, i.Proto)
	case OpTableGet, OpTableSet:
		fmt.Fprintf(&sb, " $%s", i.Table.Name)
	case OpLocalGet, OpLocalSet, OpLocalTee:
		fmt.Fprintf(&sb, " %d", i.Value)
	case OpI32Const, OpI64Const:
		fmt.Fprintf(&sb, " %d", i.Value)
	case OpRefNull:
		fmt.Fprintf(&sb, " %s", i.Type)
	default:
		if i.Op.accessSize() != 0 && i.Value != 0 {
			fmt.Fprintf(&sb, " offset=%d", i.Value)
		}
	}
	return sb.String()
}

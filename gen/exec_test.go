package gen

import (
	"errors"
	"fmt"

	"github.com/BjoernBoss/wasmlator-sub001/wasm"
)

var errTrap = errors.New("trap")

type hostFunc func(args []uint64) (uint64, error)

// machine interprets the subset of wasm emitted by the translator. Function
// references are stored on the value stack as index+1 into refs, 0 is null.
// Imported tables are shared by name between all loaded modules.
type machine struct {
	imports map[string]hostFunc
	tables  map[*wasm.Table][]uint64
	shared  map[string][]uint64
	refs    []*wasm.Function
	calls   int
}

func newMachine() *machine {
	return &machine{
		imports: make(map[string]hostFunc),
		tables:  make(map[*wasm.Table][]uint64),
		shared:  make(map[string][]uint64),
	}
}

func (m *machine) slots(t *wasm.Table) []uint64 {
	if t.Imported() {
		return m.shared[t.Name]
	}
	return m.tables[t]
}

func (m *machine) ref(f *wasm.Function) uint64 {
	for i, r := range m.refs {
		if r == f {
			return uint64(i + 1)
		}
	}
	m.refs = append(m.refs, f)
	return uint64(len(m.refs))
}

type control struct {
	op     wasm.Opcode
	start  int
	end    int
	height int
}

func matchStructure(code []wasm.Instr) (map[int]int, map[int]int) {
	ends := make(map[int]int)
	elses := make(map[int]int)
	var open []int
	for i, in := range code {
		switch in.Op {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			open = append(open, i)
		case wasm.OpElse:
			elses[open[len(open)-1]] = i
		case wasm.OpEnd:
			ends[open[len(open)-1]] = i
			open = open[:len(open)-1]
		}
	}
	return ends, elses
}

func (m *machine) invoke(f *wasm.Function, args []uint64) (uint64, error) {
	if f.Imported() {
		h, ok := m.imports[f.Name]
		if !ok {
			return 0, fmt.Errorf("import %s not bound", f.Name)
		}
		return h(args)
	}
	for {
		m.calls++
		if m.calls > 100000 {
			return 0, fmt.Errorf("call budget exhausted")
		}
		result, tail, err := m.run(f, args)
		if err != nil || tail == nil {
			return result, err
		}
		if tail.Imported() {
			return m.invoke(tail, nil)
		}
		f, args = tail, nil
	}
}

func (m *machine) tableFunc(t *wasm.Table, index uint64) (*wasm.Function, error) {
	slots := m.slots(t)
	if index >= uint64(len(slots)) || slots[index] == 0 {
		return nil, fmt.Errorf("table %s slot %d: %w", t.Name, index, errTrap)
	}
	return m.refs[slots[index]-1], nil
}

// run executes one activation. A tail call is returned to the caller loop.
func (m *machine) run(f *wasm.Function, args []uint64) (uint64, *wasm.Function, error) {
	code := f.Body()
	ends, elses := matchStructure(code)
	locals := make([]uint64, len(f.Proto.Params)+len(f.Locals()))
	copy(locals, args)

	var vs []uint64
	var ctl []control
	pop := func() uint64 {
		v := vs[len(vs)-1]
		vs = vs[:len(vs)-1]
		return v
	}
	result := func() uint64 {
		if len(f.Proto.Results) == 0 || len(vs) == 0 {
			return 0
		}
		return vs[len(vs)-1]
	}
	branch := func(depth int) int {
		c := ctl[len(ctl)-1-depth]
		vs = vs[:c.height]
		if c.op == wasm.OpLoop {
			ctl = ctl[:len(ctl)-depth]
			return c.start + 1
		}
		ctl = ctl[:len(ctl)-1-depth]
		return c.end + 1
	}

	for pc := 0; pc < len(code); {
		in := code[pc]
		switch in.Op {
		case wasm.OpNop:
		case wasm.OpUnreachable:
			return 0, nil, errTrap
		case wasm.OpBlock, wasm.OpLoop:
			ctl = append(ctl, control{in.Op, pc, ends[pc], len(vs)})
		case wasm.OpIf:
			cond := pop()
			ctl = append(ctl, control{in.Op, pc, ends[pc], len(vs)})
			if cond == 0 {
				if e, ok := elses[pc]; ok {
					pc = e + 1
				} else {
					pc = ends[pc]
				}
				continue
			}
		case wasm.OpElse:
			pc = ctl[len(ctl)-1].end
			continue
		case wasm.OpEnd:
			ctl = ctl[:len(ctl)-1]
		case wasm.OpBr:
			pc = branch(int(in.Value))
			continue
		case wasm.OpBrIf:
			if pop() != 0 {
				pc = branch(int(in.Value))
				continue
			}
		case wasm.OpReturn:
			return result(), nil, nil
		case wasm.OpCall:
			callArgs := make([]uint64, len(in.Func.Proto.Params))
			for i := len(callArgs) - 1; i >= 0; i-- {
				callArgs[i] = pop()
			}
			r, err := m.invoke(in.Func, callArgs)
			if err != nil {
				return 0, nil, err
			}
			if len(in.Func.Proto.Results) > 0 {
				vs = append(vs, r)
			}
		case wasm.OpReturnCall:
			return 0, in.Func, nil
		case wasm.OpCallIndirect, wasm.OpReturnCallIndirect:
			callee, err := m.tableFunc(in.Table, pop())
			if err != nil {
				return 0, nil, err
			}
			if in.Op == wasm.OpReturnCallIndirect {
				return 0, callee, nil
			}
			r, err := m.invoke(callee, nil)
			if err != nil {
				return 0, nil, err
			}
			vs = append(vs, r)
		case wasm.OpTableGet:
			index := pop()
			slots := m.slots(in.Table)
			if index >= uint64(len(slots)) {
				return 0, nil, errTrap
			}
			vs = append(vs, slots[index])
		case wasm.OpTableSet:
			value := pop()
			index := pop()
			slots := m.slots(in.Table)
			if index >= uint64(len(slots)) {
				return 0, nil, errTrap
			}
			slots[index] = value
		case wasm.OpRefIsNull:
			vs = append(vs, boolValue(pop() == 0))
		case wasm.OpDrop:
			pop()
		case wasm.OpLocalGet:
			vs = append(vs, locals[in.Value])
		case wasm.OpLocalSet:
			locals[in.Value] = pop()
		case wasm.OpLocalTee:
			locals[in.Value] = vs[len(vs)-1]
		case wasm.OpI32Const:
			vs = append(vs, uint64(uint32(in.Value)))
		case wasm.OpI64Const:
			vs = append(vs, uint64(in.Value))
		case wasm.OpI32Eqz, wasm.OpI64Eqz:
			vs = append(vs, boolValue(pop() == 0))
		case wasm.OpI64Eq:
			b, a := pop(), pop()
			vs = append(vs, boolValue(a == b))
		case wasm.OpI64Ne:
			b, a := pop(), pop()
			vs = append(vs, boolValue(a != b))
		default:
			return 0, nil, fmt.Errorf("opcode %s not supported", in.Op)
		}
		pc++
	}
	return result(), nil, nil
}

func boolValue(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

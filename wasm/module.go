package wasm

import (
	"fmt"

	"github.com/BjoernBoss/wasmlator-sub001/transerrors"
)

// Prototype is a deduplicated function signature.
type Prototype struct {
	Params  []ValType
	Results []ValType
	index   uint32
}

func (p *Prototype) String() string {
	return fmt.Sprintf("%v -> %v", p.Params, p.Results)
}

type Function struct {
	Name  string
	Proto *Prototype

	module       *Module
	importModule string
	exported     bool
	index        uint32

	hasBody bool
	locals  []ValType
	code    []Instr
}

func (f *Function) Imported() bool { return f.importModule != "" }
func (f *Function) Exported() bool { return f.exported }

// Body returns the instructions committed by the sink, nil until then.
func (f *Function) Body() []Instr { return f.code }

// Locals returns the declared locals excluding parameters.
func (f *Function) Locals() []ValType { return f.locals }

type Table struct {
	Name string
	Elem ValType
	Min  uint32
	Max  uint32

	module       *Module
	importModule string
	exported     bool
	hasMax       bool
	index        uint32
}

// Limit fixes the final size of a table defined in this module.
func (t *Table) Limit(min uint32, max uint32) {
	t.Min, t.Max, t.hasMax = min, max, true
}

func (t *Table) Imported() bool { return t.importModule != "" }

type Memory struct {
	Name string
	Min  uint32

	module       *Module
	importModule string
	index        uint32
}

// Module collects everything of one translation unit. Objects keep
// pointers to each other; indices are assigned once when encoding.
type Module struct {
	protos   []*Prototype
	funcs    []*Function
	tables   []*Table
	memories []*Memory
	start    *Function
	encoded  bool
}

func NewModule() *Module {
	return &Module{}
}

// Prototype returns the unique prototype for the given signature.
func (m *Module) Prototype(params []ValType, results []ValType) *Prototype {
	for _, p := range m.protos {
		if equalTypes(p.Params, params) && equalTypes(p.Results, results) {
			return p
		}
	}
	p := &Prototype{
		Params:  append([]ValType(nil), params...),
		Results: append([]ValType(nil), results...),
		index:   uint32(len(m.protos)),
	}
	m.protos = append(m.protos, p)
	return p
}

func equalTypes(a []ValType, b []ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ImportFunction declares (or returns the already declared) function import.
func (m *Module) ImportFunction(module string, name string, proto *Prototype) *Function {
	for _, f := range m.funcs {
		if f.importModule == module && f.Name == name {
			return f
		}
	}
	f := &Function{Name: name, Proto: proto, module: m, importModule: module}
	m.funcs = append(m.funcs, f)
	return f
}

// Function declares a function defined in this module. Its body is
// provided later by closing a Sink on it.
func (m *Module) Function(name string, proto *Prototype, export bool) *Function {
	f := &Function{Name: name, Proto: proto, module: m, exported: export}
	m.funcs = append(m.funcs, f)
	return f
}

func (m *Module) ImportTable(module string, name string, elem ValType, min uint32) *Table {
	for _, t := range m.tables {
		if t.importModule == module && t.Name == name {
			return t
		}
	}
	t := &Table{Name: name, Elem: elem, Min: min, module: m, importModule: module}
	m.tables = append(m.tables, t)
	return t
}

func (m *Module) Table(name string, elem ValType, export bool) *Table {
	t := &Table{Name: name, Elem: elem, module: m, exported: export}
	m.tables = append(m.tables, t)
	return t
}

func (m *Module) ImportMemory(module string, name string, min uint32) *Memory {
	for _, mem := range m.memories {
		if mem.importModule == module && mem.Name == name {
			return mem
		}
	}
	mem := &Memory{Name: name, Min: min, module: m, importModule: module}
	m.memories = append(m.memories, mem)
	return mem
}

// SetStart registers f as the start function run on instantiation.
func (m *Module) SetStart(f *Function) {
	m.start = f
}

func (m *Module) Start() *Function { return m.start }

// Lookup returns the defined or imported function with the given name.
func (m *Module) Lookup(name string) *Function {
	for _, f := range m.funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Functions returns all functions in declaration order.
func (m *Module) Functions() []*Function {
	return m.funcs
}

func (m *Module) Tables() []*Table {
	return m.tables
}

// Exports returns the names of all exported functions in declaration order.
func (m *Module) Exports() []string {
	var names []string
	for _, f := range m.funcs {
		if f.exported {
			names = append(names, f.Name)
		}
	}
	return names
}

func (m *Module) owns(f *Function) error {
	if f == nil || f.module != m {
		return fmt.Errorf("function %v: %w", f, transerrors.ErrWForeignObject)
	}
	return nil
}

// assignIndices numbers each index space with imports first.
func (m *Module) assignIndices() {
	var n uint32
	for _, f := range m.funcs {
		if f.Imported() {
			f.index = n
			n++
		}
	}
	for _, f := range m.funcs {
		if !f.Imported() {
			f.index = n
			n++
		}
	}
	n = 0
	for _, t := range m.tables {
		if t.Imported() {
			t.index = n
			n++
		}
	}
	for _, t := range m.tables {
		if !t.Imported() {
			t.index = n
			n++
		}
	}
	for i, mem := range m.memories {
		mem.index = uint32(i)
	}
}

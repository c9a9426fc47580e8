package wasm

import (
	"fmt"
	"math/bits"

	"github.com/BjoernBoss/wasmlator-sub001/log"
	"github.com/BjoernBoss/wasmlator-sub001/transerrors"
)

// Encode produces the binary module. The module must not be changed afterwards.
func (m *Module) Encode() ([]byte, error) {
	if m.encoded {
		return nil, transerrors.ErrWModuleFinished
	}
	m.assignIndices()
	for _, f := range m.funcs {
		if !f.Imported() && !f.hasBody {
			return nil, fmt.Errorf("function %s: %w", f.Name, transerrors.ErrWMissingBody)
		}
	}

	var out []byte
	out = append(out, 0x00, 0x61, 0x73, 0x6d) // \0asm
	out = append(out, 0x01, 0x00, 0x00, 0x00) // version 1

	if len(m.protos) > 0 {
		out = encodeSection(out, secType, m.encodeTypeSection())
	}
	if payload, n := m.encodeImportSection(); n > 0 {
		out = encodeSection(out, secImport, payload)
	}
	if payload, n := m.encodeFuncSection(); n > 0 {
		out = encodeSection(out, secFunction, payload)
	}
	if payload, n := m.encodeTableSection(); n > 0 {
		out = encodeSection(out, secTable, payload)
	}
	if payload, n := m.encodeExportSection(); n > 0 {
		out = encodeSection(out, secExport, payload)
	}
	if m.start != nil {
		if err := m.owns(m.start); err != nil {
			return nil, err
		}
		out = encodeSection(out, secStart, appendULEB128(nil, uint64(m.start.index)))
	}
	code, n, err := m.encodeCodeSection()
	if err != nil {
		return nil, err
	}
	if n > 0 {
		out = encodeSection(out, secCode, code)
	}
	m.encoded = true
	log.Debug(log.WasmMonitoring, "module encoded", "bytes", len(out), "functions", len(m.funcs), "tables", len(m.tables))
	return out, nil
}

func encodeSection(out []byte, id byte, payload []byte) []byte {
	out = append(out, id)
	out = appendULEB128(out, uint64(len(payload)))
	return append(out, payload...)
}

func appendLimits(buf []byte, min uint32, max uint32, hasMax bool) []byte {
	if hasMax {
		buf = append(buf, limitsWithMax)
		buf = appendULEB128(buf, uint64(min))
		return appendULEB128(buf, uint64(max))
	}
	buf = append(buf, limitsNoMax)
	return appendULEB128(buf, uint64(min))
}

func (m *Module) encodeTypeSection() []byte {
	var buf []byte
	buf = appendULEB128(buf, uint64(len(m.protos)))
	for _, p := range m.protos {
		buf = append(buf, typeFunc)
		buf = appendULEB128(buf, uint64(len(p.Params)))
		for _, t := range p.Params {
			buf = append(buf, byte(t))
		}
		buf = appendULEB128(buf, uint64(len(p.Results)))
		for _, t := range p.Results {
			buf = append(buf, byte(t))
		}
	}
	return buf
}

// imports are written functions first, then tables, then memories, which
// matches the order used by assignIndices
func (m *Module) encodeImportSection() ([]byte, int) {
	var entries []byte
	n := 0
	for _, f := range m.funcs {
		if !f.Imported() {
			continue
		}
		entries = appendName(entries, f.importModule)
		entries = appendName(entries, f.Name)
		entries = append(entries, extFunc)
		entries = appendULEB128(entries, uint64(f.Proto.index))
		n++
	}
	for _, t := range m.tables {
		if !t.Imported() {
			continue
		}
		entries = appendName(entries, t.importModule)
		entries = appendName(entries, t.Name)
		entries = append(entries, extTable, byte(t.Elem))
		entries = appendLimits(entries, t.Min, t.Max, t.hasMax)
		n++
	}
	for _, mem := range m.memories {
		entries = appendName(entries, mem.importModule)
		entries = appendName(entries, mem.Name)
		entries = append(entries, extMemory)
		entries = appendLimits(entries, mem.Min, 0, false)
		n++
	}
	return append(appendULEB128(nil, uint64(n)), entries...), n
}

func (m *Module) encodeFuncSection() ([]byte, int) {
	var entries []byte
	n := 0
	for _, f := range m.funcs {
		if f.Imported() {
			continue
		}
		entries = appendULEB128(entries, uint64(f.Proto.index))
		n++
	}
	return append(appendULEB128(nil, uint64(n)), entries...), n
}

func (m *Module) encodeTableSection() ([]byte, int) {
	var entries []byte
	n := 0
	for _, t := range m.tables {
		if t.Imported() {
			continue
		}
		entries = append(entries, byte(t.Elem))
		entries = appendLimits(entries, t.Min, t.Max, t.hasMax)
		n++
	}
	return append(appendULEB128(nil, uint64(n)), entries...), n
}

func (m *Module) encodeExportSection() ([]byte, int) {
	var entries []byte
	n := 0
	for _, f := range m.funcs {
		if f.exported {
			entries = appendName(entries, f.Name)
			entries = append(entries, extFunc)
			entries = appendULEB128(entries, uint64(f.index))
			n++
		}
	}
	for _, t := range m.tables {
		if t.exported {
			entries = appendName(entries, t.Name)
			entries = append(entries, extTable)
			entries = appendULEB128(entries, uint64(t.index))
			n++
		}
	}
	return append(appendULEB128(nil, uint64(n)), entries...), n
}

func (m *Module) encodeCodeSection() ([]byte, int, error) {
	var entries []byte
	n := 0
	for _, f := range m.funcs {
		if f.Imported() {
			continue
		}
		body, err := m.encodeFuncBody(f)
		if err != nil {
			return nil, 0, fmt.Errorf("function %s: %w", f.Name, err)
		}
		entries = appendULEB128(entries, uint64(len(body)))
		entries = append(entries, body...)
		n++
	}
	return append(appendULEB128(nil, uint64(n)), entries...), n, nil
}

// encodeFuncBody builds a complete code entry: local declarations + body + end.
func (m *Module) encodeFuncBody(f *Function) ([]byte, error) {
	var groups []byte
	count := 0
	for i := 0; i < len(f.locals); {
		j := i
		for j < len(f.locals) && f.locals[j] == f.locals[i] {
			j++
		}
		groups = appendULEB128(groups, uint64(j-i))
		groups = append(groups, byte(f.locals[i]))
		count++
		i = j
	}
	buf := appendULEB128(nil, uint64(count))
	buf = append(buf, groups...)

	for _, in := range f.code {
		var err error
		if buf, err = m.appendInstr(buf, in); err != nil {
			return nil, err
		}
	}
	return append(buf, byte(OpEnd)), nil
}

func (m *Module) appendInstr(buf []byte, in Instr) ([]byte, error) {
	buf = append(buf, byte(in.Op))
	switch in.Op {
	case OpBlock, OpLoop, OpIf:
		buf = append(buf, typeEmptyBlk)
	case OpBr, OpBrIf:
		buf = appendULEB128(buf, uint64(in.Value))
	case OpCall, OpReturnCall:
		if err := m.owns(in.Func); err != nil {
			return nil, err
		}
		buf = appendULEB128(buf, uint64(in.Func.index))
	case OpCallIndirect, OpReturnCallIndirect:
		if in.Table.module != m {
			return nil, fmt.Errorf("table %s: %w", in.Table.Name, transerrors.ErrWForeignObject)
		}
		buf = appendULEB128(buf, uint64(in.Proto.index))
		buf = appendULEB128(buf, uint64(in.Table.index))
	case OpTableGet, OpTableSet:
		if in.Table.module != m {
			return nil, fmt.Errorf("table %s: %w", in.Table.Name, transerrors.ErrWForeignObject)
		}
		buf = appendULEB128(buf, uint64(in.Table.index))
	case OpLocalGet, OpLocalSet, OpLocalTee:
		buf = appendULEB128(buf, uint64(in.Value))
	case OpI32Const:
		buf = appendSLEB128(buf, int64(int32(in.Value)))
	case OpI64Const:
		buf = appendSLEB128(buf, in.Value)
	case OpRefNull:
		buf = append(buf, byte(in.Type))
	default:
		if size := in.Op.accessSize(); size != 0 {
			buf = appendULEB128(buf, uint64(bits.TrailingZeros32(size)))
			buf = appendULEB128(buf, uint64(uint32(in.Value)))
		}
	}
	return buf, nil
}

package wasm

import (
	"fmt"
	"strings"
)

// Text renders a readable listing of the module, loosely following the
// wasm text format.
func (m *Module) Text() string {
	var sb strings.Builder
	sb.WriteString("(module\n")
	for _, mem := range m.memories {
		fmt.Fprintf(&sb, "  (import %q %q (memory %d))\n", mem.importModule, mem.Name, mem.Min)
	}
	for _, t := range m.tables {
		switch {
		case t.Imported():
			fmt.Fprintf(&sb, "  (import %q %q (table %d %s))\n", t.importModule, t.Name, t.Min, t.Elem)
		case t.exported:
			fmt.Fprintf(&sb, "  (table $%s (export %q) %d %d %s)\n", t.Name, t.Name, t.Min, t.Max, t.Elem)
		default:
			fmt.Fprintf(&sb, "  (table $%s %d %d %s)\n", t.Name, t.Min, t.Max, t.Elem)
		}
	}
	for _, f := range m.funcs {
		if f.Imported() {
			fmt.Fprintf(&sb, "  (import %q %q (func $%s %s))\n", f.importModule, f.Name, f.Name, f.Proto)
		}
	}
	for _, f := range m.funcs {
		if f.Imported() {
			continue
		}
		fmt.Fprintf(&sb, "  (func $%s", f.Name)
		if f.exported {
			fmt.Fprintf(&sb, " (export %q)", f.Name)
		}
		fmt.Fprintf(&sb, " %s\n", f.Proto)
		for i, l := range f.locals {
			fmt.Fprintf(&sb, "    (local %d %s)\n", len(f.Proto.Params)+i, l)
		}
		indent := 2
		for _, in := range f.code {
			if in.Op == OpEnd || in.Op == OpElse {
				indent--
			}
			fmt.Fprintf(&sb, "%s%s\n", strings.Repeat("  ", indent+1), in)
			if in.Op == OpBlock || in.Op == OpLoop || in.Op == OpIf || in.Op == OpElse {
				indent++
			}
		}
		sb.WriteString("  )\n")
	}
	if m.start != nil {
		fmt.Fprintf(&sb, "  (start $%s)\n", m.start.Name)
	}
	sb.WriteString(")\n")
	return sb.String()
}

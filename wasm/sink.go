package wasm

import (
	"fmt"

	"github.com/BjoernBoss/wasmlator-sub001/transerrors"
)

// Variable is a parameter or local of the function being written.
type Variable struct {
	Index uint32
	Type  ValType
	Name  string
}

// Target is the label of an open block, loop or if.
type Target struct {
	name  string
	kind  Opcode
	level int
	open  bool
	sink  *Sink
}

func (t *Target) Name() string { return t.name }
func (t *Target) IsLoop() bool { return t.kind == OpLoop }

// Sink records the body of one function. Misuse such as branching to a
// closed label is remembered and reported by Close.
type Sink struct {
	fn     *Function
	locals []ValType
	names  []string
	code   []Instr
	stack  []*Target
	err    error
	closed bool
}

func NewSink(fn *Function) *Sink {
	return &Sink{fn: fn}
}

func (s *Sink) Function() *Function { return s.fn }

func (s *Sink) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}

// Param returns the i-th parameter of the function.
func (s *Sink) Param(i int) Variable {
	return Variable{Index: uint32(i), Type: s.fn.Proto.Params[i]}
}

// Local declares a new local of type t.
func (s *Sink) Local(t ValType, name string) Variable {
	v := Variable{
		Index: uint32(len(s.fn.Proto.Params) + len(s.locals)),
		Type:  t,
		Name:  name,
	}
	s.locals = append(s.locals, t)
	s.names = append(s.names, name)
	return v
}

// Add appends instructions, resolving branch depths against the open labels.
func (s *Sink) Add(instrs ...Instr) {
	if s.closed {
		s.fail(transerrors.ErrWSinkClosed)
		return
	}
	for _, in := range instrs {
		if in.Op == OpBr || in.Op == OpBrIf {
			depth, err := s.depth(in.Label)
			if err != nil {
				s.fail(err)
				continue
			}
			in.Value = int64(depth)
		}
		s.code = append(s.code, in)
	}
}

func (s *Sink) depth(t *Target) (int, error) {
	if t == nil || t.sink != s || !t.open {
		return 0, transerrors.ErrWLabelNotOpen
	}
	return len(s.stack) - 1 - t.level, nil
}

func (s *Sink) push(kind Opcode, name string) *Target {
	t := &Target{name: name, kind: kind, level: len(s.stack), open: true, sink: s}
	s.stack = append(s.stack, t)
	s.code = append(s.code, Instr{Op: kind, Label: t})
	return t
}

func (s *Sink) Block(name string) *Target { return s.push(OpBlock, name) }
func (s *Sink) Loop(name string) *Target  { return s.push(OpLoop, name) }

// If consumes an i32 condition from the stack.
func (s *Sink) If(name string) *Target { return s.push(OpIf, name) }

func (s *Sink) Else(t *Target) {
	if len(s.stack) == 0 || s.stack[len(s.stack)-1] != t || t.kind != OpIf {
		s.fail(fmt.Errorf("else: %w", transerrors.ErrWLabelNotOpen))
		return
	}
	s.code = append(s.code, Instr{Op: OpElse, Label: t})
}

// End closes t, which must be the innermost open label.
func (s *Sink) End(t *Target) {
	if len(s.stack) == 0 || s.stack[len(s.stack)-1] != t {
		s.fail(fmt.Errorf("end: %w", transerrors.ErrWLabelNotOpen))
		return
	}
	t.open = false
	s.stack = s.stack[:len(s.stack)-1]
	s.code = append(s.code, Instr{Op: OpEnd, Label: t})
}

// Depth returns the number of currently open labels.
func (s *Sink) Depth() int {
	return len(s.stack)
}

// Instructions returns what has been recorded so far.
func (s *Sink) Instructions() []Instr {
	return s.code
}

// Close commits the body to the function.
func (s *Sink) Close() error {
	if s.closed {
		return transerrors.ErrWSinkClosed
	}
	s.closed = true
	if s.err != nil {
		return fmt.Errorf("function %s: %w", s.fn.Name, s.err)
	}
	if len(s.stack) != 0 {
		return fmt.Errorf("function %s: %d labels: %w", s.fn.Name, len(s.stack), transerrors.ErrWOpenScaffolds)
	}
	s.fn.locals = s.locals
	s.fn.code = s.code
	s.fn.hasBody = true
	return nil
}

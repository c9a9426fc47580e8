package gen

import (
	"context"
	"errors"
	"testing"

	"github.com/BjoernBoss/wasmlator-sub001/wasm"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

const (
	graphBase   = 0x1000
	graphStride = 4
	exitValue   = 0xdead
)

// node is one instruction of a synthetic jump graph; target is an index.
type node struct {
	kind   InstType
	target int
}

func addressOf(i int) uint64 {
	return graphBase + uint64(i)*graphStride
}

func indexOf(address uint64) (int, bool) {
	if address < graphBase || (address-graphBase)%graphStride != 0 {
		return 0, false
	}
	return int((address - graphBase) / graphStride), true
}

// graphTranslator decodes a node list and produces code that reports every
// executed instruction to the import test.trace and asks test.cond for
// the outcome of each conditional branch.
type graphTranslator struct {
	nodes  []node
	trace  *wasm.Function
	cond   *wasm.Function
	chunks [][]Instruction
	// unresolved lists targets inside the superblock HasTarget did not find
	unresolved []uint64
	started    []uint64
}

func (g *graphTranslator) Setup(mw *ModuleWriter) error {
	mod := mw.Module()
	g.trace = mod.ImportFunction("test", "trace", mod.Prototype([]wasm.ValType{wasm.I64}, nil))
	g.cond = mod.ImportFunction("test", "cond", mod.Prototype([]wasm.ValType{wasm.I64}, []wasm.ValType{wasm.I32}))
	return nil
}

func (g *graphTranslator) Started(w *Writer) error {
	g.started = append(g.started, w.Address())
	return nil
}

func (g *graphTranslator) Completed(w *Writer) error { return nil }

func (g *graphTranslator) Fetch(address uint64) Instruction {
	i, ok := indexOf(address)
	if !ok || i >= len(g.nodes) {
		return Instruction{Address: address, Type: InstInvalid}
	}
	n := g.nodes[i]
	inst := Instruction{Address: address, Size: graphStride, Type: n.kind, Data: uint64(i)}
	if n.kind == InstJumpDirect || n.kind == InstConditionalDirect {
		inst.Target = addressOf(n.target)
	}
	return inst
}

func (g *graphTranslator) Produce(w *Writer, address uint64, chunk []Instruction) error {
	g.chunks = append(g.chunks, append([]Instruction(nil), chunk...))
	sink := w.Sink()
	for _, inst := range chunk {
		if inst.Address != address {
			return errors.New("chunk is not contiguous")
		}
		address += inst.Size
		sink.Add(wasm.U64Const(inst.Address), wasm.Call(g.trace))

		switch inst.Type {
		case InstJumpDirect:
			if err := g.jump(w, inst.Target); err != nil {
				return err
			}
		case InstConditionalDirect:
			sink.Add(wasm.U64Const(inst.Address), wasm.Call(g.cond))
			taken := sink.If("")
			if err := g.jump(w, inst.Target); err != nil {
				return err
			}
			sink.End(taken)
		case InstEndOfBlock:
			sink.Add(wasm.U64Const(exitValue), wasm.Op(wasm.OpReturn))
		}
	}
	return nil
}

func (g *graphTranslator) jump(w *Writer, target uint64) error {
	if _, inside := w.block.lookup(target); inside && !w.HasTarget(target) {
		g.unresolved = append(g.unresolved, target)
	}
	return w.Jump(target)
}

// randomGraph builds n nodes with targets spread over the whole graph.
func randomGraph(rng *rand.Rand, n int) []node {
	nodes := make([]node, n)
	for i := range nodes {
		switch r := rng.Intn(100); {
		case r < 40:
			nodes[i] = node{kind: InstPrimitive}
		case r < 75:
			nodes[i] = node{kind: InstConditionalDirect, target: rng.Intn(n)}
		case r < 90:
			nodes[i] = node{kind: InstJumpDirect, target: rng.Intn(n)}
		default:
			nodes[i] = node{kind: InstEndOfBlock}
		}
	}
	return nodes
}

// condOracle is a deterministic branch outcome for the k-th decision.
func condOracle(seed uint64, address uint64, k int) bool {
	x := seed ^ address*0x9e3779b97f4a7c15 ^ uint64(k)*0xbf58476d1ce4e5b9
	x ^= x >> 31
	x *= 0x94d049bb133111eb
	x ^= x >> 29
	return x&1 == 1
}

type walkEnd int

const (
	endExit walkEnd = iota
	endFellOff
	endBudget
)

// referenceWalk interprets the node list directly.
func referenceWalk(nodes []node, seed uint64, budget int) ([]uint64, walkEnd) {
	var trace []uint64
	decisions := 0
	for i := 0; ; {
		if i >= len(nodes) {
			return trace, endFellOff
		}
		if len(trace) == budget {
			return trace, endBudget
		}
		trace = append(trace, addressOf(i))
		n := nodes[i]
		switch n.kind {
		case InstPrimitive:
			i++
		case InstJumpDirect:
			i = n.target
		case InstConditionalDirect:
			taken := condOracle(seed, addressOf(i), decisions)
			decisions++
			if taken {
				i = n.target
			} else {
				i++
			}
		case InstEndOfBlock:
			return trace, endExit
		}
	}
}

var errBudget = errors.New("budget exhausted")

// host plays the loader: it translates units on demand, binds their
// exports into the shared function table and dispatches every address a
// block returns.
type host struct {
	t      *testing.T
	nodes  []node
	cfg    Config
	m      *machine
	seed   uint64
	budget int

	trace       []uint64
	decisions   int
	decodeFault uint64

	known       map[uint64]*wasm.Function
	index       map[uint64]uint64
	modules     []*wasm.Module
	units       []*Unit
	translators []*graphTranslator
}

func newHost(t *testing.T, nodes []node, cfg Config, seed uint64, budget int) *host {
	h := &host{
		t:      t,
		nodes:  nodes,
		cfg:    cfg,
		m:      newMachine(),
		seed:   seed,
		budget: budget,
		known:  make(map[uint64]*wasm.Function),
		index:  make(map[uint64]uint64),
	}
	// slot 0 stays empty, lookup reports misses with it
	h.m.shared["functions"] = []uint64{0}
	h.m.imports["trace"] = func(args []uint64) (uint64, error) {
		if len(h.trace) == h.budget {
			return 0, errBudget
		}
		h.trace = append(h.trace, args[0])
		return 0, nil
	}
	h.m.imports["cond"] = func(args []uint64) (uint64, error) {
		taken := condOracle(h.seed, args[0], h.decisions)
		h.decisions++
		return boolValue(taken), nil
	}
	h.m.imports["not_decodable"] = func(args []uint64) (uint64, error) {
		h.decodeFault = args[0]
		return 0, errTrap
	}
	h.m.imports["not_reachable"] = func(args []uint64) (uint64, error) {
		t.Fatalf("not reachable trap at 0x%x", args[0])
		return 0, errTrap
	}
	h.m.imports["lookup"] = func(args []uint64) (uint64, error) {
		return h.index[args[0]], nil
	}
	return h
}

// Contains makes the host the mapping of every unit it translates.
func (h *host) Contains(address uint64) bool {
	_, ok := h.known[address]
	return ok
}

func (h *host) load(address uint64) {
	mod, unit, tr := translate(h.t, h.nodes, address, h.cfg, h)
	h.modules = append(h.modules, mod)
	h.units = append(h.units, unit)
	h.translators = append(h.translators, tr)

	for _, table := range mod.Tables() {
		if !table.Imported() && table.Name == linkTableName {
			h.m.tables[table] = make([]uint64, len(unit.Links))
		}
	}
	for _, e := range unit.Exports {
		fn := mod.Lookup(e.Name)
		require.NotNil(h.t, fn)
		h.known[e.Address] = fn
		h.m.shared["functions"] = append(h.m.shared["functions"], h.m.ref(fn))
		h.index[e.Address] = uint64(len(h.m.shared["functions"]) - 1)
	}
	if start := mod.Start(); start != nil {
		_, err := h.m.invoke(start, nil)
		require.NoError(h.t, err)
	}
}

// run executes from root until the graph exits, falls off or the budget
// is used up, translating every address that is not known yet.
func (h *host) run(root uint64) ([]uint64, walkEnd) {
	address := root
	for {
		fn, ok := h.known[address]
		if !ok {
			if _, valid := indexOf(address); !valid {
				h.t.Fatalf("block returned 0x%x", address)
			}
			h.load(address)
			fn = h.known[address]
			require.NotNil(h.t, fn)
		}

		result, err := h.m.invoke(fn, nil)
		switch {
		case errors.Is(err, errBudget):
			return h.trace, endBudget
		case errors.Is(err, errTrap) && h.decodeFault != 0:
			return h.trace, endFellOff
		case err != nil:
			h.t.Fatalf("execution failed: %v", err)
		}
		if result == exitValue {
			return h.trace, endExit
		}
		address = result
	}
}

// translate builds a unit for the node list rooted at root.
func translate(t *testing.T, nodes []node, root uint64, cfg Config, mapping Mapping) (*wasm.Module, *Unit, *graphTranslator) {
	t.Helper()
	mod := wasm.NewModule()
	tr := &graphTranslator{nodes: nodes}
	d, err := NewDriver(mod, tr, mapping, cfg)
	require.NoError(t, err)
	require.NoError(t, d.Run(context.Background(), root))
	unit, err := d.Close(context.Background())
	require.NoError(t, err)
	return mod, unit, tr
}

// mappingSet is an in-memory Mapping.
type mappingSet map[uint64]bool

func (m mappingSet) Contains(address uint64) bool {
	return m[address]
}

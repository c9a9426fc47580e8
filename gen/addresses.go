package gen

import (
	"container/heap"
	"fmt"

	"github.com/BjoernBoss/wasmlator-sub001/log"
	"github.com/BjoernBoss/wasmlator-sub001/transerrors"
	"github.com/BjoernBoss/wasmlator-sub001/wasm"
	"golang.org/x/exp/slices"
)

type PlaceKind uint8

const (
	PlaceUndecided PlaceKind = iota
	PlaceInline
	PlaceLinked
)

func (k PlaceKind) String() string {
	switch k {
	case PlaceInline:
		return "inline"
	case PlaceLinked:
		return "linked"
	default:
		return "undecided"
	}
}

// Placement records where the code of a guest address lives for one unit:
// either a function of this unit or a slot of the link table.
type Placement struct {
	Function      *wasm.Function
	Slot          uint32
	Kind          PlaceKind
	AlreadyExists bool
	Incomplete    bool
}

func (p Placement) ThisModule() bool {
	return p.Kind == PlaceInline
}

type Export struct {
	Name    string `json:"name"`
	Address uint64 `json:"address"`
}

// Edge is a direct reference discovered while producing a block.
type Edge struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

type queued struct {
	address uint64
	depth   uint32
	seq     uint64
}

// pendingQueue is a min-heap on depth, discovery order breaks ties.
type pendingQueue []queued

func (q pendingQueue) Len() int { return len(q) }
func (q pendingQueue) Less(i, j int) bool {
	if q[i].depth != q[j].depth {
		return q[i].depth < q[j].depth
	}
	return q[i].seq < q[j].seq
}
func (q pendingQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *pendingQueue) Push(x any)   { *q = append(*q, x.(queued)) }
func (q *pendingQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

// Addresses is the placement registry of one translation unit.
type Addresses struct {
	mw       *ModuleWriter
	mapping  Mapping
	places   map[uint64]*Placement
	queue    pendingQueue
	history  []uint64
	edges    []Edge
	links    *wasm.Table
	maxDepth uint32
	depth    uint32
	current  uint64
	seq      uint64
	nLinks   uint32

	needsStartup bool
	closed       bool
}

func NewAddresses(mw *ModuleWriter, mapping Mapping, maxDepth uint32) *Addresses {
	return &Addresses{
		mw:       mw,
		mapping:  mapping,
		places:   make(map[uint64]*Placement),
		links:    mw.mod.Table(linkTableName, wasm.FuncRef, true),
		maxDepth: maxDepth,
	}
}

func FunctionName(address uint64) string {
	return fmt.Sprintf("addr_0x%016x", address)
}

func (a *Addresses) push(address uint64, depth uint32) (Placement, error) {
	if a.closed {
		return Placement{}, fmt.Errorf("push 0x%x: %w", address, transerrors.ErrARegistryClosed)
	}
	if p, ok := a.places[address]; ok {
		return *p, nil
	}

	p := &Placement{}
	a.places[address] = p
	switch {
	case a.mapping != nil && a.mapping.Contains(address):
		p.Kind, p.Slot, p.AlreadyExists = PlaceLinked, a.nLinks, true
		a.nLinks++
		a.needsStartup = true
		log.Debug(log.AddressMonitoring, "placed existing", "address", fmt.Sprintf("0x%x", address), "slot", p.Slot)
	case depth > a.maxDepth:
		p.Kind, p.Slot = PlaceLinked, a.nLinks
		a.nLinks++
		log.Debug(log.AddressMonitoring, "placed linked", "address", fmt.Sprintf("0x%x", address), "slot", p.Slot, "depth", depth)
	default:
		p.Kind, p.Incomplete = PlaceInline, true
		p.Function = a.mw.mod.Function(FunctionName(address), a.mw.block, true)
		heap.Push(&a.queue, queued{address: address, depth: depth, seq: a.seq})
		a.seq++
		a.history = append(a.history, address)
		log.Debug(log.AddressMonitoring, "placed inline", "address", fmt.Sprintf("0x%x", address), "depth", depth)
	}
	return *p, nil
}

// PushRoot places address at depth zero.
func (a *Addresses) PushRoot(address uint64) (Placement, error) {
	return a.push(address, 0)
}

// PushLocal places an address referenced by the block being produced.
func (a *Addresses) PushLocal(address uint64) (Placement, error) {
	if !a.closed {
		a.edges = append(a.edges, Edge{From: a.current, To: address})
	}
	return a.push(address, a.depth)
}

func (a *Addresses) Empty() bool {
	return len(a.queue) == 0
}

// Start pops the shallowest pending address. Addresses discovered while
// producing it are placed one level deeper.
func (a *Addresses) Start() (uint64, uint32, *wasm.Function, error) {
	if a.closed {
		return 0, 0, nil, transerrors.ErrARegistryClosed
	}
	if len(a.queue) == 0 {
		return 0, 0, nil, transerrors.ErrAQueueEmpty
	}
	next := heap.Pop(&a.queue).(queued)
	p := a.places[next.address]
	p.Incomplete = false
	a.depth = next.depth + 1
	a.current = next.address
	return next.address, next.depth, p.Function, nil
}

func (a *Addresses) Links() *wasm.Table {
	return a.links
}

func (a *Addresses) LinkCount() uint32 {
	return a.nLinks
}

// History lists every address ever enqueued, in discovery order.
func (a *Addresses) History() []uint64 {
	return a.history
}

func (a *Addresses) Edges() []Edge {
	return a.edges
}

// Placement returns the placement of address if it was pushed.
func (a *Addresses) Placement(address uint64) (Placement, bool) {
	p, ok := a.places[address]
	if !ok {
		return Placement{}, false
	}
	return *p, true
}

func (a *Addresses) sortedAddresses() []uint64 {
	keys := make([]uint64, 0, len(a.places))
	for address := range a.places {
		keys = append(keys, address)
	}
	slices.Sort(keys)
	return keys
}

// Close fixes the link table, verifies that every local placement was
// produced and writes the startup routine for already existing addresses.
func (a *Addresses) Close() ([]Export, error) {
	if a.closed {
		return nil, transerrors.ErrARegistryClosed
	}
	a.closed = true
	a.links.Limit(a.nLinks, a.nLinks)

	var exports []Export
	var existing []uint64
	for _, address := range a.sortedAddresses() {
		p := a.places[address]
		switch {
		case p.ThisModule() && p.Incomplete:
			return nil, fmt.Errorf("address 0x%x: %w", address, transerrors.ErrAIncompletePlacement)
		case p.ThisModule():
			exports = append(exports, Export{Name: p.Function.Name, Address: address})
		case p.AlreadyExists:
			existing = append(existing, address)
		}
	}

	if a.needsStartup {
		if err := a.writeStartup(existing); err != nil {
			return nil, err
		}
	}
	log.Debug(log.AddressMonitoring, "registry closed", "exports", len(exports), "links", a.nLinks, "existing", len(existing))
	return exports, nil
}

func (a *Addresses) writeStartup(existing []uint64) error {
	mod := a.mw.mod
	fn := mod.Function(startupName, mod.Prototype(nil, nil), false)
	sink := wasm.NewSink(fn)
	for _, address := range existing {
		sink.Add(
			wasm.I32Const(int32(a.places[address].Slot)),
			wasm.U64Const(address),
			wasm.Call(a.mw.lookup),
			wasm.TableGet(a.mw.functions),
			wasm.TableSet(a.links),
		)
	}
	if err := sink.Close(); err != nil {
		return err
	}
	mod.SetStart(fn)
	return nil
}

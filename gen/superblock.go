package gen

import (
	"fmt"
	"sort"

	"github.com/BjoernBoss/wasmlator-sub001/log"
	"github.com/BjoernBoss/wasmlator-sub001/transerrors"
	"github.com/BjoernBoss/wasmlator-sub001/wasm"
)

type entry struct {
	inst     Instruction
	index    int
	branches bool
	invalid  bool
}

// target is a branch destination owned by one or two ranges.
type target struct {
	address     uint64
	irreducible bool
	guard       wasm.Variable
	hasGuard    bool
}

type frame struct {
	label    *wasm.Target
	last     int
	origin   int
	internal bool
}

// SuperBlock collects the instructions reachable from one start address
// and emits them as nested scaffolds.
type SuperBlock struct {
	list       []entry
	ranges     rangeSet
	targets    []target
	stack      []frame
	chunk      []Instruction
	resolver   Resolver
	start      uint64
	next       uint64
	index      int
	rangeIndex int
	singleStep bool
}

func NewSuperBlock(address uint64, singleStep bool, resolver Resolver) *SuperBlock {
	if resolver == nil {
		resolver = ExpansionResolver{}
	}
	return &SuperBlock{
		resolver:   resolver,
		start:      address,
		next:       address,
		singleStep: singleStep,
	}
}

// NextAddress is the address the next pushed instruction must have.
func (sb *SuperBlock) NextAddress() uint64 {
	return sb.next
}

func (sb *SuperBlock) Len() int {
	return len(sb.list)
}

// Push appends inst and reports whether the current strand continues.
func (sb *SuperBlock) Push(inst Instruction) (bool, error) {
	if inst.Type == InstInvalid {
		log.Debug(log.GenMonitoring, "invalid instruction ends strand", "address", fmt.Sprintf("0x%x", inst.Address))
		sb.list = append(sb.list, entry{inst: inst, index: len(sb.list), invalid: true})
		return false, nil
	}
	if inst.Size == 0 {
		return false, fmt.Errorf("instruction at 0x%x: %w", inst.Address, transerrors.ErrSZeroSizeInstruction)
	}
	sb.list = append(sb.list, entry{inst: inst, index: len(sb.list), branches: inst.branches()})
	sb.next += inst.Size

	if sb.singleStep {
		return false, nil
	}
	return inst.Type != InstEndOfBlock && inst.Type != InstJumpDirect, nil
}

// Incomplete reports whether an already collected branch lands exactly on
// the address after the last strand, in which case fetching resumes there.
func (sb *SuperBlock) Incomplete() bool {
	if sb.singleStep || len(sb.list) == 0 || sb.list[len(sb.list)-1].invalid {
		return false
	}
	for _, e := range sb.list {
		if e.branches && e.inst.Target == sb.next {
			return true
		}
	}
	return false
}

// lookup returns the index of the instruction starting at address.
func (sb *SuperBlock) lookup(address uint64) (int, bool) {
	i := sort.Search(len(sb.list), func(i int) bool {
		return sb.list[i].inst.Address >= address
	})
	if i < len(sb.list) && sb.list[i].inst.Address == address {
		return i, true
	}
	return 0, false
}

func (sb *SuperBlock) spans() []Span {
	var spans []Span
	for _, e := range sb.list {
		if !e.branches {
			continue
		}
		t, ok := sb.lookup(e.inst.Target)
		if !ok {
			continue
		}
		if t <= e.index {
			spans = append(spans, Span{First: t, Last: e.index, Header: t, Backwards: true})
		} else {
			spans = append(spans, Span{First: e.index, Last: t - 1, Header: t})
		}
	}
	return spans
}

// SetupRanges resolves the scaffolds of all internal jumps. It must be
// called once after the last Push.
func (sb *SuperBlock) SetupRanges() error {
	if sb.singleStep {
		return nil
	}
	raw := sb.spans()
	if len(raw) == 0 {
		return nil
	}
	spans, err := sb.resolver.Resolve(raw)
	if err != nil {
		return fmt.Errorf("superblock 0x%x: %w", sb.start, err)
	}

	for _, s := range spans {
		if s.First < 0 || s.Last >= len(sb.list) || s.Header >= len(sb.list) {
			return fmt.Errorf("superblock 0x%x %v: %w", sb.start, s, transerrors.ErrSRangeOutOfBounds)
		}
		slot := len(sb.targets)
		if s.Backwards {
			sb.targets = append(sb.targets, target{address: sb.list[s.Header].inst.Address, irreducible: s.Irreducible()})
			sb.ranges.insert(InstRange{First: s.First, Last: s.Last, Origin: slot, Kind: RangeBackward})
			if s.Irreducible() {
				sb.ranges.insert(InstRange{First: s.First, Last: s.Header - 1, Origin: slot, Kind: RangeGuard})
			}
			continue
		}
		sb.targets = append(sb.targets, target{address: sb.list[s.Header].inst.Address})
		sb.ranges.insert(InstRange{First: s.First, Last: s.Last, Origin: slot, Kind: RangeForward})
	}
	log.Debug(log.RangeMonitoring, "ranges resolved", "superblock", fmt.Sprintf("0x%x", sb.start), "raw", len(raw), "ranges", len(sb.ranges))
	return nil
}

// Ranges returns the resolved ranges in emission order.
func (sb *SuperBlock) Ranges() []InstRange {
	return sb.ranges
}

// Irreducible counts the repaired multi-entry loops.
func (sb *SuperBlock) Irreducible() int {
	n := 0
	for _, r := range sb.ranges {
		if r.Kind == RangeGuard {
			n++
		}
	}
	return n
}

// TargetAddress returns the guest address the range branches to.
func (sb *SuperBlock) TargetAddress(r InstRange) uint64 {
	return sb.targets[r.Origin].address
}

// Instructions returns the collected instructions.
func (sb *SuperBlock) Instructions() []Instruction {
	out := make([]Instruction, len(sb.list))
	for i, e := range sb.list {
		out[i] = e.inst
	}
	return out
}

package gen

import (
	"fmt"

	"github.com/BjoernBoss/wasmlator-sub001/log"
	"github.com/BjoernBoss/wasmlator-sub001/wasm"
)

// Next closes and opens the scaffolds at the current position and selects
// the next chunk. It returns false once all instructions were handed out,
// after writing the trailing trap or single-step result.
func (sb *SuperBlock) Next(sink *wasm.Sink, traps *ModuleWriter) bool {
	sb.chunk = sb.chunk[:0]

	for len(sb.stack) > 0 && sb.stack[len(sb.stack)-1].last < sb.index {
		sink.End(sb.stack[len(sb.stack)-1].label)
		sb.stack = sb.stack[:len(sb.stack)-1]
	}

	n := len(sb.list)
	if sb.index >= n || (sb.index == n-1 && sb.list[n-1].invalid) {
		sb.finalize(sink, traps)
		return false
	}

	for sb.rangeIndex < len(sb.ranges) && sb.ranges[sb.rangeIndex].First == sb.index {
		sb.open(sink, sb.ranges[sb.rangeIndex])
		sb.rangeIndex++
	}

	last := n - 1
	if len(sb.stack) > 0 {
		last = min(last, sb.stack[len(sb.stack)-1].last)
	}
	if sb.rangeIndex < len(sb.ranges) {
		last = min(last, sb.ranges[sb.rangeIndex].First-1)
	}
	if last == n-1 && sb.list[last].invalid {
		last--
	}

	for i := sb.index; i <= last; i++ {
		sb.chunk = append(sb.chunk, sb.list[i].inst)
	}
	sb.index = last + 1
	return true
}

// Chunk returns the instructions selected by the last call to Next.
func (sb *SuperBlock) Chunk() []Instruction {
	return sb.chunk
}

func (sb *SuperBlock) open(sink *wasm.Sink, r InstRange) {
	t := &sb.targets[r.Origin]
	name := fmt.Sprintf("%s_%x", r.Kind, t.address)

	switch r.Kind {
	case RangeBackward:
		label := sink.Loop(name)
		if t.irreducible && !t.hasGuard {
			t.guard = sink.Local(wasm.I32, fmt.Sprintf("guard_%x", t.address))
			t.hasGuard = true
		}
		sb.stack = append(sb.stack, frame{label: label, last: r.Last, origin: r.Origin})

	case RangeGuard:
		// a set guard means the loop was entered through its header:
		// clear it and skip the part in front of the header
		label := sink.Block(name)
		sink.Add(wasm.LocalGet(t.guard))
		cond := sink.If("")
		sink.Add(wasm.I32Const(0), wasm.LocalSet(t.guard), wasm.Br(label))
		sink.End(cond)
		sb.stack = append(sb.stack, frame{label: label, last: r.Last, origin: r.Origin, internal: true})

	default:
		label := sink.Block(name)
		sb.stack = append(sb.stack, frame{label: label, last: r.Last, origin: r.Origin})
	}
	log.Trace(log.GenMonitoring, "scaffold opened", "range", r, "target", fmt.Sprintf("0x%x", t.address))
}

func (sb *SuperBlock) finalize(sink *wasm.Sink, traps *ModuleWriter) {
	for i := len(sb.stack) - 1; i >= 0; i-- {
		sink.End(sb.stack[i].label)
	}
	sb.stack = sb.stack[:0]
	n := len(sb.list)
	switch {
	case n > 0 && sb.list[n-1].invalid:
		traps.notDecodable(sink, sb.list[n-1].inst.Address)
	case sb.singleStep:
		sink.Add(wasm.U64Const(sb.next))
	default:
		traps.notReachable(sink, sb.next)
	}
}

// label resolves a guest address to an open scaffold that branches to it.
// Unguarded destinations are preferred over loops entered through a guard.
func (sb *SuperBlock) label(address uint64) (*frame, *target) {
	var guarded *frame
	for i := len(sb.stack) - 1; i >= 0; i-- {
		f := &sb.stack[i]
		if f.internal {
			continue
		}
		t := &sb.targets[f.origin]
		if t.address != address {
			continue
		}
		if !t.irreducible {
			return f, t
		}
		if guarded == nil {
			guarded = f
		}
	}
	if guarded != nil {
		return guarded, &sb.targets[guarded.origin]
	}
	return nil, nil
}

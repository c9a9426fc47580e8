package gen

import (
	"fmt"

	"golang.org/x/exp/slices"
)

type RangeKind uint8

// The order of the kinds is the final tie-break of the range ordering.
const (
	RangeBackward RangeKind = iota
	RangeGuard
	RangeForward
)

func (k RangeKind) String() string {
	switch k {
	case RangeBackward:
		return "loop"
	case RangeGuard:
		return "guard"
	case RangeForward:
		return "block"
	default:
		return fmt.Sprintf("RangeKind(%d)", uint8(k))
	}
}

// InstRange is an inclusive span of superblock indices wrapped by one
// scaffold. Origin is the target slot the scaffold branches to; a guard
// shares the slot of the loop it belongs to.
type InstRange struct {
	First  int
	Last   int
	Origin int
	Kind   RangeKind
}

func (r InstRange) Backwards() bool { return r.Kind == RangeBackward }

// Internal ranges are never the destination of a guest branch.
func (r InstRange) Internal() bool { return r.Kind == RangeGuard }

func (r InstRange) String() string {
	return fmt.Sprintf("%s[%d,%d]#%d", r.Kind, r.First, r.Last, r.Origin)
}

// compareRanges orders by first ascending, then last descending so that
// enclosing ranges open first, then origin and kind.
func compareRanges(a InstRange, b InstRange) int {
	switch {
	case a.First != b.First:
		return a.First - b.First
	case a.Last != b.Last:
		return b.Last - a.Last
	case a.Origin != b.Origin:
		return a.Origin - b.Origin
	default:
		return int(a.Kind) - int(b.Kind)
	}
}

// rangeSet is kept sorted by compareRanges.
type rangeSet []InstRange

func (s *rangeSet) insert(r InstRange) bool {
	i, found := slices.BinarySearchFunc(*s, r, compareRanges)
	if found {
		return false
	}
	*s = slices.Insert(*s, i, r)
	return true
}

func crossing(aFirst, aLast, bFirst, bLast int) bool {
	if aFirst > bFirst {
		aFirst, aLast, bFirst, bLast = bFirst, bLast, aFirst, aLast
	}
	return aFirst < bFirst && bFirst <= aLast && aLast < bLast
}

// Laminar reports whether every pair of ranges is either disjoint or nested.
func Laminar(ranges []InstRange) bool {
	for i := range ranges {
		for j := i + 1; j < len(ranges); j++ {
			if crossing(ranges[i].First, ranges[i].Last, ranges[j].First, ranges[j].Last) {
				return false
			}
		}
	}
	return true
}

package gen

import (
	"fmt"

	"github.com/BjoernBoss/wasmlator-sub001/log"
	"github.com/BjoernBoss/wasmlator-sub001/transerrors"
	"golang.org/x/exp/slices"
)

// Span is an intra-superblock control transfer expressed on indices. For a
// loop Header is the index the backward branch lands on; it equals First
// unless the loop had to absorb a second entry, in which case the part
// [First, Header-1] is skipped on re-entry through a guard. For a forward
// span Header is Last+1.
type Span struct {
	First     int
	Last      int
	Header    int
	Backwards bool
}

func (s Span) Irreducible() bool {
	return s.Backwards && s.Header > s.First
}

func (s Span) String() string {
	if s.Backwards {
		return fmt.Sprintf("loop[%d,%d]@%d", s.First, s.Last, s.Header)
	}
	return fmt.Sprintf("block[%d,%d]", s.First, s.Last)
}

func compareSpans(a Span, b Span) int {
	switch {
	case a.First != b.First:
		return a.First - b.First
	case a.Last != b.Last:
		return b.Last - a.Last
	case a.Backwards != b.Backwards:
		if a.Backwards {
			return -1
		}
		return 1
	default:
		return a.Header - b.Header
	}
}

// Resolver turns the raw spans of a superblock into a set in which no two
// scaffolds cross.
type Resolver interface {
	Resolve(spans []Span) ([]Span, error)
}

// ExpansionResolver repairs crossing spans by growing them. Clusters are
// connected components of the crossing relation over all scaffolds,
// including the guard part of already repaired loops. Per cluster with
// envelope [F,L] the first applicable rule is applied:
//
//  1. forward spans ending at L start at F
//  2. loops starting at F end at L
//  3. the loop ending at L that is entered by most forward spans starts
//     at F, keeping its header (irreducible repair)
//
// Every step moves a bound outwards, so the loop terminates.
type ExpansionResolver struct{}

type scaffold struct {
	first int
	last  int
	owner int
	kind  RangeKind
}

func (ExpansionResolver) Resolve(spans []Span) ([]Span, error) {
	work := normalizeSpans(spans)
	for {
		items := scaffoldsOf(work)
		cluster := firstCluster(items)
		if cluster == nil {
			return work, nil
		}
		if err := repairCluster(work, items, cluster); err != nil {
			return nil, err
		}
		work = normalizeSpans(work)
	}
}

func normalizeSpans(spans []Span) []Span {
	out := slices.Clone(spans)
	slices.SortFunc(out, compareSpans)
	return slices.Compact(out)
}

func scaffoldsOf(spans []Span) []scaffold {
	items := make([]scaffold, 0, len(spans))
	for i, s := range spans {
		if !s.Backwards {
			items = append(items, scaffold{s.First, s.Last, i, RangeForward})
			continue
		}
		items = append(items, scaffold{s.First, s.Last, i, RangeBackward})
		if s.Irreducible() {
			items = append(items, scaffold{s.First, s.Header - 1, i, RangeGuard})
		}
	}
	return items
}

// firstCluster returns the component of the first crossing pair, nil if
// there is none.
func firstCluster(items []scaffold) []int {
	for i := range items {
		for j := i + 1; j < len(items); j++ {
			if !crossing(items[i].first, items[i].last, items[j].first, items[j].last) {
				continue
			}
			seen := map[int]bool{i: true, j: true}
			queue := []int{i, j}
			for k := 0; k < len(queue); k++ {
				a := items[queue[k]]
				for b := range items {
					if !seen[b] && crossing(a.first, a.last, items[b].first, items[b].last) {
						seen[b] = true
						queue = append(queue, b)
					}
				}
			}
			slices.Sort(queue)
			return queue
		}
	}
	return nil
}

func repairCluster(work []Span, items []scaffold, cluster []int) error {
	first, last := items[cluster[0]].first, items[cluster[0]].last
	for _, c := range cluster {
		first = min(first, items[c].first)
		last = max(last, items[c].last)
	}

	changed := false
	for _, c := range cluster {
		it := items[c]
		if it.kind == RangeForward && it.last == last && it.first > first {
			work[it.owner].First = first
			changed = true
		}
	}
	if changed {
		log.Trace(log.RangeMonitoring, "forward expansion", "first", first, "last", last)
		return nil
	}

	for _, c := range cluster {
		it := items[c]
		if it.kind == RangeBackward && it.first == first && it.last < last {
			work[it.owner].Last = last
			changed = true
		}
	}
	if changed {
		log.Trace(log.RangeMonitoring, "backward expansion", "first", first, "last", last)
		return nil
	}

	best, bestCount := -1, -1
	for _, c := range cluster {
		cand := items[c]
		if cand.kind != RangeBackward || cand.last != last {
			continue
		}
		count := 0
		for _, o := range cluster {
			fwd := items[o]
			if fwd.kind == RangeForward && fwd.last >= cand.first && fwd.last < cand.last {
				count++
			}
		}
		if count > bestCount {
			best, bestCount = cand.owner, count
		}
	}
	if best < 0 {
		return fmt.Errorf("cluster [%d,%d]: %w", first, last, transerrors.ErrSIrreducibleNoCandidate)
	}
	log.Debug(log.RangeMonitoring, "irreducible repair", "loop", work[best], "first", first, "entries", bestCount)
	work[best].First = first
	return nil
}

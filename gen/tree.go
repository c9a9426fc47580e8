package gen

import (
	"fmt"

	"github.com/xlab/treeprint"
)

// Tree renders the scaffold nesting of the superblock together with the
// instructions each scaffold wraps.
func (sb *SuperBlock) Tree() treeprint.Tree {
	tree := treeprint.New()
	tree.SetValue(fmt.Sprintf("superblock 0x%x (%d instructions, %d ranges)", sb.start, len(sb.list), len(sb.ranges)))

	type open struct {
		node treeprint.Tree
		last int
	}
	stack := []open{{node: tree, last: len(sb.list)}}
	next := 0
	for i, e := range sb.list {
		for len(stack) > 1 && stack[len(stack)-1].last < i {
			stack = stack[:len(stack)-1]
		}
		for next < len(sb.ranges) && sb.ranges[next].First == i {
			r := sb.ranges[next]
			node := stack[len(stack)-1].node.AddBranch(fmt.Sprintf("%s [%d,%d] -> 0x%x", r.Kind, r.First, r.Last, sb.targets[r.Origin].address))
			stack = append(stack, open{node: node, last: r.Last})
			next++
		}
		text := fmt.Sprintf("%d: 0x%x %s", i, e.inst.Address, e.inst.Type)
		if e.branches {
			text += fmt.Sprintf(" -> 0x%x", e.inst.Target)
		}
		stack[len(stack)-1].node.AddNode(text)
	}
	return tree
}

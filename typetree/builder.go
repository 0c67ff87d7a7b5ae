package typetree

import "fmt"

// Build reconstructs the hierarchy described by a flat, depth-ordered node
// list whose first element is the root. Input Children fields are ignored.
//
// Ancestors are tracked as indices into a private copy of flat, so the parent
// and previous-node cursors never alias caller memory.
func Build(flat []Node) (*Node, error) {
	if len(flat) == 0 {
		return nil, fmt.Errorf("%w: empty node list", ErrMalformed)
	}
	store := make([]Node, len(flat))
	copy(store, flat)
	for i := range store {
		store[i].Children = nil
	}

	parent, prev := 0, 0
	var stack []int
	for i := 1; i < len(store); i++ {
		level := store[i].Level
		if level > store[prev].Level {
			stack = append(stack, parent)
			parent = prev
		} else {
			for level <= store[parent].Level {
				if len(stack) == 0 {
					return nil, fmt.Errorf("%w: node %d (%s %s) at level %d has no ancestor",
						ErrMalformed, i, store[i].Type, store[i].Name, level)
				}
				parent = stack[len(stack)-1]
				stack = stack[:len(stack)-1]
			}
		}
		store[parent].Children = append(store[parent].Children, &store[i])
		prev = i
	}
	return &store[0], nil
}

// Package typetree reconstructs and interprets the field layouts Unity stores
// alongside serialized objects.
//
// A type tree arrives as a flat, depth-tagged node list. Build turns the list
// into a hierarchy; ReadValue and WriteValue then walk the hierarchy to move
// an object's raw bytes to and from a Document.
package typetree

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed indicates a flat node list that does not describe a tree.
	ErrMalformed = errors.New("typetree: malformed node list")
	// ErrUnknownType indicates the generator has no definition for a type.
	ErrUnknownType = errors.New("typetree: unknown type")
)

// MetaFlagAlign marks a node whose value is followed by 4-byte alignment.
const MetaFlagAlign = 0x4000

// Node is one field of a type tree.
type Node struct {
	Level    int
	Type     string
	Name     string
	ByteSize int32
	Version  int32
	MetaFlag int32

	TypeFlags     int32
	Index         int32
	RefTypeHash   uint64
	VariableCount int32

	// TypeOffset and NameOffset are the blob string references the node was
	// read with. They are recomputed by NewBlob.
	TypeOffset uint32
	NameOffset uint32

	Children []*Node
}

// Aligned reports whether the node's value is followed by alignment padding.
func (n *Node) Aligned() bool { return n.MetaFlag&MetaFlagAlign != 0 }

// Child returns the direct child with the given field name.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (n *Node) String() string {
	return fmt.Sprintf("%s %s (level %d, size %d, flags %#x)", n.Type, n.Name, n.Level, n.ByteSize, n.MetaFlag)
}

// Flatten returns the nodes of the tree rooted at n in pre-order, with
// Children cleared and Level rewritten relative to root level.
func Flatten(root *Node) []Node {
	var out []Node
	var walk func(n *Node, level int)
	walk = func(n *Node, level int) {
		c := *n
		c.Level = level
		c.Children = nil
		out = append(out, c)
		for _, child := range n.Children {
			walk(child, level+1)
		}
	}
	if root != nil {
		walk(root, root.Level)
	}
	return out
}

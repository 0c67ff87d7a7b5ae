// Package asset parses, cross-references and re-serializes Unity asset
// containers: UnityFS and legacy bundles, web archives and serialized files.
//
// Containers live in a Graph arena and refer to their parent by index, so a
// child can locate its siblings and propagate change taint without owning its
// parent. Dropping a container from the graph leaves outstanding handles
// usable, but any lookup through its former parent fails with ErrParentGone.
package asset

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
)

// Kind selects the variant held by a Container.
type Kind uint8

const (
	KindSerializedFile Kind = iota
	KindBundle
	KindWeb
	KindRaw
	KindBuffer
)

func (k Kind) String() string {
	switch k {
	case KindSerializedFile:
		return "SerializedFile"
	case KindBundle:
		return "Bundle"
	case KindWeb:
		return "Web"
	case KindRaw:
		return "Raw"
	case KindBuffer:
		return "Buffer"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// NodeID addresses a container within its Graph.
type NodeID int32

// NoNode is the parent of root containers.
const NoNode NodeID = -1

// Graph owns a set of container trees.
type Graph struct {
	nodes []*Container
	roots []NodeID
	opts  Options
	log   *slog.Logger
}

// NewGraph returns an empty graph.
func NewGraph(opts Options) *Graph {
	return &Graph{opts: opts, log: opts.logger()}
}

// Options returns the options the graph was created with.
func (g *Graph) Options() Options { return g.opts }

// Node returns the live container at id, or nil.
func (g *Graph) Node(id NodeID) *Container {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// Roots returns the live top-level containers in load order.
func (g *Graph) Roots() []*Container {
	var out []*Container
	for _, id := range g.roots {
		if c := g.Node(id); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func (g *Graph) add(c *Container) *Container {
	c.g = g
	c.id = NodeID(len(g.nodes))
	g.nodes = append(g.nodes, c)
	return c
}

// Remove drops c and its descendants from the graph and from c's parent.
// Handles to dropped containers stay readable.
func (g *Graph) Remove(c *Container) {
	if c == nil || c.g != g || g.Node(c.id) != c {
		return
	}
	if p := g.Node(c.parent); p != nil {
		p.detach(c.name)
	}
	for i, id := range g.roots {
		if id == c.id {
			g.roots = append(g.roots[:i], g.roots[i+1:]...)
			break
		}
	}
	g.free(c)
}

func (g *Graph) free(c *Container) {
	for _, id := range c.children {
		if child := g.Node(id); child != nil && child.parent == c.id {
			g.free(child)
		}
	}
	g.nodes[c.id] = nil
}

// Container is one node of the graph. Exactly one variant payload matches
// Kind.
type Container struct {
	g      *Graph
	id     NodeID
	parent NodeID
	kind   Kind
	name   string

	dirty      bool
	dependency bool

	// children and flags always share a key set; order keeps the directory
	// order for serialization.
	children map[string]NodeID
	flags    map[string]uint32
	order    []string

	file   *SerializedFile
	bundle *Bundle
	web    *Web
	raw    []byte
	buf    *bytes.Buffer
}

func newContainer(kind Kind, name string) *Container {
	return &Container{kind: kind, name: name, parent: NoNode}
}

func (c *Container) ID() NodeID       { return c.id }
func (c *Container) Kind() Kind       { return c.kind }
func (c *Container) Name() string     { return c.name }
func (c *Container) Graph() *Graph    { return c.g }
func (c *Container) Dirty() bool      { return c.dirty }
func (c *Container) Dependency() bool { return c.dependency }

// SerializedFile returns the serialized file variant, or nil.
func (c *Container) SerializedFile() *SerializedFile { return c.file }

// Bundle returns the bundle variant, or nil.
func (c *Container) Bundle() *Bundle { return c.bundle }

// Web returns the web archive variant, or nil.
func (c *Container) Web() *Web { return c.web }

// Parent returns the owning container. It fails with ErrNoParent for roots
// and ErrParentGone once the parent was removed.
func (c *Container) Parent() (*Container, error) {
	if c.parent == NoNode {
		return nil, ErrNoParent
	}
	p := c.g.Node(c.parent)
	if id, ok := p.childID(c.name); p == nil || !ok || id != c.id {
		return nil, fmt.Errorf("%w: %s", ErrParentGone, c.name)
	}
	return p, nil
}

// MarkDirty taints c and every live ancestor.
func (c *Container) MarkDirty() {
	for n := c; n != nil; {
		n.dirty = true
		p, err := n.Parent()
		if err != nil {
			return
		}
		n = p
	}
}

// Children returns the children in directory order.
func (c *Container) Children() []*Container {
	out := make([]*Container, 0, len(c.order))
	for _, name := range c.order {
		if child := c.g.Node(c.children[name]); child != nil {
			out = append(out, child)
		}
	}
	return out
}

// Child returns the child with the given name, compared case-insensitively.
func (c *Container) Child(name string) *Container {
	if id, ok := c.children[name]; ok {
		return c.g.Node(id)
	}
	for _, n := range c.order {
		if strings.EqualFold(n, name) {
			return c.g.Node(c.children[n])
		}
	}
	return nil
}

// Flags returns the directory flags of the named child.
func (c *Container) Flags(name string) (uint32, bool) {
	f, ok := c.flags[name]
	return f, ok
}

// SetFlags replaces the directory flags of an existing child.
func (c *Container) SetFlags(name string, flags uint32) bool {
	if _, ok := c.flags[name]; !ok {
		return false
	}
	if c.flags[name] != flags {
		c.flags[name] = flags
		c.MarkDirty()
	}
	return true
}

func (c *Container) childID(name string) (NodeID, bool) {
	if c == nil {
		return NoNode, false
	}
	id, ok := c.children[name]
	return id, ok
}

// attach adds child under name, replacing any previous child of that name.
func (c *Container) attach(child *Container, flags uint32) {
	if c.children == nil {
		c.children = map[string]NodeID{}
		c.flags = map[string]uint32{}
	}
	if old, ok := c.children[child.name]; ok {
		if prev := c.g.Node(old); prev != nil && prev != child {
			c.g.free(prev)
		}
	} else {
		c.order = append(c.order, child.name)
	}
	c.children[child.name] = child.id
	c.flags[child.name] = flags
	child.parent = c.id
}

func (c *Container) detach(name string) {
	if _, ok := c.children[name]; !ok {
		return
	}
	delete(c.children, name)
	delete(c.flags, name)
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.MarkDirty()
}

// Objects returns every object of c and its nested containers, in directory
// and object-table order. Raw and buffer leaves contribute nothing.
func (c *Container) Objects() []*Object {
	var out []*Object
	c.walkFiles(func(f *SerializedFile) {
		out = append(out, f.objects...)
	})
	return out
}

// ObjectsOf is Objects restricted to the given classes.
func (c *Container) ObjectsOf(classes ...ClassID) []*Object {
	want := make(map[ClassID]bool, len(classes))
	for _, id := range classes {
		want[id] = true
	}
	var out []*Object
	c.walkFiles(func(f *SerializedFile) {
		for _, o := range f.objects {
			if want[o.ClassID] {
				out = append(out, o)
			}
		}
	})
	return out
}

// Contents returns the asset path to object id map of c and its nested
// containers. Files whose index cannot be decoded are skipped.
func (c *Container) Contents() map[string]int64 {
	out := map[string]int64{}
	c.walkFiles(func(f *SerializedFile) {
		m, err := f.Contents()
		if err != nil {
			c.g.log.Debug("contents skipped", "file", f.container.name, "error", err)
			return
		}
		for k, v := range m {
			out[k] = v
		}
	})
	return out
}

func (c *Container) walkFiles(fn func(*SerializedFile)) {
	switch c.kind {
	case KindSerializedFile:
		fn(c.file)
	case KindBundle, KindWeb:
		for _, child := range c.Children() {
			child.walkFiles(fn)
		}
	case KindRaw, KindBuffer:
	}
}

// Find returns the first descendant of c, c included, whose name matches
// case-insensitively.
func (c *Container) Find(name string) *Container {
	if strings.EqualFold(c.name, name) {
		return c
	}
	for _, child := range c.Children() {
		if found := child.Find(name); found != nil {
			return found
		}
	}
	return nil
}

// Walk calls fn for c and every descendant in pre-order.
func (c *Container) Walk(fn func(path string, c *Container)) {
	c.walk("", fn)
}

func (c *Container) walk(prefix string, fn func(string, *Container)) {
	p := c.name
	if prefix != "" {
		p = prefix + "/" + c.name
	}
	fn(p, c)
	for _, child := range c.Children() {
		child.walk(p, fn)
	}
}

// ScratchBuffer returns the writable buffer used to append streamed resource
// data, creating it on first use. An empty name selects the resource file of
// c. Serialized files keep their buffer beside them in their parent.
func (c *Container) ScratchBuffer(name string) (*Container, error) {
	if name == "" {
		name = c.name + ".resS"
	}
	owner := c
	if c.kind == KindSerializedFile || c.kind == KindRaw || c.kind == KindBuffer {
		p, err := c.Parent()
		if err != nil {
			return nil, err
		}
		owner = p
	}
	if existing := owner.Child(name); existing != nil {
		if existing.kind != KindBuffer {
			return nil, fmt.Errorf("%w: %s is a %s", ErrScratchConflict, name, existing.kind)
		}
		return existing, nil
	}
	var flags uint32
	for _, sibling := range owner.Children() {
		if sibling.kind == KindBuffer {
			flags = owner.flags[sibling.name]
			break
		}
	}
	buf := c.g.add(newContainer(KindBuffer, name))
	buf.buf = new(bytes.Buffer)
	owner.attach(buf, flags)
	buf.MarkDirty()
	return buf, nil
}

// Append writes p to a scratch buffer and returns the offset it was written
// at.
func (c *Container) Append(p []byte) (int64, error) {
	if c.kind != KindBuffer {
		return 0, fmt.Errorf("%w: append to %s", ErrWrongKind, c.kind)
	}
	off := int64(c.buf.Len())
	c.buf.Write(p)
	c.MarkDirty()
	return off, nil
}

// SetRaw replaces the bytes of a raw container.
func (c *Container) SetRaw(b []byte) error {
	if c.kind != KindRaw {
		return fmt.Errorf("%w: set raw bytes of %s", ErrWrongKind, c.kind)
	}
	c.raw = b
	c.MarkDirty()
	return nil
}

// Bytes returns the serialized form of c. Clean containers return the bytes
// they were parsed from.
func (c *Container) Bytes() ([]byte, error) {
	switch c.kind {
	case KindRaw:
		return c.raw, nil
	case KindBuffer:
		return c.buf.Bytes(), nil
	case KindSerializedFile, KindBundle, KindWeb:
		if !c.dirty && c.raw != nil {
			return c.raw, nil
		}
		return c.Serialize()
	}
	return nil, fmt.Errorf("%w: %s", ErrWrongKind, c.kind)
}

// Serialize rebuilds c from its parsed state and current children, applying
// the graph's write options.
func (c *Container) Serialize() ([]byte, error) {
	switch c.kind {
	case KindSerializedFile:
		return c.file.serialize()
	case KindBundle:
		return c.serializeBundle()
	case KindWeb:
		return c.serializeWeb()
	case KindRaw:
		return c.raw, nil
	case KindBuffer:
		return c.buf.Bytes(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrWrongKind, c.kind)
}

// members returns the name, flags and bytes of every child that is written
// back, in directory order. Dependency children are not part of the archive.
func (c *Container) members() ([]member, error) {
	var out []member
	for _, child := range c.Children() {
		if child.dependency {
			continue
		}
		b, err := child.Bytes()
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", child.name, err)
		}
		out = append(out, member{name: child.name, flags: c.flags[child.name], data: b})
	}
	return out, nil
}

type member struct {
	name  string
	flags uint32
	data  []byte
}

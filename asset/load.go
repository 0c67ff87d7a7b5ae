package asset

import (
	"errors"
	"fmt"

	"github.com/eichs/unitypack/internal/unitycn"
)

// Load parses data into a new root container of a fresh graph.
func Load(name string, data []byte, opts Options) (*Container, error) {
	return NewGraph(opts).Load(name, data)
}

// Load parses data into a new root container. Nested members are parsed
// recursively; a member that fails to parse is kept as raw bytes unless the
// graph is strict. Key failures always abort the load.
func (g *Graph) Load(name string, data []byte) (*Container, error) {
	c, err := g.parse(name, data)
	if err != nil {
		return nil, err
	}
	g.roots = append(g.roots, c.id)
	return c, nil
}

// AddDependency parses data and attaches it beside c so pointers into it
// resolve. Dependencies are skipped when the archive is written back. A name
// already present in the archive fails with ErrNameTaken and leaves the
// archive untouched.
func (c *Container) AddDependency(name string, data []byte) (*Container, error) {
	owner, err := c.archive()
	if err != nil {
		return nil, err
	}
	if owner.Child(name) != nil {
		return nil, fmt.Errorf("dependency %s in %s: %w", name, owner.name, ErrNameTaken)
	}
	dep, err := c.g.parse(name, data)
	if err != nil {
		return nil, err
	}
	dep.dependency = true
	owner.attach(dep, 0)
	return dep, nil
}

// AddMember parses data and stores it in the archive holding c under name,
// replacing any member of that name.
func (c *Container) AddMember(name string, data []byte, flags uint32) (*Container, error) {
	owner, err := c.archive()
	if err != nil {
		return nil, err
	}
	m, err := c.g.parseMember(name, data)
	if err != nil {
		return nil, err
	}
	owner.attach(m, flags)
	owner.MarkDirty()
	return m, nil
}

// archive returns c when it holds members, else its parent.
func (c *Container) archive() (*Container, error) {
	if c.kind == KindBundle || c.kind == KindWeb {
		return c, nil
	}
	return c.Parent()
}

func (g *Graph) parse(name string, data []byte) (*Container, error) {
	d := Detect(data)
	g.log.Debug("detected container", "name", name, "kind", d.Kind, "size", len(data))

	switch d.Kind {
	case KindSerializedFile:
		f, err := parseSerializedFile(data, d.Endian)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		c := g.add(newContainer(KindSerializedFile, name))
		c.file, f.container, c.raw = f, c, data
		g.log.Debug("read serialized file", "name", name, "version", f.Header.Version, "objects", len(f.objects))
		return c, nil

	case KindBundle:
		b, members, err := parseBundle(data, g.opts, g.log)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		c := g.add(newContainer(KindBundle, name))
		c.bundle, c.raw = b, data
		if err := g.attachMembers(c, members); err != nil {
			g.free(c)
			return nil, err
		}
		return c, nil

	case KindWeb:
		w, members, err := parseWeb(data, d.Stream, g.log)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		c := g.add(newContainer(KindWeb, name))
		c.web, c.raw = w, data
		if err := g.attachMembers(c, members); err != nil {
			g.free(c)
			return nil, err
		}
		return c, nil
	}

	c := g.add(newContainer(KindRaw, name))
	c.raw = data
	return c, nil
}

func (g *Graph) attachMembers(c *Container, members []member) error {
	for _, m := range members {
		child, err := g.parseMember(m.name, m.data)
		if err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
		c.attach(child, m.flags)
	}
	return nil
}

// parseMember parses an archive member, falling back to a raw container
// when the member is malformed and the graph is not strict.
func (g *Graph) parseMember(name string, data []byte) (*Container, error) {
	child, err := g.parse(name, data)
	if err == nil {
		return child, nil
	}
	if g.opts.Strict || errors.Is(err, unitycn.ErrDecryption) {
		return nil, err
	}
	g.log.Debug("keeping member as raw bytes", "name", name, "error", err)
	raw := g.add(newContainer(KindRaw, name))
	raw.raw = data
	return raw, nil
}

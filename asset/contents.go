package asset

import (
	"errors"
	"fmt"

	"github.com/eichs/unitypack/typetree"
)

// Contents returns the asset path to object id index of f, read from its
// AssetBundle or ResourceManager objects. Files without either return an
// empty map.
func (f *SerializedFile) Contents() (map[string]int64, error) {
	out := map[string]int64{}
	for _, o := range f.objects {
		if o.ClassID != ClassAssetBundle && o.ClassID != ClassResourceManager {
			continue
		}
		doc, err := o.Document()
		if err != nil {
			if errors.Is(err, ErrNoTypeTree) {
				continue
			}
			return nil, err
		}
		if err := collectContainer(doc, out); err != nil {
			return nil, fmt.Errorf("%s: %w", o, err)
		}
	}
	return out, nil
}

// collectContainer reads m_Container, a map of path to either an AssetInfo
// with an asset pointer or a bare pointer.
func collectContainer(doc *typetree.Document, out map[string]int64) error {
	v, ok := doc.Get("m_Container")
	if !ok {
		return nil
	}
	entries, ok := v.([]any)
	if !ok {
		return fmt.Errorf("m_Container is %T", v)
	}
	for _, e := range entries {
		pair, ok := e.(*typetree.Document)
		if !ok {
			return fmt.Errorf("m_Container entry is %T", e)
		}
		first, _ := pair.Get("first")
		path, ok := first.(string)
		if !ok {
			return fmt.Errorf("m_Container key is %T", first)
		}
		second, _ := pair.Get("second")
		if info, ok := second.(*typetree.Document); ok {
			if asset, ok := info.Get("asset"); ok {
				second = asset
			}
		}
		p, err := PointerFromDocument(second)
		if err != nil {
			return fmt.Errorf("m_Container %s: %w", path, err)
		}
		out[path] = p.PathID
	}
	return nil
}

// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package objcache

import (
	"sync"

	"github.com/gviegas/forge/driver"
)

// descBindKey identifies a unique descriptor bind-point: a
// name scoped to a particular layout hash, matching the
// teacher-adjacent source's UniqueParamBindPointKey.
type descBindKey struct {
	name   string
	layout Hash
}

// DescBindPoints assigns small, stable integers to (name,
// layout) descriptor bind-points, in order of first sight.
type DescBindPoints struct {
	mu   sync.Mutex
	next int
	m    map[descBindKey]int
}

func newDescBindPoints() *DescBindPoints {
	return &DescBindPoints{m: make(map[descBindKey]int)}
}

// Resolve returns the stable integer bound to (name, layout).
func (d *DescBindPoints) Resolve(name string, layout Hash) int {
	key := descBindKey{name, layout}
	d.mu.Lock()
	defer d.mu.Unlock()
	if i, ok := d.m[key]; ok {
		return i
	}
	i := d.next
	d.next++
	d.m[key] = i
	return i
}

// AccessMode is the read/write mode declared for a descriptor
// binding element.
type AccessMode uint8

const (
	AccessReadOnly AccessMode = iota
	AccessReadWrite
)

// BindingElement is one entry of a Descriptor Binding Map: the
// ordered instruction for pushing one resource into its
// platform-specific slot.
type BindingElement struct {
	// BindPointIndex is the logical bind-point (as assigned by
	// DescBindPoints) this element belongs to.
	BindPointIndex int
	// ElementIndex is the position of this element within its
	// bind-point's declared array (Len in driver.Descriptor).
	ElementIndex int
	// Type is the descriptor's driver-level type.
	Type driver.DescType
	// Slot is the platform-specific (OpenGL-style) slot
	// number. Slots are numbered from 0 independently per
	// Type, in the order bind points of that type first
	// appear; this numbering must match what is baked into
	// compiled shader blobs.
	Slot int
	// Mode is the declared read/write mode.
	Mode AccessMode
	// Format is the declared format; meaningful only for
	// DImage/DTexture entries.
	Format driver.PixelFmt
}

// BindingMap is the flattened, resolved binding map for a
// single pipeline's descriptor table.
type BindingMap struct {
	Elements []BindingElement
}

// BindingSource describes one undecided bind-point before
// slot assignment: its declared descriptors, used to build a
// BindingMap via ResolveBindingMap.
type BindingSource struct {
	BindPointIndex int
	Descriptors    []driver.Descriptor
}

// HashBindingSources computes the descriptor-binding hash
// that keys the binding-map cache.
func HashBindingSources(srcs []BindingSource) Hash {
	h := newHasher()
	h.writeUint64(uint64(len(srcs)))
	for _, s := range srcs {
		h.writeUint64(uint64(s.BindPointIndex))
		h.writeUint64(uint64(len(s.Descriptors)))
		for _, d := range s.Descriptors {
			h.writeUint64(uint64(d.Type))
			h.writeUint64(uint64(d.Stages))
			h.writeUint64(uint64(d.Nr))
			h.writeUint64(uint64(d.Len))
		}
	}
	return h.sum()
}

// buildBindingMap flattens srcs into a BindingMap, numbering
// each descriptor type's slots from 0 in the order its
// bind points first appear. This numbering is the contract
// that must match the slot numbering baked into shader blobs
// at compile time.
func buildBindingMap(srcs []BindingSource) *BindingMap {
	var next [5]int // indexed by driver.DescType
	bm := &BindingMap{}
	for _, s := range srcs {
		for ei, d := range s.Descriptors {
			slot := next[d.Type]
			next[d.Type]++
			mode := AccessReadOnly
			if d.Type == driver.DBuffer || d.Type == driver.DImage {
				mode = AccessReadWrite
			}
			bm.Elements = append(bm.Elements, BindingElement{
				BindPointIndex: s.BindPointIndex,
				ElementIndex:   ei,
				Type:           d.Type,
				Slot:           slot,
				Mode:           mode,
			})
		}
	}
	return bm
}

// bindingMaps is the content-addressed descriptor-binding map.
type bindingMaps struct {
	mu sync.Mutex
	m  map[Hash]*BindingMap
}

func newBindingMaps() *bindingMaps {
	return &bindingMaps{m: make(map[Hash]*BindingMap)}
}

// Resolve returns the cached BindingMap for srcs, building and
// storing one on first use.
func (c *bindingMaps) Resolve(srcs []BindingSource) (*BindingMap, Hash) {
	key := HashBindingSources(srcs)
	c.mu.Lock()
	defer c.mu.Unlock()
	if bm, ok := c.m[key]; ok {
		return bm, key
	}
	bm := buildBindingMap(srcs)
	c.m[key] = bm
	return bm, key
}

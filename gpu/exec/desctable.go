// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package exec

import (
	"sync"

	"github.com/gviegas/forge/driver"
	"github.com/gviegas/forge/gpu/objcache"
	"github.com/gviegas/forge/gpu/objects"
	"github.com/gviegas/forge/gpu/registry"
)

// Entry is one resolved resource binding within a Table: it
// names which binding-map element it fills and carries exactly
// one of the handles the element's Type calls for.
type Entry struct {
	// Buffer resolves a DConstant/DBuffer element, either to a
	// registered objects.Buffer (Off/Size select a sub-range)
	// or to an objects.BufferUntypedView (a pool-owned view,
	// as spec §4.7 describes: "resolves a view to the
	// per-frame constants temp buffer ... or a directly-bound
	// untyped view"). Off/Size are ignored for the latter.
	Buffer registry.Handle
	Off    int64
	Size   int64

	// View resolves a DImage/DTexture element to a registered
	// objects.ImageView. Its SamplerKey selects the predefined
	// sampler slot to bind alongside it.
	View registry.Handle
}

// Table is a bound descriptor table: the BindingMap it was
// built against, the DescHeaps backing its entries, the
// driver.DescTable combining them, and the resolved Entry per
// BindingElement. Tables are created by the Device (the only
// component with a driver.GPU to call NewDescHeap/NewDescTable)
// and consumed here by applyDescTable.
type Table struct {
	Map     *objcache.BindingMap
	Heaps   []driver.DescHeap
	Table   driver.DescTable
	Entries []Entry
}

// Store hands out opaque handles for Tables. It is deliberately
// not the Object Registry: descriptor tables are per-drawable
// and come and go far more often than the long-lived objects
// the registry tracks, so they get their own id space instead
// of consuming registry generation/slot churn.
type Store struct {
	mu   sync.Mutex
	next uint64
	m    map[registry.Handle]*Table
}

// NewStore creates an empty Store.
func NewStore() *Store { return &Store{m: make(map[registry.Handle]*Table)} }

// Create installs t and returns the handle subsequent
// SetDescTable opcodes refer to it by.
func (s *Store) Create(t *Table) registry.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	h := registry.Handle(s.next)
	s.m[h] = t
	return h
}

// Destroy removes h from the store. It does not destroy the
// underlying driver resources; callers that own a Table are
// responsible for destroying Table.Table and Table.Heaps
// themselves, typically from a Frame Record completion
// callback once the frame that last used it retires.
func (s *Store) Destroy(h registry.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, h)
}

func (s *Store) get(h registry.Handle) (*Table, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.m[h]
	return t, ok
}

// SamplerSlots maps the small-int predefined-sampler
// enumeration (§6 "predefined samplers live in a fixed slot
// table indexed by a small enumeration") to the driver.Sampler
// objects the Device created for them at construction.
type SamplerSlots struct {
	slots []driver.Sampler
}

// NewSamplerSlots creates a SamplerSlots table from slots
// indexed by the predefined-sampler enumeration.
func NewSamplerSlots(slots []driver.Sampler) *SamplerSlots {
	return &SamplerSlots{slots: slots}
}

func (s *SamplerSlots) bySlot(key int) (driver.Sampler, bool) {
	if s == nil || key < 0 || key >= len(s.slots) || s.slots[key] == nil {
		return nil, false
	}
	return s.slots[key], true
}

// applyDescTable pushes h's resolved Entries into their
// backing DescHeaps at the given heap copy, then binds the
// table range on the command buffer. This is the "Descriptor
// apply" policy of spec §4.7.
func (e *Executor) applyDescTable(h registry.Handle, start int, heapCopy []int) {
	t, ok := e.descTables.get(h)
	if !ok {
		log.Warnf("SetDescTable: stale or unknown table handle %s", h)
		return
	}
	cpy := 0
	for _, c := range heapCopy {
		if c > cpy {
			cpy = c
		}
	}
	for i, el := range t.Map.Elements {
		if i >= len(t.Entries) {
			break
		}
		ent := t.Entries[i]
		switch el.Type {
		case driver.DConstant, driver.DBuffer:
			buf, off, size, ok := e.resolveBufferEntry(ent)
			if !ok {
				log.Warnf("SetDescTable: entry %d: stale buffer handle", i)
				continue
			}
			t.Heaps[0].SetBuffer(cpy, el.Slot, 0, []driver.Buffer{buf}, []int64{off}, []int64{size})
		case driver.DImage, driver.DTexture:
			iv, ok := registry.Resolve[*objects.ImageView](e.reg, ent.View)
			if !ok {
				log.Warnf("SetDescTable: entry %d: stale image-view handle", i)
				continue
			}
			t.Heaps[0].SetImage(cpy, el.Slot, 0, []driver.ImageView{iv.ImageView})
			if el.Type == driver.DTexture {
				if splr, ok := e.samplers.bySlot(iv.SamplerKey); ok {
					t.Heaps[0].SetSampler(cpy, el.Slot, 0, []driver.Sampler{splr})
				}
			}
		}
	}
	if e.shadow.descCompute {
		e.cb.SetDescTableComp(t.Table, start, heapCopy)
	} else {
		e.cb.SetDescTableGraph(t.Table, start, heapCopy)
	}
}

func (e *Executor) resolveBufferEntry(ent Entry) (buf driver.Buffer, off, size int64, ok bool) {
	if b, matched := registry.Resolve[*objects.Buffer](e.reg, ent.Buffer); matched {
		return b.Buffer, ent.Off, ent.Size, true
	}
	if v, matched := registry.Resolve[*objects.BufferUntypedView](e.reg, ent.Buffer); matched {
		return v.Buffer.Buffer, v.Off, v.Size, true
	}
	return nil, 0, 0, false
}

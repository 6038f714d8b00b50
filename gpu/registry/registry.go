// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package registry

import (
	"sync"

	"github.com/gviegas/forge/logctx"
)

var log = logctx.New("registry")

// DeletionSink receives objects that have been marked for
// deletion so that whichever component owns frame lifetime
// (the Device Worker's current Frame Record) can finalize them
// only after the frame's fences have signalled.
type DeletionSink interface {
	EnqueueDeletion(h Handle, obj Object)
}

type slot struct {
	obj    Object
	gen    uint32
	marked bool
}

// Registry is the fixed-capacity table mapping Handles to live
// Objects. The zero value is not usable; call New.
type Registry struct {
	mu    sync.Mutex
	slots []slot
	free  []uint32 // free-index stack, LIFO
	gen   uint32   // monotonic generation counter, shared by all slots

	sink DeletionSink

	disconnectMu sync.Mutex
	disconnected bool
}

// New creates a Registry with the given fixed slot capacity.
// capacity is clamped to be at least 1024, mirroring the
// teacher engine's own floor for this table.
func New(capacity int) *Registry {
	if capacity < 1024 {
		capacity = 1024
	}
	r := &Registry{
		slots: make([]slot, capacity),
		free:  make([]uint32, capacity),
	}
	for i := range r.free {
		r.free[i] = uint32(capacity - 1 - i)
	}
	log.Infof("created with %d slots", capacity)
	return r
}

// SetSink installs the DeletionSink used by RequestDeletion.
// It must be called once, before any RequestDeletion call,
// typically right after the Device Worker is constructed.
func (r *Registry) SetSink(sink DeletionSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
}

// Register allocates a slot for obj and returns the Handle
// that identifies it. It is O(1): pop from the free-index
// stack, bump the generation counter, write the slot.
func (r *Registry) Register(obj Object) Handle {
	if obj == nil {
		panic("registry: Register called with nil Object")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.free) == 0 {
		panic("registry: out of object slots")
	}
	n := len(r.free) - 1
	index := r.free[n]
	r.free = r.free[:n]

	r.gen++
	r.slots[index] = slot{obj: obj, gen: r.gen, marked: false}

	return newHandle(index, r.gen, obj.ObjectKind())
}

// Unregister releases the slot identified by h back to the
// free list. It asserts that the slot currently holds obj and
// was marked for deletion (i.e., the caller is the Device
// Worker's finalizer, running after RequestDeletion and after
// the owning frame's fences signalled).
func (r *Registry) Unregister(h Handle, obj Object) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := h.Index()
	if int(idx) >= len(r.slots) {
		log.Warnf("Unregister: handle %s out of range", h)
		return
	}
	s := &r.slots[idx]
	if s.obj != obj || !s.marked {
		log.Warnf("Unregister: handle %s does not match a marked slot", h)
		return
	}
	*s = slot{}
	r.free = append(r.free, idx)
}

// Resolve returns the Object stored at h's slot if, and only
// if, the slot is occupied, its generation matches, and its
// kind equals Kind of the expected type T. Resolve is usable
// even after the object has been marked for deletion but not
// yet finalized; it starts returning false only once the
// worker's Unregister call has run.
func Resolve[T Object](r *Registry, h Handle) (t T, ok bool) {
	if h.IsNil() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := h.Index()
	if int(idx) >= len(r.slots) {
		return
	}
	s := &r.slots[idx]
	if s.obj == nil {
		return
	}
	// The generation check guards against use-after-free: a
	// stale handle referring to a slot that has since been
	// reused for a different object must miss, never resolve
	// to the wrong object.
	if s.gen != h.Generation() {
		return
	}
	if s.obj.ObjectKind() != h.Kind() {
		return
	}
	got, matches := s.obj.(T)
	if !matches {
		return
	}
	t, ok = got, true
	return
}

// RequestDeletion idempotently marks h's object for deletion
// and, the first time it is called for a given handle, hands
// the object to the installed DeletionSink. Resolves against
// h may still succeed until the sink's owner finalizes it.
func (r *Registry) RequestDeletion(h Handle) {
	r.mu.Lock()
	idx := h.Index()
	if int(idx) >= len(r.slots) {
		r.mu.Unlock()
		return
	}
	s := &r.slots[idx]
	if s.obj == nil || s.marked || s.gen != h.Generation() {
		r.mu.Unlock()
		return
	}
	s.marked = true
	obj := s.obj
	sink := r.sink
	r.mu.Unlock()

	if sink != nil {
		sink.EnqueueDeletion(h, obj)
	}
}

// RunWith resolves h and, if it succeeds, invokes fn with the
// registry lock held across the call, preventing a concurrent
// Unregister from finalizing the object mid-operation. fn must
// be short; holding the registry lock blocks every other
// Register/Resolve/RequestDeletion call in the system.
func (r *Registry) RunWith(h Handle, fn func(Object)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := h.Index()
	if int(idx) >= len(r.slots) {
		return false
	}
	s := &r.slots[idx]
	if s.obj == nil || s.gen != h.Generation() || s.obj.ObjectKind() != h.Kind() {
		return false
	}
	fn(s.obj)
	return true
}

// Proxy is a handle-resolving facade that user-side objects
// may hold onto. Once the owning Registry is torn down (via
// Disconnect), the proxy's methods become no-ops instead of
// touching freed state.
type Proxy struct {
	r *Registry
}

// NewProxy creates a Proxy bound to r.
func (r *Registry) NewProxy() *Proxy { return &Proxy{r: r} }

// Disconnect detaches every Proxy created from r from this
// Registry. Subsequent Proxy method calls become no-ops.
func (r *Registry) Disconnect() {
	r.disconnectMu.Lock()
	defer r.disconnectMu.Unlock()
	r.disconnected = true
}

func (p *Proxy) live() *Registry {
	p.r.disconnectMu.Lock()
	defer p.r.disconnectMu.Unlock()
	if p.r.disconnected {
		return nil
	}
	return p.r
}

// RequestDeletion forwards to Registry.RequestDeletion, or
// does nothing if the registry has been disconnected.
func (p *Proxy) RequestDeletion(h Handle) {
	if r := p.live(); r != nil {
		r.RequestDeletion(h)
	}
}

// RunWith forwards to Registry.RunWith, returning false if the
// registry has been disconnected.
func (p *Proxy) RunWith(h Handle, fn func(Object)) bool {
	if r := p.live(); r != nil {
		return r.RunWith(h, fn)
	}
	return false
}

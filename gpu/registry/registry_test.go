// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package registry

import "testing"

type fakeBuffer struct{ id int }

func (*fakeBuffer) ObjectKind() Kind { return KindBuffer }

type fakeImage struct{ id int }

func (*fakeImage) ObjectKind() Kind { return KindImage }

func TestRegisterResolve(t *testing.T) {
	r := New(16)
	obj := &fakeBuffer{id: 1}
	h := r.Register(obj)

	got, ok := Resolve[*fakeBuffer](r, h)
	if !ok || got != obj {
		t.Fatalf("Resolve\nhave %v, %v\nwant %v, true", got, ok, obj)
	}

	// Resolving with the wrong kind/type must miss.
	if _, ok := Resolve[*fakeImage](r, h); ok {
		t.Fatal("Resolve: expected miss for mismatched type")
	}
}

func TestGenerationNeverCollides(t *testing.T) {
	r := New(4)
	seen := make(map[Handle]bool)
	for i := 0; i < 4; i++ {
		h := r.Register(&fakeBuffer{id: i})
		if seen[h] {
			t.Fatalf("Register: handle %s reused", h)
		}
		seen[h] = true
		r.RequestDeletion(h)
		r.Unregister(h, r.slotObjectForTest(h))
	}
	// Four allocate/free cycles with capacity 4 (New raises it
	// to 1024 slots, but the LIFO free list hands back the same
	// slot every cycle): every handle returned must have been
	// unique despite slot reuse.
	if len(seen) != 4 {
		t.Fatalf("expected 4 distinct handles, got %d", len(seen))
	}
}

// slotObjectForTest is a small test-only accessor so the
// generation test can call Unregister with the exact object
// pointer the slot holds, mirroring what a real caller would
// have kept around from Register.
func (r *Registry) slotObjectForTest(h Handle) Object {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots[h.Index()].obj
}

func TestResolveMissesStaleGenerationAfterSlotReuse(t *testing.T) {
	r := New(4)
	a := &fakeBuffer{id: 1}
	h1 := r.Register(a)
	r.RequestDeletion(h1)
	r.Unregister(h1, a)

	// h1's slot is now free and gets reused by a second Buffer:
	// same index, same kind, new generation.
	b := &fakeBuffer{id: 2}
	h2 := r.Register(b)
	if h1.Index() != h2.Index() {
		t.Fatalf("expected slot reuse: h1 index %d, h2 index %d", h1.Index(), h2.Index())
	}
	if h1.Generation() == h2.Generation() {
		t.Fatalf("expected distinct generations, both %d", h1.Generation())
	}

	// Resolving the old handle must miss, never return b.
	if got, ok := Resolve[*fakeBuffer](r, h1); ok {
		t.Fatalf("Resolve(h1) after slot reuse\nhave %v, true\nwant _, false", got)
	}
	got, ok := Resolve[*fakeBuffer](r, h2)
	if !ok || got != b {
		t.Fatalf("Resolve(h2)\nhave %v, %v\nwant %v, true", got, ok, b)
	}
}

func TestResolveAfterDeletionRequestStillLive(t *testing.T) {
	r := New(4)
	obj := &fakeBuffer{}
	h := r.Register(obj)
	r.RequestDeletion(h)

	// Per the invariant in spec.md section 8: while the frame
	// is still open (i.e., before Unregister runs), a resolve
	// must still return the original object, never null.
	got, ok := Resolve[*fakeBuffer](r, h)
	if !ok || got != obj {
		t.Fatalf("Resolve after RequestDeletion (pre-finalize)\nhave %v, %v\nwant %v, true", got, ok, obj)
	}

	r.Unregister(h, obj)
	if _, ok := Resolve[*fakeBuffer](r, h); ok {
		t.Fatal("Resolve after Unregister: expected miss")
	}
}

func TestRequestDeletionIdempotentAndSink(t *testing.T) {
	r := New(4)
	obj := &fakeBuffer{}
	h := r.Register(obj)

	var calls int
	r.SetSink(sinkFunc(func(gotH Handle, gotObj Object) {
		calls++
		if gotH != h || gotObj != obj {
			t.Fatalf("sink called with wrong args: %v %v", gotH, gotObj)
		}
	}))

	r.RequestDeletion(h)
	r.RequestDeletion(h)
	r.RequestDeletion(h)
	if calls != 1 {
		t.Fatalf("sink invoked %d times, want 1 (idempotent)", calls)
	}
}

type sinkFunc func(Handle, Object)

func (f sinkFunc) EnqueueDeletion(h Handle, obj Object) { f(h, obj) }

func TestProxyDisconnect(t *testing.T) {
	r := New(4)
	obj := &fakeBuffer{}
	h := r.Register(obj)
	p := r.NewProxy()

	if !p.RunWith(h, func(Object) {}) {
		t.Fatal("RunWith: expected success before disconnect")
	}

	r.Disconnect()
	if p.RunWith(h, func(Object) { t.Fatal("fn must not run after disconnect") }) {
		t.Fatal("RunWith: expected no-op after disconnect")
	}
	p.RequestDeletion(h) // must not panic
}

func TestHandleEncoding(t *testing.T) {
	h := newHandle(0xABCDEF, 0x1234, KindSampler)
	if h.Index() != 0xABCDEF {
		t.Fatalf("Index\nhave %x\nwant %x", h.Index(), 0xABCDEF)
	}
	if h.Generation() != 0x1234 {
		t.Fatalf("Generation\nhave %x\nwant %x", h.Generation(), 0x1234)
	}
	if h.Kind() != KindSampler {
		t.Fatalf("Kind\nhave %v\nwant %v", h.Kind(), KindSampler)
	}
}

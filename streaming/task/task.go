// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package task implements the streaming engine's
// producer/consumer task: a snapshot of observer positions and
// the currently-attached island set is turned into a proposed
// set of loads/unloads on a background goroutine, and the
// proposal is later applied to the world in one atomic step
// (spec.md §4.8).
//
// A Task owns no world state: it mutates only its own copies of
// the attached-island bookkeeping, so Process can run
// concurrently with the game tick that will eventually call
// Apply. Cancellation is therefore always safe - a canceled
// task's result is simply discarded, never unwound (spec.md §5,
// §9 Design Notes).
package task

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/gviegas/forge/internal/bitvec"
	"github.com/gviegas/forge/logctx"
	"github.com/gviegas/forge/scene"
	"github.com/gviegas/forge/streaming"
)

var log = logctx.New("streaming/task")

// loaded pairs an island index with the instance its Loader
// produced, kept together so Apply does not need to re-index
// into the Engine's (possibly since-mutated) instance slice.
type loaded struct {
	idx  streaming.Index
	inst *streaming.IslandInstance
}

// Task is one run of the visibility/unload/load algorithm
// against a snapshot of an Engine's state.
type Task struct {
	engine    *streaming.Engine
	observers []streaming.Observer

	// prevAttached is the Engine's attached-island list at
	// the moment the Task was created, copied so
	// concurrent Engine mutation (there is none, by contract,
	// but defensively) cannot be observed mid-process.
	prevAttached []streaming.Index

	inRangeMask bitvec.V[uint64]
	newAttached []streaming.Index // parents before children, post unload+load

	unloadedIslands []streaming.Index
	loadedIslands   []loaded

	canceled atomic.Bool

	maxConcurrent int64
}

// New snapshots e's attached list, together with a copy of
// observers, into a new Task ready for Process. maxConcurrent bounds how
// many island decodes run at once (config.Default().MaxConcurrentLoads);
// 0 means unbounded.
func New(e *streaming.Engine, observers []streaming.Observer, maxConcurrent int) *Task {
	t := &Task{
		engine:        e,
		observers:     append([]streaming.Observer(nil), observers...),
		prevAttached:  append([]streaming.Index(nil), e.Attached()...),
		maxConcurrent: int64(maxConcurrent),
	}
	t.inRangeMask.Grow(1 + e.Len()/64)
	return t
}

// RequestCancel cooperatively cancels t. A canceled task may
// still complete Process (in-flight decodes are not unwound),
// but Apply must not be called with it - the caller is expected
// to check Canceled and skip application (spec.md §5).
func (t *Task) RequestCancel() { t.canceled.Store(true) }

// Canceled reports whether RequestCancel was called.
func (t *Task) Canceled() bool { return t.canceled.Load() }

// Process runs the three-phase algorithm against t's snapshot:
// visibility, unload, load. It blocks until every island chosen
// for loading in this pass has either finished decoding or
// failed (content-load failures are logged and the island is
// simply left out of newAttached, per spec.md §7).
func (t *Task) Process(ctx context.Context) error {
	t.visibilityPass()
	t.unloadPass()
	return t.loadPass(ctx)
}

// visibilityPass sets t.inRangeMask[i] for every island that is
// AlwaysLoaded or contains any observer's position.
func (t *Task) visibilityPass() {
	for i := 0; i < t.engine.Len(); i++ {
		idx := streaming.Index(i)
		isl := t.engine.Island(idx)
		if isl.AlwaysLoaded {
			t.inRangeMask.Set(i)
			continue
		}
		for j := range t.observers {
			box := isl.Box
			if t.observers[j].InRange(&box) {
				t.inRangeMask.Set(i)
				break
			}
		}
	}
}

// unloadPass walks the previous attached list (parents before
// children) and drops any island no longer in range, compacting
// the rest into t.newAttached while recording the dropped
// islands, in the same forward order, into t.unloadedIslands.
// Apply later walks unloadedIslands in reverse so a parent is
// never detached before its children (spec.md §4.8 step 2,
// supplemented by original_source/worldStreamingIsland.cpp -
// see DESIGN.md).
func (t *Task) unloadPass() {
	t.newAttached = make([]streaming.Index, 0, len(t.prevAttached))
	for _, idx := range t.prevAttached {
		if t.inRangeMask.IsSet(int(idx)) {
			t.newAttached = append(t.newAttached, idx)
			continue
		}
		t.unloadedIslands = append(t.unloadedIslands, idx)
	}
}

// loadPass walks every island in ascending index order (baked
// islands are numbered so a parent's index always precedes its
// children's - see DESIGN.md) and loads any in-range island that
// is not yet attached and whose parent (if any) already is.
// Decodes run concurrently, bounded by t.maxConcurrent.
func (t *Task) loadPass(ctx context.Context) error {
	attachedAfter := make(map[streaming.Index]bool, len(t.newAttached))
	for _, idx := range t.newAttached {
		attachedAfter[idx] = true
	}

	var sem *semaphore.Weighted
	if t.maxConcurrent > 0 {
		sem = semaphore.NewWeighted(t.maxConcurrent)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < t.engine.Len(); i++ {
		idx := streaming.Index(i)
		if !t.inRangeMask.IsSet(i) || attachedAfter[idx] {
			continue
		}
		isl := t.engine.Island(idx)
		if isl.Parent != streaming.NilIndex && !attachedAfter[isl.Parent] {
			// Parent not yet attached this pass: the child
			// waits for a subsequent task once its parent is
			// attached (spec.md §4.8 step 3's "check its
			// parent is attached").
			continue
		}
		// Mark attached immediately so a grandchild visited
		// later in this same forward pass sees its parent as
		// already committed, even though the decode itself is
		// still in flight.
		attachedAfter[idx] = true
		t.newAttached = append(t.newAttached, idx)

		g.Go(func() error {
			if sem != nil {
				if err := sem.Acquire(gctx, 1); err != nil {
					return nil
				}
				defer sem.Release(1)
			}
			if t.canceled.Load() {
				return nil
			}
			inst, err := t.engine.LoaderFor(isl).Load(isl)
			if err != nil {
				log.Errorf("island %d: decode failed: %v", idx, err)
				mu.Lock()
				t.removeFromNewAttached(idx)
				mu.Unlock()
				return nil
			}
			mu.Lock()
			t.loadedIslands = append(t.loadedIslands, loaded{idx, inst})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	// Decodes complete in arbitrary order (whichever goroutine
	// finishes first), but Apply must attach a parent before its
	// child even when both load within this same task - re-sort
	// into ascending index order, which loadPass's own gating
	// above guarantees is parent-before-child, since a parent is
	// always attached-after at a smaller index than any of its
	// children (see DESIGN.md).
	sort.Slice(t.loadedIslands, func(i, j int) bool {
		return t.loadedIslands[i].idx < t.loadedIslands[j].idx
	})
	// A child whose parent's decode failed in this same pass is
	// dropped as well, so no island is attached without its parent.
	attached := make(map[streaming.Index]bool, len(t.newAttached))
	for _, idx := range t.newAttached {
		attached[idx] = true
	}
	kept := t.loadedIslands[:0]
	for _, l := range t.loadedIslands {
		if p := t.engine.Island(l.idx).Parent; p != streaming.NilIndex && !attached[p] {
			delete(attached, l.idx)
			t.removeFromNewAttached(l.idx)
			continue
		}
		kept = append(kept, l)
	}
	t.loadedIslands = kept
	return nil
}

// removeFromNewAttached drops idx from t.newAttached; used when
// a decode fails after the island was optimistically marked
// attached for its descendants' benefit.
func (t *Task) removeFromNewAttached(idx streaming.Index) {
	for i, v := range t.newAttached {
		if v == idx {
			t.newAttached = append(t.newAttached[:i], t.newAttached[i+1:]...)
			return
		}
	}
}

// Apply mutates world and e to reflect t's proposed changes:
// detaches every unloaded island's entities (children before
// parents), attaches every loaded island's entities (parents
// before children: loadPass sorts them into ascending index
// order), then swaps in t's attached list as e's new order; the
// attached mask is updated island by island through SetInstance
// (spec.md §4.8 "Application").
//
// Apply must not be called with a canceled Task.
func Apply(world *scene.Scene, e *streaming.Engine, t *Task) {
	if t.canceled.Load() {
		panic("streaming/task: Apply called with a canceled Task")
	}
	for i := len(t.unloadedIslands) - 1; i >= 0; i-- {
		idx := t.unloadedIslands[i]
		inst := e.Instance(idx)
		if inst == nil {
			continue
		}
		for _, ent := range inst.Entities {
			world.DetachEntity(ent)
		}
		e.SetInstance(idx, nil)
	}
	for _, l := range t.loadedIslands {
		var parent *scene.Entity
		if p := e.Island(l.idx).Parent; p != streaming.NilIndex {
			if pinst := e.Instance(p); pinst != nil {
				parent = pinst.Root
			}
		}
		for _, ent := range l.inst.Entities {
			world.AttachEntity(parent, ent)
		}
		e.SetInstance(l.idx, l.inst)
	}
	e.SetAttached(t.newAttached)
}

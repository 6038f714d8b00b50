// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package streaming

import (
	"github.com/gviegas/forge/internal/bitvec"
)

// Engine is the Streaming Engine: the flat island table plus
// the set of currently-attached islands (spec.md §4.8). It owns
// no world state directly - world mutation happens only inside
// streaming/task's Apply step - but it is the single place that
// remembers what is attached between ticks, so the next task
// snapshots a consistent starting point.
type Engine struct {
	islands         []Island
	islandInstances []*IslandInstance // nil until loaded, indexed like islands
	attached        []Index           // order matters: parents precede children
	attachedMask    bitvec.V[uint64]
	loader          Loader
}

// NewEngine creates an Engine over a fixed set of baked islands.
// islands is taken as-is (not copied); callers must not mutate
// it afterward. loader decodes each island's packed blob on
// demand.
func NewEngine(islands []Island, loader Loader) *Engine {
	e := &Engine{
		islands:         islands,
		islandInstances: make([]*IslandInstance, len(islands)),
		loader:          loader,
	}
	e.attachedMask.Grow(1 + len(islands)/64)
	log.Infof("created with %d islands", len(islands))
	return e
}

// Len returns the number of islands the Engine knows about.
func (e *Engine) Len() int { return len(e.islands) }

// Island returns the baked island at idx.
func (e *Engine) Island(idx Index) *Island { return &e.islands[idx] }

// Instance returns the loaded instance for idx, or nil if idx
// is not currently attached.
func (e *Engine) Instance(idx Index) *IslandInstance { return e.islandInstances[idx] }

// IsAttached reports whether idx is currently attached.
func (e *Engine) IsAttached(idx Index) bool { return e.attachedMask.IsSet(int(idx)) }

// Attached returns the current attached-island order (parents
// before children). The returned slice must not be retained
// past the next call into the Engine or a Task that mutates it.
func (e *Engine) Attached() []Index { return e.attached }

// LoaderFor returns the Loader to use for decoding isl. Every
// island in an Engine currently shares the same Loader; the
// per-island parameter leaves room for a future per-sector
// Loader without changing the call shape (e.g. streaming from
// different compiled-sector files with different codecs).
func (e *Engine) LoaderFor(isl *Island) Loader { return e.loader }

// SetInstance records (or, if inst is nil, clears) the loaded
// instance for idx and updates attachedMask accordingly. It is
// called only from streaming/task's Apply, which is the sole
// place world/engine state is mutated (spec.md §4.8).
func (e *Engine) SetInstance(idx Index, inst *IslandInstance) {
	e.islandInstances[idx] = inst
	if inst != nil {
		e.attachedMask.Set(int(idx))
	} else {
		e.attachedMask.Unset(int(idx))
	}
}

// SetAttached replaces the Engine's attached-island order. It
// is called only from streaming/task's Apply, once per task, as
// the final step that commits a task's proposal (spec.md §4.8
// "Application", step 3).
func (e *Engine) SetAttached(attached []Index) { e.attached = attached }

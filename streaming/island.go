// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package streaming implements the World Streaming Core: a
// grid-partitioned engine that loads and unloads precompiled
// "islands" of entities around a set of moving observers, with
// parent/child ordering and background decoding. It shares no
// mechanism with the gpu/* packages (the GPU Execution Core) but
// the same shape: a producer (game tick) accumulates observer
// state, a background step (see streaming/task) performs the
// expensive decode, and application to the world is a single
// atomic step.
package streaming

import (
	"errors"

	"github.com/gviegas/forge/linear"
	"github.com/gviegas/forge/logctx"
	"github.com/gviegas/forge/scene"
)

var log = logctx.New("streaming")

// ErrDecode is wrapped by a Loader when an island's packed blob
// fails to decompress or deserialize (spec.md §7 "Content load"
// error policy: the island simply stays unattached and is
// retried on the next visibility pass, it is never fatal).
var ErrDecode = errors.New("streaming: island decode failed")

// Index identifies an island within an Engine's flat island
// array. It is a plain slice index, not a generational handle:
// islands are baked offline and never reused or reindexed at
// runtime.
type Index int

// NilIndex is the invalid Index; the root of a streaming forest
// reports this as its parent.
const NilIndex Index = -1

// Loader decodes an Island's compressed entity blob into an
// IslandInstance. It is the seam to the resource
// factory/serialization layer spec.md places out of scope
// (§1): concretely wired to gltf.Decode-shaped code that
// resolves an island's external resource references.
//
// Load is called on a background goroutine (see
// streaming/task); it may block and must be safe to call
// concurrently for distinct islands.
type Loader interface {
	Load(island *Island) (*IslandInstance, error)
}

// Island is one streamable unit of scene content: a group of
// entities loaded and attached, or unloaded and detached, as a
// single atomic operation.
//
// Invariant: Box contains the Box of every descendant island in
// Children (a property of the baked data; neither grid.go nor
// the sector package checks it); a child is only ever loaded
// once its Parent is loaded.
type Island struct {
	// Box is the island's streaming box: an island becomes a
	// load candidate once any Observer's position enters it
	// (or immediately, if AlwaysLoaded).
	Box linear.Box3

	// AlwaysLoaded islands are treated as always in range,
	// regardless of observer position (e.g. always-resident
	// gameplay-critical content).
	AlwaysLoaded bool

	// EntityCount is the number of entities Packed decodes
	// into; it is known up front (baked) so loaders can
	// preallocate.
	EntityCount int

	// Packed is the LZ4HC-compressed entity blob.
	Packed []byte

	// UnpackedSize is Packed's decompressed size in bytes,
	// used to size the decompression buffer without growing
	// it incrementally.
	UnpackedSize int

	// Parent is the index of this island's parent in the
	// owning Engine's flat array, or NilIndex for a root
	// island.
	Parent Index

	// Children lists the indices of this island's direct
	// children in the owning Engine's flat array.
	Children []Index
}

// IslandInstance is the materialized, entity-populated form of
// an Island after a Loader decodes it. Entities are attached or
// detached as the group Entities, never individually.
type IslandInstance struct {
	// Entities are attached to, or detached from, the World
	// (scene.Scene, see streaming/task) as a single group: an
	// island's entities are never partially attached.
	Entities []*scene.Entity

	// Root is the entity, if any, that should be reparented
	// under the parent island's analogous entity when this
	// instance is attached (nil for a flat, unparented group).
	Root *scene.Entity
}

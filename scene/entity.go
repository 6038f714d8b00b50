// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package scene

import (
	"github.com/gviegas/forge/linear"
	"github.com/gviegas/forge/node"
)

// Entity is the World API's unit of attachment: whatever an
// Island decodes into, wrapped so it can live in a Scene's
// node.Graph. The streaming engine never constructs these
// directly - they come back from a Loader's decode step and
// are attached/detached as a group by Scene.AttachEntity and
// Scene.DetachEntity.
type Entity struct {
	local   linear.M4
	changed bool

	// Name identifies the entity for debugging and for
	// resolving cross-island references within a loaded
	// island instance. It is not interpreted by Scene.
	Name string

	node node.Node
}

// NewEntity creates an entity with an identity local transform.
func NewEntity(name string) *Entity {
	e := &Entity{Name: name}
	e.local.I()
	return e
}

// Local implements node.Interface.
func (e *Entity) Local() *linear.M4 { return &e.local }

// Changed implements node.Interface.
// It reports the sticky "dirty since last Update" flag and
// clears it, matching the one-shot contract node.Graph.Update
// relies on.
func (e *Entity) Changed() bool {
	c := e.changed
	e.changed = false
	return c
}

// SetLocal replaces the entity's local transform and marks it
// changed so the next Scene.Update recomputes its world
// transform.
func (e *Entity) SetLocal(m linear.M4) {
	e.local = m
	e.changed = true
}

// AttachEntity inserts e as an immediate descendant of parent
// (the scene's root if parent is nil).
// It is the World API's attach half of the streaming engine's
// attach/detach contract (spec.md §6): the streaming task
// applies loaded islands to the world by calling this once per
// entity, in island order, only after the island's parent
// island (if any) is already attached.
//
// AttachEntity is idempotent against double-attach: an already
// attached entity is detached first.
func (s *Scene) AttachEntity(parent *Entity, e *Entity) {
	if e.node != node.Nil {
		s.DetachEntity(e)
	}
	var prev node.Node
	if parent != nil {
		prev = parent.node
	}
	e.node = s.graph.Insert(e, prev)
}

// DetachEntity removes e and every entity attached beneath it
// (e.g. a child island's entities, which streaming/task attaches
// under the parent island's Root) from the scene graph, marking
// each of them detached. Detaching an entity that is not
// currently attached is a no-op.
func (s *Scene) DetachEntity(e *Entity) {
	if e.node == node.Nil {
		return
	}
	for _, x := range s.graph.Remove(e.node) {
		if d, ok := x.(*Entity); ok {
			d.node = node.Nil
		}
	}
}

// Update recomputes every attached entity's world transform.
// It should be called once per tick, before the command
// recorder reads any entity's world transform.
func (s *Scene) Update() { s.graph.Update() }

// World returns e's last-computed world transform: identity if
// Update has not run since e was attached, and the zero matrix
// if e is not currently attached.
func (s *Scene) World(e *Entity) linear.M4 { return *s.graph.World(e.node) }

// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package scene provides functionality for creating and
// rendering scene graphs.
package scene

import (
	"github.com/gviegas/forge/node"
)

// Scene defines a scene graph.
//
// Scene is the World API collaborator the streaming engine
// drives through AttachEntity/DetachEntity (spec.md §6): the
// engine owns no entities itself, it only proposes which
// islands should be (de)materialized, and task.Apply (see
// streaming/task) is the sole place that mutates a Scene.
type Scene struct {
	graph node.Graph
}

// New creates an initialized scene.
func New() *Scene { return new(Scene).Init() }

// Init initializes a scene.
func (s *Scene) Init() *Scene {
	s.graph = node.Graph{}
	return s
}

// Len returns the number of entities currently attached.
func (s *Scene) Len() int { return s.graph.Len() }

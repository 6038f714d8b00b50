// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package streaming

import "github.com/gviegas/forge/linear"

// Observer is a moving point of interest whose position drives
// which islands stream in (spec.md §3).
type Observer struct {
	Position linear.V3
	Velocity linear.V3

	// MaxRange is the observer's maximum streaming range, in
	// world units. It is not consulted by the island-level
	// visibility pass (an island's own Box is authoritative
	// there, per spec.md §4.8); it exists for callers that
	// need to bound how far out a set of islands should be
	// baked/considered in the first place (grid level
	// selection at bake time, see grid.go).
	MaxRange float32
}

// InRange reports whether o's position lies within box.
func (o *Observer) InRange(box *linear.Box3) bool {
	return box.Contains(o.Position)
}

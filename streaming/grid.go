// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package streaming

import (
	"github.com/gviegas/forge/linear"
)

// CellCoord identifies a cell within one Grid level.
type CellCoord struct{ X, Z int }

// Cell buckets the islands whose level this is and whose
// center falls within it (spec.md §4.8: "within that level it
// is assigned the cell containing its center").
type Cell struct {
	Coord   CellCoord
	Islands []Index
}

// Level is one level of the streaming grid: a uniform
// partition of the XZ plane into squares of Size world units.
// Empty cells are never materialized (spec.md §4.8 "empty
// cells are culled").
type Level struct {
	Size  float32
	Cells map[CellCoord]*Cell
}

// Grid is the offline, bake-time multi-level 2D grid that
// buckets islands by streaming radius for O(visible) queries
// (spec.md §3, §4.8). It is not consulted by the runtime
// visibility pass, which is linear over all islands (spec.md
// §4.8, §9 Design Notes); it exists to separate hot and cold
// content into sectors when the world is baked, and as an
// optional runtime acceleration hook for callers that choose to
// add one (see Query).
type Grid struct {
	// SmallestCell is the size, in world units, of Level 0. It
	// must be a positive value; config.Default().StreamingGridSmallestCell
	// supplies the default (16, per the original bake tool's
	// floor).
	SmallestCell float32
	Levels       []Level
}

// NewGrid creates an empty Grid whose level sizes double
// starting from smallestCell, with nlevels levels.
func NewGrid(smallestCell float32, nlevels int) *Grid {
	if smallestCell <= 0 {
		smallestCell = 16
	}
	g := &Grid{SmallestCell: smallestCell, Levels: make([]Level, nlevels)}
	size := smallestCell
	for i := range g.Levels {
		g.Levels[i] = Level{Size: size, Cells: make(map[CellCoord]*Cell)}
		size *= 2
	}
	return g
}

// levelFor returns the index of the smallest level whose cell
// size equals or exceeds maxExtent, clamping to the largest
// available level if maxExtent exceeds every level's size.
func (g *Grid) levelFor(maxExtent float32) int {
	for i := range g.Levels {
		if g.Levels[i].Size >= maxExtent {
			return i
		}
	}
	return len(g.Levels) - 1
}

// cellFor returns the CellCoord of the cell containing center
// at the given level size.
func cellFor(center linear.V3, size float32) CellCoord {
	return CellCoord{
		X: int(floorDiv(center[0], size)),
		Z: int(floorDiv(center[2], size)),
	}
}

func floorDiv(a, b float32) float32 {
	q := a / b
	if q < 0 {
		// Truncation towards zero would round a negative
		// coordinate up into the wrong cell; floor it instead.
		qi := float32(int(q))
		if qi != q {
			qi--
		}
		return qi
	}
	return float32(int(q))
}

// Insert places island idx (whose box is box, with minSize
// already applied by the caller - see BoxMinSize) into the grid
// level matching its max extent, within the cell containing its
// center.
func (g *Grid) Insert(idx Index, box *linear.Box3) {
	extent := box.MaxExtent()
	lvl := g.levelFor(extent)
	coord := cellFor(box.Center(), g.Levels[lvl].Size)
	cell, ok := g.Levels[lvl].Cells[coord]
	if !ok {
		cell = &Cell{Coord: coord}
		g.Levels[lvl].Cells[coord] = cell
	}
	cell.Islands = append(cell.Islands, idx)
}

// BoxMinSize returns box with every axis floored at minSize,
// matching the bake tool's "std::max(size, 70.0f)" rule
// (config.Default().StreamingBoxMinSize) so degenerate or tiny
// streaming boxes do not collapse into a single, always-in-range
// grid cell.
func BoxMinSize(box linear.Box3, minSize float32) linear.Box3 {
	c := box.Center()
	e := box.Extent()
	for i := range e {
		if e[i] < minSize {
			e[i] = minSize
		}
	}
	return linear.Box3{
		Min: linear.V3{c[0] - e[0]/2, c[1] - e[1]/2, c[2] - e[2]/2},
		Max: linear.V3{c[0] + e[0]/2, c[1] + e[1]/2, c[2] + e[2]/2},
	}
}

// Query returns every island index bucketed in any cell, at any
// level, whose cell covers pos - a conservative superset of the
// islands actually in range at pos, useful for callers that
// want to pre-filter before the exact Box3.Contains check the
// visibility pass performs.
func (g *Grid) Query(pos linear.V3) []Index {
	var out []Index
	for _, lvl := range g.Levels {
		coord := cellFor(pos, lvl.Size)
		if cell, ok := lvl.Cells[coord]; ok {
			out = append(out, cell.Islands...)
		}
	}
	return out
}

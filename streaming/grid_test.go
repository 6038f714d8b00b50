// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package streaming

import (
	"testing"

	"github.com/gviegas/forge/linear"
)

func TestGridLevelFor(t *testing.T) {
	g := NewGrid(16, 4) // sizes: 16, 32, 64, 128

	cases := []struct {
		extent float32
		want   int
	}{
		{1, 0},
		{16, 0},
		{17, 1},
		{63, 2},
		{500, 3}, // clamps to the largest level
	}
	for _, c := range cases {
		if got := g.levelFor(c.extent); got != c.want {
			t.Errorf("levelFor(%v) = %d, want %d", c.extent, got, c.want)
		}
	}
}

func TestGridInsertCullsEmptyCells(t *testing.T) {
	g := NewGrid(16, 2)
	box := linear.BoxFromCenter(linear.V3{5, 0, 5}, 4)
	g.Insert(0, &box)

	if len(g.Levels[0].Cells) != 1 {
		t.Fatalf("expected exactly one populated cell, got %d", len(g.Levels[0].Cells))
	}
	if len(g.Levels[1].Cells) != 0 {
		t.Fatalf("expected level 1 to stay empty, got %d cells", len(g.Levels[1].Cells))
	}
}

func TestBoxMinSizeFloors(t *testing.T) {
	box := linear.BoxFromCenter(linear.V3{0, 0, 0}, 10)
	padded := BoxMinSize(box, 70)
	ext := padded.Extent()
	for i, e := range ext {
		if e < 70 {
			t.Fatalf("axis %d extent = %v, want >= 70", i, e)
		}
	}
	// A box already larger than the floor is left unchanged.
	big := linear.BoxFromCenter(linear.V3{0, 0, 0}, 200)
	paddedBig := BoxMinSize(big, 70)
	if paddedBig.Extent() != big.Extent() {
		t.Fatalf("BoxMinSize modified a box already above the floor")
	}
}

func TestGridQueryFindsInsertedIsland(t *testing.T) {
	g := NewGrid(16, 2)
	box := linear.BoxFromCenter(linear.V3{100, 0, 100}, 8)
	g.Insert(Index(7), &box)

	found := g.Query(linear.V3{100, 0, 100})
	var ok bool
	for _, idx := range found {
		if idx == 7 {
			ok = true
		}
	}
	if !ok {
		t.Fatal("Query did not return the inserted island index")
	}
}

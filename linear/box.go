// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package linear

// Box3 is an axis-aligned bounding box in 3D space.
// The zero value is degenerate (Min and Max both zero);
// callers that build one up incrementally should start
// from a box obtained through BoxFromCenter or BoxFromPoints.
type Box3 struct {
	Min V3
	Max V3
}

// BoxFromCenter creates a cube-ish box of the given size
// centered at c. size is the full edge length.
func BoxFromCenter(c V3, size float32) Box3 {
	h := size / 2
	return Box3{
		Min: V3{c[0] - h, c[1] - h, c[2] - h},
		Max: V3{c[0] + h, c[1] + h, c[2] + h},
	}
}

// BoxFromPoints creates the smallest box containing every
// point in pts. It panics if pts is empty.
func BoxFromPoints(pts []V3) Box3 {
	if len(pts) == 0 {
		panic("linear: BoxFromPoints called with no points")
	}
	b := Box3{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		b.Extend(p)
	}
	return b
}

// Extend grows b so that it also contains p.
func (b *Box3) Extend(p V3) {
	for i := range p {
		if p[i] < b.Min[i] {
			b.Min[i] = p[i]
		}
		if p[i] > b.Max[i] {
			b.Max[i] = p[i]
		}
	}
}

// Union sets b to the smallest box containing both l and r.
func (b *Box3) Union(l, r *Box3) {
	for i := range b.Min {
		if l.Min[i] < r.Min[i] {
			b.Min[i] = l.Min[i]
		} else {
			b.Min[i] = r.Min[i]
		}
		if l.Max[i] > r.Max[i] {
			b.Max[i] = l.Max[i]
		} else {
			b.Max[i] = r.Max[i]
		}
	}
}

// Center returns the box's center point.
func (b *Box3) Center() V3 {
	var c V3
	for i := range c {
		c[i] = (b.Min[i] + b.Max[i]) / 2
	}
	return c
}

// Extent returns the box's full size along each axis.
func (b *Box3) Extent() V3 {
	var e V3
	for i := range e {
		e[i] = b.Max[i] - b.Min[i]
	}
	return e
}

// MaxExtent returns the largest of the box's three
// axis extents.
func (b *Box3) MaxExtent() float32 {
	e := b.Extent()
	m := e[0]
	if e[1] > m {
		m = e[1]
	}
	if e[2] > m {
		m = e[2]
	}
	return m
}

// Contains reports whether p lies within b, inclusive of
// the boundary.
func (b *Box3) Contains(p V3) bool {
	for i := range p {
		if p[i] < b.Min[i] || p[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// ContainsBox reports whether o lies entirely within b.
func (b *Box3) ContainsBox(o *Box3) bool {
	return b.Contains(o.Min) && b.Contains(o.Max)
}

// Intersects reports whether b and o overlap (including
// touching at the boundary).
func (b *Box3) Intersects(o *Box3) bool {
	for i := range b.Min {
		if b.Max[i] < o.Min[i] || o.Max[i] < b.Min[i] {
			return false
		}
	}
	return true
}

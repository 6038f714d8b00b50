// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package objcache

import (
	"sync"

	"github.com/gviegas/forge/driver"
)

// VertexAttribute is one attribute within a VertexStream:
// its wire format and byte offset from the start of a vertex.
type VertexAttribute struct {
	Format driver.VertexFmt
	Offset int
}

// VertexStream describes one vertex buffer binding: its name
// (matched against shader input names), its per-vertex byte
// stride, whether it advances per-instance rather than
// per-vertex, and the attributes packed into it.
type VertexStream struct {
	Name       string
	Stride     int
	Instanced  bool
	Attributes []VertexAttribute
}

// VertexLayout is the VAO-equivalent cached object: the
// resolved, ready-to-bind list of vertex inputs for a given
// set of streams.
type VertexLayout struct {
	Streams []VertexStream
	Input   []driver.VertexIn
}

// HashVertexStreams computes the structure hash used to key
// the vertex layout cache.
func HashVertexStreams(streams []VertexStream) Hash {
	h := newHasher()
	h.writeUint64(uint64(len(streams)))
	for _, s := range streams {
		h.writeString(s.Name)
		h.writeUint64(uint64(s.Stride))
		if s.Instanced {
			h.writeUint64(1)
		} else {
			h.writeUint64(0)
		}
		h.writeUint64(uint64(len(s.Attributes)))
		for _, a := range s.Attributes {
			h.writeUint64(uint64(a.Format))
			h.writeUint64(uint64(a.Offset))
		}
	}
	return h.sum()
}

// buildInput resolves streams into the []driver.VertexIn that
// the GraphState pipeline description expects: one VertexIn
// per attribute of every stream, each attribute's Nr field
// assigned by position of first appearance.
func buildInput(streams []VertexStream) []driver.VertexIn {
	var in []driver.VertexIn
	nr := 0
	for _, s := range streams {
		for _, a := range s.Attributes {
			in = append(in, driver.VertexIn{
				Format: a.Format,
				Stride: s.Stride,
				Nr:     nr,
				Name:   s.Name,
			})
			nr++
		}
	}
	return in
}

// VertexBindPoints assigns small, stable integers to vertex
// bind-point names, in the order each name is first seen.
type VertexBindPoints struct {
	mu   sync.Mutex
	next int
	m    map[string]int
}

func newVertexBindPoints() *VertexBindPoints {
	return &VertexBindPoints{m: make(map[string]int)}
}

// Resolve returns the stable integer bound to name, assigning
// a new one if this is the first time name is seen.
func (v *VertexBindPoints) Resolve(name string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i, ok := v.m[name]; ok {
		return i
	}
	i := v.next
	v.next++
	v.m[name] = i
	return i
}

// vertexLayouts is the content-addressed vertex-layout map.
type vertexLayouts struct {
	mu sync.Mutex
	m  map[Hash]*VertexLayout
}

func newVertexLayouts() *vertexLayouts {
	return &vertexLayouts{m: make(map[Hash]*VertexLayout)}
}

// Resolve returns the cached VertexLayout for streams,
// building and storing one if this is the first request for
// this structure hash.
func (c *vertexLayouts) Resolve(streams []VertexStream) (*VertexLayout, Hash) {
	key := HashVertexStreams(streams)
	c.mu.Lock()
	defer c.mu.Unlock()
	if vl, ok := c.m[key]; ok {
		return vl, key
	}
	vl := &VertexLayout{Streams: streams, Input: buildInput(streams)}
	c.m[key] = vl
	return vl, key
}

// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package exec

import (
	"github.com/gviegas/forge/driver"
	"github.com/gviegas/forge/gpu/registry"
)

// dirty is a bitmask of shadow-state categories that have
// changed since the last applyDirtyRenderStates call.
type dirty uint32

const (
	dirtyViewport dirty = 1 << iota
	dirtyScissor
	dirtyBlendColor
	dirtyStencilRef
	dirtyVertexBuf
	dirtyIndexBuf
	dirtyPipeline
	dirtyDescTable

	dirtyAll = dirtyViewport | dirtyScissor | dirtyBlendColor | dirtyStencilRef |
		dirtyVertexBuf | dirtyIndexBuf | dirtyPipeline | dirtyDescTable
)

// shadow mirrors the GPU pipeline state the Executor has last
// emitted, so repeating the same Set* opcode across consecutive
// draws costs nothing: the handler compares against shadow and
// only touches dirty when the value actually changes.
type shadow struct {
	viewport   []driver.Viewport
	scissor    []driver.Scissor
	blendColor [4]float32
	stencilRef uint32
	vertexBuf  []registry.Handle
	vertexOff  []int64
	indexBuf   registry.Handle
	indexOff   int64
	indexFmt   int
	pipeline   registry.Handle
	descTable  registry.Handle
	descStart  int
	descCopy   []int
	descCompute bool

	dirty dirty
}

// reset restores the shadow to its zero state and marks
// everything dirty, as happens at EndPass: the default pipeline
// state is restored and whatever changed during the pass must
// be re-emitted the next time it is used.
func (s *shadow) reset() {
	*s = shadow{dirty: dirtyAll}
}

func (s *shadow) setViewport(vp []driver.Viewport) {
	if !equalViewports(s.viewport, vp) {
		s.viewport = append([]driver.Viewport(nil), vp...)
		s.dirty |= dirtyViewport
	}
}

func (s *shadow) setScissor(sc []driver.Scissor) {
	if !equalScissors(s.scissor, sc) {
		s.scissor = append([]driver.Scissor(nil), sc...)
		s.dirty |= dirtyScissor
	}
}

func (s *shadow) setBlendColor(c [4]float32) {
	if s.blendColor != c {
		s.blendColor = c
		s.dirty |= dirtyBlendColor
	}
}

func (s *shadow) setStencilRef(ref uint32) {
	if s.stencilRef != ref {
		s.stencilRef = ref
		s.dirty |= dirtyStencilRef
	}
}

func (s *shadow) setVertexBuf(bufs []registry.Handle, offs []int64) {
	if !equalHandles(s.vertexBuf, bufs) || !equalOffs(s.vertexOff, offs) {
		s.vertexBuf = append([]registry.Handle(nil), bufs...)
		s.vertexOff = append([]int64(nil), offs...)
		s.dirty |= dirtyVertexBuf
	}
}

func (s *shadow) setIndexBuf(buf registry.Handle, off int64, format int) {
	if s.indexBuf != buf || s.indexOff != off || s.indexFmt != format {
		s.indexBuf, s.indexOff, s.indexFmt = buf, off, format
		s.dirty |= dirtyIndexBuf
	}
}

func (s *shadow) setPipeline(h registry.Handle) {
	if s.pipeline != h {
		s.pipeline = h
		s.dirty |= dirtyPipeline
	}
}

func (s *shadow) setDescTable(compute bool, h registry.Handle, start int, copy []int) {
	if s.descCompute != compute || s.descTable != h || s.descStart != start || !equalInts(s.descCopy, copy) {
		s.descCompute, s.descTable, s.descStart = compute, h, start
		s.descCopy = append([]int(nil), copy...)
		s.dirty |= dirtyDescTable
	}
}

func equalViewports(a, b []driver.Viewport) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalScissors(a, b []driver.Scissor) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalHandles(a, b []registry.Handle) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalOffs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

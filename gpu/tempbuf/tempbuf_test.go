// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package tempbuf

import (
	"testing"

	"github.com/gviegas/forge/driver"
)

type fakeBuffer struct {
	data    []byte
	visible bool
}

func (b *fakeBuffer) Destroy()      {}
func (b *fakeBuffer) Visible() bool { return b.visible }
func (b *fakeBuffer) Bytes() []byte { return b.data }
func (b *fakeBuffer) Cap() int64    { return int64(len(b.data)) }

type fakeGPU struct{ newBufferCalls int }

func (*fakeGPU) Driver() driver.Driver                         { panic("unused") }
func (*fakeGPU) Commit(wk *driver.WorkItem, ch chan<- *driver.WorkItem) error { panic("unused") }
func (*fakeGPU) NewCmdBuffer() (driver.CmdBuffer, error)       { panic("unused") }
func (*fakeGPU) NewRenderPass(att []driver.Attachment, sub []driver.Subpass) (driver.RenderPass, error) {
	panic("unused")
}
func (*fakeGPU) NewShaderCode(data []byte) (driver.ShaderCode, error)        { panic("unused") }
func (*fakeGPU) NewDescHeap(ds []driver.Descriptor) (driver.DescHeap, error) { panic("unused") }
func (*fakeGPU) NewDescTable(dh []driver.DescHeap) (driver.DescTable, error) { panic("unused") }
func (*fakeGPU) NewPipeline(state any) (driver.Pipeline, error)              { panic("unused") }

func (g *fakeGPU) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	g.newBufferCalls++
	return &fakeBuffer{data: make([]byte, size), visible: visible}, nil
}
func (*fakeGPU) NewImage(pf driver.PixelFmt, size driver.Dim3D, layers, levels, samples int, usg driver.Usage) (driver.Image, error) {
	panic("unused")
}
func (*fakeGPU) NewSampler(spln *driver.Sampling) (driver.Sampler, error) { panic("unused") }
func (*fakeGPU) Limits() driver.Limits                                    { panic("unused") }

func TestReserveWithinChunk(t *testing.T) {
	gpu := &fakeGPU{}
	p := New(gpu, 0)

	a1, err := p.Reserve(ClassStaging, 100)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	a2, err := p.Reserve(ClassStaging, 200)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if gpu.newBufferCalls != 1 {
		t.Fatalf("NewBuffer called %d times, want 1 (both allocations fit in one chunk)", gpu.newBufferCalls)
	}
	if a1.Chunk != a2.Chunk {
		t.Fatal("Reserve: expected both allocations from the same chunk")
	}
	if a1.Off == a2.Off {
		t.Fatal("Reserve: expected distinct offsets for distinct allocations")
	}
}

func TestReserveGrowsOnExhaustion(t *testing.T) {
	gpu := &fakeGPU{}
	p := New(gpu, 0)

	a1, err := p.Reserve(ClassConstant, granule)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	a2, err := p.Reserve(ClassConstant, blockSize)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if a1.Chunk == a2.Chunk {
		t.Fatal("Reserve: expected a new chunk once the first is fully reserved")
	}
	if gpu.newBufferCalls != 2 {
		t.Fatalf("NewBuffer called %d times, want 2", gpu.newBufferCalls)
	}
}

func TestWriteDataAndRelease(t *testing.T) {
	gpu := &fakeGPU{}
	p := New(gpu, 0)

	a, err := p.Reserve(ClassStaging, 16)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	p.WriteData(a, []byte("hello world!!!!!"))
	buf := p.Buffer(a)
	if string(buf.Bytes()[a.Off:a.Off+16]) != "hello world!!!!!" {
		t.Fatalf("WriteData: unexpected contents %q", buf.Bytes()[a.Off:a.Off+16])
	}

	p.Release(a)
	a2, err := p.Reserve(ClassStaging, 16)
	if err != nil {
		t.Fatalf("Reserve after Release: %v", err)
	}
	if a2.Off != a.Off || a2.Chunk != a.Chunk {
		t.Fatalf("Reserve after Release: expected the freed range to be reused, have %+v want %+v", a2, a)
	}
}

func TestTrimDestroysUnusedChunks(t *testing.T) {
	gpu := &fakeGPU{}
	p := New(gpu, 0)

	a, err := p.Reserve(ClassGeometry, 16)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	p.Trim()
	if len(p.chunk[ClassGeometry]) != 1 {
		t.Fatal("Trim: expected an in-use chunk to survive")
	}

	p.Release(a)
	p.Trim()
	if len(p.chunk[ClassGeometry]) != 0 {
		t.Fatal("Trim: expected a fully-unused chunk to be destroyed")
	}
}

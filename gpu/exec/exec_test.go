// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package exec

import (
	"testing"

	"github.com/gviegas/forge/driver"
	"github.com/gviegas/forge/gpu/objcache"
	"github.com/gviegas/forge/gpu/objects"
	"github.com/gviegas/forge/gpu/opcode"
	"github.com/gviegas/forge/gpu/registry"
	"github.com/gviegas/forge/gpu/staging"
)

type fakeBuffer struct{ data []byte }

func (b *fakeBuffer) Destroy()      {}
func (b *fakeBuffer) Visible() bool { return true }
func (b *fakeBuffer) Bytes() []byte { return b.data }
func (b *fakeBuffer) Cap() int64    { return int64(len(b.data)) }

type fakeImage struct{}

func (*fakeImage) Destroy() {}
func (*fakeImage) NewView(driver.ViewType, int, int, int, int) (driver.ImageView, error) {
	return &fakeImageView{}, nil
}

type fakeImageView struct{}

func (*fakeImageView) Destroy() {}

type fakeRenderPass struct{}

func (*fakeRenderPass) Destroy() {}
func (*fakeRenderPass) NewFB([]driver.ImageView, int, int, int) (driver.Framebuf, error) {
	return &fakeFramebuf{}, nil
}

type fakeFramebuf struct{}

func (*fakeFramebuf) Destroy() {}

type fakeDescHeap struct {
	buffers []setBufferCall
	images  []setImageCall
}

type setBufferCall struct {
	cpy, nr, start int
	buf            []driver.Buffer
	off, size      []int64
}

type setImageCall struct {
	cpy, nr, start int
	iv             []driver.ImageView
}

func (*fakeDescHeap) Destroy()        {}
func (*fakeDescHeap) New(int) error   { return nil }
func (*fakeDescHeap) Count() int      { return 1 }
func (h *fakeDescHeap) SetBuffer(cpy, nr, start int, buf []driver.Buffer, off, size []int64) {
	h.buffers = append(h.buffers, setBufferCall{cpy, nr, start, buf, off, size})
}
func (h *fakeDescHeap) SetImage(cpy, nr, start int, iv []driver.ImageView) {
	h.images = append(h.images, setImageCall{cpy, nr, start, iv})
}
func (*fakeDescHeap) SetSampler(cpy, nr, start int, splr []driver.Sampler) {}

type fakeDescTable struct{}

func (*fakeDescTable) Destroy() {}

type fakePipeline struct{}

func (*fakePipeline) Destroy() {}

type fakeCmdBuffer struct {
	descGraph   []driver.DescTable
	descComp    []driver.DescTable
	pipelines   []driver.Pipeline
	viewportSet int
	scissorSet  int
	copyBufImg  []*driver.BufImgCopy
	copyImg     []*driver.ImageCopy
	barriers    int
}

func (*fakeCmdBuffer) Destroy()                                                       {}
func (*fakeCmdBuffer) Begin() error                                                   { return nil }
func (*fakeCmdBuffer) BeginPass(driver.RenderPass, driver.Framebuf, []driver.ClearValue) {}
func (*fakeCmdBuffer) NextSubpass()                                                   {}
func (*fakeCmdBuffer) EndPass()                                                       {}
func (*fakeCmdBuffer) BeginWork(bool)                                                 {}
func (*fakeCmdBuffer) EndWork()                                                       {}
func (*fakeCmdBuffer) BeginBlit(bool)                                                 {}
func (*fakeCmdBuffer) EndBlit()                                                       {}
func (c *fakeCmdBuffer) SetPipeline(pl driver.Pipeline)                              { c.pipelines = append(c.pipelines, pl) }
func (c *fakeCmdBuffer) SetViewport([]driver.Viewport)                               { c.viewportSet++ }
func (c *fakeCmdBuffer) SetScissor([]driver.Scissor)                                 { c.scissorSet++ }
func (*fakeCmdBuffer) SetBlendColor(r, g, b, a float32)                              {}
func (*fakeCmdBuffer) SetStencilRef(uint32)                                          {}
func (*fakeCmdBuffer) SetVertexBuf(int, []driver.Buffer, []int64)                    {}
func (*fakeCmdBuffer) SetIndexBuf(driver.IndexFmt, driver.Buffer, int64)             {}
func (c *fakeCmdBuffer) SetDescTableGraph(table driver.DescTable, start int, heapCopy []int) {
	c.descGraph = append(c.descGraph, table)
}
func (c *fakeCmdBuffer) SetDescTableComp(table driver.DescTable, start int, heapCopy []int) {
	c.descComp = append(c.descComp, table)
}
func (*fakeCmdBuffer) Draw(int, int, int, int)             {}
func (*fakeCmdBuffer) DrawIndexed(int, int, int, int, int) {}
func (*fakeCmdBuffer) Dispatch(int, int, int)               {}
func (*fakeCmdBuffer) CopyBuffer(*driver.BufferCopy)        {}
func (c *fakeCmdBuffer) CopyImage(p *driver.ImageCopy)      { c.copyImg = append(c.copyImg, p) }
func (c *fakeCmdBuffer) CopyBufToImg(p *driver.BufImgCopy)  { c.copyBufImg = append(c.copyBufImg, p) }
func (*fakeCmdBuffer) CopyImgToBuf(*driver.BufImgCopy)      {}
func (*fakeCmdBuffer) Fill(driver.Buffer, int64, byte, int64) {}
func (c *fakeCmdBuffer) Barrier([]driver.Barrier)           { c.barriers++ }
func (*fakeCmdBuffer) Transition([]driver.Transition)       {}
func (*fakeCmdBuffer) End() error                           { return nil }
func (*fakeCmdBuffer) Reset() error                         { return nil }

type fakeGPU struct{}

func (*fakeGPU) Driver() driver.Driver                                   { panic("unused") }
func (*fakeGPU) Commit(*driver.WorkItem, chan<- *driver.WorkItem) error  { panic("unused") }
func (*fakeGPU) NewCmdBuffer() (driver.CmdBuffer, error)                 { panic("unused") }
func (*fakeGPU) NewRenderPass(att []driver.Attachment, sub []driver.Subpass) (driver.RenderPass, error) {
	panic("unused")
}
func (*fakeGPU) NewShaderCode(data []byte) (driver.ShaderCode, error) { panic("unused") }
func (*fakeGPU) NewDescHeap(ds []driver.Descriptor) (driver.DescHeap, error) {
	return &fakeDescHeap{}, nil
}
func (*fakeGPU) NewDescTable(dh []driver.DescHeap) (driver.DescTable, error) {
	return &fakeDescTable{}, nil
}
func (*fakeGPU) NewPipeline(state any) (driver.Pipeline, error) { return &fakePipeline{}, nil }
func (g *fakeGPU) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	return &fakeBuffer{data: make([]byte, size)}, nil
}
func (*fakeGPU) NewImage(pf driver.PixelFmt, size driver.Dim3D, layers, levels, samples int, usg driver.Usage) (driver.Image, error) {
	return &fakeImage{}, nil
}
func (*fakeGPU) NewSampler(spln *driver.Sampling) (driver.Sampler, error) { panic("unused") }
func (*fakeGPU) Limits() driver.Limits                                   { panic("unused") }

type fakeFrame struct{ callbacks []func() }

func (f *fakeFrame) OnRetire(fn func()) { f.callbacks = append(f.callbacks, fn) }

func newTestExecutor(t *testing.T) (*Executor, *fakeCmdBuffer, *registry.Registry) {
	t.Helper()
	gpu := &fakeGPU{}
	reg := registry.New(16)
	cache := objcache.New()
	tables := NewStore()
	samplers := NewSamplerSlots(nil)
	ring, err := staging.NewRing(gpu, 4096, 256)
	if err != nil {
		t.Fatalf("NewRing: %v", err)
	}
	cb := &fakeCmdBuffer{}
	frame := &fakeFrame{}
	return New(gpu, reg, cache, tables, samplers, ring, cb, frame), cb, reg
}

func TestShadowStateDedupesViewport(t *testing.T) {
	e, cb, _ := newTestExecutor(t)
	buf := &opcode.Buffer{}
	vp := []opcode.Viewport{{Width: 640, Height: 480, Far: 1}}
	buf.SetViewport(vp)
	buf.SetViewport(vp) // identical; must not be replayed twice

	if err := e.Execute(buf); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if cb.viewportSet != 1 {
		t.Fatalf("SetViewport called %d times, want 1", cb.viewportSet)
	}
}

func TestBeginPassResetsShadow(t *testing.T) {
	e, cb, reg := newTestExecutor(t)
	rtH := reg.Register(&objects.RenderTarget{Pass: &fakeRenderPass{}, FB: &fakeFramebuf{}})

	buf := &opcode.Buffer{}
	vp := []opcode.Viewport{{Width: 640, Height: 480, Far: 1}}
	buf.SetViewport(vp)
	buf.BeginPass(opcode.BeginPassArgs{RenderPass: rtH, RTs: []registry.Handle{rtH}})
	buf.SetViewport(vp) // shadow was reset by BeginPass; must be replayed again

	if err := e.Execute(buf); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if cb.viewportSet != 2 {
		t.Fatalf("SetViewport called %d times, want 2", cb.viewportSet)
	}
	if !e.inPass {
		t.Fatal("expected Executor to still be inside the pass")
	}
}

func TestSetDescTableAppliesEntriesAndBinds(t *testing.T) {
	e, cb, reg := newTestExecutor(t)

	bufH := reg.Register(&objects.Buffer{Buffer: &fakeBuffer{data: make([]byte, 256)}})
	ivH := reg.Register(&objects.ImageView{ImageView: &fakeImageView{}, SamplerKey: -1})

	bm := &objcache.BindingMap{Elements: []objcache.BindingElement{
		{Type: driver.DConstant, Slot: 0},
		{Type: driver.DImage, Slot: 0},
	}}
	heap := &fakeDescHeap{}
	table := &Table{
		Map:     bm,
		Heaps:   []driver.DescHeap{heap},
		Table:   &fakeDescTable{},
		Entries: []Entry{{Buffer: bufH, Size: 256}, {View: ivH}},
	}
	th := e.descTables.Create(table)

	buf := &opcode.Buffer{}
	buf.SetDescTable(opcode.SetDescTableArgs{Table: th})

	if err := e.Execute(buf); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(heap.buffers) != 1 {
		t.Fatalf("SetBuffer called %d times, want 1", len(heap.buffers))
	}
	if len(heap.images) != 1 {
		t.Fatalf("SetImage called %d times, want 1", len(heap.images))
	}
	if len(cb.descGraph) != 1 {
		t.Fatalf("SetDescTableGraph called %d times, want 1", len(cb.descGraph))
	}
}

func TestSetDescTableSkipsRedundantApply(t *testing.T) {
	e, cb, _ := newTestExecutor(t)
	table := &Table{Map: &objcache.BindingMap{}, Heaps: []driver.DescHeap{&fakeDescHeap{}}, Table: &fakeDescTable{}}
	th := e.descTables.Create(table)

	buf := &opcode.Buffer{}
	buf.SetDescTable(opcode.SetDescTableArgs{Table: th})
	buf.SetDescTable(opcode.SetDescTableArgs{Table: th})

	if err := e.Execute(buf); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(cb.descGraph) != 1 {
		t.Fatalf("SetDescTableGraph called %d times, want 1", len(cb.descGraph))
	}
}

func TestChildBufferNonInheritResetsAndRestoresShadow(t *testing.T) {
	e, cb, _ := newTestExecutor(t)
	vp := []opcode.Viewport{{Width: 640, Height: 480, Far: 1}}

	child := &opcode.Buffer{}
	child.SetViewport(vp) // first set inside the non-inheriting child

	buf := &opcode.Buffer{}
	buf.SetViewport(vp) // parent sets viewport before the child runs
	buf.ChildBuffer(opcode.ChildBufferArgs{Child: child, Inherit: false})
	buf.SetViewport(vp) // after the child returns, parent state must still be in effect

	if err := e.Execute(buf); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// parent set (1) + child set after reset (1) + parent re-set suppressed = 2
	if cb.viewportSet != 2 {
		t.Fatalf("SetViewport called %d times, want 2", cb.viewportSet)
	}
}

func TestCounterSignalUnblocksWaiter(t *testing.T) {
	counters = newCounterBridge()
	done := make(chan struct{})
	go func() {
		waitCounter(7, 1)
		close(done)
	}()
	signalCounter(7)
	<-done
}

func TestClearStagesAndCopies(t *testing.T) {
	e, cb, reg := newTestExecutor(t)
	imgH := reg.Register(&objects.Image{
		Image:  &fakeImage{},
		Format: driver.RGBA8un,
		Size:   driver.Dim3D{Width: 4, Height: 4, Depth: 1},
	})

	buf := &opcode.Buffer{}
	buf.Clear(opcode.ClearArgs{Target: imgH, Value: opcode.ClearValue{Color: [4]float32{1, 0, 0, 1}}})

	if err := e.Execute(buf); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(cb.copyBufImg) != 1 {
		t.Fatalf("CopyBufToImg called %d times, want 1", len(cb.copyBufImg))
	}
}

func TestResolveCopiesBetweenImages(t *testing.T) {
	e, cb, reg := newTestExecutor(t)
	srcH := reg.Register(&objects.Image{Image: &fakeImage{}, Size: driver.Dim3D{Width: 4, Height: 4, Depth: 1}})
	dstH := reg.Register(&objects.Image{Image: &fakeImage{}, Size: driver.Dim3D{Width: 4, Height: 4, Depth: 1}})

	buf := &opcode.Buffer{}
	buf.Resolve(opcode.ResolveArgs{Src: srcH, Dst: dstH})

	if err := e.Execute(buf); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(cb.copyImg) != 1 {
		t.Fatalf("CopyImage called %d times, want 1", len(cb.copyImg))
	}
}

// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package staging

import (
	"testing"

	"github.com/gviegas/forge/driver"
)

type fakeBuffer struct{ data []byte }

func (b *fakeBuffer) Destroy()      {}
func (b *fakeBuffer) Visible() bool { return true }
func (b *fakeBuffer) Bytes() []byte { return b.data }
func (b *fakeBuffer) Cap() int64    { return int64(len(b.data)) }

type fakeCmdBuffer struct {
	recording  bool
	bufferCopy []*driver.BufferCopy
}

func (c *fakeCmdBuffer) Destroy()                                        {}
func (c *fakeCmdBuffer) Begin() error                                    { c.recording = true; return nil }
func (c *fakeCmdBuffer) BeginPass(driver.RenderPass, driver.Framebuf, []driver.ClearValue) {}
func (c *fakeCmdBuffer) NextSubpass()                                    {}
func (c *fakeCmdBuffer) EndPass()                                        {}
func (c *fakeCmdBuffer) BeginWork(bool)                                  {}
func (c *fakeCmdBuffer) EndWork()                                        {}
func (c *fakeCmdBuffer) BeginBlit(bool)                                  {}
func (c *fakeCmdBuffer) EndBlit()                                        {}
func (c *fakeCmdBuffer) SetPipeline(driver.Pipeline)                     {}
func (c *fakeCmdBuffer) SetViewport([]driver.Viewport)                   {}
func (c *fakeCmdBuffer) SetScissor([]driver.Scissor)                     {}
func (c *fakeCmdBuffer) SetBlendColor(r, g, b, a float32)                {}
func (c *fakeCmdBuffer) SetStencilRef(uint32)                            {}
func (c *fakeCmdBuffer) SetVertexBuf(int, []driver.Buffer, []int64)      {}
func (c *fakeCmdBuffer) SetIndexBuf(driver.IndexFmt, driver.Buffer, int64) {}
func (c *fakeCmdBuffer) SetDescTableGraph(driver.DescTable, int, []int)  {}
func (c *fakeCmdBuffer) SetDescTableComp(driver.DescTable, int, []int)   {}
func (c *fakeCmdBuffer) Draw(int, int, int, int)                        {}
func (c *fakeCmdBuffer) DrawIndexed(int, int, int, int, int)            {}
func (c *fakeCmdBuffer) Dispatch(int, int, int)                         {}
func (c *fakeCmdBuffer) CopyBuffer(p *driver.BufferCopy) { c.bufferCopy = append(c.bufferCopy, p) }
func (c *fakeCmdBuffer) CopyImage(*driver.ImageCopy)                    {}
func (c *fakeCmdBuffer) CopyBufToImg(*driver.BufImgCopy)                {}
func (c *fakeCmdBuffer) CopyImgToBuf(*driver.BufImgCopy)                {}
func (c *fakeCmdBuffer) Fill(driver.Buffer, int64, byte, int64)         {}
func (c *fakeCmdBuffer) Barrier([]driver.Barrier)                       {}
func (c *fakeCmdBuffer) Transition([]driver.Transition)                 {}
func (c *fakeCmdBuffer) End() error                                     { c.recording = false; return nil }
func (c *fakeCmdBuffer) Reset() error                                   { return nil }

type fakeGPU struct{ committed [][]driver.CmdBuffer }

func (*fakeGPU) Driver() driver.Driver { panic("unused") }
func (g *fakeGPU) Commit(wk *driver.WorkItem, ch chan<- *driver.WorkItem) error {
	g.committed = append(g.committed, wk.Work)
	ch <- wk
	return nil
}
func (*fakeGPU) NewCmdBuffer() (driver.CmdBuffer, error) { return &fakeCmdBuffer{}, nil }
func (*fakeGPU) NewRenderPass(att []driver.Attachment, sub []driver.Subpass) (driver.RenderPass, error) {
	panic("unused")
}
func (*fakeGPU) NewShaderCode(data []byte) (driver.ShaderCode, error)        { panic("unused") }
func (*fakeGPU) NewDescHeap(ds []driver.Descriptor) (driver.DescHeap, error) { panic("unused") }
func (*fakeGPU) NewDescTable(dh []driver.DescHeap) (driver.DescTable, error) { panic("unused") }
func (*fakeGPU) NewPipeline(state any) (driver.Pipeline, error)              { panic("unused") }
func (g *fakeGPU) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	return &fakeBuffer{data: make([]byte, size)}, nil
}
func (*fakeGPU) NewImage(pf driver.PixelFmt, size driver.Dim3D, layers, levels, samples int, usg driver.Usage) (driver.Image, error) {
	panic("unused")
}
func (*fakeGPU) NewSampler(spln *driver.Sampling) (driver.Sampler, error) { panic("unused") }
func (*fakeGPU) Limits() driver.Limits                                   { panic("unused") }

func TestRingAllocateWriteFree(t *testing.T) {
	gpu := &fakeGPU{}
	r, err := NewRing(gpu, 4096, 256)
	if err != nil {
		t.Fatalf("NewRing: %v", err)
	}
	a, err := r.Allocate(100, "test")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	r.Write(a, []byte("hello"))
	if string(r.Buffer().Bytes()[a.Off:a.Off+5]) != "hello" {
		t.Fatal("Write: data not visible through Buffer()")
	}
	r.Free(a)
	a2, err := r.Allocate(100, "test2")
	if err != nil {
		t.Fatalf("Allocate after Free: %v", err)
	}
	if a2.Off != a.Off {
		t.Fatalf("Allocate after Free: expected reused offset %d, have %d", a.Off, a2.Off)
	}
}

func TestRingAllocateExhaustion(t *testing.T) {
	gpu := &fakeGPU{}
	r, err := NewRing(gpu, 256, 256)
	if err != nil {
		t.Fatalf("NewRing: %v", err)
	}
	if _, err := r.Allocate(256, "all"); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := r.Allocate(1, "more"); err != ErrNoSpace {
		t.Fatalf("Allocate: want ErrNoSpace, have %v", err)
	}
}

func TestCopyQueueLifecycle(t *testing.T) {
	gpu := &fakeGPU{}
	q := NewCopyQueue(gpu)
	fromBuf, _ := gpu.NewBuffer(64, true, driver.UGeneric)
	toBuf, _ := gpu.NewBuffer(64, false, driver.UGeneric)

	done := make(chan error, 1)
	ok := q.Schedule(&Job{
		Buffer: &BufferCopy{From: fromBuf, To: toBuf, Size: 64},
		Done:   done,
	})
	if !ok {
		t.Fatal("Schedule: expected success")
	}

	if err := q.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("job Done: %v", err)
		}
	default:
		t.Fatal("Update: expected job to signal Done")
	}
	if len(gpu.committed) != 1 {
		t.Fatalf("Commit called %d times, want 1", len(gpu.committed))
	}
}

func TestCopyQueueStopCancelsPending(t *testing.T) {
	gpu := &fakeGPU{}
	q := NewCopyQueue(gpu)
	done := make(chan error, 1)
	q.Schedule(&Job{Buffer: &BufferCopy{Size: 1}, Done: done})

	q.Stop()
	select {
	case <-done:
	default:
		t.Fatal("Stop: expected pending job to be signalled")
	}
	if q.Schedule(&Job{Buffer: &BufferCopy{Size: 1}}) {
		t.Fatal("Schedule: expected failure after Stop")
	}
}

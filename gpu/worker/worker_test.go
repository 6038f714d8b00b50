// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package worker

import (
	"sync/atomic"
	"testing"

	"github.com/gviegas/forge/driver"
	"github.com/gviegas/forge/gpu/registry"
)

type fakeObj struct{}

func (*fakeObj) ObjectKind() registry.Kind { return registry.KindBuffer }

type fakeGPU struct{ commits int32 }

func (*fakeGPU) Driver() driver.Driver { panic("unused") }
func (g *fakeGPU) Commit(wk *driver.WorkItem, ch chan<- *driver.WorkItem) error {
	atomic.AddInt32(&g.commits, 1)
	ch <- wk
	return nil
}
func (*fakeGPU) NewCmdBuffer() (driver.CmdBuffer, error) { panic("unused") }
func (*fakeGPU) NewRenderPass(att []driver.Attachment, sub []driver.Subpass) (driver.RenderPass, error) {
	panic("unused")
}
func (*fakeGPU) NewShaderCode(data []byte) (driver.ShaderCode, error)        { panic("unused") }
func (*fakeGPU) NewDescHeap(ds []driver.Descriptor) (driver.DescHeap, error) { panic("unused") }
func (*fakeGPU) NewDescTable(dh []driver.DescHeap) (driver.DescTable, error) { panic("unused") }
func (*fakeGPU) NewPipeline(state any) (driver.Pipeline, error)              { panic("unused") }
func (*fakeGPU) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	panic("unused")
}
func (*fakeGPU) NewImage(pf driver.PixelFmt, size driver.Dim3D, layers, levels, samples int, usg driver.Usage) (driver.Image, error) {
	panic("unused")
}
func (*fakeGPU) NewSampler(spln *driver.Sampling) (driver.Sampler, error) { panic("unused") }
func (*fakeGPU) Limits() driver.Limits                                   { panic("unused") }

func TestSubmitInline(t *testing.T) {
	gpu := &fakeGPU{}
	r := registry.New(16)
	w := New(gpu, r, false)

	err := <-w.Submit(nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if gpu.commits != 1 {
		t.Fatalf("Commit called %d times, want 1", gpu.commits)
	}
}

func TestDeletionRetiresOnFrameAdvance(t *testing.T) {
	gpu := &fakeGPU{}
	r := registry.New(16)
	w := New(gpu, r, false)

	obj := &fakeObj{}
	h := r.Register(obj)
	r.RequestDeletion(h)

	if _, ok := registry.Resolve[*fakeObj](r, h); !ok {
		t.Fatal("expected object still resolvable before frame retirement")
	}

	w.Submit(nil) // declares and records one job against the current frame
	w.AdvanceFrame()

	if _, ok := registry.Resolve[*fakeObj](r, h); ok {
		t.Fatal("expected object to be finalized once its frame retired")
	}
}

func TestRunExecutesAndWaits(t *testing.T) {
	gpu := &fakeGPU{}
	r := registry.New(16)
	w := New(gpu, r, false)

	var ran bool
	w.Run(func() { ran = true })
	if !ran {
		t.Fatal("Run: expected fn to execute before returning")
	}
}

func TestThreadedWorkerCloses(t *testing.T) {
	gpu := &fakeGPU{}
	r := registry.New(16)
	w := New(gpu, r, true)

	<-w.Submit(nil)
	w.Sync()
	w.Close()
	if gpu.commits != 1 {
		t.Fatalf("Commit called %d times, want 1", gpu.commits)
	}
}

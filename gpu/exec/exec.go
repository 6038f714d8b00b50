// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package exec implements the Executor: the opcode-stream
// interpreter that turns a recorded gpu/opcode.Buffer into
// driver.CmdBuffer calls, tracking redundant state changes with
// a shadow copy of the pipeline state (see state.go) and
// staging whatever per-draw data the Update opcode carries
// before replaying the buffer that reads it (see transient.go).
package exec

import (
	"fmt"

	"github.com/gviegas/forge/driver"
	"github.com/gviegas/forge/gpu/objcache"
	"github.com/gviegas/forge/gpu/objects"
	"github.com/gviegas/forge/gpu/opcode"
	"github.com/gviegas/forge/gpu/registry"
	"github.com/gviegas/forge/gpu/staging"
	"github.com/gviegas/forge/logctx"
)

var log = logctx.New("exec")

// Frame is the subset of gpu/worker.FrameRecord the Executor
// needs: somewhere to hang a callback that runs once the
// command buffer being recorded is known to have finished
// executing on the GPU.
type Frame interface {
	OnRetire(func())
}

// Executor interprets one gpu/opcode.Buffer against a single
// driver.CmdBuffer. A new Executor is cheap to create; the
// expensive state (registry, cache, descriptor tables, sampler
// slots, staging ring) is shared across every Executor a Device
// creates over its lifetime.
type Executor struct {
	gpu   driver.GPU
	reg   *registry.Registry
	cache *objcache.Cache

	descTables *Store
	samplers   *SamplerSlots
	ring       *staging.Ring

	cb    driver.CmdBuffer
	frame Frame

	shadow    shadow
	inPass    bool
	curPass   registry.Handle
	curSub    int
	descStack []descFrame
}

// descFrame is one level of the descriptor stack ChildBuffer
// opcodes push and pop, so a non-inheriting child starts from a
// clean slate and a returning parent sees its own bindings
// again regardless of what the child did.
type descFrame struct {
	shadow shadow
}

// New creates an Executor sharing the given Device-level state.
// cb must already have had Begin called on it; the Executor
// does not call Begin or End itself, since a single CmdBuffer
// may be shared by more than one logical block recorded
// independently of opcode replay (see gpu/worker).
func New(gpu driver.GPU, reg *registry.Registry, cache *objcache.Cache, tables *Store, samplers *SamplerSlots, ring *staging.Ring, cb driver.CmdBuffer, frame Frame) *Executor {
	e := &Executor{
		gpu:        gpu,
		reg:        reg,
		cache:      cache,
		descTables: tables,
		samplers:   samplers,
		ring:       ring,
		cb:         cb,
		frame:      frame,
	}
	e.shadow.reset()
	return e
}

// Execute stages every Update opcode's data (including those
// nested in ChildBuffer opcodes) and then replays buf's opcode
// stream in order.
func (e *Executor) Execute(buf *opcode.Buffer) error {
	if err := e.stageTransientData(buf); err != nil {
		return fmt.Errorf("exec: staging transient data: %w", err)
	}
	return e.replay(buf)
}

func (e *Executor) replay(buf *opcode.Buffer) error {
	for _, op := range buf.Ops {
		switch op.Op {
		case opcode.OpBeginPass:
			e.beginPass(buf.BeginPass[op.Payload])
		case opcode.OpNextSubpass:
			e.curSub++
			e.cb.NextSubpass()
		case opcode.OpEndPass:
			e.endPass()
		case opcode.OpSetViewport:
			e.setViewport(buf.SetViewport[op.Payload])
		case opcode.OpSetScissor:
			e.setScissor(buf.SetScissor[op.Payload])
		case opcode.OpSetBlendColor:
			a := buf.SetBlendColor[op.Payload]
			e.shadow.setBlendColor([4]float32{a.R, a.G, a.B, a.A})
			if e.shadow.dirty&dirtyBlendColor != 0 {
				e.cb.SetBlendColor(a.R, a.G, a.B, a.A)
				e.shadow.dirty &^= dirtyBlendColor
			}
		case opcode.OpSetStencilRef:
			a := buf.SetStencil[op.Payload]
			e.shadow.setStencilRef(a.Ref)
			if e.shadow.dirty&dirtyStencilRef != 0 {
				e.cb.SetStencilRef(a.Ref)
				e.shadow.dirty &^= dirtyStencilRef
			}
		case opcode.OpSetVertexBuf:
			e.setVertexBuf(buf.SetVertexBuf[op.Payload])
		case opcode.OpSetIndexBuf:
			e.setIndexBuf(buf.SetIndexBuf[op.Payload])
		case opcode.OpSetDescTable:
			e.setDescTable(buf.SetDescTable[op.Payload])
		case opcode.OpSetPipeline:
			e.setPipeline(buf.SetPipeline[op.Payload])
		case opcode.OpDraw:
			a := buf.Draw[op.Payload]
			e.cb.Draw(a.VertCount, a.InstCount, a.BaseVert, a.BaseInst)
		case opcode.OpDrawIndexed:
			a := buf.DrawIndexed[op.Payload]
			e.cb.DrawIndexed(a.IdxCount, a.InstCount, a.BaseIdx, a.VertOff, a.BaseInst)
		case opcode.OpDispatch:
			a := buf.Dispatch[op.Payload]
			e.cb.BeginWork(false)
			e.cb.Dispatch(a.GrpX, a.GrpY, a.GrpZ)
			e.cb.EndWork()
		case opcode.OpUpdate:
			// Already staged by stageTransientData; the copy was
			// recorded ahead of this command buffer's own
			// contents, so there is nothing left to do here.
		case opcode.OpClear:
			e.clear(buf.Clear[op.Payload])
		case opcode.OpResolve:
			e.resolve(buf.Resolve[op.Payload])
		case opcode.OpBarrier:
			e.barrier(buf.Barrier[op.Payload])
		case opcode.OpBeginBlock:
			// Debug-label blocks are a no-op on backends that have
			// no corresponding marker API; nothing to replay.
		case opcode.OpEndBlock:
		case opcode.OpSignalCounter:
			a := buf.SignalCounter[op.Payload]
			signalCounter(a.Counter)
		case opcode.OpWaitCounter:
			a := buf.WaitCounter[op.Payload]
			waitCounter(a.Counter, a.Target)
		case opcode.OpChildBuffer:
			if err := e.childBuffer(buf.ChildBuffer[op.Payload]); err != nil {
				return err
			}
		default:
			log.Warnf("replay: invalid opcode %v", op.Op)
		}
	}
	return nil
}

func (e *Executor) beginPass(a opcode.BeginPassArgs) {
	pass, ok := resolveRenderPass(e.reg, a.RenderPass)
	if !ok {
		log.Warnf("BeginPass: stale render pass handle %s", a.RenderPass)
		return
	}
	fb, ok := resolveFramebuf(e.reg, a.Output, a.RTs)
	if !ok {
		log.Warnf("BeginPass: stale framebuffer target")
		return
	}
	clear := make([]driver.ClearValue, len(a.Clear))
	for i, c := range a.Clear {
		clear[i] = driver.ClearValue{Color: c.Color, Depth: c.Depth, Stencil: c.Stencil}
	}
	e.cb.BeginPass(pass, fb, clear)
	e.inPass = true
	e.curPass = a.RenderPass
	e.curSub = 0
	e.shadow.reset()
}

func (e *Executor) endPass() {
	e.cb.EndPass()
	e.inPass = false
	e.curPass = registry.Nil
	e.shadow.reset()
}

func (e *Executor) setViewport(a opcode.SetViewportArgs) {
	vp := make([]driver.Viewport, len(a.Viewports))
	for i, v := range a.Viewports {
		vp[i] = driver.Viewport{X: v.X, Y: v.Y, Width: v.Width, Height: v.Height, Znear: v.Near, Zfar: v.Far}
	}
	e.shadow.setViewport(vp)
	if e.shadow.dirty&dirtyViewport != 0 {
		e.cb.SetViewport(vp)
		e.shadow.dirty &^= dirtyViewport
	}
}

func (e *Executor) setScissor(a opcode.SetScissorArgs) {
	sc := make([]driver.Scissor, len(a.Scissors))
	for i, s := range a.Scissors {
		sc[i] = driver.Scissor{X: s.X, Y: s.Y, Width: s.Width, Height: s.Height}
	}
	e.shadow.setScissor(sc)
	if e.shadow.dirty&dirtyScissor != 0 {
		e.cb.SetScissor(sc)
		e.shadow.dirty &^= dirtyScissor
	}
}

func (e *Executor) setVertexBuf(a opcode.SetVertexBufArgs) {
	e.shadow.setVertexBuf(a.Bufs, a.Offs)
	if e.shadow.dirty&dirtyVertexBuf == 0 {
		return
	}
	e.shadow.dirty &^= dirtyVertexBuf
	bufs := make([]driver.Buffer, len(a.Bufs))
	for i, h := range a.Bufs {
		b, ok := registry.Resolve[*objects.Buffer](e.reg, h)
		if !ok {
			log.Warnf("SetVertexBuf: stale buffer handle %s", h)
			return
		}
		bufs[i] = b.Buffer
	}
	e.cb.SetVertexBuf(a.Start, bufs, a.Offs)
}

func (e *Executor) setIndexBuf(a opcode.SetIndexBufArgs) {
	e.shadow.setIndexBuf(a.Buf, a.Off, a.Format)
	if e.shadow.dirty&dirtyIndexBuf == 0 {
		return
	}
	e.shadow.dirty &^= dirtyIndexBuf
	b, ok := registry.Resolve[*objects.Buffer](e.reg, a.Buf)
	if !ok {
		log.Warnf("SetIndexBuf: stale buffer handle %s", a.Buf)
		return
	}
	fmt := driver.Index16
	if a.Format != 0 {
		fmt = driver.Index32
	}
	e.cb.SetIndexBuf(fmt, b.Buffer, a.Off)
}

func (e *Executor) setDescTable(a opcode.SetDescTableArgs) {
	e.shadow.setDescTable(a.Compute, a.Table, a.Start, a.HeapCopy)
	if e.shadow.dirty&dirtyDescTable == 0 {
		return
	}
	e.shadow.dirty &^= dirtyDescTable
	e.applyDescTable(a.Table, a.Start, a.HeapCopy)
}

func (e *Executor) setPipeline(a opcode.SetPipelineArgs) {
	e.shadow.setPipeline(a.Pipeline)
	if e.shadow.dirty&dirtyPipeline == 0 {
		return
	}
	e.shadow.dirty &^= dirtyPipeline
	pl, err := e.resolvePipeline(a.Pipeline)
	if err != nil {
		log.Warnf("SetPipeline: %v", err)
		return
	}
	e.cb.SetPipeline(pl)
}

// clear fills an image outside of a render pass's load-op
// clear. driver.GPU has no dedicated image-clear command, so
// it is expressed as a small pattern buffer written through
// the staging ring and copied in with CopyBufToImg.
func (e *Executor) clear(a opcode.ClearArgs) {
	img, ok := registry.Resolve[*objects.Image](e.reg, a.Target)
	if !ok {
		log.Warnf("Clear: stale image handle %s", a.Target)
		return
	}
	rects := a.Rects
	if len(rects) == 0 {
		rects = []opcode.ClearRect{{Width: img.Size.Width, Height: img.Size.Height}}
	}
	pattern := clearPattern(img.Format, a.Value)
	for _, r := range rects {
		size := driver.Dim3D{Width: r.Width, Height: r.Height, Depth: 1}
		n := int64(r.Width * r.Height * len(pattern))
		area, err := e.ring.Allocate(n, "exec-clear")
		if err != nil {
			log.Warnf("Clear: ring.Allocate: %v", err)
			return
		}
		if e.frame != nil {
			e.frame.OnRetire(func() { e.ring.Free(area) })
		}
		buf := make([]byte, n)
		for i := int64(0); i < n; i += int64(len(pattern)) {
			copy(buf[i:], pattern)
		}
		e.ring.Write(area, buf)
		e.cb.BeginBlit(false)
		e.cb.CopyBufToImg(&driver.BufImgCopy{
			Buf:    e.ring.Buffer(),
			BufOff: area.Off,
			Stride: [2]int64{int64(r.Width), int64(r.Height)},
			Img:    img.Image,
			ImgOff: driver.Off3D{X: r.X, Y: r.Y},
			Layer:  a.Layer,
			Level:  a.Level,
			Size:   size,
		})
		e.cb.EndBlit()
	}
}

// clearPattern packs a ClearValue into the per-texel byte
// pattern CopyBufToImg expects for fmt. Only the uncompressed
// formats the predefined images use are supported; anything
// else clears to zero.
func clearPattern(fmt driver.PixelFmt, v opcode.ClearValue) []byte {
	switch fmt {
	case driver.D16un, driver.D32f, driver.S8ui, driver.D24unS8ui, driver.D32fS8ui:
		return []byte{0, 0, 0, 0}
	default:
		r := byte(v.Color[0] * 255)
		g := byte(v.Color[1] * 255)
		b := byte(v.Color[2] * 255)
		a := byte(v.Color[3] * 255)
		return []byte{r, g, b, a}
	}
}

// resolve copies between two images of identical extent.
// Multisample-to-single-sample resolution for a render
// target's own attachments is handled by the subpass resolve
// attachments configured on RenderPass creation; this opcode
// covers the standalone case, e.g. resolving an offscreen MSAA
// target into a texture consumed later in the frame.
func (e *Executor) resolve(a opcode.ResolveArgs) {
	src, ok := registry.Resolve[*objects.Image](e.reg, a.Src)
	if !ok {
		log.Warnf("Resolve: stale source image handle %s", a.Src)
		return
	}
	dst, ok := registry.Resolve[*objects.Image](e.reg, a.Dst)
	if !ok {
		log.Warnf("Resolve: stale destination image handle %s", a.Dst)
		return
	}
	e.cb.BeginBlit(false)
	e.cb.CopyImage(&driver.ImageCopy{
		From:      src.Image,
		FromLayer: a.SrcLayer,
		FromLevel: a.SrcLevel,
		To:        dst.Image,
		ToLayer:   a.DstLayer,
		ToLevel:   a.DstLevel,
		Size:      dst.Size,
		Layers:    1,
	})
	e.cb.EndBlit()
}

func (e *Executor) barrier(a opcode.BarrierArgs) {
	e.cb.Barrier([]driver.Barrier{{
		SyncBefore:   driver.Sync(a.SyncBefore),
		SyncAfter:    driver.Sync(a.SyncAfter),
		AccessBefore: driver.Access(a.AccessBefore),
		AccessAfter:  driver.Access(a.AccessAfter),
	}})
}

func (e *Executor) childBuffer(a opcode.ChildBufferArgs) error {
	if a.Child == nil {
		return nil
	}
	saved := e.shadow
	if !a.Inherit {
		e.shadow.reset()
	}
	e.descStack = append(e.descStack, descFrame{shadow: saved})
	err := e.replay(a.Child)
	e.descStack = e.descStack[:len(e.descStack)-1]
	e.shadow = saved
	return err
}

func resolveRenderPass(reg *registry.Registry, h registry.Handle) (driver.RenderPass, bool) {
	if rt, ok := registry.Resolve[*objects.RenderTarget](reg, h); ok {
		return rt.Pass, true
	}
	return nil, false
}

func resolveFramebuf(reg *registry.Registry, out registry.Handle, rts []registry.Handle) (driver.Framebuf, bool) {
	if !out.IsNil() {
		if o, ok := registry.Resolve[*objects.Output](reg, out); ok {
			return o.Framebuf, true
		}
		return nil, false
	}
	if len(rts) == 1 {
		if rt, ok := registry.Resolve[*objects.RenderTarget](reg, rts[0]); ok {
			return rt.FB, true
		}
	}
	return nil, false
}

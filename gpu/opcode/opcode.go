// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package opcode defines the command-buffer data model the
// Executor replays: a flat slice of tagged Opcode values, each
// carrying the payload for one recorded command. Recording
// appends to a Buffer; the Executor (package gpu/exec) walks
// the buffer once per submit and dispatches on Op.
package opcode

import "github.com/gviegas/forge/gpu/registry"

// Op identifies the kind of command an Opcode carries.
type Op int

const (
	OpBeginPass Op = iota
	OpNextSubpass
	OpEndPass
	OpSetViewport
	OpSetScissor
	OpSetBlendColor
	OpSetStencilRef
	OpSetVertexBuf
	OpSetIndexBuf
	OpSetDescTable
	OpSetPipeline
	OpDraw
	OpDrawIndexed
	OpDispatch
	OpUpdate
	OpClear
	OpResolve
	OpBarrier
	OpBeginBlock
	OpEndBlock
	OpSignalCounter
	OpWaitCounter
	OpChildBuffer
)

func (o Op) String() string {
	switch o {
	case OpBeginPass:
		return "BeginPass"
	case OpNextSubpass:
		return "NextSubpass"
	case OpEndPass:
		return "EndPass"
	case OpSetViewport:
		return "SetViewport"
	case OpSetScissor:
		return "SetScissor"
	case OpSetBlendColor:
		return "SetBlendColor"
	case OpSetStencilRef:
		return "SetStencilRef"
	case OpSetVertexBuf:
		return "SetVertexBuf"
	case OpSetIndexBuf:
		return "SetIndexBuf"
	case OpSetDescTable:
		return "SetDescTable"
	case OpSetPipeline:
		return "SetPipeline"
	case OpDraw:
		return "Draw"
	case OpDrawIndexed:
		return "DrawIndexed"
	case OpDispatch:
		return "Dispatch"
	case OpUpdate:
		return "Update"
	case OpClear:
		return "Clear"
	case OpResolve:
		return "Resolve"
	case OpBarrier:
		return "Barrier"
	case OpBeginBlock:
		return "BeginBlock"
	case OpEndBlock:
		return "EndBlock"
	case OpSignalCounter:
		return "SignalCounter"
	case OpWaitCounter:
		return "WaitCounter"
	case OpChildBuffer:
		return "ChildBuffer"
	default:
		return "invalid"
	}
}

// Opcode is one recorded command: its tag plus a payload index
// into the Buffer's arena for that opcode kind. Payloads are
// stored in per-kind typed slices rather than as an any to
// avoid an allocation and a type assertion per opcode on
// replay.
type Opcode struct {
	Op      Op
	Payload int
}

// Buffer is an append-only command-opcode stream plus its
// payload arenas. Recording methods on Buffer append both the
// Opcode header and the corresponding payload value; the
// Executor walks Ops in order and fetches each payload from the
// matching arena.
type Buffer struct {
	Ops []Opcode

	BeginPass     []BeginPassArgs
	SetViewport   []SetViewportArgs
	SetScissor    []SetScissorArgs
	SetBlendColor []SetBlendColorArgs
	SetStencil    []SetStencilArgs
	SetVertexBuf  []SetVertexBufArgs
	SetIndexBuf   []SetIndexBufArgs
	SetDescTable  []SetDescTableArgs
	SetPipeline   []SetPipelineArgs
	Draw          []DrawArgs
	DrawIndexed   []DrawIndexedArgs
	Dispatch      []DispatchArgs
	Update        []UpdateArgs
	Clear         []ClearArgs
	Resolve       []ResolveArgs
	Barrier       []BarrierArgs
	BeginBlock    []BeginBlockArgs
	SignalCounter []SignalCounterArgs
	WaitCounter   []WaitCounterArgs
	ChildBuffer   []ChildBufferArgs
}

func (b *Buffer) append(op Op, payload int) {
	b.Ops = append(b.Ops, Opcode{Op: op, Payload: payload})
}

// BeginPassArgs records a BeginPass opcode's parameters.
type BeginPassArgs struct {
	RenderPass registry.Handle
	Output     registry.Handle // nil if offscreen; non-nil selects the swapchain FBO
	RTs        []registry.Handle
	Clear      []ClearValue
}

// ClearValue mirrors driver.ClearValue without importing the
// driver package into the opcode payload types directly, so
// opcode stays a pure data model.
type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

func (b *Buffer) BeginPass(a BeginPassArgs) {
	b.BeginPass = append(b.BeginPass, a)
	b.append(OpBeginPass, len(b.BeginPass)-1)
}

func (b *Buffer) NextSubpass() { b.append(OpNextSubpass, 0) }
func (b *Buffer) EndPass()     { b.append(OpEndPass, 0) }

type Viewport struct{ X, Y, Width, Height, Near, Far float32 }
type SetViewportArgs struct{ Viewports []Viewport }

func (b *Buffer) SetViewport(vp []Viewport) {
	b.SetViewport = append(b.SetViewport, SetViewportArgs{vp})
	b.append(OpSetViewport, len(b.SetViewport)-1)
}

type Scissor struct{ X, Y, Width, Height int }
type SetScissorArgs struct{ Scissors []Scissor }

func (b *Buffer) SetScissor(s []Scissor) {
	b.SetScissor = append(b.SetScissor, SetScissorArgs{s})
	b.append(OpSetScissor, len(b.SetScissor)-1)
}

type SetBlendColorArgs struct{ R, G, B, A float32 }

func (b *Buffer) SetBlendColor(r, g, bl, a float32) {
	b.SetBlendColor = append(b.SetBlendColor, SetBlendColorArgs{r, g, bl, a})
	b.append(OpSetBlendColor, len(b.SetBlendColor)-1)
}

type SetStencilArgs struct{ Ref uint32 }

func (b *Buffer) SetStencilRef(ref uint32) {
	b.SetStencil = append(b.SetStencil, SetStencilArgs{ref})
	b.append(OpSetStencilRef, len(b.SetStencil)-1)
}

type SetVertexBufArgs struct {
	Start int
	Bufs  []registry.Handle
	Offs  []int64
}

func (b *Buffer) SetVertexBuf(a SetVertexBufArgs) {
	b.SetVertexBuf = append(b.SetVertexBuf, a)
	b.append(OpSetVertexBuf, len(b.SetVertexBuf)-1)
}

type SetIndexBufArgs struct {
	Format int // 0 = 16-bit, 1 = 32-bit
	Buf    registry.Handle
	Off    int64
}

func (b *Buffer) SetIndexBuf(a SetIndexBufArgs) {
	b.SetIndexBuf = append(b.SetIndexBuf, a)
	b.append(OpSetIndexBuf, len(b.SetIndexBuf)-1)
}

type SetDescTableArgs struct {
	Compute  bool
	Table    registry.Handle
	Start    int
	HeapCopy []int
}

func (b *Buffer) SetDescTable(a SetDescTableArgs) {
	b.SetDescTable = append(b.SetDescTable, a)
	b.append(OpSetDescTable, len(b.SetDescTable)-1)
}

type SetPipelineArgs struct{ Pipeline registry.Handle }

func (b *Buffer) SetPipeline(h registry.Handle) {
	b.SetPipeline = append(b.SetPipeline, SetPipelineArgs{h})
	b.append(OpSetPipeline, len(b.SetPipeline)-1)
}

type DrawArgs struct{ VertCount, InstCount, BaseVert, BaseInst int }

func (b *Buffer) Draw(a DrawArgs) {
	b.Draw = append(b.Draw, a)
	b.append(OpDraw, len(b.Draw)-1)
}

type DrawIndexedArgs struct{ IdxCount, InstCount, BaseIdx, VertOff, BaseInst int }

func (b *Buffer) DrawIndexed(a DrawIndexedArgs) {
	b.DrawIndexed = append(b.DrawIndexed, a)
	b.append(OpDrawIndexed, len(b.DrawIndexed)-1)
}

type DispatchArgs struct{ GrpX, GrpY, GrpZ int }

func (b *Buffer) Dispatch(a DispatchArgs) {
	b.Dispatch = append(b.Dispatch, a)
	b.append(OpDispatch, len(b.Dispatch)-1)
}

// UpdateArgs records a dynamic buffer/image write sourced from
// the transient-data pass's staging reservation.
type UpdateArgs struct {
	Target     registry.Handle
	TargetOff  int64
	SrcData    []byte // host data; staged during the transient-data pass
	IsImage    bool
	ImgLevel   int
	ImgLayer   int
	ImgWidth   int
	ImgHeight  int
	ImgDepth   int
	StagingOff int64 // filled in by the transient-data pass
}

func (b *Buffer) Update(a UpdateArgs) {
	b.Update = append(b.Update, a)
	b.append(OpUpdate, len(b.Update)-1)
}

type ClearRect struct{ X, Y, Width, Height int }

type ClearArgs struct {
	Target registry.Handle
	Value  ClearValue
	Rects  []ClearRect // nil clears the whole resource
	Level  int
	Layer  int
}

func (b *Buffer) Clear(a ClearArgs) {
	b.Clear = append(b.Clear, a)
	b.append(OpClear, len(b.Clear)-1)
}

type ResolveArgs struct {
	Src, Dst           registry.Handle
	SrcLevel, SrcLayer int
	DstLevel, DstLayer int
}

func (b *Buffer) Resolve(a ResolveArgs) {
	b.Resolve = append(b.Resolve, a)
	b.append(OpResolve, len(b.Resolve)-1)
}

// BarrierArgs is a translation-only resource-layout barrier:
// SyncBefore/SyncAfter and AccessBefore/AccessAfter are the
// union of bit flags implied by the source and target layouts.
type BarrierArgs struct {
	Target       registry.Handle
	IsImage      bool
	SyncBefore   int
	SyncAfter    int
	AccessBefore int
	AccessAfter  int
}

func (b *Buffer) Barrier(a BarrierArgs) {
	b.Barrier = append(b.Barrier, a)
	b.append(OpBarrier, len(b.Barrier)-1)
}

type BeginBlockArgs struct{ Label string }

func (b *Buffer) BeginBlock(label string) {
	b.BeginBlock = append(b.BeginBlock, BeginBlockArgs{label})
	b.append(OpBeginBlock, len(b.BeginBlock)-1)
}

func (b *Buffer) EndBlock() { b.append(OpEndBlock, 0) }

type SignalCounterArgs struct{ Counter int }

func (b *Buffer) SignalCounter(counter int) {
	b.SignalCounter = append(b.SignalCounter, SignalCounterArgs{counter})
	b.append(OpSignalCounter, len(b.SignalCounter)-1)
}

type WaitCounterArgs struct {
	Counter int
	Target  int
}

func (b *Buffer) WaitCounter(counter, target int) {
	b.WaitCounter = append(b.WaitCounter, WaitCounterArgs{counter, target})
	b.append(OpWaitCounter, len(b.WaitCounter)-1)
}

// ChildBufferArgs recursively executes a nested Buffer. Inherit
// decides whether the nested Executor sees the parent's
// descriptor stack or starts with a cleared one.
type ChildBufferArgs struct {
	Child   *Buffer
	Inherit bool
}

func (b *Buffer) ChildBuffer(a ChildBufferArgs) {
	b.ChildBuffer = append(b.ChildBuffer, a)
	b.append(OpChildBuffer, len(b.ChildBuffer)-1)
}

// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package objects defines the concrete Device Objects that
// live in the Object Registry: thin wrappers around driver
// resources that add the ObjectKind method the registry
// requires, plus whatever bookkeeping the Executor and Copy
// Queue need to drive them.
package objects

import (
	"github.com/gviegas/forge/driver"
	"github.com/gviegas/forge/gpu/objcache"
	"github.com/gviegas/forge/gpu/registry"
)

// Buffer is a registered driver.Buffer.
type Buffer struct {
	driver.Buffer
}

func (*Buffer) ObjectKind() registry.Kind { return registry.KindBuffer }

// Image is a registered driver.Image.
type Image struct {
	driver.Image
	Format  driver.PixelFmt
	Size    driver.Dim3D
	Layers  int
	Levels  int
	Samples int
}

func (*Image) ObjectKind() registry.Kind { return registry.KindImage }

// ImageView is a registered driver.ImageView plus the Sampler
// key predefined samplers are looked up by (per the Executor's
// "predefined samplers live in a fixed slot table indexed by a
// small enumeration" rule).
type ImageView struct {
	driver.ImageView
	Image      *Image
	SamplerKey int
}

func (*ImageView) ObjectKind() registry.Kind { return registry.KindImageView }

// BufferTypedView is a registered typed buffer view (e.g. a
// texel buffer view).
type BufferTypedView struct {
	Buffer *Buffer
	Format driver.PixelFmt
	Off    int64
	Size   int64
}

func (*BufferTypedView) ObjectKind() registry.Kind { return registry.KindBufferTypedView }

// BufferUntypedView is a registered raw byte-range view of a
// Buffer.
type BufferUntypedView struct {
	Buffer *Buffer
	Off    int64
	Size   int64
}

func (*BufferUntypedView) ObjectKind() registry.Kind { return registry.KindBufferUntypedView }

// Sampler is a registered driver.Sampler.
type Sampler struct {
	driver.Sampler
}

func (*Sampler) ObjectKind() registry.Kind { return registry.KindSampler }

// Shaders is a registered shader bundle: a set of compiled
// stages bound together with the fixed-function state a
// pipeline built from them must use. A graphics bundle carries
// a vertex stage, a fragment stage, and the rasterization,
// depth/stencil and blend state that do not vary per draw; a
// compute bundle carries a single stage and leaves the rest
// zero. The Executor combines a Shaders object with whatever
// render pass/subpass is current (from the enclosing BeginPass)
// to build or fetch the cached driver.Pipeline.
type Shaders struct {
	Stages   []StageFunc
	Compute  bool
	Vertex   objcache.VertexLayout
	Topology driver.Topology
	Raster   driver.RasterState
	Samples  int
	DS       driver.DSState
	Blend    driver.BlendState
}

// StageFunc pairs a compiled shader function with the
// programmable stage it fills.
type StageFunc struct {
	Stage driver.Stage
	Func  driver.ShaderFunc
}

func (*Shaders) ObjectKind() registry.Kind { return registry.KindShaders }

// Output is a registered presentation surface (the swapchain's
// zeroth-index framebuffer target).
type Output struct {
	driver.Framebuf
	Width, Height int
}

func (*Output) ObjectKind() registry.Kind { return registry.KindOutput }

// RenderTarget is a registered offscreen render pass + the
// framebuffers built from it, keyed by the attachment set that
// produced them.
type RenderTarget struct {
	Pass          driver.RenderPass
	FB            driver.Framebuf
	Width, Height int
	Samples       int
}

func (*RenderTarget) ObjectKind() registry.Kind { return registry.KindRenderTarget }

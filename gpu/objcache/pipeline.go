// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package objcache

import (
	"fmt"
	"sync"

	"github.com/gviegas/forge/driver"
)

// GraphKey identifies a graphics Pipeline by everything that
// feeds driver.GraphState except the two ShaderFunc/Desc
// fields, which are folded in as pre-computed content hashes
// (bundle/table) instead of hashing the driver resources
// themselves.
type GraphKey struct {
	Bundle   Hash
	Table    Hash
	Vertex   Hash
	Topology driver.Topology
	Raster   driver.RasterState
	Samples  int
	DS       driver.DSState
	Blend    []driver.ColorBlend
	IndBlend bool
	Pass     driver.RenderPass
	Subpass  int
}

// CompKey identifies a compute Pipeline.
type CompKey struct {
	Bundle Hash
	Table  Hash
}

func hashGraphKey(k GraphKey) Hash {
	h := newHasher()
	h.writeUint64(uint64(k.Bundle))
	h.writeUint64(uint64(k.Table))
	h.writeUint64(uint64(k.Vertex))
	h.writeUint64(uint64(k.Topology))
	h.writeUint64(boolU64(k.Raster.Clockwise))
	h.writeUint64(uint64(k.Raster.Cull))
	h.writeUint64(uint64(k.Raster.Fill))
	h.writeUint64(boolU64(k.Raster.DepthBias))
	h.writeUint64(uint64(k.Samples))
	h.writeUint64(boolU64(k.DS.DepthTest))
	h.writeUint64(boolU64(k.DS.DepthWrite))
	h.writeUint64(uint64(k.DS.DepthCmp))
	h.writeUint64(boolU64(k.DS.StencilTest))
	h.writeUint64(uint64(len(k.Blend)))
	for _, b := range k.Blend {
		h.writeUint64(boolU64(b.Blend))
		h.writeUint64(uint64(b.WriteMask))
		h.writeUint64(uint64(b.Op[0]))
		h.writeUint64(uint64(b.Op[1]))
		h.writeUint64(uint64(b.SrcFac[0]))
		h.writeUint64(uint64(b.SrcFac[1]))
		h.writeUint64(uint64(b.DstFac[0]))
		h.writeUint64(uint64(b.DstFac[1]))
	}
	h.writeUint64(boolU64(k.IndBlend))
	h.writeString(fmt.Sprintf("%p", k.Pass))
	h.writeUint64(uint64(k.Subpass))
	return h.sum()
}

func hashCompKey(k CompKey) Hash {
	h := newHasher()
	h.writeUint64(uint64(k.Bundle))
	h.writeUint64(uint64(k.Table))
	return h.sum()
}

func boolU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// pipelines is the content-addressed pipeline cache. Graphics
// and compute pipelines share one map: their key types hash to
// disjoint spaces in practice, and nothing ever looks a
// pipeline up without already knowing which kind it built.
type pipelines struct {
	mu sync.Mutex
	m  map[Hash]driver.Pipeline
}

func newPipelines() *pipelines { return &pipelines{m: make(map[Hash]driver.Pipeline)} }

// ResolveGraph returns the cached graphics Pipeline for key,
// building it from state via gpu.NewPipeline on first use.
func (c *pipelines) ResolveGraph(gpu driver.GPU, key GraphKey, state *driver.GraphState) (driver.Pipeline, error) {
	return c.resolve(gpu, hashGraphKey(key), state)
}

// ResolveComp returns the cached compute Pipeline for key.
func (c *pipelines) ResolveComp(gpu driver.GPU, key CompKey, state *driver.CompState) (driver.Pipeline, error) {
	return c.resolve(gpu, hashCompKey(key), state)
}

func (c *pipelines) resolve(gpu driver.GPU, key Hash, state any) (driver.Pipeline, error) {
	c.mu.Lock()
	if p, ok := c.m[key]; ok {
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	p, err := gpu.NewPipeline(state)
	if err != nil {
		return nil, fmt.Errorf("objcache: creating pipeline: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.m[key]; ok {
		p.Destroy()
		return existing, nil
	}
	c.m[key] = p
	return p, nil
}

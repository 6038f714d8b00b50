// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package exec

import (
	"fmt"

	"github.com/gviegas/forge/driver"
	"github.com/gviegas/forge/gpu/objcache"
	"github.com/gviegas/forge/gpu/objects"
	"github.com/gviegas/forge/gpu/registry"
)

// resolvePipeline returns the driver.Pipeline built from the
// Shaders object h names, building and caching it on first use.
// A SetPipeline opcode must always be preceded, within the same
// command buffer, by a SetDescTable opcode binding the table the
// shader bundle was authored against: pipeline creation needs a
// concrete DescTable to validate binding compatibility against.
func (e *Executor) resolvePipeline(h registry.Handle) (driver.Pipeline, error) {
	sh, ok := registry.Resolve[*objects.Shaders](e.reg, h)
	if !ok {
		return nil, fmt.Errorf("stale shaders handle %s", h)
	}
	table, ok := e.descTables.get(e.shadow.descTable)
	if !ok {
		return nil, fmt.Errorf("no descriptor table bound for pipeline %s", h)
	}

	stageKeys := make([]objcache.Hash, len(sh.Stages))
	stages := make([]*objcache.ShaderStage, len(sh.Stages))
	for i, sf := range sh.Stages {
		stages[i] = &objcache.ShaderStage{Func: sf.Func, Stage: sf.Stage}
		stageKeys[i] = objcache.HashBytes([]byte(sf.Func.Name))
	}
	bundle, bundleKey := e.cache.ShaderBundles.Resolve(stages, stageKeys)

	if sh.Compute {
		key := CompKey{Bundle: bundleKey, Table: tableHash(table)}
		state := &driver.CompState{Func: bundle.Stages[0].Func, Desc: table.Table}
		return e.cache.Pipelines.ResolveComp(e.gpu, key, state)
	}

	vertKey := objcache.HashVertexStreams(sh.Vertex.Streams)
	pass, ok := resolveRenderPass(e.reg, e.curPass)
	if !ok {
		return nil, fmt.Errorf("pipeline %s: no render pass bound", h)
	}
	key := GraphKey{
		Bundle:   bundleKey,
		Table:    tableHash(table),
		Vertex:   vertKey,
		Topology: sh.Topology,
		Raster:   sh.Raster,
		Samples:  sh.Samples,
		DS:       sh.DS,
		Blend:    sh.Blend.Color,
		IndBlend: sh.Blend.IndependentBlend,
		Pass:     pass,
		Subpass:  e.curSub,
	}
	var vert, frag driver.ShaderFunc
	for _, s := range bundle.Stages {
		switch s.Stage {
		case driver.SFragment:
			frag = s.Func
		case driver.SVertex:
			vert = s.Func
		}
	}
	state := &driver.GraphState{
		VertFunc: vert,
		FragFunc: frag,
		Desc:     table.Table,
		Input:    sh.Vertex.Input,
		Topology: sh.Topology,
		Raster:   sh.Raster,
		Samples:  sh.Samples,
		DS:       sh.DS,
		Blend:    sh.Blend,
		Pass:     pass,
		Subpass:  e.curSub,
	}
	return e.cache.Pipelines.ResolveGraph(e.gpu, key, state)
}

// tableHash keys a descriptor table's layout by its BindingMap
// content rather than its transient driver.DescTable identity,
// so a pipeline cached against one table is reused by another
// table sharing the same layout.
func tableHash(t *Table) objcache.Hash {
	var srcs []objcache.BindingSource
	byPoint := map[int][]driver.Descriptor{}
	var order []int
	for _, el := range t.Map.Elements {
		if _, seen := byPoint[el.BindPointIndex]; !seen {
			order = append(order, el.BindPointIndex)
		}
		byPoint[el.BindPointIndex] = append(byPoint[el.BindPointIndex], driver.Descriptor{
			Type: el.Type,
			Nr:   el.ElementIndex,
			Len:  1,
		})
	}
	for _, p := range order {
		srcs = append(srcs, objcache.BindingSource{BindPointIndex: p, Descriptors: byPoint[p]})
	}
	return objcache.HashBindingSources(srcs)
}

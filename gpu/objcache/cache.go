// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package objcache

import "github.com/gviegas/forge/logctx"

var log = logctx.New("objcache")

// Cache is the Object Cache: the content-addressed maps
// that hold derived GPU objects built from the data supplied by
// higher-level Device Objects (meshes, materials, textures).
// Entries are never evicted; the Cache lives as long as the
// Device that owns it.
type Cache struct {
	VertexBindPoints *VertexBindPoints
	VertexLayouts    *vertexLayouts
	DescBindPoints   *DescBindPoints
	BindingMaps      *bindingMaps
	ShaderStages     *shaderStages
	ShaderBundles    *shaderBundles
	Samplers         *samplers
	Pipelines        *pipelines
}

// New creates an empty Cache.
func New() *Cache {
	log.Infof("created")
	return &Cache{
		VertexBindPoints: newVertexBindPoints(),
		VertexLayouts:    newVertexLayouts(),
		DescBindPoints:   newDescBindPoints(),
		BindingMaps:      newBindingMaps(),
		ShaderStages:     newShaderStages(),
		ShaderBundles:    newShaderBundles(),
		Samplers:         newSamplers(),
		Pipelines:        newPipelines(),
	}
}

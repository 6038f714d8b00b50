// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package objcache

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/pierrec/lz4/v4"

	"github.com/gviegas/forge/driver"
)

// ShaderStage is one compiled, separable shader stage: a
// single driver.ShaderFunc built from an LZ4HC-compressed
// source blob, decompressed and handed to the platform's
// GPU only on first use.
type ShaderStage struct {
	Func  driver.ShaderFunc
	Stage driver.Stage
}

// shaderStages is the content-addressed shader-stage cache,
// keyed directly by the hash of the compressed blob: distinct
// blobs never collapse to the same stage, and a blob seen
// twice (e.g. the same fragment shader reused by two
// pipelines) decompresses and compiles only once.
type shaderStages struct {
	mu sync.Mutex
	m  map[Hash]*ShaderStage
}

func newShaderStages() *shaderStages {
	return &shaderStages{m: make(map[Hash]*ShaderStage)}
}

// decompress inflates an LZ4HC-compressed shader blob. A blob
// is only ever decompressed once, the first time its hash is
// requested.
func decompress(compressed []byte, sizeHint int) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(compressed))
	out := make([]byte, 0, sizeHint)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fmt.Errorf("objcache: decompressing shader blob: %w", err)
	}
	return buf.Bytes(), nil
}

// Resolve returns the cached ShaderStage for a compressed
// blob, decompressing and compiling it on first use. gpu is
// the driver.GPU used to create the ShaderCode.
func (c *shaderStages) Resolve(gpu driver.GPU, compressed []byte, sizeHint int, stage driver.Stage) (*ShaderStage, Hash, error) {
	key := HashBytes(compressed)

	c.mu.Lock()
	if s, ok := c.m[key]; ok {
		c.mu.Unlock()
		return s, key, nil
	}
	c.mu.Unlock()

	raw, err := decompress(compressed, sizeHint)
	if err != nil {
		return nil, key, err
	}
	code, err := gpu.NewShaderCode(raw)
	if err != nil {
		return nil, key, fmt.Errorf("objcache: compiling shader stage: %w", err)
	}
	s := &ShaderStage{
		Func:  driver.ShaderFunc{Code: code, Name: "main"},
		Stage: stage,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.m[key]; ok {
		// Lost the race to another goroutine resolving the same
		// blob concurrently; keep the one already installed and
		// drop ours.
		code.Destroy()
		return existing, key, nil
	}
	c.m[key] = s
	return s, key, nil
}

// ShaderBundle is a program-pipeline worth of bound, compiled
// stages: the set an Executor selects wholesale when a Draw or
// Dispatch opcode names it.
type ShaderBundle struct {
	Stages []*ShaderStage
}

// HashShaderBundle computes the cache key for a bundle from
// its constituent stage hashes, in a fixed vertex/fragment or
// compute order.
func HashShaderBundle(stageKeys []Hash) Hash {
	h := newHasher()
	h.writeUint64(uint64(len(stageKeys)))
	for _, k := range stageKeys {
		h.writeUint64(uint64(k))
	}
	return h.sum()
}

type shaderBundles struct {
	mu sync.Mutex
	m  map[Hash]*ShaderBundle
}

func newShaderBundles() *shaderBundles {
	return &shaderBundles{m: make(map[Hash]*ShaderBundle)}
}

// Resolve returns the cached ShaderBundle binding the given
// stages (already-resolved ShaderStages, in the same order as
// stageKeys), building and storing it on first use.
func (c *shaderBundles) Resolve(stages []*ShaderStage, stageKeys []Hash) (*ShaderBundle, Hash) {
	key := HashShaderBundle(stageKeys)
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.m[key]; ok {
		return b, key
	}
	b := &ShaderBundle{Stages: append([]*ShaderStage(nil), stages...)}
	c.m[key] = b
	return b, key
}

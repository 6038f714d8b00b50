// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package objcache

import (
	"fmt"
	"sync"

	"github.com/gviegas/forge/driver"
)

// samplers is the content-addressed sampler cache. Unlike the
// other caches, it is keyed directly by the driver.Sampling
// value rather than a computed Hash: every field of Sampling is
// comparable, so the struct itself is already a valid,
// collision-free map key.
type samplers struct {
	mu sync.Mutex
	m  map[driver.Sampling]driver.Sampler
}

func newSamplers() *samplers {
	return &samplers{m: make(map[driver.Sampling]driver.Sampler)}
}

// Resolve returns the cached Sampler for spln, creating it via
// gpu.NewSampler on first use.
func (c *samplers) Resolve(gpu driver.GPU, spln driver.Sampling) (driver.Sampler, error) {
	c.mu.Lock()
	if s, ok := c.m[spln]; ok {
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	s, err := gpu.NewSampler(&spln)
	if err != nil {
		return nil, fmt.Errorf("objcache: creating sampler: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.m[spln]; ok {
		s.Destroy()
		return existing, nil
	}
	c.m[spln] = s
	return s, nil
}

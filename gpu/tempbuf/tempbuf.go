// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package tempbuf implements the Temp Buffer Pool: a set of
// per-class growable buffers (staging, constants, geometry)
// that short-lived per-frame allocations draw from instead of
// creating a dedicated driver.Buffer each time. Allocations are
// tracked with a bitmap, exactly as the engine package's own
// staging buffer does; unlike that single-purpose buffer, Pool
// keeps bitmap-backed buffers per Class. Reserve never evicts:
// when no buffer of the class has room it creates a new one.
// Trim destroys every completely unused buffer of every class;
// buffers are not ranked by size, and none is destroyed unless
// Trim is called.
package tempbuf

import (
	"fmt"
	"sync"

	"github.com/gviegas/forge/driver"
	"github.com/gviegas/forge/internal/bitm"
	"github.com/gviegas/forge/logctx"
)

var log = logctx.New("tempbuf")

// Class identifies which usage pattern a temp buffer serves.
// Each class is pooled independently so that, e.g., a large
// staging upload never competes for the same buffer as a tiny
// per-draw constant block.
type Class int

const (
	// ClassStaging buffers are host-visible and used to copy
	// data to/from device-local resources.
	ClassStaging Class = iota
	// ClassConstant buffers back shader constant blocks.
	ClassConstant
	// ClassGeometry buffers back transient vertex/index data.
	ClassGeometry

	nclass
)

func (c Class) String() string {
	switch c {
	case ClassStaging:
		return "staging"
	case ClassConstant:
		return "constant"
	case ClassGeometry:
		return "geometry"
	default:
		return "invalid"
	}
}

// blockSize and nbit mirror the engine package's staging
// buffer constants: block-granularity allocation, one bitmap
// word covers nbit blocks.
const (
	blockSize = 65536
	nbit      = 32
	granule   = blockSize * nbit
)

func usageFor(c Class) driver.Usage {
	switch c {
	case ClassConstant:
		return driver.UShaderConst
	case ClassGeometry:
		return driver.UVertexData | driver.UIndexData
	default:
		return driver.UGeneric
	}
}

func visibleFor(c Class) bool {
	// Staging buffers must be host visible so the CPU can write
	// directly into them; constant/geometry buffers are written
	// via the staging path and only need to be device-local.
	return c == ClassStaging
}

// chunk is one growable, bitmap-backed buffer belonging to a
// single Class.
type chunk struct {
	buf  driver.Buffer
	bm   bitm.Bitm[uint32]
	used int // count of allocated blocks; Trim destroys the chunk when zero
}

func newChunk(gpu driver.GPU, class Class, minBytes int64) (*chunk, error) {
	n := (minBytes + granule - 1) / granule
	if n < 1 {
		n = 1
	}
	size := n * granule
	buf, err := gpu.NewBuffer(size, visibleFor(class), usageFor(class))
	if err != nil {
		return nil, err
	}
	c := &chunk{buf: buf}
	c.bm.Grow(int(n))
	return c, nil
}

func (c *chunk) destroy() { c.buf.Destroy() }

// Pool is the Temp Buffer Pool. The zero value is not usable;
// call New.
type Pool struct {
	gpu   driver.GPU
	mu    sync.Mutex
	chunk [nclass][]*chunk
	floor int64 // minimum size for a newly created chunk, from config
}

// New creates a Pool. floor is the minimum byte size of every
// chunk the pool creates (config.TempBufferFloor).
func New(gpu driver.GPU, floor int64) *Pool {
	if floor < granule {
		floor = granule
	}
	log.Infof("created with floor=%d", floor)
	return &Pool{gpu: gpu, floor: floor}
}

// Allocation identifies a reserved byte range within one of
// the pool's buffers.
type Allocation struct {
	Class Class
	Chunk int
	Off   int64
	Size  int64
}

// Buffer returns the driver.Buffer backing a, for recording
// copy or bind commands against.
func (p *Pool) Buffer(a Allocation) driver.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chunk[a.Class][a.Chunk].buf
}

// WriteData copies data into a's reserved range. The buffer
// for a.Class must be host visible (only ClassStaging is).
func (p *Pool) WriteData(a Allocation, data []byte) {
	if int64(len(data)) > a.Size {
		panic("tempbuf: WriteData: data larger than allocation")
	}
	buf := p.Buffer(a)
	copy(buf.Bytes()[a.Off:], data)
}

// Reserve allocates size bytes from the given class, growing
// the pool with a new chunk if no existing chunk has enough
// contiguous free space.
func (p *Pool) Reserve(class Class, size int64) (Allocation, error) {
	if size <= 0 {
		panic("tempbuf: Reserve: size <= 0")
	}
	nblocks := int((size + blockSize - 1) / blockSize)

	p.mu.Lock()
	defer p.mu.Unlock()

	for i, c := range p.chunk[class] {
		if idx, ok := c.bm.SearchRange(nblocks); ok {
			for j := 0; j < nblocks; j++ {
				c.bm.Set(idx + j)
			}
			c.used += nblocks
			return Allocation{Class: class, Chunk: i, Off: int64(idx) * blockSize, Size: size}, nil
		}
	}

	minBytes := p.floor
	if need := int64(nblocks) * blockSize; need > minBytes {
		minBytes = need
	}
	c, err := newChunk(p.gpu, class, minBytes)
	if err != nil {
		return Allocation{}, fmt.Errorf("tempbuf: growing %s pool: %w", class, err)
	}
	for j := 0; j < nblocks; j++ {
		c.bm.Set(j)
	}
	c.used = nblocks
	p.chunk[class] = append(p.chunk[class], c)
	return Allocation{Class: class, Chunk: len(p.chunk[class]) - 1, Off: 0, Size: size}, nil
}

// Release returns a's byte range to the free pool, making it
// available for a future Reserve call of the same class.
func (p *Pool) Release(a Allocation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a.Chunk >= len(p.chunk[a.Class]) {
		return
	}
	c := p.chunk[a.Class][a.Chunk]
	nblocks := int((a.Size + blockSize - 1) / blockSize)
	idx := int(a.Off / blockSize)
	for j := 0; j < nblocks; j++ {
		c.bm.Unset(idx + j)
	}
	c.used -= nblocks
}

// Trim destroys chunks in every class that are currently
// completely unused, freeing device memory back to the driver.
// It is meant to be called under memory pressure, between
// frames, never while any Allocation from a trimmed chunk might
// still be referenced.
func (p *Pool) Trim() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for cls := Class(0); cls < nclass; cls++ {
		kept := p.chunk[cls][:0]
		for _, c := range p.chunk[cls] {
			if c.used == 0 {
				c.destroy()
				continue
			}
			kept = append(kept, c)
		}
		p.chunk[cls] = kept
	}
}

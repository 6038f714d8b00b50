// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package staging implements the Staging Ring and the Copy
// Queue: the persistently-mapped block allocator that CPU
// writes land in, and the FIFO job queue that turns those
// writes into device-local copies. It generalizes the engine
// package's single-purpose stagingBuffer into a ring shared by
// every subsystem that needs to move bytes onto the GPU.
package staging

import (
	"errors"
	"sync"

	"github.com/gviegas/forge/driver"
	"github.com/gviegas/forge/internal/bitm"
	"github.com/gviegas/forge/logctx"
)

var log = logctx.New("staging")

// ErrNoSpace is returned by Ring.Allocate when size exceeds the
// ring's total capacity, or the ring has no contiguous free
// range large enough at the moment.
var ErrNoSpace = errors.New("staging: no space available")

// Area is a reserved, persistently-mapped byte range within the
// Ring's buffer.
type Area struct {
	Off   int64
	Size  int64
	Label string
}

// Ring is the Staging Ring: a single large, persistently
// host-mapped buffer tracked in page-size blocks, mirroring the
// engine package's stagingBuffer bitmap allocator but sized and
// shared for the whole Device rather than one buffer per
// texture upload.
type Ring struct {
	mu    sync.Mutex
	buf   driver.Buffer
	bm    bitm.Bitm[uint32]
	page  int64
	total int64
}

// NewRing creates a Ring of the given total size, tracked in
// page-sized blocks. size must be a multiple of page, and page
// must be a power of two.
func NewRing(gpu driver.GPU, size, page int64) (*Ring, error) {
	if size <= 0 || page <= 0 || size%page != 0 {
		panic("staging: NewRing: size must be a positive multiple of page")
	}
	buf, err := gpu.NewBuffer(size, true, driver.UGeneric)
	if err != nil {
		return nil, err
	}
	r := &Ring{buf: buf, page: page, total: size}
	nblk := int(size / page)
	r.bm.Grow((nblk + 31) / 32)
	// Bits past the last page of the buffer are marked used so
	// Allocate never hands them out.
	for i := nblk; i < r.bm.Len(); i++ {
		r.bm.Set(i)
	}
	log.Infof("created ring of %d bytes, %d-byte pages", size, page)
	return r, nil
}

func (r *Ring) blocksFor(size int64) int {
	return int((size + r.page - 1) / r.page)
}

// Allocate reserves size bytes from the ring, labeled for
// diagnostics. It returns ErrNoSpace if no contiguous range is
// currently free; callers should retry after the Copy Queue
// drains some jobs.
func (r *Ring) Allocate(size int64, label string) (Area, error) {
	if size <= 0 {
		panic("staging: Allocate: size <= 0")
	}
	if size > r.total {
		return Area{}, ErrNoSpace
	}
	n := r.blocksFor(size)

	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.bm.SearchRange(n)
	if !ok {
		return Area{}, ErrNoSpace
	}
	for i := 0; i < n; i++ {
		r.bm.Set(idx + i)
	}
	return Area{Off: int64(idx) * r.page, Size: size, Label: label}, nil
}

// Free returns a's range to the ring's free pool.
func (r *Ring) Free(a Area) {
	n := r.blocksFor(a.Size)
	idx := int(a.Off / r.page)
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < n; i++ {
		r.bm.Unset(idx + i)
	}
}

// Write copies data into a's range. a must have been returned
// by Allocate on this Ring.
func (r *Ring) Write(a Area, data []byte) {
	if int64(len(data)) > a.Size {
		panic("staging: Write: data larger than area")
	}
	copy(r.buf.Bytes()[a.Off:], data)
}

// Buffer returns the ring's single backing driver.Buffer, for
// recording copy commands that read from a's range.
func (r *Ring) Buffer() driver.Buffer { return r.buf }

// Destroy releases the ring's buffer.
func (r *Ring) Destroy() { r.buf.Destroy() }

// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package exec

import (
	"fmt"

	"github.com/gviegas/forge/driver"
	"github.com/gviegas/forge/gpu/objects"
	"github.com/gviegas/forge/gpu/opcode"
	"github.com/gviegas/forge/gpu/registry"
	"github.com/gviegas/forge/gpu/staging"
)

// align256 rounds n up to the 256-byte alignment driver.DescHeap
// buffer ranges and staging copies require.
func align256(n int64) int64 { return (n + 255) &^ 255 }

// collectUpdates gathers every UpdateArgs in buf and its
// children (ChildBuffer is transparent to the transient-data
// pass: a child's Update opcodes must be staged before the
// parent command buffer starts replaying, since the staging
// copy is recorded once, up front, ahead of all of it).
func collectUpdates(buf *opcode.Buffer, out *[]*opcode.UpdateArgs) {
	for i := range buf.Update {
		*out = append(*out, &buf.Update[i])
	}
	for i := range buf.ChildBuffer {
		if c := buf.ChildBuffer[i].Child; c != nil {
			collectUpdates(c, out)
		}
	}
}

// stageTransientData reserves one contiguous Staging Ring range
// large enough for every Update opcode in buf (recursing into
// children), copies each opcode's SrcData into its slice of
// that range, and records the buffer/image copies that move the
// data from the ring into its target, all before any other
// command in e.cb. The ring range is released once the frame
// retires, via e.frame.OnRetire.
func (e *Executor) stageTransientData(buf *opcode.Buffer) error {
	var updates []*opcode.UpdateArgs
	collectUpdates(buf, &updates)
	if len(updates) == 0 {
		return nil
	}

	var total int64
	offs := make([]int64, len(updates))
	for i, u := range updates {
		offs[i] = total
		total += align256(int64(len(u.SrcData)))
	}

	area, err := e.ring.Allocate(total, "exec-transient")
	if err != nil {
		return fmt.Errorf("allocating staging range: %w", err)
	}
	if e.frame != nil {
		e.frame.OnRetire(func() { e.ring.Free(area) })
	}

	for i, u := range updates {
		u.StagingOff = area.Off + offs[i]
		sub := staging.Area{Off: u.StagingOff, Size: int64(len(u.SrcData)), Label: area.Label}
		e.ring.Write(sub, u.SrcData)
	}

	e.cb.BeginBlit(false)
	for _, u := range updates {
		if u.IsImage {
			img, ok := registry.Resolve[*objects.Image](e.reg, u.Target)
			if !ok {
				log.Warnf("Update: stale image handle %s", u.Target)
				continue
			}
			e.cb.CopyBufToImg(&driver.BufImgCopy{
				Buf:    e.ring.Buffer(),
				BufOff: u.StagingOff,
				Stride: [2]int64{int64(u.ImgWidth), int64(u.ImgHeight)},
				Img:    img.Image,
				ImgOff: driver.Off3D{},
				Layer:  u.ImgLayer,
				Level:  u.ImgLevel,
				Size:   driver.Dim3D{Width: u.ImgWidth, Height: u.ImgHeight, Depth: u.ImgDepth},
			})
		} else {
			buf, ok := registry.Resolve[*objects.Buffer](e.reg, u.Target)
			if !ok {
				log.Warnf("Update: stale buffer handle %s", u.Target)
				continue
			}
			e.cb.CopyBuffer(&driver.BufferCopy{
				From:    e.ring.Buffer(),
				FromOff: u.StagingOff,
				To:      buf.Buffer,
				ToOff:   u.TargetOff,
				Size:    int64(len(u.SrcData)),
			})
		}
	}
	e.cb.EndBlit()

	// Make the copies visible to whatever reads them next,
	// regardless of which stage that turns out to be.
	e.cb.Barrier([]driver.Barrier{{
		SyncBefore:   driver.SCopy,
		SyncAfter:    driver.SAll,
		AccessBefore: driver.ACopyWrite,
		AccessAfter:  driver.AAnyRead,
	}})
	return nil
}

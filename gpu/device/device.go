// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package device implements the Device: the composition root
// that wires the Object Registry, Object Cache, Temp Buffer
// Pool, Staging Ring, Copy Queue, Device Worker and Executor
// state (descriptor Store and SamplerSlots) into the single
// entry point higher-level code submits opcode.Buffers through.
package device

import (
	"fmt"

	"github.com/gviegas/forge/config"
	"github.com/gviegas/forge/driver"
	"github.com/gviegas/forge/gpu/exec"
	"github.com/gviegas/forge/gpu/objcache"
	"github.com/gviegas/forge/gpu/opcode"
	"github.com/gviegas/forge/gpu/registry"
	"github.com/gviegas/forge/gpu/staging"
	"github.com/gviegas/forge/gpu/tempbuf"
	"github.com/gviegas/forge/gpu/worker"
	"github.com/gviegas/forge/logctx"
)

var log = logctx.New("device")

// Device owns every long-lived GPU-execution-core component
// and is the sole caller of driver.GPU.Commit: opcode.Buffers
// are submitted to it, never replayed by hand elsewhere.
type Device struct {
	gpu driver.GPU
	cfg config.Config

	Registry *registry.Registry
	Cache    *objcache.Cache
	TempBufs *tempbuf.Pool
	Ring     *staging.Ring
	Copy     *staging.CopyQueue
	Worker   *worker.Worker

	descTables *exec.Store
	samplers   *exec.SamplerSlots
}

// New constructs a Device from cfg, creating the Staging Ring,
// Temp Buffer Pool, Object Registry, Object Cache and Device
// Worker, and wiring the Worker as the Registry's deletion sink.
// samplerSlots supplies the predefined driver.Samplers indexed
// by exec's small-int sampler enumeration (spec §6).
func New(gpu driver.GPU, cfg config.Config, samplerSlots []driver.Sampler) (*Device, error) {
	ring, err := staging.NewRing(gpu, cfg.StagingSize, cfg.StagingPage)
	if err != nil {
		return nil, fmt.Errorf("device: creating staging ring: %w", err)
	}

	reg := registry.New(cfg.MaxObjects)
	w := worker.New(gpu, reg, cfg.EnableWorkerThread)

	d := &Device{
		gpu:        gpu,
		cfg:        cfg,
		Registry:   reg,
		Cache:      objcache.New(),
		TempBufs:   tempbuf.New(gpu, cfg.TempBufferFloor),
		Ring:       ring,
		Copy:       staging.NewCopyQueue(gpu),
		Worker:     w,
		descTables: exec.NewStore(),
		samplers:   exec.NewSamplerSlots(samplerSlots),
	}
	log.Infof("created: %d object slots, %d-byte ring", cfg.MaxObjects, cfg.StagingSize)
	return d, nil
}

// DescTables returns the Store backing descriptor-table
// handles, for callers that build Tables to reference from
// recorded SetDescTable opcodes.
func (d *Device) DescTables() *exec.Store { return d.descTables }

// Submit enqueues buf for execution: a fresh driver.CmdBuffer
// is begun, buf's transient data is staged and its opcode
// stream replayed against it on the Device Worker's own
// goroutine (never the caller's), and the result is committed
// in order with every other Submit/Run call. The returned
// channel receives the outcome exactly once.
//
// This mirrors spec.md §4.5's Device Worker loop: the job that
// runs on the worker "runs the transient-data pass, constructs
// an Executor, replays the buffer, then appends a GPU fence" -
// all of that happens inside the closure passed to
// Worker.SubmitBuild, not before it.
func (d *Device) Submit(buf *opcode.Buffer) <-chan error {
	frame := d.Worker.CurrentFrame()
	build := func() (driver.CmdBuffer, error) {
		cb, err := d.gpu.NewCmdBuffer()
		if err != nil {
			return nil, fmt.Errorf("device: NewCmdBuffer: %w", err)
		}
		if err := cb.Begin(); err != nil {
			return nil, fmt.Errorf("device: CmdBuffer.Begin: %w", err)
		}
		e := exec.New(d.gpu, d.Registry, d.Cache, d.descTables, d.samplers, d.Ring, cb, frame)
		if err := e.Execute(buf); err != nil {
			return nil, err
		}
		if err := cb.End(); err != nil {
			return nil, fmt.Errorf("device: CmdBuffer.End: %w", err)
		}
		return cb, nil
	}
	return d.Worker.SubmitBuild(build)
}

// AdvanceFrame closes the current frame's bookkeeping and
// installs a new one, then drains the Copy Queue once for the
// frame that just ended. It is meant to be called exactly once
// per rendered frame, after every Submit for that frame has
// been issued.
func (d *Device) AdvanceFrame() error {
	d.Worker.AdvanceFrame()
	return d.Copy.Update()
}

// Sync blocks until every outstanding Submit/Run has completed
// and its retirement callbacks have run.
func (d *Device) Sync() { d.Worker.Sync() }

// Close tears down the Device Worker, stops the Copy Queue and
// releases the Staging Ring. The Object Registry and Object
// Cache are left for the caller, since any live objects they
// still hold outlive Device construction boundaries in tests.
func (d *Device) Close() {
	d.Worker.Close()
	d.Copy.Stop()
	d.Ring.Destroy()
	log.Infof("closed")
}

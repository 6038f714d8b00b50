// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package worker implements the Device Worker and its Frame
// Record: a single-threaded job pump that serializes every
// command-buffer submission against one GPU, and the per-frame
// bookkeeping (pending fences, deletion list, completion
// callbacks) that lets the Object Registry reclaim slots only
// once the GPU is done with them.
package worker

import (
	"sync"

	"github.com/gviegas/forge/driver"
	"github.com/gviegas/forge/gpu/registry"
	"github.com/gviegas/forge/logctx"
)

var log = logctx.New("worker")

// deletion is one object awaiting finalization once the frame
// that last referenced it has signalled completion.
type deletion struct {
	handle registry.Handle
	obj    registry.Object
}

// FrameRecord tracks the bookkeeping for a single in-flight
// frame: how many command-buffer submissions were declared for
// it, how many have actually been recorded and committed so
// far, the objects queued for deletion once it retires, and the
// callbacks to run on retirement (e.g. returning temp buffers).
type FrameRecord struct {
	mu        sync.Mutex
	declared  int
	recorded  int
	deletions []deletion
	callbacks []func()
	done      bool
}

// Declare registers that n additional command buffers are
// expected to be recorded against this frame before it can be
// considered complete.
func (f *FrameRecord) Declare(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declared += n
}

// RecordOne marks that one of the declared command buffers has
// been recorded and committed. It returns true once every
// declared buffer has been recorded.
func (f *FrameRecord) RecordOne() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded++
	return f.recorded >= f.declared
}

// EnqueueDeletion implements registry.DeletionSink: it defers
// finalization of obj until this frame retires.
func (f *FrameRecord) EnqueueDeletion(h registry.Handle, obj registry.Object) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletions = append(f.deletions, deletion{h, obj})
}

// OnRetire registers fn to run once this frame's fence
// signals, e.g. to return a temp-buffer allocation to its pool.
func (f *FrameRecord) OnRetire(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, fn)
}

// retire runs fn finalizing every deletion against r, then runs
// every registered retirement callback. It must only be called
// once the frame's commands are confirmed complete by the GPU.
func (f *FrameRecord) retire(r *registry.Registry) {
	f.mu.Lock()
	dels := f.deletions
	cbs := f.callbacks
	f.deletions = nil
	f.callbacks = nil
	f.done = true
	f.mu.Unlock()

	for _, d := range dels {
		r.Unregister(d.handle, d.obj)
	}
	for _, cb := range cbs {
		cb()
	}
}

// job is one unit of work the Worker pumps: either a batch of
// command buffers to commit, or an arbitrary function to run
// on the worker's single logical thread (inline or goroutine,
// per Config.EnableWorkerThread).
type job struct {
	cb      []driver.CmdBuffer
	fn      func()
	buildFn func() (driver.CmdBuffer, error)
	done    chan<- error
	frame   *FrameRecord // the FrameRecord this job was declared against
}

// Worker is the Device Worker: the single owner of
// GPU.Commit calls, guaranteeing command buffers are submitted
// in the order jobs were queued regardless of how many
// goroutines call Submit/Run concurrently.
type Worker struct {
	gpu      driver.GPU
	registry *registry.Registry

	queue chan job

	mu     sync.Mutex
	frames []*FrameRecord
	cur    *FrameRecord

	threaded bool
	wg       sync.WaitGroup
	inlineMu sync.Mutex // serializes execute when jobs run inline
}

// New creates a Worker bound to gpu and r. If threaded is true
// (Config.EnableWorkerThread), jobs are pumped by a background
// goroutine; otherwise Submit/Run execute inline on the
// caller's goroutine, serialized by an internal mutex, which is
// useful for tests and for single-threaded embedding.
func New(gpu driver.GPU, r *registry.Registry, threaded bool) *Worker {
	w := &Worker{
		gpu:      gpu,
		registry: r,
		queue:    make(chan job, 64),
		threaded: threaded,
	}
	w.cur = &FrameRecord{}
	r.SetSink(w.cur)
	if threaded {
		w.wg.Add(1)
		go w.pump()
	}
	return w
}

func (w *Worker) pump() {
	defer w.wg.Done()
	for j := range w.queue {
		w.execute(j)
	}
}

func (w *Worker) execute(j job) {
	if !w.threaded {
		w.inlineMu.Lock()
		defer w.inlineMu.Unlock()
	}
	var err error
	switch {
	case j.fn != nil:
		j.fn()
	case j.buildFn != nil:
		// The opcode-stream translation (gpu/exec's transient-data
		// pass plus replay) runs here, on the worker's single
		// logical thread, exactly as spec.md §4.5 describes: the
		// job "runs the transient-data pass, constructs an
		// Executor, replays the buffer".
		cb, berr := j.buildFn()
		if berr != nil {
			err = berr
			break
		}
		ch := make(chan *driver.WorkItem, 1)
		wk := &driver.WorkItem{Work: []driver.CmdBuffer{cb}}
		if cerr := w.gpu.Commit(wk, ch); cerr != nil {
			err = cerr
		} else {
			err = (<-ch).Err
		}
	default:
		// Every Submit commits, even for an empty batch: the
		// caller is relying on the returned channel as an
		// ordering signal, not just on actual GPU work having
		// happened.
		ch := make(chan *driver.WorkItem, 1)
		wk := &driver.WorkItem{Work: j.cb}
		if cerr := w.gpu.Commit(wk, ch); cerr != nil {
			err = cerr
		} else {
			err = (<-ch).Err
		}
	}
	if j.frame.RecordOne() {
		j.frame.retire(w.registry)
	}
	if j.done != nil {
		j.done <- err
	}
}

// Submit enqueues a batch of already-recorded command buffers
// for commit. It returns a channel that receives the commit
// result exactly once.
func (w *Worker) Submit(cb []driver.CmdBuffer) <-chan error {
	w.mu.Lock()
	frame := w.cur
	frame.Declare(1)
	w.mu.Unlock()

	done := make(chan error, 1)
	j := job{cb: cb, done: done, frame: frame}
	if w.threaded {
		w.queue <- j
	} else {
		w.execute(j)
	}
	return done
}

// SubmitBuild enqueues buildFn to run on the worker's single
// logical thread and commit the command buffer it returns. Unlike
// Submit, translation from the producer's representation (an
// opcode.Buffer, say) into a driver.CmdBuffer happens here rather
// than on the caller's goroutine, so it is serialized against
// every other frame-mutating job exactly like a Run callback.
func (w *Worker) SubmitBuild(buildFn func() (driver.CmdBuffer, error)) <-chan error {
	w.mu.Lock()
	frame := w.cur
	frame.Declare(1)
	w.mu.Unlock()

	done := make(chan error, 1)
	j := job{buildFn: buildFn, done: done, frame: frame}
	if w.threaded {
		w.queue <- j
	} else {
		w.execute(j)
	}
	return done
}

// Run schedules fn to execute on the worker, serialized with
// every Submit call, and waits for it to complete. It is used
// for bookkeeping that must not race with command-buffer
// submission (e.g. installing a new FrameRecord).
func (w *Worker) Run(fn func()) {
	w.mu.Lock()
	frame := w.cur
	frame.Declare(1)
	w.mu.Unlock()

	done := make(chan error, 1)
	j := job{fn: fn, done: done, frame: frame}
	if w.threaded {
		w.queue <- j
	} else {
		w.execute(j)
	}
	<-done
}

// CurrentFrame returns the FrameRecord jobs are currently being
// declared against, for callers (e.g. gpu/device.Device) that
// need to pass it through as the exec.Frame a replay targets.
func (w *Worker) CurrentFrame() *FrameRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cur
}

// AdvanceFrame closes out the current FrameRecord and installs
// a fresh one, returning the record that was just closed so the
// caller can track its completion if needed.
func (w *Worker) AdvanceFrame() *FrameRecord {
	var closed *FrameRecord
	w.Run(func() {
		w.mu.Lock()
		closed = w.cur
		w.cur = &FrameRecord{}
		w.registry.SetSink(w.cur)
		w.frames = append(w.frames, closed)
		w.mu.Unlock()
	})
	return closed
}

// Sync blocks until every job submitted so far has completed
// and every retired frame's deletions have been finalized.
func (w *Worker) Sync() {
	w.Run(func() {})
}

// Close stops the background pump (if any) and waits for it to
// drain. No further Submit/Run calls are permitted afterward.
func (w *Worker) Close() {
	if w.threaded {
		close(w.queue)
		w.wg.Wait()
	}
	log.Infof("closed")
}

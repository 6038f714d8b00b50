// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package staging

import (
	"sync"

	"github.com/gviegas/forge/driver"
)

// jobState is a copy job's position in its lifecycle: a job
// moves pending -> processing -> committed -> signalled, or ends
// in cancelled when Stop drops it or its command buffer cannot
// be recorded, mirroring the state machine the engine's GL4
// backend drives its async copy thread with.
type jobState int

const (
	jobPending jobState = iota
	jobProcessing
	jobCommitted
	jobSignalled
	jobCancelled
)

// BufferCopy describes one buffer-to-buffer copy job: bytes
// already written into the Ring at From/FromOff, destined for
// To/ToOff.
type BufferCopy struct {
	From    driver.Buffer
	FromOff int64
	To      driver.Buffer
	ToOff   int64
	Size    int64
}

// ImageCopy describes one buffer-to-image copy job. Images
// with multiple mip levels or array layers are split into one
// job per (Level, Layer) pair, matching the per-(mip,slice)
// granularity the engine's copy thread uses so a failure in one
// slice doesn't force retrying the whole image.
type ImageCopy struct {
	Buf    driver.Buffer
	BufOff int64
	Stride [2]int64
	Img    driver.Image
	ImgOff driver.Off3D
	Layer  int
	Level  int
	Size   driver.Dim3D
}

// Job is a pending unit of work in the Copy Queue. Exactly one
// of Buffer/Image is set.
type Job struct {
	Buffer *BufferCopy
	Image  *ImageCopy
	Done   chan<- error // signalled exactly once, when the job reaches jobSignalled or jobCancelled

	state jobState
}

// CopyQueue is the Copy Queue: a FIFO of pending copy jobs that
// each Update call drains, on the caller's goroutine, into one
// command buffer, commits, and signals back to callers once the
// GPU confirms execution.
type CopyQueue struct {
	gpu driver.GPU

	mu      sync.Mutex
	pending []*Job
	stopped bool
}

// NewCopyQueue creates an empty CopyQueue.
func NewCopyQueue(gpu driver.GPU) *CopyQueue {
	return &CopyQueue{gpu: gpu}
}

// Schedule enqueues job, to be processed by a future Update
// call. It returns false if the queue has been stopped.
func (q *CopyQueue) Schedule(job *Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return false
	}
	job.state = jobPending
	q.pending = append(q.pending, job)
	return true
}

// Stop cancels every job still pending (not yet taken by an
// Update call), signalling
// each one's Done channel, and prevents further scheduling.
func (q *CopyQueue) Stop() {
	q.mu.Lock()
	jobs := q.pending
	q.pending = nil
	q.stopped = true
	q.mu.Unlock()

	for _, j := range jobs {
		j.state = jobCancelled
		if j.Done != nil {
			j.Done <- nil
		}
	}
}

// Update drains every job currently pending, recording their
// copy commands into a single command buffer, committing it,
// and blocking until the GPU confirms completion before
// signalling each job's Done channel. Device.AdvanceFrame calls
// it once per frame (see gpu/device).
func (q *CopyQueue) Update() error {
	q.mu.Lock()
	jobs := q.pending
	q.pending = nil
	q.mu.Unlock()

	if len(jobs) == 0 {
		return nil
	}

	cancel := func(err error) error {
		for _, j := range jobs {
			j.state = jobCancelled
			if j.Done != nil {
				j.Done <- err
			}
		}
		return err
	}
	cb, err := q.gpu.NewCmdBuffer()
	if err != nil {
		return cancel(err)
	}
	defer cb.Destroy()

	if err := cb.Begin(); err != nil {
		return cancel(err)
	}
	cb.BeginBlit(false)
	for _, j := range jobs {
		j.state = jobProcessing
		switch {
		case j.Buffer != nil:
			cb.CopyBuffer(&driver.BufferCopy{
				From:    j.Buffer.From,
				FromOff: j.Buffer.FromOff,
				To:      j.Buffer.To,
				ToOff:   j.Buffer.ToOff,
				Size:    j.Buffer.Size,
			})
		case j.Image != nil:
			cb.CopyBufToImg(&driver.BufImgCopy{
				Buf:    j.Image.Buf,
				BufOff: j.Image.BufOff,
				Stride: j.Image.Stride,
				Img:    j.Image.Img,
				ImgOff: j.Image.ImgOff,
				Layer:  j.Image.Layer,
				Level:  j.Image.Level,
				Size:   j.Image.Size,
			})
		}
	}
	cb.EndBlit()
	if err := cb.End(); err != nil {
		for _, j := range jobs {
			j.state = jobCancelled
			if j.Done != nil {
				j.Done <- err
			}
		}
		return err
	}
	for _, j := range jobs {
		j.state = jobCommitted
	}

	ch := make(chan *driver.WorkItem, 1)
	wk := &driver.WorkItem{Work: []driver.CmdBuffer{cb}}
	if cerr := q.gpu.Commit(wk, ch); cerr != nil {
		err = cerr
	} else {
		err = (<-ch).Err
	}

	for _, j := range jobs {
		j.state = jobSignalled
		if j.Done != nil {
			j.Done <- err
		}
	}
	return err
}

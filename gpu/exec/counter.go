// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package exec

import "sync"

// counterBridge stands in for the engine's fiber-scheduler
// counters: SignalCounter/WaitCounter let one Executor's replay
// (running on its own goroutine, the idiomatic substitute for a
// fiber) block until another Executor recording concurrently
// has reached a given point, without the two command buffers
// needing to know about each other's driver.CmdBuffer.
type counterBridge struct {
	mu    sync.Mutex
	cond  *sync.Cond
	value map[int]int
}

func newCounterBridge() *counterBridge {
	b := &counterBridge{value: make(map[int]int)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *counterBridge) signal(counter int) {
	b.mu.Lock()
	b.value[counter]++
	b.mu.Unlock()
	b.cond.Broadcast()
}

func (b *counterBridge) wait(counter, target int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.value[counter] < target {
		b.cond.Wait()
	}
}

// counters is the process-wide bridge. Counter ids are scoped
// by the opcode recorder, not by Executor instance, so that
// producer and consumer command buffers recorded by different
// Executors rendezvous correctly.
var counters = newCounterBridge()

func signalCounter(counter int) { counters.signal(counter) }
func waitCounter(counter, target int) { counters.wait(counter, target) }

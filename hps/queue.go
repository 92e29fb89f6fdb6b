// Copyright 2026 The Alt Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package hps

import (
	"container/heap"
	"sync/atomic"
	"time"
)

const (
	waiterWaiting int32 = iota
	waiterWoken
	waiterCanceled
)

// queuedRequest represents a parked acquirer in one of the two per-class
// priority queues. It is adapted from the teacher's sync/semaphore.request:
// a tri-state atomic guards the race between cancellation and release, and
// an unbuffered channel (here, a closed-once "ready" channel) is the
// one-shot wake signal.
type queuedRequest struct {
	priorityScore float64
	enqueueTime   float64   // seconds since the semaphore's epoch; negated for LIFO RT
	enqueueAt     time.Time // real clock reading, used for wait/aging calculations
	class         Class     // class originally requested at enqueue
	promoted      bool      // true once migrated from BE into the RT queue

	ready chan struct{}
	state atomic.Int32

	index int // heap index, maintained by priorityQueue
}

// tryWake attempts to transition the request from waiting to woken. Returns
// true if this call won the race (the caller should close req.ready).
func (r *queuedRequest) tryWake() bool {
	return r.state.CompareAndSwap(waiterWaiting, waiterWoken)
}

// tryCancel attempts to transition the request from waiting to canceled.
// Returns true if this call won the race against a concurrent release.
func (r *queuedRequest) tryCancel() bool {
	return r.state.CompareAndSwap(waiterWaiting, waiterCanceled)
}

func (r *queuedRequest) canceled() bool {
	return r.state.Load() == waiterCanceled
}

// priorityQueue implements heap.Interface, ordered by
// (priorityScore ASC, enqueueTime ASC), matching §3's QueuedRequest
// ordering key exactly.
type priorityQueue []*queuedRequest

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].priorityScore != pq[j].priorityScore {
		return pq[i].priorityScore < pq[j].priorityScore
	}
	return pq[i].enqueueTime < pq[j].enqueueTime
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	n := len(*pq)
	req := x.(*queuedRequest)
	req.index = n
	*pq = append(*pq, req)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	req := old[n-1]
	old[n-1] = nil
	req.index = -1
	*pq = old[0 : n-1]
	return req
}

// popNextLive pops and discards canceled/woken entries until it finds one
// it can successfully wake, or the queue is empty. This is the "pop whose
// entry is cancelled/done is discarded and the next entry tried" discipline
// from §4.1 that must be preserved by any release path.
func popNextLive(pq *priorityQueue) *queuedRequest {
	for pq.Len() > 0 {
		req := heap.Pop(pq).(*queuedRequest)
		if req.tryWake() {
			return req
		}
		// Already canceled (or, defensively, already woken): discard and
		// try the next entry. A cancelled QueuedRequest is never selected.
	}
	return nil
}

// purgeDone rebuilds queue in place, dropping any entry that is no longer
// waiting (canceled or already woken). Returns the number purged.
func purgeDone(pq *priorityQueue) int {
	live := make(priorityQueue, 0, pq.Len())
	purged := 0
	for _, req := range *pq {
		if req.state.Load() != waiterWaiting {
			purged++
			continue
		}
		req.index = len(live)
		live = append(live, req)
	}
	*pq = live
	heap.Init(pq)
	return purged
}

// Copyright 2026 The Alt Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package hps

import (
	"container/heap"
	"testing"
)

func newWaitingRequest(score, enqueueTime float64) *queuedRequest {
	return &queuedRequest{priorityScore: score, enqueueTime: enqueueTime, ready: make(chan struct{})}
}

func TestPriorityQueue_OrdersByScoreThenEnqueueTime(t *testing.T) {
	pq := &priorityQueue{}
	heap.Init(pq)

	a := newWaitingRequest(1.0, 5)
	b := newWaitingRequest(0.0, 10) // lower score wins despite later arrival
	c := newWaitingRequest(0.0, 2)  // same score as b, earlier arrival wins

	heap.Push(pq, a)
	heap.Push(pq, b)
	heap.Push(pq, c)

	first := heap.Pop(pq).(*queuedRequest)
	second := heap.Pop(pq).(*queuedRequest)
	third := heap.Pop(pq).(*queuedRequest)

	if first != c || second != b || third != a {
		t.Fatalf("pop order = %v, %v, %v; want c, b, a", first, second, third)
	}
}

func TestPopNextLive_SkipsCanceledEntries(t *testing.T) {
	pq := &priorityQueue{}
	heap.Init(pq)

	canceled := newWaitingRequest(0.0, 1)
	canceled.state.Store(waiterCanceled)
	live := newWaitingRequest(0.0, 2)

	heap.Push(pq, canceled)
	heap.Push(pq, live)

	got := popNextLive(pq)
	if got != live {
		t.Fatalf("popNextLive returned %v, want the live entry", got)
	}
	if got.state.Load() != waiterWoken {
		t.Fatalf("popNextLive did not mark the winner woken")
	}
	if pq.Len() != 0 {
		t.Fatalf("queue length = %d, want 0 (canceled entry discarded too)", pq.Len())
	}
}

func TestPopNextLive_EmptyQueue(t *testing.T) {
	pq := &priorityQueue{}
	if got := popNextLive(pq); got != nil {
		t.Fatalf("popNextLive on empty queue = %v, want nil", got)
	}
}

func TestPurgeDone_DropsNonWaitingEntries(t *testing.T) {
	pq := &priorityQueue{}
	heap.Init(pq)

	waiting := newWaitingRequest(0.0, 1)
	woken := newWaitingRequest(0.0, 2)
	woken.state.Store(waiterWoken)
	canceled := newWaitingRequest(0.0, 3)
	canceled.state.Store(waiterCanceled)

	heap.Push(pq, waiting)
	heap.Push(pq, woken)
	heap.Push(pq, canceled)

	purged := purgeDone(pq)
	if purged != 2 {
		t.Fatalf("purgeDone returned %d, want 2", purged)
	}
	if pq.Len() != 1 || (*pq)[0] != waiting {
		t.Fatalf("queue after purge = %v, want only the waiting entry", *pq)
	}
}

func TestQueuedRequest_CancelWakeRace(t *testing.T) {
	req := newWaitingRequest(0.0, 0)

	if !req.tryWake() {
		t.Fatal("first tryWake should win")
	}
	if req.tryCancel() {
		t.Fatal("tryCancel should lose once already woken")
	}

	req2 := newWaitingRequest(0.0, 0)
	if !req2.tryCancel() {
		t.Fatal("first tryCancel should win")
	}
	if req2.tryWake() {
		t.Fatal("tryWake should lose once already canceled")
	}
	if !req2.canceled() {
		t.Fatal("canceled() should report true")
	}
}

// Copyright 2026 The Alt Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package hps_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kaikei-e/alt-hps/hps"
)

func mustAcquire(t *testing.T, s *hps.Semaphore, ctx context.Context, class hps.Class) hps.AcquireResult {
	t.Helper()
	res, err := s.Acquire(ctx, class)
	if err != nil {
		t.Fatalf("Acquire(%s) failed: %v", class, err)
	}
	return res
}

// Scenario 1: basic reservation. total=2, rt_reserved=1: one RT and one BE
// acquire immediately, a third request of either class parks.
func TestScenario_BasicReservation(t *testing.T) {
	s, err := hps.New(hps.Config{TotalSlots: 2, RTReservedSlots: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := t.Context()

	rt := mustAcquire(t, s, ctx, hps.RT)
	if rt.WaitSeconds != 0 {
		t.Fatalf("RT wait = %v, want 0", rt.WaitSeconds)
	}
	be := mustAcquire(t, s, ctx, hps.BE)
	if be.WaitSeconds != 0 {
		t.Fatalf("BE wait = %v, want 0", be.WaitSeconds)
	}

	done := make(chan hps.AcquireResult, 1)
	go func() {
		res, err := s.Acquire(ctx, hps.BE)
		if err != nil {
			t.Errorf("third Acquire failed: %v", err)
			return
		}
		done <- res
	}()

	waitForQueueDepth(t, s, 1)

	status := s.QueueStatus()
	if status.Available != 0 {
		t.Fatalf("Available = %d, want 0", status.Available)
	}

	s.Release(ctx, hps.BE, be.SlotID)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("third request never granted after release")
	}
	s.Release(ctx, hps.RT, rt.SlotID)
}

// Scenario 2: RT preferred on release. total=1, rt_reserved=1: a queued RT
// waiter is woken before a queued BE waiter that arrived first.
func TestScenario_RTPreferredOnRelease(t *testing.T) {
	s, err := hps.New(hps.Config{TotalSlots: 1, RTReservedSlots: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := t.Context()

	holder := mustAcquire(t, s, ctx, hps.RT)

	order := make(chan string, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		res, err := s.Acquire(ctx, hps.BE)
		if err != nil {
			t.Errorf("BE acquire failed: %v", err)
			return
		}
		order <- "be"
		s.Release(ctx, hps.BE, res.SlotID)
	}()
	waitForQueueDepth(t, s, 1)
	go func() {
		defer wg.Done()
		res, err := s.Acquire(ctx, hps.RT)
		if err != nil {
			t.Errorf("RT acquire failed: %v", err)
			return
		}
		order <- "rt"
		s.Release(ctx, hps.RT, res.SlotID)
	}()
	waitForQueueDepth(t, s, 2)

	s.Release(ctx, hps.RT, holder.SlotID)
	wg.Wait()
	close(order)

	var got []string
	for v := range order {
		got = append(got, v)
	}
	want := []string{"rt", "be"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("wake order mismatch (-want +got):\n%s", diff)
	}
}

// Scenario 3: aging and promotion. A BE waiter that has aged past the
// promotion threshold is woken ahead of a freshly-queued RT waiter that
// arrived later, because aging migrated it into the RT queue with an
// earlier ordering key.
func TestScenario_AgingPromotion(t *testing.T) {
	clk := newManualClock()
	s, err := hps.New(hps.Config{
		TotalSlots:         1,
		RTReservedSlots:    1,
		AgingThreshold:     20 * time.Millisecond,
		AgingBoost:         60.0,
		PromotionThreshold: 50 * time.Millisecond,
		Clock:              clk,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := t.Context()

	holder := mustAcquire(t, s, ctx, hps.RT)

	beDone := make(chan struct{})
	go func() {
		res, err := s.Acquire(ctx, hps.BE)
		if err != nil {
			t.Errorf("BE acquire failed: %v", err)
			return
		}
		close(beDone)
		s.Release(ctx, hps.BE, res.SlotID)
	}()
	waitForQueueDepth(t, s, 1)

	clk.Advance(100 * time.Millisecond) // past promotion threshold

	rtDone := make(chan struct{})
	go func() {
		res, err := s.Acquire(ctx, hps.RT)
		if err != nil {
			t.Errorf("RT acquire failed: %v", err)
			return
		}
		s.Release(ctx, hps.RT, res.SlotID)
		close(rtDone)
	}()
	waitForQueueDepth(t, s, 2)

	s.Release(ctx, hps.RT, holder.SlotID)

	select {
	case <-beDone:
	case <-time.After(2 * time.Second):
		t.Fatal("promoted BE request never woken")
	}
	select {
	case <-rtDone:
	case <-time.After(2 * time.Second):
		t.Fatal("RT request never woken")
	}
}

// Scenario 4 (guaranteed bandwidth): with a ratio of 3, the third
// consecutive RT release that occurs while a BE request is queued forces
// that BE request to wake ahead of any further-queued RT waiters, and the
// counter resets.
//
// This traces the exact mechanics of Release's force-BE check
// (§4.5): the releasing slot's class increments the counter, so the
// initial RT holder's own release counts as the first of the three. The
// resulting wake order is R0, R1, B, R2, R3, R4.
func TestScenario_GuaranteedBandwidth(t *testing.T) {
	s, err := hps.New(hps.Config{
		TotalSlots:        1,
		RTReservedSlots:   1,
		GuaranteedBERatio: 3,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := t.Context()

	holder := mustAcquire(t, s, ctx, hps.RT)

	order := make(chan string, 6)
	spawn := func(label string, class hps.Class) {
		go func() {
			res, err := s.Acquire(ctx, class)
			if err != nil {
				t.Errorf("%s acquire failed: %v", label, err)
				return
			}
			order <- label
			s.Release(ctx, class, res.SlotID)
		}()
	}

	spawn("b", hps.BE)
	waitForQueueDepth(t, s, 1)
	for i, label := range []string{"r0", "r1", "r2", "r3", "r4"} {
		spawn(label, hps.RT)
		waitForQueueDepth(t, s, 2+i)
	}

	s.Release(ctx, hps.RT, holder.SlotID)

	var got []string
	for i := 0; i < 6; i++ {
		select {
		case v := <-order:
			got = append(got, v)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for wake %d, got so far: %v", i, got)
		}
	}

	want := []string{"r0", "r1", "b", "r2", "r3", "r4"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("wake order mismatch (-want +got):\n%s", diff)
	}
}

// Scenario 5: preemption fires but RT still queues. An RT arrival that
// finds no slot grantable signals the oldest active BE request's
// cancellation cause, but still parks itself rather than assuming the BE
// work exits promptly.
func TestScenario_PreemptionFiresButRTStillQueues(t *testing.T) {
	s, err := hps.New(hps.Config{
		TotalSlots:        2,
		RTReservedSlots:   1,
		PreemptionEnabled: true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := t.Context()

	rtHolder := mustAcquire(t, s, ctx, hps.RT)

	beCtx, cancel := context.WithCancelCause(ctx)
	be := mustAcquire(t, s, ctx, hps.BE)
	s.Register("be-task", cancel, hps.BE)

	rtDone := make(chan struct{})
	go func() {
		res, err := s.Acquire(ctx, hps.RT)
		if err != nil {
			t.Errorf("second RT acquire failed: %v", err)
			return
		}
		s.Release(ctx, hps.RT, res.SlotID)
		close(rtDone)
	}()

	waitForQueueDepth(t, s, 1)

	select {
	case <-beCtx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("BE request was never preempted")
	}
	if cause := context.Cause(beCtx); cause != hps.ErrPreempted {
		t.Fatalf("cancellation cause = %v, want ErrPreempted", cause)
	}

	s.Unregister("be-task")
	s.Release(ctx, hps.BE, be.SlotID)
	s.Release(ctx, hps.RT, rtHolder.SlotID)

	select {
	case <-rtDone:
	case <-time.After(2 * time.Second):
		t.Fatal("parked RT request never granted after preempted BE released")
	}
}

// Scenario 6: cancellation purges a parked waiter without leaking its slot
// or disturbing FIFO order of the survivors.
func TestScenario_CancellationPurge(t *testing.T) {
	s, err := hps.New(hps.Config{TotalSlots: 1, RTReservedSlots: 1, RTSchedulingMode: hps.FIFO})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := t.Context()

	holder := mustAcquire(t, s, ctx, hps.RT)

	aCtx := ctx
	aDone := make(chan struct{})
	go func() {
		res, err := s.Acquire(aCtx, hps.RT)
		if err != nil {
			t.Errorf("A acquire failed: %v", err)
			return
		}
		s.Release(ctx, hps.RT, res.SlotID)
		close(aDone)
	}()
	waitForQueueDepth(t, s, 1)

	bCtx, bCancel := context.WithCancel(ctx)
	bErr := make(chan error, 1)
	go func() {
		_, err := s.Acquire(bCtx, hps.RT)
		bErr <- err
	}()
	waitForQueueDepth(t, s, 2)

	cDone := make(chan struct{})
	go func() {
		res, err := s.Acquire(ctx, hps.RT)
		if err != nil {
			t.Errorf("C acquire failed: %v", err)
			return
		}
		s.Release(ctx, hps.RT, res.SlotID)
		close(cDone)
	}()
	waitForQueueDepth(t, s, 3)

	bCancel()
	select {
	case err := <-bErr:
		if err == nil {
			t.Fatal("B's Acquire returned nil error after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("B's Acquire never observed cancellation")
	}

	s.Release(ctx, hps.RT, holder.SlotID)

	select {
	case <-aDone:
	case <-time.After(2 * time.Second):
		t.Fatal("A never woken")
	}
	select {
	case <-cDone:
	case <-time.After(2 * time.Second):
		t.Fatal("C never woken")
	}

	status := s.QueueStatus()
	if status.RTQueue != 0 {
		t.Fatalf("RTQueue = %d, want 0 after all waiters resolved", status.RTQueue)
	}
}

func TestQueueFull(t *testing.T) {
	s, err := hps.New(hps.Config{TotalSlots: 1, RTReservedSlots: 1, MaxQueueDepth: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := t.Context()

	holder := mustAcquire(t, s, ctx, hps.RT)

	go func() {
		// fills the one permitted queue slot; released at test end.
		s.Acquire(ctx, hps.RT)
	}()
	waitForQueueDepth(t, s, 1)

	if _, err := s.Acquire(ctx, hps.BE); err != hps.ErrQueueFull {
		t.Fatalf("Acquire over max_queue_depth = %v, want ErrQueueFull", err)
	}

	s.Release(ctx, hps.RT, holder.SlotID)
}

func TestLeakDetection(t *testing.T) {
	clk := newManualClock()
	s, err := hps.New(hps.Config{
		TotalSlots:      2,
		RTReservedSlots: 1,
		LeakThreshold:   time.Second,
		Clock:           clk,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := t.Context()

	held := mustAcquire(t, s, ctx, hps.RT)

	if leaks := s.CheckLeaks(); len(leaks) != 0 {
		t.Fatalf("CheckLeaks immediately after acquire = %v, want none", leaks)
	}

	clk.Advance(2 * time.Second)
	leaks := s.CheckLeaks()
	if len(leaks) != 1 || leaks[0].SlotID != held.SlotID {
		t.Fatalf("CheckLeaks after threshold = %+v, want one entry for slot %d", leaks, held.SlotID)
	}

	s.Release(ctx, hps.RT, held.SlotID)
	if leaks := s.CheckLeaks(); len(leaks) != 0 {
		t.Fatalf("CheckLeaks after release = %v, want none", leaks)
	}
}

func TestRTLIFOOrdering(t *testing.T) {
	s, err := hps.New(hps.Config{TotalSlots: 1, RTReservedSlots: 1, RTSchedulingMode: hps.LIFO})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := t.Context()

	holder := mustAcquire(t, s, ctx, hps.RT)

	order := make(chan string, 2)
	go func() {
		res, _ := s.Acquire(ctx, hps.RT)
		order <- "first"
		s.Release(ctx, hps.RT, res.SlotID)
	}()
	waitForQueueDepth(t, s, 1)
	go func() {
		res, _ := s.Acquire(ctx, hps.RT)
		order <- "second"
		s.Release(ctx, hps.RT, res.SlotID)
	}()
	waitForQueueDepth(t, s, 2)

	s.Release(ctx, hps.RT, holder.SlotID)

	got := []string{<-order, <-order}
	want := []string{"second", "first"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("LIFO wake order mismatch (-want +got):\n%s", diff)
	}
}

// TestCapacityInvariant stresses concurrent Acquire/Release across both
// classes and asserts acquired+available never exceeds total_slots and
// never goes negative, under the property from §8 ("Capacity").
func TestCapacityInvariant(t *testing.T) {
	s, err := hps.New(hps.Config{TotalSlots: 3, RTReservedSlots: 1, GuaranteedBERatio: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := t.Context()

	const workers = 12
	const iterations = 20
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		class := hps.BE
		if i%2 == 0 {
			class = hps.RT
		}
		go func(class hps.Class) {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				res, err := s.Acquire(ctx, class)
				if err != nil {
					continue
				}
				status := s.QueueStatus()
				if status.Available < 0 || status.Available+status.AcquiredSlots > status.TotalSlots {
					t.Errorf("invariant violated: available=%d acquired=%d total=%d",
						status.Available, status.AcquiredSlots, status.TotalSlots)
				}
				s.Release(ctx, class, res.SlotID)
			}
		}(class)
	}
	wg.Wait()

	final := s.QueueStatus()
	if final.AcquiredSlots != 0 {
		t.Fatalf("AcquiredSlots after all released = %d, want 0", final.AcquiredSlots)
	}
	if final.Available != final.TotalSlots {
		t.Fatalf("Available after all released = %d, want %d", final.Available, final.TotalSlots)
	}
}

func waitForQueueDepth(t *testing.T, s *hps.Semaphore, depth int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		status := s.QueueStatus()
		if status.RTQueue+status.BEQueue >= depth {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for combined queue depth >= %d", depth)
}

// Copyright 2026 The Alt Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package hps

import (
	"container/heap"
	"context"
	"time"

	"github.com/kaikei-e/alt-hps/internal/clog"
	"github.com/kaikei-e/alt-hps/internal/tracing"
)

// AcquireResult is returned by a successful Acquire.
type AcquireResult struct {
	// WaitSeconds is the time the caller was parked before being granted a
	// slot (0 if granted immediately).
	WaitSeconds float64
	// SlotID identifies the held slot; pass it back to Release.
	SlotID int64
}

// Acquire gates admission for class, returning once a slot is granted.
// It blocks (parking the caller on the appropriate priority queue) if no
// slot is immediately grantable, and fails with ErrQueueFull if
// Config.MaxQueueDepth is reached with nothing immediately grantable.
//
// If ctx is canceled while parked, Acquire returns ctx.Err() (or
// context.Cause(ctx), e.g. ErrPreempted's sibling concerns do not apply
// here — preemption targets active, not queued, requests) and the
// request is purged from its queue; no slot is leaked.
func (s *Semaphore) Acquire(ctx context.Context, class Class) (AcquireResult, error) {
	ctx, waitSpan := tracing.Start(ctx, s.cfg.Tracer, "hps.wait")
	waitSpan.SetAttrString("class", class.String())
	defer waitSpan.End(nil)

	start := s.cfg.Clock.Now()

	s.mu.Lock()

	if s.cfg.MaxQueueDepth > 0 {
		depth := s.rtQueue.Len() + s.beQueue.Len()
		if depth >= s.cfg.MaxQueueDepth && !s.immediatelyGrantableLocked(class) {
			s.mu.Unlock()
			clog.Warningf(ctx, "hps[%s]: queue full (depth=%d max=%d class=%s)",
				s.cfg.Name, depth, s.cfg.MaxQueueDepth, class)
			return AcquireResult{}, ErrQueueFull
		}
	}

	if slotID, tag, ok := s.tryImmediateGrantLocked(class, start); ok {
		s.mu.Unlock()
		clog.Infof(ctx, "hps[%s]: %s acquired immediately (%s)", s.cfg.Name, class, tag)
		if s.metrics != nil {
			s.metrics.recordWait(ctx, class, 0)
		}
		return AcquireResult{WaitSeconds: 0, SlotID: slotID}, nil
	}

	// RT-on-BE preemption trigger (§4.1.f): does not free a slot
	// synchronously, it only asks the running BE work to exit. The RT
	// caller still proceeds to queue below regardless of the outcome.
	if class == RT && s.cfg.PreemptionEnabled && s.hasPreemptableBE() {
		s.preemptOldestBE(ctx)
	}

	req := s.enqueueLocked(class, start)
	depth := s.rtQueue.Len() + s.beQueue.Len()
	s.mu.Unlock()
	clog.Infof(ctx, "hps[%s]: %s request queued (combined depth=%d score=%.3f)",
		s.cfg.Name, class, depth, req.priorityScore)

	select {
	case <-req.ready:
		return s.finishWake(ctx, class, req, start, waitSpan)
	case <-ctx.Done():
		cause := context.Cause(ctx)
		if !req.tryCancel() {
			// Lost the race: release already woke this request. Honor the
			// grant so the slot is never silently dropped (§3 invariant 4
			// only forbids granting to an *already*-canceled waiter, not
			// un-granting a race winner).
			<-req.ready
			return s.finishWake(ctx, class, req, start, waitSpan)
		}
		s.mu.Lock()
		if req.index != -1 {
			heap.Remove(s.currentQueueFor(req), req.index)
		}
		s.mu.Unlock()
		clog.Infof(ctx, "hps[%s]: %s request canceled while queued: %v", s.cfg.Name, class, cause)
		return AcquireResult{}, cause
	}
}

func (s *Semaphore) finishWake(ctx context.Context, class Class, req *queuedRequest, start time.Time, waitSpan *tracing.Span) (AcquireResult, error) {
	now := s.cfg.Clock.Now()
	wait := now.Sub(start)
	waitSpan.SetAttr("wait_ms", int(wait.Milliseconds()))

	grantedClass := class
	if req.promoted {
		grantedClass = RT
	}

	s.mu.Lock()
	s.lastWaitSecond = wait.Seconds()
	slotID := s.trackAcquire(grantedClass, "queued", now)
	s.mu.Unlock()

	if wait > s.cfg.SlowWaitWarnThreshold {
		clog.Warningf(ctx, "hps[%s]: long queue wait for %s: %s", s.cfg.Name, class, wait)
	}
	if s.metrics != nil {
		s.metrics.recordWait(ctx, class, wait.Seconds())
	}
	return AcquireResult{WaitSeconds: wait.Seconds(), SlotID: slotID}, nil
}

// immediatelyGrantableLocked reports whether class could be granted a slot
// right now, including the cross-class fallbacks (§4.1.c/e). Must be called
// under s.mu.
func (s *Semaphore) immediatelyGrantableLocked(class Class) bool {
	if class == RT {
		return s.rtAvailable > 0 || (s.cfg.RTReservedSlots == 0 && s.beAvailable > 0)
	}
	return s.beAvailable > 0 || (s.beSlots == 0 && s.rtAvailable > 0)
}

// tryImmediateGrantLocked attempts the fast paths of §4.1.b-e. On success
// it decrements the appropriate pool, tracks the held slot, and returns its
// id and diagnostic context tag. Must be called under s.mu.
func (s *Semaphore) tryImmediateGrantLocked(class Class, now time.Time) (slotID int64, tag string, ok bool) {
	if class == RT {
		if s.rtAvailable > 0 {
			s.rtAvailable--
			return s.trackAcquire(RT, "rt_immediate", now), "rt_immediate", true
		}
		if s.cfg.RTReservedSlots == 0 && s.beAvailable > 0 {
			s.beAvailable--
			return s.trackAcquire(BE, "hp_be_fallback", now), "hp_be_fallback", true
		}
		return 0, "", false
	}
	if s.beAvailable > 0 {
		s.beAvailable--
		return s.trackAcquire(BE, "be_immediate", now), "be_immediate", true
	}
	if s.beSlots == 0 && s.rtAvailable > 0 {
		s.rtAvailable--
		return s.trackAcquire(RT, "lp_rt_fallback", now), "lp_rt_fallback", true
	}
	return 0, "", false
}

// enqueueLocked computes the request's priority score and ordering key and
// pushes it onto the matching queue. Must be called under s.mu.
func (s *Semaphore) enqueueLocked(class Class, start time.Time) *queuedRequest {
	score, _ := s.computeScore(class, 0)
	key := start.Sub(s.epoch).Seconds()
	if class == RT && s.cfg.RTSchedulingMode == LIFO {
		key = -key
	}
	req := &queuedRequest{
		priorityScore: score,
		enqueueTime:   key,
		enqueueAt:     start,
		class:         class,
		ready:         make(chan struct{}),
	}
	heap.Push(s.queueFor(class), req)
	return req
}

func (s *Semaphore) queueFor(class Class) *priorityQueue {
	if class == RT {
		return &s.rtQueue
	}
	return &s.beQueue
}

// currentQueueFor returns the queue req actually resides in right now,
// accounting for aging having promoted it from BE into RT since enqueue.
func (s *Semaphore) currentQueueFor(req *queuedRequest) *priorityQueue {
	if req.promoted {
		return &s.rtQueue
	}
	return s.queueFor(req.class)
}

// Release must be called exactly once per successful Acquire. class is the
// class originally requested (per this spec's resolution of the "class
// requested vs. class granted" open question, §9); the accountant's own
// record of the class actually granted drives which pool the slot returns
// to. slotID should be the id returned by Acquire; passing 0 falls back to
// releasing the oldest held slot matching class, for callers that didn't
// keep it.
func (s *Semaphore) Release(ctx context.Context, class Class, slotID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grantedClass := s.untrackLocked(ctx, class, slotID)

	now := s.cfg.Clock.Now()
	promoted, purged := s.applyAging(now)
	if promoted > 0 {
		clog.Warningf(ctx, "hps[%s]: promoted %d BE request(s) to RT after long wait", s.cfg.Name, promoted)
		if s.metrics != nil {
			s.metrics.recordPromotion(ctx, promoted)
		}
	}
	if purged > 0 {
		clog.Infof(ctx, "hps[%s]: purged %d canceled request(s) from BE queue during aging", s.cfg.Name, purged)
	}

	forceBE := false
	if s.cfg.GuaranteedBERatio > 0 && s.beQueue.Len() > 0 {
		if class == RT {
			s.consecutiveRT++
			if s.consecutiveRT >= s.cfg.GuaranteedBERatio {
				forceBE = true
				if s.metrics != nil {
					s.metrics.recordGuaranteedBandwidth(ctx)
				}
			}
		}
	}

	var woken *queuedRequest
	if forceBE {
		woken = popNextLive(&s.beQueue)
		if woken != nil {
			s.consecutiveRT = 0
		}
	}
	if woken == nil {
		woken = popNextLive(&s.rtQueue)
	}
	if woken == nil {
		woken = popNextLive(&s.beQueue)
		if woken != nil {
			s.consecutiveRT = 0
		}
	}

	if woken != nil {
		close(woken.ready)
		clog.Infof(ctx, "hps[%s]: woke %s waiter on release of %s slot", s.cfg.Name, woken.class, grantedClass)
		return
	}

	switch grantedClass {
	case RT:
		s.rtAvailable = min(s.rtAvailable+1, s.cfg.RTReservedSlots)
	case BE:
		s.beAvailable = min(s.beAvailable+1, s.beSlots)
	}
}

// untrackLocked removes the held-slot record and returns the class it was
// actually granted as (which may differ from class on a fallback path).
// Must be called under s.mu.
func (s *Semaphore) untrackLocked(ctx context.Context, class Class, slotID int64) Class {
	if slotID != 0 {
		slot, ok := s.trackRelease(slotID)
		if ok {
			return slot.Class
		}
		clog.Warningf(ctx, "hps[%s]: release called with unknown slot-id %d", s.cfg.Name, slotID)
		return class
	}
	slot, ok := s.trackReleaseOldestMatch(class)
	if !ok {
		clog.Warningf(ctx, "hps[%s]: release called with no slot-id and no matching held slot for class %s", s.cfg.Name, class)
		return class
	}
	return slot.Class
}

// Copyright 2026 The Alt Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package hps

import (
	"container/heap"
	"time"
)

// scoreState classifies where a BE request sits on the aging curve. It does
// not affect the numeric score; applyAging uses scorePromoted to decide
// which entries move into the RT queue.
type scoreState int

const (
	scoreFresh scoreState = iota
	scoreAging
	scorePromoted
)

// computeScore implements §4.3's priority score formula. Lower is better.
// RT requests always score 0.0. BE requests score 1.0 while fresh, decay
// toward (but never below, pre-promotion) 0.1 once aging kicks in, and hit
// 0.0 once the wait reaches the promotion threshold (promotion itself, i.e.
// moving the request into the RT queue, is the caller's responsibility). A
// zero PromotionThreshold disables promotion.
func (s *Semaphore) computeScore(class Class, wait time.Duration) (float64, scoreState) {
	if class == RT {
		return 0.0, scoreFresh
	}
	if s.cfg.PromotionThreshold > 0 && wait >= s.cfg.PromotionThreshold {
		return 0.0, scorePromoted
	}
	if wait < s.cfg.AgingThreshold {
		return 1.0, scoreFresh
	}
	excess := (wait - s.cfg.AgingThreshold).Seconds()
	score := 1.0 - excess*s.cfg.AgingBoost/60.0
	if score < 0.1 {
		score = 0.1 // floor preserves RT primacy over merely-aged BE
	}
	return score, scoreAging
}

// applyAging recomputes BE queue scores and migrates sufficiently-aged
// entries into the RT queue. Cancelled/done entries are purged in the same
// pass. Applied lazily, only on release (§4.3/§9): selection only happens
// at release, so recomputing scores anywhere else would be wasted work.
func (s *Semaphore) applyAging(now time.Time) (promoted, purged int) {
	if s.beQueue.Len() == 0 {
		return 0, 0
	}
	rebuilt := make(priorityQueue, 0, s.beQueue.Len())
	for _, req := range s.beQueue {
		if req.state.Load() != waiterWaiting {
			purged++
			continue
		}
		wait := now.Sub(req.enqueueAt)
		score, state := s.computeScore(BE, wait)
		if state == scorePromoted {
			req.priorityScore = 0.0
			req.promoted = true
			heap.Push(&s.rtQueue, req)
			promoted++
			continue
		}
		req.priorityScore = score
		req.index = len(rebuilt)
		rebuilt = append(rebuilt, req)
	}
	s.beQueue = rebuilt
	heap.Init(&s.beQueue)
	return promoted, purged
}

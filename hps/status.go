// Copyright 2026 The Alt Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package hps

import "fmt"

// QueueStatus is a consistent snapshot of a Semaphore's admission state,
// taken under the lock (§4.7).
type QueueStatus struct {
	RTQueue       int
	BEQueue       int
	TotalSlots    int
	Available     int
	Accepting     bool
	MaxQueueDepth int
	AcquiredSlots int
}

// QueueStatus returns a snapshot of the current queue depths, availability,
// and held-slot count.
func (s *Semaphore) QueueStatus() QueueStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queueStatusLocked()
}

func (s *Semaphore) queueStatusLocked() QueueStatus {
	available := s.rtAvailable + s.beAvailable
	depth := s.rtQueue.Len() + s.beQueue.Len()
	accepting := s.cfg.MaxQueueDepth == 0 || depth < s.cfg.MaxQueueDepth || available > 0
	return QueueStatus{
		RTQueue:       s.rtQueue.Len(),
		BEQueue:       s.beQueue.Len(),
		TotalSlots:    s.cfg.TotalSlots,
		Available:     available,
		Accepting:     accepting,
		MaxQueueDepth: s.cfg.MaxQueueDepth,
		AcquiredSlots: len(s.acquired),
	}
}

// LastWaitSeconds returns the wait time observed on the most recent
// successful Acquire. Telemetry only.
func (s *Semaphore) LastWaitSeconds() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastWaitSecond
}

// String renders a one-line human-readable summary, analogous to the
// Python original's __repr__.
func (s *Semaphore) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("hps[%s]: rt=%d/%d be=%d/%d rt_queue=%d be_queue=%d",
		s.cfg.Name, s.rtAvailable, s.cfg.RTReservedSlots, s.beAvailable, s.beSlots,
		s.rtQueue.Len(), s.beQueue.Len())
}

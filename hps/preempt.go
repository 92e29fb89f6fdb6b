// Copyright 2026 The Alt Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package hps

import (
	"context"
	"time"

	"github.com/kaikei-e/alt-hps/internal/clog"
)

// activeRequest is a caller-registered record of a request currently
// executing work after acquiring a slot. It is independent of HeldSlot:
// registration is optional, purely so RT arrivals can preempt running BE
// work (§4.4).
type activeRequest struct {
	taskID    string
	cancel    context.CancelCauseFunc
	startedAt time.Time
	class     Class
}

// Register associates taskID with cancel, the CancelCauseFunc the caller
// already holds from its own context.WithCancelCause. A later RT arrival
// that finds no slot grantable may call cancel(ErrPreempted); the caller is
// responsible for observing ctx.Err()/context.Cause(ctx), exiting its work,
// and calling Release. HPS never waits for this to happen.
//
// Callers should Register after Acquire succeeds and before starting work,
// and Unregister in the same guaranteed-exit block as Release.
func (s *Semaphore) Register(taskID string, cancel context.CancelCauseFunc, class Class) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[taskID] = &activeRequest{
		taskID:    taskID,
		cancel:    cancel,
		startedAt: s.cfg.Clock.Now(),
		class:     class,
	}
}

// Unregister removes taskID from the active-request registry. A no-op if
// taskID was never registered or was already unregistered.
func (s *Semaphore) Unregister(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, taskID)
}

// hasPreemptableBE reports whether any active request is BE-class. Must be
// called under s.mu.
func (s *Semaphore) hasPreemptableBE() bool {
	for _, req := range s.active {
		if req.class == BE {
			return true
		}
	}
	return false
}

// preemptOldestBE signals the cancellation cause of the longest-running
// active BE request. It never fires against RT: RT is not preemptable by
// any other class. Must be called under s.mu. Returns the preempted
// task-id, or "" if there was nothing to preempt.
func (s *Semaphore) preemptOldestBE(ctx context.Context) string {
	var oldest *activeRequest
	for _, req := range s.active {
		if req.class != BE {
			continue
		}
		if oldest == nil || req.startedAt.Before(oldest.startedAt) {
			oldest = req
		}
	}
	if oldest == nil {
		return ""
	}
	clog.Warningf(ctx, "hps[%s]: preempting BE request %s for RT priority, running %s",
		s.cfg.Name, oldest.taskID, s.cfg.Clock.Now().Sub(oldest.startedAt))
	oldest.cancel(ErrPreempted)
	if s.metrics != nil {
		s.metrics.recordPreemption(ctx)
	}
	return oldest.taskID
}

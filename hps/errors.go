// Copyright 2026 The Alt Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package hps

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrQueueFull is returned by Acquire when max_queue_depth is reached and no
// slot is immediately grantable.
var ErrQueueFull = status.Error(codes.ResourceExhausted, "hps: queue full")

// ErrPreempted is the cancellation cause set on a preempted BE request's
// context. It is never returned by Acquire or Release; callers observe it
// via context.Cause on the context they registered.
var ErrPreempted = errors.New("hps: preempted for real-time priority")

// InvalidConfigError reports a violated precondition in Config.
type InvalidConfigError struct {
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("hps: invalid config: %s", e.Reason)
}

// GRPCStatus lets InvalidConfigError be classified via status.FromError,
// matching the teacher's use of grpc/status purely as an error-category
// vocabulary (no RPC server is involved).
func (e *InvalidConfigError) GRPCStatus() *status.Status {
	return status.New(codes.InvalidArgument, e.Error())
}

func invalidConfig(reason string) error {
	return &InvalidConfigError{Reason: reason}
}

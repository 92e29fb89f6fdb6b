// Copyright 2026 The Alt Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package hps

import "time"

// Clock is the monotonic time source used for enqueue timestamps, aging,
// and leak detection. Production code uses SystemClock; tests substitute a
// manual clock so aging/promotion thresholds can be crossed without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock, backed by time.Now.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

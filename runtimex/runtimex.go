// Copyright 2026 The Alt Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package runtimex provides OS-portable process sizing helpers. cmd/hpsctl
// uses NumCPU to size a Semaphore's default TotalSlots when the operator
// does not pass -total_slots explicitly.
package runtimex

// NumCPU returns the number of logical CPUs usable by the current process.
// On most platforms this is runtime.NumCPU(); os_windows.go overrides
// getproccount to query all processor groups, since runtime.NumCPU() alone
// undercounts on machines with more than 64 logical processors.
func NumCPU() int {
	return getproccount()
}

// Copyright 2026 The Alt Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package hps implements the Hybrid Real-Time / Best-Effort priority
// semaphore: an admission-control primitive that gates a bounded pool of
// concurrent slots between a latency-sensitive real-time (RT) class and a
// throughput-oriented best-effort (BE) class, with reserved capacity,
// aging-based promotion, cooperative preemption, and guaranteed bandwidth
// for BE. It is the front door of an LLM inference gateway: streaming
// token-generation requests (RT) and batch summarization requests (BE)
// contend for a small, fixed number of GPU execution slots.
package hps

import (
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Class distinguishes the two traffic classes HPS schedules between.
type Class int

const (
	// BE is best-effort: batch work that may wait arbitrarily long.
	BE Class = iota
	// RT is real-time: latency-sensitive work that should rarely queue.
	RT
)

func (c Class) String() string {
	if c == RT {
		return "rt"
	}
	return "be"
}

// RTSchedulingMode controls ordering among equal-priority RT waiters.
type RTSchedulingMode int

const (
	// FIFO serves equal-priority RT waiters in arrival order.
	FIFO RTSchedulingMode = iota
	// LIFO serves the newest equal-priority RT waiter first, useful when
	// a fresh streaming request should preempt a stale one in the queue.
	LIFO
)

// Config holds the immutable configuration of a Semaphore. See New for the
// preconditions checked at construction time.
type Config struct {
	// TotalSlots is the total concurrent admission capacity. Must be >= 1.
	TotalSlots int
	// RTReservedSlots is the slot count reserved for RT. Must satisfy
	// 0 <= RTReservedSlots <= TotalSlots. BE cannot acquire these slots
	// unless RTReservedSlots == TotalSlots (the all-RT fallback, §4.1.e).
	RTReservedSlots int

	// AgingThreshold is the wait duration after which a queued BE request
	// starts receiving a priority boost.
	AgingThreshold time.Duration
	// AgingBoost is the magnitude of the per-minute priority boost applied
	// beyond AgingThreshold.
	AgingBoost float64
	// PromotionThreshold is the wait duration after which a BE request is
	// migrated into the RT queue at RT priority. 0 disables promotion.
	PromotionThreshold time.Duration

	// PreemptionEnabled allows an RT arrival that finds no slot grantable
	// to signal the oldest active BE request's cancellation cause.
	PreemptionEnabled bool
	// PreemptionWaitThreshold is informational only (telemetry); HPS
	// itself triggers preemption on RT blockage, not on an elapsed wait.
	PreemptionWaitThreshold time.Duration

	// GuaranteedBERatio, if > 0, forces a BE waiter to be woken by the
	// release that completes this many consecutive RT releases with a
	// non-empty BE queue. 0 disables the guarantee.
	GuaranteedBERatio int

	// MaxQueueDepth caps the combined depth of both queues. 0 disables
	// the cap.
	MaxQueueDepth int

	// RTSchedulingMode selects FIFO or LIFO ordering for the RT queue.
	RTSchedulingMode RTSchedulingMode

	// LeakThreshold is the held-slot age after which CheckLeaks reports
	// the slot as a likely leak.
	LeakThreshold time.Duration

	// SlowWaitWarnThreshold is the acquire wait duration above which a
	// warning is logged (telemetry only). Defaults to 10s if zero.
	SlowWaitWarnThreshold time.Duration

	// Clock is the monotonic time source. Defaults to SystemClock.
	Clock Clock

	// Meter, if non-nil, enables OTel metrics (see metrics.go). A nil
	// Meter disables metrics recording entirely.
	Meter metric.Meter
	// Tracer, if non-nil, enables per-acquire spans (see internal/tracing).
	Tracer trace.Tracer

	// Name identifies this semaphore instance in logs, spans, and metric
	// attributes (e.g. "gateway-gpu-slots").
	Name string
}

// Semaphore is the Hybrid RT/BE priority semaphore described in package
// hps's doc comment. The zero value is not usable; construct with New.
type Semaphore struct {
	cfg Config

	beSlots int       // cfg.TotalSlots - cfg.RTReservedSlots, cached for readability
	epoch   time.Time // reference point for queuedRequest.enqueueTime

	mu             sync.Mutex
	rtAvailable    int
	beAvailable    int
	rtQueue        priorityQueue
	beQueue        priorityQueue
	active         map[string]*activeRequest
	acquired       map[int64]HeldSlot
	nextSlotID     int64
	consecutiveRT  int
	lastWaitSecond float64

	metrics *semMetrics
}

// New constructs a Semaphore from cfg, validating preconditions.
func New(cfg Config) (*Semaphore, error) {
	if cfg.TotalSlots < 1 {
		return nil, invalidConfig("total_slots must be >= 1")
	}
	if cfg.RTReservedSlots < 0 || cfg.RTReservedSlots > cfg.TotalSlots {
		return nil, invalidConfig("rt_reserved_slots must satisfy 0 <= n <= total_slots")
	}
	if cfg.GuaranteedBERatio < 0 {
		return nil, invalidConfig("guaranteed_be_ratio must be >= 0")
	}
	if cfg.MaxQueueDepth < 0 {
		return nil, invalidConfig("max_queue_depth must be >= 0")
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.SlowWaitWarnThreshold <= 0 {
		cfg.SlowWaitWarnThreshold = 10 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "hps"
	}

	s := &Semaphore{
		cfg:         cfg,
		beSlots:     cfg.TotalSlots - cfg.RTReservedSlots,
		epoch:       cfg.Clock.Now(),
		rtAvailable: cfg.RTReservedSlots,
		beAvailable: cfg.TotalSlots - cfg.RTReservedSlots,
		active:      make(map[string]*activeRequest),
		acquired:    make(map[int64]HeldSlot),
	}
	s.metrics = newSemMetrics(cfg.Meter, cfg.Name, s)
	return s, nil
}

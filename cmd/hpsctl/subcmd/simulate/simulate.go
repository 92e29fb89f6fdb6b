// Copyright 2026 The Alt Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package simulate provides the hpsctl "simulate" subcommand: the runnable
// form of spec.md §6's reference integration pattern. It builds a
// hps.Semaphore from flags, drives synthetic RT (streaming) and BE (batch)
// load against it with google/uuid task IDs, and periodically prints
// QueueStatus/CheckLeaks snapshots, matching the
// register-after-acquire / unregister-then-release-in-a-deferred-block
// shape spec.md §6 describes for callers.
package simulate

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/subcommands"
	"github.com/google/uuid"

	"github.com/kaikei-e/alt-hps/hps"
	"github.com/kaikei-e/alt-hps/internal/clog"
	"github.com/kaikei-e/alt-hps/o11y/monitoring"
	"github.com/kaikei-e/alt-hps/runtimex"
)

// Cmd returns the Command for the "simulate" subcommand.
func Cmd() *Command {
	return &Command{}
}

// Command implements the simulate subcommand.
type Command struct {
	totalSlots     int
	rtReserved     int
	agingThreshold time.Duration
	agingBoost     float64
	promoteAfter   time.Duration
	preemption     bool
	guaranteedBE   int
	maxQueueDepth  int
	rtLIFO         bool
	leakThreshold  time.Duration

	duration   time.Duration
	rtRate     float64 // RT arrivals/sec
	beRate     float64 // BE arrivals/sec
	rtWork     time.Duration
	beWork     time.Duration
	reportEach time.Duration
}

func (*Command) Name() string     { return "simulate" }
func (*Command) Synopsis() string { return "drives synthetic RT/BE load against a configured HPS" }
func (*Command) Usage() string {
	return "simulate [flags]\n  Runs synthetic real-time and best-effort traffic against a Semaphore\n  built from the given flags, printing periodic queue/leak snapshots.\n"
}

func (c *Command) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.totalSlots, "total_slots", runtimex.NumCPU(), "total concurrent admission slots")
	f.IntVar(&c.rtReserved, "rt_reserved_slots", 1, "slots reserved for real-time requests")
	f.DurationVar(&c.agingThreshold, "aging_threshold", 2*time.Second, "wait after which a BE request starts aging")
	f.Float64Var(&c.agingBoost, "aging_boost", 30.0, "per-minute aging boost rate")
	f.DurationVar(&c.promoteAfter, "promotion_threshold", 10*time.Second, "wait after which a BE request is promoted to RT")
	f.BoolVar(&c.preemption, "preemption_enabled", true, "allow RT arrivals to signal cancellation of running BE work")
	f.IntVar(&c.guaranteedBE, "guaranteed_be_ratio", 4, "force a BE wake after this many consecutive RT releases (0 disables)")
	f.IntVar(&c.maxQueueDepth, "max_queue_depth", 64, "combined queue depth cap (0 disables)")
	f.BoolVar(&c.rtLIFO, "rt_lifo", false, "use LIFO ordering for equal-priority RT waiters")
	f.DurationVar(&c.leakThreshold, "leak_threshold", 30*time.Second, "held-slot age reported by CheckLeaks")

	f.DurationVar(&c.duration, "duration", 20*time.Second, "how long to run the simulation")
	f.Float64Var(&c.rtRate, "rt_rate", 5.0, "synthetic RT arrivals per second")
	f.Float64Var(&c.beRate, "be_rate", 2.0, "synthetic BE arrivals per second")
	f.DurationVar(&c.rtWork, "rt_work", 150*time.Millisecond, "simulated RT work duration per request")
	f.DurationVar(&c.beWork, "be_work", 3*time.Second, "simulated BE work duration per request")
	f.DurationVar(&c.reportEach, "report_interval", 2*time.Second, "how often to print a queue_status/check_leaks snapshot")
}

func (c *Command) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	mode := hps.FIFO
	if c.rtLIFO {
		mode = hps.LIFO
	}
	sem, err := hps.New(hps.Config{
		TotalSlots:         c.totalSlots,
		RTReservedSlots:    c.rtReserved,
		AgingThreshold:     c.agingThreshold,
		AgingBoost:         c.agingBoost,
		PromotionThreshold: c.promoteAfter,
		PreemptionEnabled:  c.preemption,
		GuaranteedBERatio:  c.guaranteedBE,
		MaxQueueDepth:      c.maxQueueDepth,
		RTSchedulingMode:   mode,
		LeakThreshold:      c.leakThreshold,
		Name:               "hpsctl-simulate",
	})
	if err != nil {
		clog.Errorf(ctx, "invalid configuration: %v", err)
		return subcommands.ExitFailure
	}

	runCtx, cancel := context.WithTimeout(ctx, c.duration)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go c.driveClass(runCtx, &wg, sem, hps.RT, c.rtRate, c.rtWork)
	go c.driveClass(runCtx, &wg, sem, hps.BE, c.beRate, c.beWork)

	reportDone := make(chan struct{})
	go func() {
		defer close(reportDone)
		ticker := time.NewTicker(c.reportEach)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				c.report(runCtx, sem)
			}
		}
	}()

	wg.Wait()
	<-reportDone
	c.report(context.Background(), sem)
	return subcommands.ExitSuccess
}

// driveClass repeatedly acquires, holds for work, and releases, at a
// Poisson-ish rate, until ctx is done. This is the reference integration
// pattern from spec.md §6: register after Acquire succeeds, unregister and
// Release in the same guaranteed-exit block.
func (c *Command) driveClass(ctx context.Context, wg *sync.WaitGroup, sem *hps.Semaphore, class hps.Class, ratePerSec float64, work time.Duration) {
	defer wg.Done()
	if ratePerSec <= 0 {
		return
	}
	for {
		interval := time.Duration(rand.ExpFloat64() / ratePerSec * float64(time.Second))
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		go func() {
			taskID := uuid.NewString()
			start := time.Now()
			res, err := sem.Acquire(ctx, class)
			if err != nil {
				monitoring.ExportRequestMetrics(ctx, class.String(), time.Since(start), "rejected")
				clog.Warningf(ctx, "simulate[%s]: acquire failed: %v", class, err)
				return
			}
			monitoring.ExportRequestMetrics(ctx, class.String(), time.Duration(res.WaitSeconds*float64(time.Second)), "admitted")

			taskCtx, taskCancel := context.WithCancelCause(ctx)
			sem.Register(taskID, taskCancel, class)
			defer func() {
				sem.Unregister(taskID)
				sem.Release(ctx, class, res.SlotID)
				taskCancel(nil)
			}()

			select {
			case <-time.After(work):
			case <-taskCtx.Done():
				clog.Infof(ctx, "simulate[%s]: task %s preempted: %v", class, taskID, context.Cause(taskCtx))
			}
		}()
	}
}

func (c *Command) report(ctx context.Context, sem *hps.Semaphore) {
	status := sem.QueueStatus()
	leaks := sem.CheckLeaks()
	monitoring.ExportLeakMetrics(ctx, len(leaks))
	fmt.Printf("%s accepting=%t acquired=%d leaked=%d last_wait=%.3fs\n",
		sem, status.Accepting, status.AcquiredSlots, len(leaks), sem.LastWaitSeconds())
}

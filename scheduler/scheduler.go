// Copyright 2017 CoreOS, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package scheduler drives a run: a single resumable producer over the
// ordered test set, interleaved with a bounded pool of forked workers, on
// one parent goroutine. Every event a child emits is folded into that
// worker's lifecycle flags and the statistics tree, and when the OS reaps
// a child the synthesized WORKER_TERMINATED event resolves the test's
// final classification from the flags plus the exit status.
package scheduler

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/coreos/ctrun/event"
	"github.com/coreos/ctrun/filter"
	"github.com/coreos/ctrun/options"
	"github.com/coreos/ctrun/pool"
	"github.com/coreos/ctrun/registry"
	"github.com/coreos/ctrun/sink"
	"github.com/coreos/ctrun/stats"
	"github.com/coreos/ctrun/timeoutpolicy"
	"github.com/coreos/ctrun/worker"
)

// item is one (suite, test) pair the producer yields.
type item struct {
	suite registry.Suite
	test  registry.Test
}

// producer generates schedulable (suite, test) pairs one at a time.
// Disabled, skip-flagged, and pattern-filtered pairs are consumed here
// directly — no worker is ever spawned for them — and reported through
// skip.
type producer struct {
	items []item
	pos   int
	skip  func(registry.Suite, registry.Test)
	match filter.Matcher
}

func newProducer(set *registry.Set, match filter.Matcher, skip func(registry.Suite, registry.Test)) *producer {
	p := &producer{skip: skip, match: match}
	set.Walk(func(su registry.Suite, t registry.Test) {
		p.items = append(p.items, item{suite: su, test: t})
	})
	return p
}

// next returns the next schedulable (suite, test) pair, or ok=false once
// the set is exhausted.
func (p *producer) next() (it item, ok bool) {
	for p.pos < len(p.items) {
		it = p.items[p.pos]
		p.pos++
		if it.suite.Params.Disabled || it.test.Params.Disabled || it.test.Params.Skip {
			p.skip(it.suite, it.test)
			continue
		}
		if p.match != nil && !p.match.Match(it.test.Identifier) {
			p.skip(it.suite, it.test)
			continue
		}
		return it, true
	}
	return item{}, false
}

// Scheduler drives one run over Set with at most Opts.ResolvedJobs()
// children alive at a time.
type Scheduler struct {
	Set    *registry.Set
	Opts   options.Options
	Report sink.ReportSink
	Log    sink.LogSink
	Match  filter.Matcher
	RunID  uuid.UUID
}

// Result is the outcome of one Run.
type Result struct {
	Stats *stats.Stats
	// AllPassed is false if any test failed, crashed, or timed out.
	AllPassed bool
}

// slotEvent tags a decoded (or synthesized) event with the worker slot it
// came from. The slot index is a lookup key into the live-worker map, not
// an owning reference.
type slotEvent struct {
	slot int
	ev   event.Event
}

// pump drains one worker's event pipe to EOF, forwarding every decoded
// event to out tagged with its slot, then Waits on the child and forwards
// one final synthesized WORKER_TERMINATED carrying the classified
// event.ProcessStatus. Because draining happens before Wait in the same
// goroutine, WORKER_TERMINATED always reaches out after every real event
// that worker produced, so per-worker delivery order matches emit order.
func pump(w *worker.Worker, out chan<- slotEvent) {
	dec := w.Events()
	for {
		ev, err := dec.Recv()
		if err != nil {
			break
		}
		ev.WorkerIndex = w.Slot
		out <- slotEvent{slot: w.Slot, ev: ev}
	}
	status, err := w.Wait()
	if err != nil {
		status = event.ProcessStatus{Kind: event.Exited, Code: -1}
	}
	out <- slotEvent{slot: w.Slot, ev: event.Event{Kind: event.WorkerTerminated, WorkerIndex: w.Slot, Payload: status}}
}

// Run drives the scheduler's event loop to completion: fill the pool,
// block on the next event, dispatch it, and refill the freed slot on every
// WORKER_TERMINATED until the producer is exhausted and the last child has
// been reaped. A non-nil error means an internal-fatal condition (pipe or
// fork failure), never a per-test outcome.
func (s *Scheduler) Run(ctx context.Context) (Result, error) {
	st := stats.New()

	// Analyzer policy (jobs forced to 1) has already been applied to
	// s.Opts by the caller, before the pool is sized.
	jobs := s.Opts.ResolvedJobs()
	p := pool.New(jobs)

	if s.Log != nil {
		s.Log.Log("run", "run "+s.RunID.String())
	}

	workers := make(map[int]*worker.Worker, jobs)
	events := make(chan slotEvent, 4*jobs)

	prod := newProducer(s.Set, s.Match, func(su registry.Suite, t registry.Test) {
		suiteStats := st.ForSuite(su.Name)
		testStats := suiteStats.ForTest(t.Identifier)
		stats.MarkSkipped(st, suiteStats, testStats)
		if s.Report != nil {
			s.Report.Report(event.InternalAbort, t.Identifier+": skipped")
		}
	})

	active := 0
	var spawnErr error

	// spawnNext advances the producer by one pair and, if it yielded one,
	// forks a worker into a free pool slot. Acquire blocks while all J
	// slots are busy, which is what stalls the producer until a
	// WORKER_TERMINATED frees one.
	spawnNext := func() bool {
		it, ok := prod.next()
		if !ok {
			return false
		}
		slot, err := p.Acquire(ctx, struct{}{})
		if err != nil {
			spawnErr = errors.Wrap(err, "scheduler: acquiring pool slot")
			return false
		}
		w, err := worker.Spawn(slot, it.suite, it.test)
		if err != nil {
			p.Release(slot)
			spawnErr = errors.Wrap(err, "scheduler: forking worker")
			return false
		}
		suiteStats := st.ForSuite(it.suite.Name)
		testStats := suiteStats.ForTest(it.test.Identifier)
		w.Context.Global = st
		w.Context.SuiteStats = suiteStats
		w.Context.TestStats = testStats
		workers[slot] = w
		active++
		go pump(w, events)
		return true
	}

	for i := 0; i < jobs; i++ {
		if !spawnNext() {
			break
		}
	}
	if spawnErr != nil {
		return Result{}, spawnErr
	}
	if active == 0 {
		return Result{Stats: st, AllPassed: st.Failed == 0}, nil
	}

	for active > 0 {
		se := <-events
		w, ok := workers[se.slot]
		if !ok {
			continue
		}
		s.dispatch(st, w, se.ev)

		if se.ev.Kind != event.WorkerTerminated {
			continue
		}

		delete(workers, se.slot)
		p.Release(se.slot)

		if spawnNext() {
			continue
		}
		active--
	}
	if spawnErr != nil {
		return Result{}, spawnErr
	}

	return Result{Stats: st, AllPassed: st.Failed == 0}, nil
}

// dispatch folds one received event into the worker's lifecycle flags and
// the statistics tree, forwards it to the report sink, and — for
// WORKER_TERMINATED — classifies the already-reaped child.
func (s *Scheduler) dispatch(st *stats.Stats, w *worker.Worker, ev event.Event) {
	ctx := &w.Context
	suiteStats := ctx.SuiteStats
	testStats := ctx.TestStats

	switch ev.Kind {
	case event.PreInit:
		s.report(ev.Kind, ctx.Test)
	case event.PreTest:
		ctx.TestStarted = true
		stats.Push(st, suiteStats, testStats, ev.Kind, ev.Payload)
		s.report(ev.Kind, ctx.Test)
	case event.Assert:
		stats.Push(st, suiteStats, testStats, ev.Kind, ev.Payload)
		s.report(ev.Kind, ev.Payload)
	case event.TheoryFail:
		s.report(ev.Kind, ev.Payload)
	case event.TestAbort:
		ctx.Aborted = true
		stats.Push(st, suiteStats, testStats, ev.Kind, ev.Payload)
		s.report(ev.Kind, ev.Payload)
	case event.PostTest:
		ctx.NormalFinish = true
		s.report(ev.Kind, ev.Payload)
	case event.PostFini:
		ctx.CleanedUp = true
		s.report(ev.Kind, ev.Payload)
	case event.WorkerTerminated:
		status, _ := ev.Payload.(event.ProcessStatus)
		s.resolveOutcome(st, ctx, status)
	}
}

func (s *Scheduler) report(kind event.Kind, payload interface{}) {
	if s.Report != nil {
		s.Report.Report(kind, payload)
	}
}

// resolveOutcome classifies a reaped child from its exit status combined
// with the lifecycle flags accumulated so far, and synthesizes whatever
// POST_TEST/POST_FINI events the child's termination cut off. The branch
// order is load-bearing: the timeout signal wins over everything, a signal
// death never satisfies an exit-code expectation, and a clean exit never
// satisfies a signal expectation.
func (s *Scheduler) resolveOutcome(st *stats.Stats, ctx *worker.Context, status event.ProcessStatus) {
	suiteStats := ctx.SuiteStats
	testStats := ctx.TestStats

	if timeoutpolicy.IsTimeoutSignal(status) {
		elapsed := ctx.Test.Params.Timeout
		if elapsed == 0 {
			elapsed = ctx.Suite.Params.Timeout
		}
		stats.MarkTimedOut(st, suiteStats, testStats)
		s.report(event.PostTest, elapsed)
		s.report(event.PostFini, nil)
		if s.Log != nil {
			s.Log.Log("timeout", ctx.Test.Identifier)
		}
		return
	}

	if status.Kind == event.Signaled {
		if ctx.NormalFinish || !ctx.TestStarted {
			if s.Log != nil {
				s.Log.Log("other_crash", ctx.Test.Identifier)
			}
			if !ctx.TestStarted {
				stats.MarkCrashed(st, suiteStats, testStats)
			}
			return
		}
		testStats.Signal = status.Code
		if ctx.Test.Params.Signal == 0 || ctx.Test.Params.Signal != status.Code {
			stats.MarkCrashed(st, suiteStats, testStats)
			if s.Log != nil {
				s.Log.Log("test_crash", ctx.Test.Identifier)
			}
			return
		}
		stats.MarkPassed(st, suiteStats, testStats)
		s.report(event.PostTest, float64(0))
		s.report(event.PostFini, nil)
		return
	}

	// EXITED.
	testStats.ExitCode = status.Code
	if ctx.Aborted {
		if !ctx.NormalFinish {
			s.report(event.PostTest, float64(0))
		}
		if !ctx.CleanedUp {
			s.report(event.PostFini, nil)
		}
		return
	}
	if !ctx.NormalFinish && ctx.TestStarted {
		if ctx.Test.Params.ExitCode != 0 && ctx.Test.Params.ExitCode == status.Code {
			stats.MarkPassed(st, suiteStats, testStats)
			s.report(event.PostTest, float64(0))
			s.report(event.PostFini, nil)
			return
		}
		stats.MarkCrashed(st, suiteStats, testStats)
		if s.Log != nil {
			s.Log.Log("test_crash", ctx.Test.Identifier)
		}
		return
	}
	if ctx.NormalFinish && !ctx.CleanedUp {
		if s.Log != nil {
			s.Log.Log("abnormal_exit", ctx.Test.Identifier)
		}
		return
	}
	if !ctx.TestStarted {
		if s.Log != nil {
			s.Log.Log("abnormal_exit", ctx.Test.Identifier)
		}
		stats.MarkCrashed(st, suiteStats, testStats)
		return
	}
}

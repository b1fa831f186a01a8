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

// Package ctrun wires the leaf packages (registry, event, worker, stats,
// scheduler, timeoutpolicy, filter, sink, options) into the three
// programmatic entry points: Initialize, RunAll, Finalize. cmd/ctrun's
// main is a thin cobra binder over this package.
package ctrun

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/coreos/ctrun/filter"
	"github.com/coreos/ctrun/options"
	"github.com/coreos/ctrun/registry"
	"github.com/coreos/ctrun/scheduler"
	"github.com/coreos/ctrun/sink"
	"github.com/coreos/ctrun/timeoutpolicy"
	"github.com/coreos/ctrun/worker"
)

// WorkerExitStatus is the sentinel RunAll returns in a process that is
// actually a worker, so callers know not to print the global summary. In
// practice a worker never reaches RunAll — RunChild exits the process from
// inside Initialize — but the check is kept here too as a second line of
// defense against a future caller that skips Initialize.
const WorkerExitStatus = -1

// Initialize builds the ordered test set from suites and tests, then
// performs the two checks that must happen before any test runs:
//
//  1. if this process is itself a worker re-exec'd by a prior ctrun
//     invocation (worker.IsChild), it runs exactly the one test it was
//     told to and never returns — RunChild calls os.Exit directly.
//  2. analyzer detection: the degraded-mode policy is applied to opts
//     before the caller ever constructs a Scheduler, so the worker pool is
//     sized under the adjusted job count from the start, never resized
//     after the fact.
func Initialize(suites []registry.Suite, tests []registry.Test, opts *options.Options) *registry.Set {
	set := registry.Init(suites, tests)

	if worker.IsChild() {
		worker.RunChild(set)
		panic("ctrun: worker.RunChild returned")
	}

	if timeoutpolicy.DetectAnalyzer() {
		opts.ApplyAnalyzerPolicy()
	}

	return set
}

// RunAll applies the pattern filter (if configured), drives the scheduler
// to completion, and returns 0 on all tests passed (or AlwaysSucceed), 1
// on any failure, WorkerExitStatus in a process that turns out to be a
// worker. A non-nil error is reserved for internal-fatal conditions —
// pipe/fork failure, a pattern that fails to compile — never for a
// per-test outcome.
func RunAll(set *registry.Set, opts options.Options, report sink.ReportSink, log sink.LogSink) (int, error) {
	if worker.IsChild() {
		return WorkerExitStatus, nil
	}

	match, err := filter.Compile(opts.Pattern, opts.PatternIsGlob)
	if err != nil {
		return 0, errors.Wrap(err, "ctrun: compiling pattern")
	}

	sched := &scheduler.Scheduler{
		Set:    set,
		Opts:   opts,
		Report: report,
		Log:    log,
		Match:  match,
		RunID:  uuid.New(),
	}

	result, err := sched.Run(context.Background())
	if err != nil {
		return 0, errors.Wrap(err, "ctrun: running scheduler")
	}

	if opts.AlwaysSucceed || result.AllPassed {
		return 0, nil
	}
	return 1, nil
}

// Finalize releases the test set.
func Finalize(set *registry.Set) {
	registry.Finalize(set)
}

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

// Package options carries the run configuration. Flag parsing itself does
// not belong here — cmd/ctrun binds its flags onto an Options value and
// hands it down.
package options

import "runtime"

// OutputProvider is the narrowest shape the Option bag needs to hold a
// registered sink without importing package sink (which itself may want to
// read options) — both the Report and Log sink interfaces widen it.
type OutputProvider interface {
	Name() string
}

// Options is the bag of run-wide settings every component reads from.
type Options struct {
	// Jobs is the worker pool capacity; 0 means "detected processor
	// count" (runtime.NumCPU()).
	Jobs int

	// NoEarlyExit is the no-early-exit setting, forced true when an
	// analyzer is detected. No component of the run reads it: the
	// scheduler runs every test to completion whether or not it is set,
	// and never stops a run because a test failed.
	NoEarlyExit bool

	// AlwaysSucceed forces RunAll's returned status to 0 regardless of
	// per-test outcomes.
	AlwaysSucceed bool

	// Pattern is an optional glob/regex used by the filter package to
	// disable non-matching tests.
	Pattern string

	// PatternIsGlob selects glob matching instead of regexp matching
	// for Pattern.
	PatternIsGlob bool

	// OutputProviders are registered sinks (Report and/or Log); the
	// Option bag only threads them through, it does not construct them.
	OutputProviders []OutputProvider
}

// ResolvedJobs returns Jobs, or the detected processor count when Jobs is
// zero.
func (o Options) ResolvedJobs() int {
	if o.Jobs > 0 {
		return o.Jobs
	}
	return runtime.NumCPU()
}

// ApplyAnalyzerPolicy forces the degraded mode used when the process runs
// under an analyzer: a single-job pool and no early exit. It is applied
// once, from Initialize, before the pool is sized.
func (o *Options) ApplyAnalyzerPolicy() {
	o.Jobs = 1
	o.NoEarlyExit = true
}

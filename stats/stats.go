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

// Package stats accumulates per-test, per-suite, and global counters.
// Every fold touches all three levels at once, which keeps each additive
// counter's per-test sum equal to its suite total and the suite sums equal
// to the global total.
package stats

import "github.com/coreos/ctrun/event"

// Counters is one level's worth of additive accumulators.
type Counters struct {
	Ran     int
	Failed  int
	Skipped int
	Crashed int

	AssertsPassed int
	AssertsFailed int

	TimedOut bool
	ExitCode int
	Signal   int
}

// Test is a single test's accumulator, addressable from the worker context
// that owns it.
type Test struct {
	Counters
	Identifier string
}

// Suite is one suite's accumulator plus the Test accumulators nested under
// it.
type Suite struct {
	Counters
	Name  string
	Tests map[string]*Test
}

// Stats is the three-level tree: global, per-suite, per-test.
type Stats struct {
	Counters
	Suites map[string]*Suite
}

// New returns an empty Stats tree.
func New() *Stats {
	return &Stats{Suites: make(map[string]*Suite)}
}

// ForSuite returns (creating if absent) the Suite accumulator for name.
func (s *Stats) ForSuite(name string) *Suite {
	su, ok := s.Suites[name]
	if !ok {
		su = &Suite{Name: name, Tests: make(map[string]*Test)}
		s.Suites[name] = su
	}
	return su
}

// ForTest returns (creating if absent) the Test accumulator for identifier
// within suite.
func (su *Suite) ForTest(identifier string) *Test {
	t, ok := su.Tests[identifier]
	if !ok {
		t = &Test{Identifier: identifier}
		su.Tests[identifier] = t
	}
	return t
}

// Push folds one event into all three accumulator levels. The scheduler
// calls it serially from its single-threaded event loop, always paired
// with a report-sink call from the same site, so no locking is required
// here.
func Push(global *Stats, suite *Suite, test *Test, kind event.Kind, payload interface{}) {
	apply := func(c *Counters) {
		switch kind {
		case event.PreTest:
			c.Ran++
		case event.Assert:
			if ap, ok := payload.(event.AssertPayload); ok {
				if ap.Passed {
					c.AssertsPassed++
				} else {
					c.AssertsFailed++
				}
			}
		case event.TestAbort:
			c.Failed++
		}
	}
	apply(&global.Counters)
	apply(&suite.Counters)
	apply(&test.Counters)
}

// MarkCrashed records a crash classification at all three levels.
func MarkCrashed(global *Stats, suite *Suite, test *Test) {
	global.Crashed++
	global.Failed++
	suite.Crashed++
	suite.Failed++
	test.Crashed++
	test.Failed++
}

// MarkTimedOut records a TIMEOUT classification.
func MarkTimedOut(global *Stats, suite *Suite, test *Test) {
	global.TimedOut = true
	global.Failed++
	suite.TimedOut = true
	suite.Failed++
	test.TimedOut = true
	test.Failed++
}

// MarkSkipped records a disabled/skipped (suite, test) pair that never had
// a worker spawned for it.
func MarkSkipped(global *Stats, suite *Suite, test *Test) {
	global.Skipped++
	suite.Skipped++
	test.Skipped++
}

// MarkPassed records a plain successful completion. Ran was already
// incremented when the test's PRE_TEST event was folded in, so this is a
// no-op on Counters today; it exists as the explicit counterpart to
// MarkCrashed/MarkTimedOut/MarkSkipped so call sites read symmetrically,
// and as the place a future "passed" counter would be threaded.
func MarkPassed(global *Stats, suite *Suite, test *Test) {}

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

// Package registry collects declared tests and suites into a deduplicated,
// deterministically ordered model. Registration happens through explicit
// calls — typically from the init() functions of the packages declaring
// tests — and the assembled set is read-only for the rest of the run.
package registry

import (
	"sort"

	"github.com/coreos/pkg/capnslog"

	"github.com/coreos/ctrun/harness"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/ctrun", "registry")

// Lang is the closed set of language tags a Test may declare, used to pick
// an entry-point wrapper in the child.
type Lang int

const (
	LangNative Lang = iota
	LangNativeCXXABI
)

// Params is the optional parameter bag carried by a Test descriptor.
type Params struct {
	// Timeout is the wall-clock budget in floating-point seconds; zero
	// means "inherit from the suite, or none".
	Timeout float64

	// ExitCode and Signal, when non-zero, declare that termination by
	// that exit code or signal is itself a success.
	ExitCode int
	Signal   int

	Disabled bool
	Skip     bool

	// Init and Fini are fixture hooks run by the language wrapper around
	// the test body.
	Init func()
	Fini func()

	Description string
}

// SuiteParams is the optional parameter bag carried by a Suite descriptor.
type SuiteParams struct {
	// Timeout is inherited by child tests that declare none of their own.
	Timeout float64

	Disabled bool

	Setup    func()
	Teardown func()
}

// Test is an immutable test descriptor. Identifier is unique across every
// registered test.
type Test struct {
	Identifier string
	Name       string
	Category   string
	Lang       Lang
	Params     Params

	// Func is the test body, run by the language wrapper in the child
	// with an *harness.H bound to the event pipe.
	Func func(h *harness.H)
}

// Suite is an immutable suite descriptor. Name is unique across every
// registered suite.
type Suite struct {
	Name   string
	Params SuiteParams
}

// suiteBucket holds one suite's descriptor plus its tests, kept sorted by
// Test.Name so iteration is deterministic and stable.
type suiteBucket struct {
	suite Suite
	tests []Test
}

// Set is the ordered test set: a mapping from suite name to a
// lexicographically-sorted sub-set of tests, itself iterated in
// lexicographic suite-name order. It is built once at startup, consumed
// read-only during a run, and released by Finalize.
type Set struct {
	buckets map[string]*suiteBucket
	order   []string
	seen    map[string]bool // test identifiers already registered
}

// NewSet returns an empty ordered test set.
func NewSet() *Set {
	return &Set{
		buckets: make(map[string]*suiteBucket),
		order:   nil,
		seen:    make(map[string]bool),
	}
}

// RegisterSuite records a suite descriptor, creating its (empty) bucket if
// this is the first time the suite name has been seen. Re-registering a
// suite under a name already present overwrites only its Params, never its
// already-collected tests, so suite and test registration may happen in
// either order.
func (s *Set) RegisterSuite(suite Suite) {
	if suite.Name == "" {
		return
	}
	b, ok := s.buckets[suite.Name]
	if !ok {
		b = &suiteBucket{suite: suite}
		s.buckets[suite.Name] = b
		s.order = append(s.order, suite.Name)
		return
	}
	b.suite.Params = suite.Params
}

// RegisterTest inserts test into its suite's bucket, creating the bucket
// on first use. Entries with an empty category or test name, and duplicate
// identifiers, are dropped; no errors are surfaced to the caller.
func (s *Set) RegisterTest(test Test) {
	if test.Category == "" || test.Name == "" {
		return
	}
	if test.Identifier == "" {
		test.Identifier = test.Category + "/" + test.Name
	}
	if s.seen[test.Identifier] {
		plog.Warningf("duplicate test identifier %q ignored", test.Identifier)
		return
	}
	s.seen[test.Identifier] = true

	b, ok := s.buckets[test.Category]
	if !ok {
		b = &suiteBucket{suite: Suite{Name: test.Category}}
		s.buckets[test.Category] = b
		s.order = append(s.order, test.Category)
	}
	b.tests = append(b.tests, test)
}

// finalizeOrder sorts suite names and, within each bucket, test names, so
// that iteration is stable lexicographic ordering at both levels.
func (s *Set) finalizeOrder() {
	sort.Strings(s.order)
	for _, name := range s.order {
		b := s.buckets[name]
		sort.Slice(b.tests, func(i, j int) bool {
			return b.tests[i].Name < b.tests[j].Name
		})
	}
}

// Suites returns the suite descriptors in lexicographic name order.
func (s *Set) Suites() []Suite {
	s.finalizeOrder()
	out := make([]Suite, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.buckets[name].suite)
	}
	return out
}

// Tests returns the tests of suite in lexicographic name order.
func (s *Set) Tests(suiteName string) []Test {
	s.finalizeOrder()
	b, ok := s.buckets[suiteName]
	if !ok {
		return nil
	}
	return b.tests
}

// Len returns the total number of registered tests across all suites.
func (s *Set) Len() int {
	n := 0
	for _, b := range s.buckets {
		n += len(b.tests)
	}
	return n
}

// Walk visits every (suite, test) pair in deterministic order. It is the
// single iteration primitive the scheduler's producer drives.
func (s *Set) Walk(fn func(Suite, Test)) {
	s.finalizeOrder()
	for _, name := range s.order {
		b := s.buckets[name]
		for _, t := range b.tests {
			fn(b.suite, t)
		}
	}
}

// Init builds a fresh ordered test set from the supplied descriptors,
// however the caller gathered them — package init() registration, a
// build-time manifest, or an explicit list.
func Init(suites []Suite, tests []Test) *Set {
	set := NewSet()
	for _, su := range suites {
		set.RegisterSuite(su)
	}
	for _, t := range tests {
		set.RegisterTest(t)
	}
	return set
}

// Finalize releases the test set. The garbage collector reclaims the
// backing maps and slices; Finalize exists so a future non-GC resource
// (e.g. a memory-mapped manifest) has a natural release point.
func Finalize(set *Set) {
	if set == nil {
		return
	}
	set.buckets = nil
	set.order = nil
	set.seen = nil
}

// Copyright 2017 CoreOS, Inc.
// Copyright 2009 The Go Authors.
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

// Package harness gives a test body (the func a registry.Test.Func field
// holds) a child-side handle for logging, non-fatal/fatal assertions, and
// scratch directories, wired straight into the event pipe rather than into
// a parent H's output buffer.
//
// H keeps the method surface and accounting idiom of the stdlib testing.T
// (mu-guarded bools, a log.Logger over an accumulating buffer) but none of
// the machinery for nested subtests or parallelism: this runner's
// concurrency unit is an OS process, so there is exactly one H per child,
// never a tree of them. Unwinding out of a body on a fatal assertion is
// panic/recover into langwrap's wrapper instead of runtime.Goexit, since
// there is no parent goroutine here to signal.
package harness

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/coreos/ctrun/event"
)

// Emitter is the narrow child-side interface H uses to turn assertions into
// wire events. langwrap.Emitter (and worker.Emitter, which backs it)
// satisfy this by having the same method, so harness need not import
// langwrap to avoid a dependency cycle back from langwrap into harness.
type Emitter interface {
	Emit(kind event.Kind, payload interface{})
}

// AbortSignal is panicked by Require/FailNow/Fatal/SkipNow to unwind out
// of a test body to the point where langwrap.runWrapped's deferred recover
// observes it and emits a TEST_ABORT event (or POST_TEST, for a skip).
type AbortSignal struct {
	Reason string
}

// H is passed to a registry.Test's Func to manage per-test state: logging,
// non-fatal and fatal assertions, and scratch directories. One H is
// constructed per child process, used once, and discarded.
type H struct {
	mu      sync.Mutex
	output  bytes.Buffer
	logger  *log.Logger
	em      Emitter
	name    string
	failed  bool
	skipped bool

	outputDir string
}

// New returns an H for a test named name, emitting ASSERT/THEORY_FAIL
// events through em as the test body runs.
func New(name string, em Emitter) *H {
	h := &H{name: name, em: em}
	h.logger = log.New(&h.output, "", 0)
	return h
}

// Name returns the name of the running test.
func (h *H) Name() string { return h.name }

func (h *H) log(s string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logger.Output(3, s)
}

// Log formats its arguments using default formatting, analogous to Println,
// and records the text in the test's accumulated log.
func (h *H) Log(args ...interface{}) { h.log(fmt.Sprintln(args...)) }

// Logf formats its arguments according to format, analogous to Printf.
func (h *H) Logf(format string, args ...interface{}) { h.log(fmt.Sprintf(format, args...)) }

// callerFileLine resolves the file/line of the assertion call site, skip
// frames above h.assert itself.
func callerFileLine(skip int) (string, int) {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "???", 0
	}
	return file, line
}

// assert records one ASSERT event carrying the message, call site, and
// pass/fail status, and on failure marks the test failed without
// unwinding.
func (h *H) assert(passed bool, message string) {
	file, line := callerFileLine(3)
	if h.em != nil {
		h.em.Emit(event.Assert, event.AssertPayload{
			Message: message,
			File:    file,
			Line:    line,
			Passed:  passed,
		})
	}
	if !passed {
		h.Fail()
	}
}

// Assert is the non-fatal check: on failure it records a failed ASSERT
// event and marks the test failed, but execution continues.
func (h *H) Assert(cond bool, message string) {
	h.assert(cond, message)
}

// Assertf is Assert with a formatted message.
func (h *H) Assertf(cond bool, format string, args ...interface{}) {
	h.assert(cond, fmt.Sprintf(format, args...))
}

// Require is the fatal check: on failure it records a failed ASSERT
// event, then unwinds the test body immediately with the assertion
// message as the abort reason.
func (h *H) Require(cond bool, message string) {
	h.assert(cond, message)
	if !cond {
		panic(AbortSignal{Reason: message})
	}
}

// Requiref is Require with a formatted message.
func (h *H) Requiref(cond bool, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	h.assert(cond, message)
	if !cond {
		panic(AbortSignal{Reason: message})
	}
}

// Fail marks the test as having failed but continues execution.
func (h *H) Fail() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed = true
}

// Failed reports whether the test has failed.
func (h *H) Failed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failed
}

// FailNow marks the test failed and unwinds out of the test body by
// panicking an AbortSignal, which langwrap.runWrapped's deferred recover
// converts into a TEST_ABORT event. FailNow must be called from the
// goroutine running the test body.
func (h *H) FailNow() {
	h.Fail()
	panic(AbortSignal{Reason: h.output.String()})
}

// Error is equivalent to Log followed by Fail.
func (h *H) Error(args ...interface{}) {
	h.log(fmt.Sprintln(args...))
	h.Fail()
}

// Errorf is equivalent to Logf followed by Fail.
func (h *H) Errorf(format string, args ...interface{}) {
	h.log(fmt.Sprintf(format, args...))
	h.Fail()
}

// Fatal is equivalent to Log followed by FailNow.
func (h *H) Fatal(args ...interface{}) {
	h.log(fmt.Sprintln(args...))
	h.FailNow()
}

// Fatalf is equivalent to Logf followed by FailNow.
func (h *H) Fatalf(format string, args ...interface{}) {
	h.log(fmt.Sprintf(format, args...))
	h.FailNow()
}

// Skip is equivalent to Log followed by SkipNow.
func (h *H) Skip(args ...interface{}) {
	h.log(fmt.Sprintln(args...))
	h.SkipNow()
}

// Skipf is equivalent to Logf followed by SkipNow.
func (h *H) Skipf(format string, args ...interface{}) {
	h.log(fmt.Sprintf(format, args...))
	h.SkipNow()
}

// SkipNow marks the test as skipped and unwinds out of the test body
// through the same panic/recover path FailNow uses; the surrounding
// wrapper consults Skipped to report the abort as a skip rather than a
// failure.
func (h *H) SkipNow() {
	h.mu.Lock()
	h.skipped = true
	h.mu.Unlock()
	panic(AbortSignal{Reason: "skipped"})
}

// Skipped reports whether the test was skipped.
func (h *H) Skipped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.skipped
}

// Output returns the test's accumulated log text.
func (h *H) Output() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.output.String()
}

func (h *H) mkOutputDir() (string, error) {
	if h.outputDir == "" {
		// Test identifiers are "suite/test"; a path separator is not
		// allowed in a temp-dir pattern.
		safeName := strings.ReplaceAll(h.name, string(os.PathSeparator), "_")
		dir, err := ioutil.TempDir("", "ctrun-"+safeName+"-")
		if err != nil {
			return "", fmt.Errorf("failed to create output dir: %v", err)
		}
		h.outputDir = dir
	}
	return h.outputDir, nil
}

// OutputDir returns the path to a scratch directory for this test,
// creating it on first use. Individual tests should normally prefer
// TempDir/TempFile over writing into it directly.
func (h *H) OutputDir() string {
	dir, err := h.mkOutputDir()
	if err != nil {
		h.log(err.Error())
		h.FailNow()
	}
	return dir
}

// TempDir creates a new directory under OutputDir. Nothing in ctrun
// removes it afterwards; it outlives the test and the worker process.
func (h *H) TempDir(prefix string) string {
	dir, err := h.mkOutputDir()
	if err != nil {
		h.log(err.Error())
		h.FailNow()
	}
	tmp, err := ioutil.TempDir(dir, prefix)
	if err != nil {
		h.log(fmt.Sprintf("failed to create temp dir: %v", err))
		h.FailNow()
	}
	return tmp
}

// TempFile creates a new file under OutputDir.
func (h *H) TempFile(prefix string) *os.File {
	dir, err := h.mkOutputDir()
	if err != nil {
		h.log(err.Error())
		h.FailNow()
	}
	tmp, err := ioutil.TempFile(dir, prefix)
	if err != nil {
		h.log(fmt.Sprintf("failed to create temp file: %v", err))
		h.FailNow()
	}
	return tmp
}

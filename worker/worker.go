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

// Package worker forks one child process per test and drives its side of
// the event protocol. The parent-side Worker owns the child's exec.Cmd,
// the read end of its event pipe, and the execution Context the scheduler
// folds lifecycle events into; the child-side RunChild entry point arms
// the timeout, dispatches to the language wrapper, and exits.
//
// One binary serves as both parent and worker: the parent re-execs itself
// with a sentinel environment variable naming the test to run, and
// ctrun.Initialize (or a test binary's TestMain) checks IsChild before any
// test runs. This is the same
// single-binary multicall arrangement used by init-style tools that
// re-invoke themselves under a different entry point.
package worker

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/pkg/errors"

	"github.com/coreos/ctrun/event"
	"github.com/coreos/ctrun/langwrap"
	"github.com/coreos/ctrun/registry"
	"github.com/coreos/ctrun/stats"
	"github.com/coreos/ctrun/timeoutpolicy"
)

// childEnvVar is the environment variable a re-exec'd child inherits to
// learn which test it must run.
const childEnvVar = "CTRUN_WORKER_TEST"

// pipeFD is the file descriptor index of the inherited event pipe in a
// child's file table (stdin=0, stdout=1, stderr=2, then ExtraFiles from 3).
const pipeFD = 3

// IsChild reports whether the current process was re-exec'd by the
// scheduler to run exactly one test, i.e. whether childEnvVar is set.
func IsChild() bool {
	_, ok := os.LookupEnv(childEnvVar)
	return ok
}

// ChildTestIdentifier returns the test identifier this process was told to
// run, if any.
func ChildTestIdentifier() (string, bool) {
	return os.LookupEnv(childEnvVar)
}

// Context is the parent-side execution context of one worker slot: copies
// of the current test and suite descriptors, pointers to their statistics
// accumulators, plus the four lifecycle flags the scheduler's state machine transitions
// as events arrive.
type Context struct {
	Test  registry.Test
	Suite registry.Suite

	Global     *stats.Stats
	SuiteStats *stats.Suite
	TestStats  *stats.Test

	TestStarted  bool
	NormalFinish bool
	CleanedUp    bool
	Aborted      bool
}

// Worker owns one child process and its Context. It is created when a test
// is scheduled and discarded after the child has been reaped and its
// termination classified.
//
// Each Worker owns its own event pipe rather than sharing one process-wide
// fd across every child. A literal fork() hands every child the same
// inherited write end for free; re-exec'ing a fresh program image per
// child makes a shared fd awkward to thread through, and a per-worker pipe
// buys a synchronization point besides: draining the pipe to EOF proves
// the child has closed its write end, so Wait can follow without losing
// events.
type Worker struct {
	Cmd      *exec.Cmd
	Context  Context
	Slot     int
	PID      int
	pipeRead *os.File
}

// Spawn re-execs the current binary as a child process running test from
// suite, handing it the write end of a fresh pipe as fd 3. It never
// returns in the child — the child's path is RunChild, entered from
// ctrun.Initialize (or TestMain) once IsChild detects the sentinel env var.
func Spawn(slot int, suite registry.Suite, test registry.Test) (*Worker, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, "worker: resolving executable path")
	}

	pipeRead, pipeWrite, err := os.Pipe()
	if err != nil {
		return nil, errors.Wrap(err, "worker: creating event pipe")
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), childEnvVar+"="+test.Identifier)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	cmd.ExtraFiles = []*os.File{pipeWrite}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		// SIGKILL, not SIGTERM: SIGTERM is reserved for the timeout
		// deadline, and an orphaned child must not be mistaken for a
		// timed-out one.
		Pdeathsig: syscall.SIGKILL,
	}

	if err := cmd.Start(); err != nil {
		pipeRead.Close()
		pipeWrite.Close()
		return nil, errors.Wrap(err, "worker: starting child")
	}
	// The parent's copy of the write end must be closed so the read end
	// observes EOF once the child (the only remaining holder) exits.
	pipeWrite.Close()

	w := &Worker{
		Cmd:      cmd,
		Slot:     slot,
		PID:      cmd.Process.Pid,
		pipeRead: pipeRead,
		Context: Context{
			Test:  test,
			Suite: suite,
		},
	}
	return w, nil
}

// Events returns a decoder over this worker's event pipe. Draining it to
// EOF is the parent's signal that the child has closed its write end —
// normally because it has exited — and is safe to Wait() on.
func (w *Worker) Events() *event.Decoder {
	return event.NewDecoder(w.pipeRead)
}

// Wait blocks until the child exits and classifies its termination. It
// never returns an error for a normal-or-abnormal child exit (that is the
// whole point of classification) — only for OS-level failures to reap.
// Callers must drain Events() to EOF first.
func (w *Worker) Wait() (event.ProcessStatus, error) {
	defer w.pipeRead.Close()
	err := w.Cmd.Wait()
	if err == nil {
		return event.ProcessStatus{Kind: event.Exited, Code: 0}, nil
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return event.ProcessStatus{}, errors.Wrap(err, "worker: reaping child")
	}
	ws, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return event.ProcessStatus{}, errors.New("worker: unsupported platform wait status")
	}
	return timeoutpolicy.Classify(ws), nil
}

// Emitter is the child-side event writer, satisfying langwrap.Emitter. It
// wraps the inherited pipe's write end with the length-framed encoder from
// package event.
type Emitter struct {
	enc *event.Encoder
	pid int
}

// NewEmitter wraps w (normally os.NewFile(pipeFD, "event-pipe")) as a
// child-side Emitter.
func NewEmitter(w *os.File) *Emitter {
	return &Emitter{enc: event.NewEncoder(w), pid: os.Getpid()}
}

func (e *Emitter) Emit(kind event.Kind, payload interface{}) {
	_ = e.enc.Send(event.Event{PID: e.pid, Kind: kind, Payload: payload})
}

// RunChild is the entire child-side protocol: look up the one test this
// process was told to run, arm the timeout, dispatch to the language
// wrapper, and exit with the appropriate status. It never returns — the
// child has no business re-entering the scheduler.
func RunChild(set *registry.Set) {
	identifier, _ := ChildTestIdentifier()

	var foundSuite registry.Suite
	var foundTest registry.Test
	found := false
	set.Walk(func(su registry.Suite, t registry.Test) {
		if found || t.Identifier != identifier {
			return
		}
		foundSuite, foundTest, found = su, t, true
	})
	if !found {
		fmt.Fprintf(os.Stderr, "ctrun: worker: unknown test identifier %q\n", identifier)
		os.Exit(1)
	}

	timeout := timeoutpolicy.EffectiveTimeout(foundTest.Params.Timeout, foundSuite.Params.Timeout)
	if err := timeoutpolicy.Arm(timeout); err != nil {
		fmt.Fprintf(os.Stderr, "ctrun: worker: arming timeout: %v\n", err)
		os.Exit(1)
	}

	pipe := os.NewFile(pipeFD, "event-pipe")
	em := NewEmitter(pipe)

	wrapper, ok := langwrap.Table[foundTest.Lang]
	if !ok {
		fmt.Fprintf(os.Stderr, "ctrun: worker: unknown language tag %d\n", foundTest.Lang)
		os.Exit(1)
	}
	wrapper(foundTest, foundSuite, em)

	os.Exit(0)
}

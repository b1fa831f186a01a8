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

// Package timeoutpolicy arms the per-test wall-clock deadline inside a
// worker process, classifies a reaped child's wait status for the
// scheduler, and detects analyzer environments where forking a pool of
// children is unsafe.
package timeoutpolicy

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/coreos/ctrun/event"
)

// TimeoutSignal is the distinguished signal a timeout expiry delivers. No
// other source in ctrun may raise it: the parent keeps its parent-death
// signal on SIGKILL for exactly this reason, and a test that raises
// SIGTERM itself forfeits the distinction.
//
// The Go runtime multiplexes SIGPROF for its CPU profiler and consumes it
// before the default disposition can terminate the process, so the
// conventional profiling-timer signal cannot kill a Go child. SIGTERM is
// the nearest signal the runtime still honors lethally when nothing has
// subscribed to it.
const TimeoutSignal = unix.SIGTERM

// Arm schedules delivery of TimeoutSignal to the calling process once
// seconds of wall-clock time elapse. It is called in the child before the
// test body starts; a non-positive seconds means no deadline and is a
// no-op. The deadline is a runtime timer rather than an interval timer:
// setitimer's profiling clock counts CPU time, and a test blocked in sleep
// or I/O would never trip it.
func Arm(seconds float64) error {
	if seconds <= 0 {
		return nil
	}
	d := time.Duration(seconds * float64(time.Second))
	time.AfterFunc(d, func() {
		unix.Kill(unix.Getpid(), TimeoutSignal)
	})
	return nil
}

// EffectiveTimeout resolves the timeout a test runs under: its own
// declared timeout if non-zero, else the suite's default, else zero
// (no deadline).
func EffectiveTimeout(testTimeout, suiteTimeout float64) float64 {
	if testTimeout != 0 {
		return testTimeout
	}
	return suiteTimeout
}

// DetectAnalyzer reports whether the current process appears to be running
// under a tracer (read from /proc/self/status's TracerPid) or was built
// with the race detector. Either condition makes a wide fork pool more
// trouble than it is worth; callers respond by forcing the job count to
// one and disabling early exit.
func DetectAnalyzer() bool {
	if raceEnabled {
		return true
	}
	f, err := os.Open("/proc/self/status")
	if err != nil {
		return false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "TracerPid:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return false
		}
		pid, err := strconv.Atoi(fields[1])
		if err != nil {
			return false
		}
		return pid != 0
	}
	return false
}

// Classify turns the syscall.WaitStatus an *exec.ExitError's Sys() hands
// back into the event.ProcessStatus the scheduler's outcome table switches
// on. It inspects the platform wait status directly rather than
// os.ProcessState's narrower ExitCode/Exited so a killed child surfaces as
// Signaled with its signal number, not as a generic failure.
func Classify(ws syscall.WaitStatus) event.ProcessStatus {
	if ws.Signaled() {
		return event.ProcessStatus{Kind: event.Signaled, Code: int(ws.Signal())}
	}
	return event.ProcessStatus{Kind: event.Exited, Code: ws.ExitStatus()}
}

// IsTimeoutSignal reports whether status represents the child having been
// killed by the timeout signal specifically.
func IsTimeoutSignal(status event.ProcessStatus) bool {
	return status.Kind == event.Signaled && status.Code == int(TimeoutSignal)
}

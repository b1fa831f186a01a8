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

// Package event implements the length-framed wire protocol that ferries
// lifecycle events from a child worker to the parent over a pipe.
package event

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

// Kind is the closed enumeration of lifecycle event kinds.
type Kind int

const (
	PreInit Kind = iota
	PreTest
	Assert
	TheoryFail
	TestAbort
	PostTest
	PostFini

	// WorkerTerminated and InternalAbort are parent-synthesized and never
	// cross the wire: WorkerTerminated appears once the OS has reaped a
	// child, InternalAbort is reported for pairs the scheduler skips
	// without spawning a worker.
	WorkerTerminated
	InternalAbort
)

func (k Kind) String() string {
	switch k {
	case PreInit:
		return "PRE_INIT"
	case PreTest:
		return "PRE_TEST"
	case Assert:
		return "ASSERT"
	case TheoryFail:
		return "THEORY_FAIL"
	case TestAbort:
		return "TEST_ABORT"
	case PostTest:
		return "POST_TEST"
	case PostFini:
		return "POST_FINI"
	case WorkerTerminated:
		return "WORKER_TERMINATED"
	case InternalAbort:
		return "INTERNAL_ABORT"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// AssertPayload is the ASSERT event's payload.
type AssertPayload struct {
	Message string
	File    string
	Line    int
	Passed  bool
}

// ProcessStatusKind distinguishes a reaped child's termination shape; it
// backs the parent-synthesized WORKER_TERMINATED payload.
type ProcessStatusKind int

const (
	Exited ProcessStatusKind = iota
	Signaled
)

// ProcessStatus is the payload of a parent-synthesized WORKER_TERMINATED
// event; it never appears on the wire.
type ProcessStatus struct {
	Kind ProcessStatusKind
	Code int // exit code, or signal number when Kind == Signaled
}

func init() {
	// Payload is an interface{}; gob needs the concrete types that can
	// flow through it registered up front.
	gob.Register(AssertPayload{})
	gob.Register(ProcessStatus{})
	gob.Register(float64(0))
	gob.Register("")
}

// Event is the tagged record flowing child -> parent. The child sets PID,
// Kind and Payload; WorkerIndex, the back-reference to the owning worker
// slot, is filled in by the parent after receipt.
type Event struct {
	PID         int
	Kind        Kind
	WorkerIndex int

	// Payload holds the kind-specific data: nil for
	// PRE_INIT/PRE_TEST/POST_FINI, AssertPayload for ASSERT, a string
	// for THEORY_FAIL/TEST_ABORT, elapsed seconds as a float64 for
	// POST_TEST, and a ProcessStatus for the synthesized
	// WORKER_TERMINATED.
	Payload interface{}
}

// Encoder writes length-framed, gob-encoded Events to the pipe's write
// end. One Encoder is constructed per child, wrapping that child's end of
// the inherited pipe; Events are small enough that a single Write call
// stays within the OS pipe-atomicity bound, so no locking is required
// beyond what io.Writer itself gives.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Send frames and writes one event: a 4-byte big-endian length prefix
// followed by the gob-encoded Event, both in a single Write.
func (e *Encoder) Send(ev Event) error {
	var gw bytes.Buffer
	if err := gob.NewEncoder(&gw).Encode(&ev); err != nil {
		return err
	}
	buf := gw.Bytes()

	frame := make([]byte, 4+len(buf))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(buf)))
	copy(frame[4:], buf)
	_, err := e.w.Write(frame)
	return err
}

// Decoder reads length-framed Events from the parent's read end of the
// shared pipe.
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Recv blocks until one full event has been read, or returns io.EOF once
// every writer of the pipe has closed its end.
func (d *Decoder) Recv() (Event, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(d.r, lenPrefix[:]); err != nil {
		return Event{}, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return Event{}, err
	}
	var ev Event
	if err := gob.NewDecoder(bytes.NewReader(buf)).Decode(&ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

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

package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreos/ctrun/event"
)

type recordingEmitter struct {
	kinds    []event.Kind
	payloads []interface{}
}

func (r *recordingEmitter) Emit(kind event.Kind, payload interface{}) {
	r.kinds = append(r.kinds, kind)
	r.payloads = append(r.payloads, payload)
}

func TestAssertNonFatalContinues(t *testing.T) {
	em := &recordingEmitter{}
	h := New("s/t", em)

	h.Assert(false, "expected 1, got 2")

	assert.True(t, h.Failed())
	require.Len(t, em.kinds, 1)
	assert.Equal(t, event.Assert, em.kinds[0])
	payload := em.payloads[0].(event.AssertPayload)
	assert.False(t, payload.Passed)
	assert.Equal(t, "expected 1, got 2", payload.Message)
}

func TestAssertPassingDoesNotFail(t *testing.T) {
	em := &recordingEmitter{}
	h := New("s/t", em)

	h.Assert(true, "fine")

	assert.False(t, h.Failed())
	payload := em.payloads[0].(event.AssertPayload)
	assert.True(t, payload.Passed)
}

func TestRequireFailingUnwinds(t *testing.T) {
	em := &recordingEmitter{}
	h := New("s/t", em)

	ran := false
	assert.PanicsWithValue(t, AbortSignal{Reason: "must be positive"}, func() {
		h.Require(false, "must be positive")
		ran = true
	})
	assert.False(t, ran)
	assert.True(t, h.Failed())
}

func TestFailNowPanicsAbortSignal(t *testing.T) {
	h := New("s/t", nil)
	h.Log("a detail")

	assert.PanicsWithValue(t, AbortSignal{Reason: "a detail\n"}, h.FailNow)
	assert.True(t, h.Failed())
}

func TestSkipNowMarksSkippedNotFailed(t *testing.T) {
	h := New("s/t", nil)

	assert.Panics(t, h.SkipNow)
	assert.True(t, h.Skipped())
	assert.False(t, h.Failed())
}

func TestTempDirUnderSameOutputDir(t *testing.T) {
	h := New("s/t", nil)

	a := h.TempDir("a-")
	b := h.TempDir("b-")

	assert.NotEqual(t, a, b)
	assert.Equal(t, h.OutputDir(), h.outputDir)
}

func TestLogAccumulatesOutput(t *testing.T) {
	h := New("s/t", nil)
	h.Log("one")
	h.Logf("two %d", 2)

	out := h.Output()
	assert.Contains(t, out, "one")
	assert.Contains(t, out, "two 2")
}

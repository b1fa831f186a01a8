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

package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coreos/ctrun/event"
	"github.com/coreos/ctrun/registry"
	"github.com/coreos/ctrun/sink"
	"github.com/coreos/ctrun/stats"
	"github.com/coreos/ctrun/timeoutpolicy"
	"github.com/coreos/ctrun/worker"
)

func newTestScheduler() (*Scheduler, *stats.Stats, *[]string) {
	var reported []string
	s := &Scheduler{
		Report: sink.ReportFunc{Fn: func(k event.Kind, p interface{}) {
			reported = append(reported, k.String())
		}},
	}
	return s, stats.New(), &reported
}

func newCtx(st *stats.Stats, test registry.Test) *worker.Context {
	suiteStats := st.ForSuite("s")
	return &worker.Context{
		Test:       test,
		Suite:      registry.Suite{Name: "s"},
		Global:     st,
		SuiteStats: suiteStats,
		TestStats:  suiteStats.ForTest(test.Identifier),
	}
}

func TestResolveOutcomeTimeout(t *testing.T) {
	s, st, reported := newTestScheduler()
	ctx := newCtx(st, registry.Test{Identifier: "s/t", Params: registry.Params{Timeout: 0.1}})

	s.resolveOutcome(st, ctx, event.ProcessStatus{Kind: event.Signaled, Code: int(timeoutpolicy.TimeoutSignal)})

	assert.True(t, ctx.TestStats.TimedOut)
	assert.Equal(t, 1, ctx.TestStats.Failed)
	assert.Contains(t, *reported, "POST_TEST")
	assert.Contains(t, *reported, "POST_FINI")
}

func TestResolveOutcomeExpectedSignalPasses(t *testing.T) {
	s, st, _ := newTestScheduler()
	ctx := newCtx(st, registry.Test{Identifier: "s/t", Params: registry.Params{Signal: 11}})
	ctx.TestStarted = true

	s.resolveOutcome(st, ctx, event.ProcessStatus{Kind: event.Signaled, Code: 11})

	assert.Equal(t, 0, ctx.TestStats.Failed)
	assert.Equal(t, 0, ctx.TestStats.Crashed)
}

func TestResolveOutcomeUnexpectedSignalCrashes(t *testing.T) {
	s, st, _ := newTestScheduler()
	ctx := newCtx(st, registry.Test{Identifier: "s/t"})
	ctx.TestStarted = true

	s.resolveOutcome(st, ctx, event.ProcessStatus{Kind: event.Signaled, Code: 8})

	assert.Equal(t, 1, ctx.TestStats.Crashed)
	assert.Equal(t, 1, ctx.TestStats.Failed)
}

func TestResolveOutcomeSignalAfterNormalFinishIsOtherCrash(t *testing.T) {
	s, st, _ := newTestScheduler()
	ctx := newCtx(st, registry.Test{Identifier: "s/t"})
	ctx.TestStarted = true
	ctx.NormalFinish = true

	s.resolveOutcome(st, ctx, event.ProcessStatus{Kind: event.Signaled, Code: 8})

	assert.Equal(t, 0, ctx.TestStats.Crashed)
	assert.Equal(t, 0, ctx.TestStats.Failed)
}

func TestResolveOutcomeNeverStartedSignalIsCrash(t *testing.T) {
	s, st, _ := newTestScheduler()
	ctx := newCtx(st, registry.Test{Identifier: "s/t"})

	s.resolveOutcome(st, ctx, event.ProcessStatus{Kind: event.Signaled, Code: 8})

	assert.Equal(t, 1, ctx.TestStats.Crashed)
}

func TestResolveOutcomeAbortedSynthesizesMissingEvents(t *testing.T) {
	s, st, reported := newTestScheduler()
	ctx := newCtx(st, registry.Test{Identifier: "s/t"})
	ctx.TestStarted = true
	ctx.Aborted = true

	s.resolveOutcome(st, ctx, event.ProcessStatus{Kind: event.Exited, Code: 1})

	assert.Contains(t, *reported, "POST_TEST")
	assert.Contains(t, *reported, "POST_FINI")
}

func TestResolveOutcomeAbruptExitMatchingExpectedCodePasses(t *testing.T) {
	s, st, _ := newTestScheduler()
	ctx := newCtx(st, registry.Test{Identifier: "s/t", Params: registry.Params{ExitCode: 3}})
	ctx.TestStarted = true

	s.resolveOutcome(st, ctx, event.ProcessStatus{Kind: event.Exited, Code: 3})

	assert.Equal(t, 0, ctx.TestStats.Crashed)
	assert.Equal(t, 0, ctx.TestStats.Failed)
}

func TestResolveOutcomeAbruptExitNotMatchingCrashes(t *testing.T) {
	s, st, _ := newTestScheduler()
	ctx := newCtx(st, registry.Test{Identifier: "s/t", Params: registry.Params{ExitCode: 3}})
	ctx.TestStarted = true

	s.resolveOutcome(st, ctx, event.ProcessStatus{Kind: event.Exited, Code: 4})

	assert.Equal(t, 1, ctx.TestStats.Crashed)
}

func TestResolveOutcomeTeardownAbnormalExitNotCrash(t *testing.T) {
	s, st, _ := newTestScheduler()
	ctx := newCtx(st, registry.Test{Identifier: "s/t"})
	ctx.TestStarted = true
	ctx.NormalFinish = true

	s.resolveOutcome(st, ctx, event.ProcessStatus{Kind: event.Exited, Code: 2})

	assert.Equal(t, 0, ctx.TestStats.Crashed)
}

func TestResolveOutcomeSetupAbnormalExitCrashes(t *testing.T) {
	s, st, _ := newTestScheduler()
	ctx := newCtx(st, registry.Test{Identifier: "s/t"})

	s.resolveOutcome(st, ctx, event.ProcessStatus{Kind: event.Exited, Code: 2})

	assert.Equal(t, 1, ctx.TestStats.Crashed)
}

func TestProducerSkipsDisabledAndFiltered(t *testing.T) {
	set := registry.Init(nil, []registry.Test{
		{Identifier: "s/a", Name: "a", Category: "s"},
		{Identifier: "s/b", Name: "b", Category: "s", Params: registry.Params{Disabled: true}},
		{Identifier: "s/c", Name: "c", Category: "s"},
	})

	var skipped []string
	match := matcherFunc(func(id string) bool { return id != "s/c" })
	p := newProducer(set, match, func(su registry.Suite, te registry.Test) {
		skipped = append(skipped, te.Identifier)
	})

	var got []string
	for {
		it, ok := p.next()
		if !ok {
			break
		}
		got = append(got, it.test.Identifier)
	}

	assert.Equal(t, []string{"s/a"}, got)
	assert.ElementsMatch(t, []string{"s/b", "s/c"}, skipped)
}

type matcherFunc func(string) bool

func (f matcherFunc) Match(identifier string) bool { return f(identifier) }

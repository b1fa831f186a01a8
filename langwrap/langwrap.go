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

// Package langwrap holds the language-wrapper dispatch table: one entry
// per language tag a test may declare, each responsible for driving that
// test's init hook, body, and fini hook inside the child process and
// emitting the lifecycle events as it goes.
package langwrap

import (
	"time"

	"github.com/coreos/ctrun/event"
	"github.com/coreos/ctrun/harness"
	"github.com/coreos/ctrun/registry"
)

// Emitter is the narrow child-side interface a wrapper uses to report
// lifecycle events as it drives one test (see worker.Emitter, which
// satisfies this).
type Emitter interface {
	Emit(kind event.Kind, payload interface{})
}

// Wrapper runs one test's init hook, body, and fini hook in order,
// emitting PRE_TEST/POST_TEST/POST_FINI as it goes. The body runs under a
// deferred recover so a fatal assertion can unwind into a TEST_ABORT
// event.
type Wrapper func(test registry.Test, suite registry.Suite, em Emitter)

// Table is the closed dispatch table indexed by registry.Lang. An unknown
// tag is a programmer error.
var Table = map[registry.Lang]Wrapper{
	registry.LangNative:       nativeWrap,
	registry.LangNativeCXXABI: cxxABIWrap,
}

func nativeWrap(test registry.Test, suite registry.Suite, em Emitter) {
	runWrapped(test, suite, em)
}

// cxxABIWrap exists for tests declared with the C++-ABI language tag. Go
// has no separate calling convention to patch around, so it is
// behaviorally identical to the native wrapper; it stays a distinct table
// entry so the tag set and the table keep the same shape.
func cxxABIWrap(test registry.Test, suite registry.Suite, em Emitter) {
	runWrapped(test, suite, em)
}

// runWrapped constructs the per-test harness.H bound to em, runs init,
// body, fini in order, and recovers a harness.AbortSignal panicked by
// h.Require/h.FailNow/h.SkipNow. A fatal assertion becomes a TEST_ABORT
// event; a runtime skip finishes the test normally instead. Any other
// panic propagates and becomes an abnormal child exit for the parent's
// outcome table to classify.
func runWrapped(test registry.Test, suite registry.Suite, em Emitter) {
	em.Emit(event.PreInit, nil)

	if test.Params.Init != nil {
		test.Params.Init()
	} else if suite.Params.Setup != nil {
		suite.Params.Setup()
	}

	h := harness.New(test.Identifier, em)

	start := time.Now()
	func() {
		defer func() {
			if r := recover(); r != nil {
				if as, ok := r.(harness.AbortSignal); ok {
					if h.Skipped() {
						em.Emit(event.PostTest, time.Since(start).Seconds())
						return
					}
					em.Emit(event.TestAbort, as.Reason)
					return
				}
				panic(r)
			}
		}()
		em.Emit(event.PreTest, nil)
		start = time.Now()
		if test.Func != nil {
			test.Func(h)
		}
		em.Emit(event.PostTest, time.Since(start).Seconds())
	}()

	if test.Params.Fini != nil {
		test.Params.Fini()
	} else if suite.Params.Teardown != nil {
		suite.Params.Teardown()
	}
	em.Emit(event.PostFini, nil)
}

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

// Package filter compiles the --pattern option into a matcher the
// scheduler consults to disable non-matching tests before any worker is
// spawned. Patterns compile as regexps by default, or match as globs via
// ryanuber/go-glob when the glob option is set.
package filter

import (
	"regexp"

	glob "github.com/ryanuber/go-glob"
	"github.com/pkg/errors"
)

// Matcher reports whether a fully-qualified test identifier should remain
// enabled.
type Matcher interface {
	Match(identifier string) bool
}

// regexpMatcher wraps a compiled *regexp.Regexp.
type regexpMatcher struct {
	re *regexp.Regexp
}

func (m regexpMatcher) Match(identifier string) bool {
	return m.re.MatchString(identifier)
}

// globMatcher wraps a glob pattern string, matched with ryanuber/go-glob.
type globMatcher struct {
	pattern string
}

func (m globMatcher) Match(identifier string) bool {
	return glob.Glob(m.pattern, identifier)
}

// Compile builds a Matcher from pattern. asGlob selects glob matching;
// otherwise pattern is compiled as a regexp. An empty pattern matches
// everything. A compile failure is a configuration error — the caller is
// expected to print the message and exit nonzero, never to treat it as a
// per-test failure.
func Compile(pattern string, asGlob bool) (Matcher, error) {
	if pattern == "" {
		return alwaysMatch{}, nil
	}
	if asGlob {
		return globMatcher{pattern: pattern}, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "filter: invalid pattern %q", pattern)
	}
	return regexpMatcher{re: re}, nil
}

type alwaysMatch struct{}

func (alwaysMatch) Match(string) bool { return true }

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

package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileEmptyPatternMatchesEverything(t *testing.T) {
	m, err := Compile("", false)
	require.NoError(t, err)
	assert.True(t, m.Match("anything/at/all"))
}

func TestCompileRegexp(t *testing.T) {
	m, err := Compile("^suite/test_.*$", false)
	require.NoError(t, err)
	assert.True(t, m.Match("suite/test_one"))
	assert.False(t, m.Match("suite/other"))
}

func TestCompileRegexpError(t *testing.T) {
	_, err := Compile("(unterminated", false)
	assert.Error(t, err)
}

func TestCompileGlob(t *testing.T) {
	m, err := Compile("suite/test_*", true)
	require.NoError(t, err)
	assert.True(t, m.Match("suite/test_one"))
	assert.False(t, m.Match("suite/other"))
}

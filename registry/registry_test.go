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

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitOrdersSuitesAndTests(t *testing.T) {
	suites := []Suite{{Name: "zeta"}, {Name: "alpha"}}
	tests := []Test{
		{Identifier: "zeta/b", Name: "b", Category: "zeta"},
		{Identifier: "zeta/a", Name: "a", Category: "zeta"},
		{Identifier: "alpha/c", Name: "c", Category: "alpha"},
	}

	set := Init(suites, tests)

	require.Equal(t, []Suite{{Name: "alpha"}, {Name: "zeta"}}, set.Suites())
	assert.Equal(t, []string{"a", "b"}, testNames(set.Tests("zeta")))
	assert.Equal(t, 3, set.Len())
}

func TestRegisterTestSkipsEmptyCategoryOrName(t *testing.T) {
	set := NewSet()
	set.RegisterTest(Test{Identifier: "x", Name: "", Category: "suite"})
	set.RegisterTest(Test{Identifier: "y", Name: "name", Category: ""})
	assert.Equal(t, 0, set.Len())
}

func TestRegisterTestDedupesByIdentifier(t *testing.T) {
	set := NewSet()
	set.RegisterTest(Test{Identifier: "s/t", Name: "t", Category: "s"})
	set.RegisterTest(Test{Identifier: "s/t", Name: "t", Category: "s"})
	assert.Equal(t, 1, set.Len())
}

func TestRegisterSuiteEmptyNameIgnored(t *testing.T) {
	set := NewSet()
	set.RegisterSuite(Suite{Name: ""})
	assert.Empty(t, set.Suites())
}

func TestRegisterSuiteReplacesParamsKeepsTests(t *testing.T) {
	set := NewSet()
	set.RegisterTest(Test{Identifier: "s/t", Name: "t", Category: "s"})
	set.RegisterSuite(Suite{Name: "s", Params: SuiteParams{Timeout: 5}})

	suites := set.Suites()
	require.Len(t, suites, 1)
	assert.Equal(t, 5.0, suites[0].Params.Timeout)
	assert.Len(t, set.Tests("s"), 1)
}

func TestWalkVisitsEveryPairInOrder(t *testing.T) {
	set := Init(nil, []Test{
		{Identifier: "s/b", Name: "b", Category: "s"},
		{Identifier: "s/a", Name: "a", Category: "s"},
	})

	var got []string
	set.Walk(func(su Suite, te Test) {
		got = append(got, su.Name+"/"+te.Name)
	})
	assert.Equal(t, []string{"s/a", "s/b"}, got)
}

func testNames(tests []Test) []string {
	names := make([]string, len(tests))
	for i, t := range tests {
		names[i] = t.Name
	}
	return names
}

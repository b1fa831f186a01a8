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

package options

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolvedJobsDetectsCPUCount(t *testing.T) {
	o := Options{}
	assert.Equal(t, runtime.NumCPU(), o.ResolvedJobs())
}

func TestResolvedJobsHonorsExplicitValue(t *testing.T) {
	o := Options{Jobs: 3}
	assert.Equal(t, 3, o.ResolvedJobs())
}

func TestApplyAnalyzerPolicy(t *testing.T) {
	o := Options{Jobs: 8}
	o.ApplyAnalyzerPolicy()
	assert.Equal(t, 1, o.Jobs)
	assert.True(t, o.NoEarlyExit)
}

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

package timeoutpolicy

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreos/ctrun/event"
)

func TestEffectiveTimeoutPrefersTest(t *testing.T) {
	assert.Equal(t, 5.0, EffectiveTimeout(5, 10))
	assert.Equal(t, 10.0, EffectiveTimeout(0, 10))
	assert.Equal(t, 0.0, EffectiveTimeout(0, 0))
}

func TestArmNoopOnNonPositiveTimeout(t *testing.T) {
	require.NoError(t, Arm(0))
	require.NoError(t, Arm(-1))
}

func TestIsTimeoutSignal(t *testing.T) {
	assert.True(t, IsTimeoutSignal(event.ProcessStatus{Kind: event.Signaled, Code: int(TimeoutSignal)}))
	assert.False(t, IsTimeoutSignal(event.ProcessStatus{Kind: event.Signaled, Code: int(syscall.SIGKILL)}))
	assert.False(t, IsTimeoutSignal(event.ProcessStatus{Kind: event.Exited, Code: int(TimeoutSignal)}))
}

func TestClassifyExited(t *testing.T) {
	status := Classify(syscall.WaitStatus(7 << 8))
	assert.Equal(t, event.Exited, status.Kind)
	assert.Equal(t, 7, status.Code)
}

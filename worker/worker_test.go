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

package worker

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreos/ctrun/event"
)

func TestIsChildReflectsEnvVar(t *testing.T) {
	require.NoError(t, os.Unsetenv(childEnvVar))
	assert.False(t, IsChild())

	require.NoError(t, os.Setenv(childEnvVar, "s/t"))
	defer os.Unsetenv(childEnvVar)
	assert.True(t, IsChild())

	id, ok := ChildTestIdentifier()
	assert.True(t, ok)
	assert.Equal(t, "s/t", id)
}

func TestEmitterWritesFramedEvents(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	em := NewEmitter(w)
	em.Emit(event.PreTest, nil)
	w.Close()

	dec := event.NewDecoder(r)
	ev, err := dec.Recv()
	require.NoError(t, err)
	assert.Equal(t, event.PreTest, ev.Kind)
	assert.Equal(t, os.Getpid(), ev.PID)
}

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

// Package pool implements the fixed-capacity worker slot array that
// bounds how many children are alive at once. Slot occupancy is gated by a
// golang.org/x/sync/semaphore weighted to the slot count, so Acquire
// doubles as the scheduler's back-pressure point.
package pool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Slot is one worker pool entry. Occupant is nil when the slot is empty.
type Slot struct {
	Occupant interface{}
}

// Pool is the fixed-capacity array of J worker slots.
type Pool struct {
	slots []Slot
	sem   *semaphore.Weighted
	cap   int64
}

// New returns a Pool sized to the job count.
func New(j int) *Pool {
	if j < 1 {
		j = 1
	}
	return &Pool{
		slots: make([]Slot, j),
		sem:   semaphore.NewWeighted(int64(j)),
		cap:   int64(j),
	}
}

// Cap returns the pool's fixed capacity J.
func (p *Pool) Cap() int {
	return int(p.cap)
}

// Acquire blocks until a slot is free, then returns its index with
// Occupant set to occupant. While every slot is busy the caller stalls
// here until a Release frees one.
func (p *Pool) Acquire(ctx context.Context, occupant interface{}) (int, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return -1, err
	}
	for i := range p.slots {
		if p.slots[i].Occupant == nil {
			p.slots[i].Occupant = occupant
			return i, nil
		}
	}
	// Unreachable under correct use: the semaphore's weight equals the
	// slot count, so an acquired token always implies a free slot.
	p.sem.Release(1)
	return -1, context.Canceled
}

// Release frees slot i, making it available to the next Acquire.
func (p *Pool) Release(i int) {
	p.slots[i].Occupant = nil
	p.sem.Release(1)
}

// At returns the current occupant of slot i, or nil if free.
func (p *Pool) At(i int) interface{} {
	return p.slots[i].Occupant
}

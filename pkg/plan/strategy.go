/*
Copyright The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package plan

import "sync/atomic"

// CandidateFilter reports whether the i'th child of a container should be
// excluded from candidacy this cycle - the hook PlanManager uses to thread
// dirty-asset exclusion down into a Strategy without the Strategy
// knowing anything about pods or offers.
type CandidateFilter func(i int) bool

func noFilter(int) bool { return false }

// Strategy decides which children of a Container are currently
// candidates for work, and supports interrupting/resuming that selection.
// This is a capability set, not a class hierarchy:
// every non-trivial implementation composes an *Interruptible rather than
// inheriting from a base strategy type.
type Strategy interface {
	GetCandidates(c Container, filter CandidateFilter) []int
	Interrupt()
	Proceed()
	IsInterrupted() bool
}

// Interruptible is the shared atomic-boolean mixin every interruptible
// strategy embeds by composition. interrupt()/proceed() are idempotent and
// safe under concurrent reads.
type Interruptible struct {
	interrupted atomic.Bool
}

// Interrupt marks the strategy interrupted. Idempotent.
func (i *Interruptible) Interrupt() {
	i.interrupted.Store(true)
}

// Proceed clears the interrupted flag. Idempotent.
func (i *Interruptible) Proceed() {
	i.interrupted.Store(false)
}

// IsInterrupted reports the current interrupted state.
func (i *Interruptible) IsInterrupted() bool {
	return i.interrupted.Load()
}

func candidateStatuses(s Status) bool {
	return s == StatusPending || s == StatusPrepared
}

// SerialStrategy selects only the first not-yet-complete child, advancing
// once it completes. ERROR children block it in place until an operator
// intervenes (restart/forceComplete).
type SerialStrategy struct {
	Interruptible
}

// NewSerialStrategy constructs a SerialStrategy.
func NewSerialStrategy() *SerialStrategy { return &SerialStrategy{} }

func (s *SerialStrategy) GetCandidates(c Container, filter CandidateFilter) []int {
	if filter == nil {
		filter = noFilter
	}
	if s.IsInterrupted() {
		return nil
	}
	for i := 0; i < c.Len(); i++ {
		st := c.ChildStatus(i)
		if st == StatusError {
			return nil
		}
		if st == StatusComplete {
			continue
		}
		if candidateStatuses(st) && !filter(i) {
			return []int{i}
		}
		return nil
	}
	return nil
}

// ParallelStrategy selects every PENDING or PREPARED child at once.
type ParallelStrategy struct {
	Interruptible
}

// NewParallelStrategy constructs a ParallelStrategy.
func NewParallelStrategy() *ParallelStrategy { return &ParallelStrategy{} }

func (s *ParallelStrategy) GetCandidates(c Container, filter CandidateFilter) []int {
	if filter == nil {
		filter = noFilter
	}
	if s.IsInterrupted() {
		return nil
	}
	var out []int
	for i := 0; i < c.Len(); i++ {
		if candidateStatuses(c.ChildStatus(i)) && !filter(i) {
			out = append(out, i)
		}
	}
	return out
}

// SerialWithErrorsStrategy behaves like SerialStrategy but skips ERROR
// children rather than blocking at them.
type SerialWithErrorsStrategy struct {
	Interruptible
}

// NewSerialWithErrorsStrategy constructs a SerialWithErrorsStrategy.
func NewSerialWithErrorsStrategy() *SerialWithErrorsStrategy { return &SerialWithErrorsStrategy{} }

func (s *SerialWithErrorsStrategy) GetCandidates(c Container, filter CandidateFilter) []int {
	if filter == nil {
		filter = noFilter
	}
	if s.IsInterrupted() {
		return nil
	}
	for i := 0; i < c.Len(); i++ {
		st := c.ChildStatus(i)
		if st == StatusComplete || st == StatusError {
			continue
		}
		if candidateStatuses(st) && !filter(i) {
			return []int{i}
		}
		return nil
	}
	return nil
}

// ParallelWithErrorsStrategy selects every PENDING or PREPARED child at
// once, skipping ERROR children. Its selection is the same as
// ParallelStrategy's, since neither ever selects an ERROR child.
type ParallelWithErrorsStrategy struct {
	Interruptible
}

// NewParallelWithErrorsStrategy constructs a ParallelWithErrorsStrategy.
func NewParallelWithErrorsStrategy() *ParallelWithErrorsStrategy {
	return &ParallelWithErrorsStrategy{}
}

func (s *ParallelWithErrorsStrategy) GetCandidates(c Container, filter CandidateFilter) []int {
	if filter == nil {
		filter = noFilter
	}
	if s.IsInterrupted() {
		return nil
	}
	var out []int
	for i := 0; i < c.Len(); i++ {
		st := c.ChildStatus(i)
		if st == StatusError {
			continue
		}
		if candidateStatuses(st) && !filter(i) {
			out = append(out, i)
		}
	}
	return out
}

// DependencyStrategy selects children whose declared predecessors are all
// COMPLETE. Predecessors are expressed as child indices, matching the
// container's own child ordering.
type DependencyStrategy struct {
	Interruptible
	Predecessors map[int][]int
}

// NewDependencyStrategy constructs a DependencyStrategy from an explicit
// predecessor graph (child index -> indices that must be COMPLETE first).
func NewDependencyStrategy(predecessors map[int][]int) *DependencyStrategy {
	return &DependencyStrategy{Predecessors: predecessors}
}

func (s *DependencyStrategy) GetCandidates(c Container, filter CandidateFilter) []int {
	if filter == nil {
		filter = noFilter
	}
	if s.IsInterrupted() {
		return nil
	}
	var out []int
	for i := 0; i < c.Len(); i++ {
		st := c.ChildStatus(i)
		if !candidateStatuses(st) || filter(i) {
			continue
		}
		ready := true
		for _, p := range s.Predecessors[i] {
			if c.ChildStatus(p) != StatusComplete {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, i)
		}
	}
	return out
}

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

import (
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/uuid"
)

// Phase is an ordered list of Steps plus a Strategy governing which of
// them are currently candidates for work.
type Phase struct {
	id       types.UID
	name     string
	steps    []*Step
	strategy Strategy
}

// NewPhase constructs a Phase with the given steps, in order, and strategy.
func NewPhase(name string, steps []*Step, strategy Strategy) *Phase {
	return &Phase{
		id:       uuid.NewUUID(),
		name:     name,
		steps:    steps,
		strategy: strategy,
	}
}

// ID returns the phase's unique identifier.
func (p *Phase) ID() types.UID { return p.id }

// Name returns the phase's display name.
func (p *Phase) Name() string { return p.name }

// Steps returns the phase's steps in declared order.
func (p *Phase) Steps() []*Step { return p.steps }

// Step returns the step with the given id, if present in this phase.
func (p *Phase) Step(id types.UID) *Step {
	for _, s := range p.steps {
		if s.ID() == id {
			return s
		}
	}
	return nil
}

// Status derives the phase's status by joining its steps' statuses under
// its strategy.
func (p *Phase) Status() Status {
	statuses := make([]Status, len(p.steps))
	for i, s := range p.steps {
		statuses[i] = s.Status()
	}
	return Join(p.strategy.IsInterrupted(), statuses)
}

// Candidates returns the steps the phase's strategy currently selects,
// excluding any whose pod asset the filter marks dirty. The WAITING
// sub-state of every step tracks the strategy's interruption here: set
// while interrupted, cleared again the first call after Proceed.
func (p *Phase) Candidates(filter CandidateFilter) []*Step {
	interrupted := p.strategy.IsInterrupted()
	p.setStepsWaiting(interrupted)
	if interrupted {
		return nil
	}
	idx := p.strategy.GetCandidates(stepsContainer(p.steps), filter)
	out := make([]*Step, 0, len(idx))
	for _, i := range idx {
		out = append(out, p.steps[i])
	}
	return out
}

func (p *Phase) setStepsWaiting(waiting bool) {
	for _, s := range p.steps {
		s.SetWaiting(waiting)
	}
}

// Interrupt interrupts the phase's strategy.
func (p *Phase) Interrupt() { p.strategy.Interrupt() }

// Proceed resumes the phase's strategy.
func (p *Phase) Proceed() { p.strategy.Proceed() }

// IsInterrupted reports the phase's strategy interruption state.
func (p *Phase) IsInterrupted() bool { return p.strategy.IsInterrupted() }

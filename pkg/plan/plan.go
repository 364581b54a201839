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

	"github.com/mesosphere/dcos-plan-scheduler/pkg/specmodel"
)

// Plan is the top-level ordered list of Phases plus a Strategy.
type Plan struct {
	id       types.UID
	name     string
	phases   []*Phase
	strategy Strategy
}

// NewPlan constructs a Plan with the given phases, in order, and strategy.
func NewPlan(name string, phases []*Phase, strategy Strategy) *Plan {
	return &Plan{
		id:       uuid.NewUUID(),
		name:     name,
		phases:   phases,
		strategy: strategy,
	}
}

// ID returns the plan's unique identifier.
func (p *Plan) ID() types.UID { return p.id }

// Name returns the plan's display name.
func (p *Plan) Name() string { return p.name }

// Phases returns the plan's phases in declared order.
func (p *Plan) Phases() []*Phase { return p.phases }

// Status derives the plan's status by joining its phases' statuses under
// its strategy.
func (p *Plan) Status() Status {
	statuses := make([]Status, len(p.phases))
	for i, ph := range p.phases {
		statuses[i] = ph.Status()
	}
	return Join(p.strategy.IsInterrupted(), statuses)
}

// Candidates returns the ordered union of candidate steps across every
// phase the plan's strategy currently selects, with assetFilter applied at
// the step level so dirty (pod, index) assets are excluded regardless of
// which phase they live in.
func (p *Plan) Candidates(assetFilter func(specmodel.PodInstance) bool) []*Step {
	if p.strategy.IsInterrupted() {
		for _, ph := range p.phases {
			ph.setStepsWaiting(true)
		}
		return nil
	}

	// Sync every step's WAITING sub-state before deriving phase statuses,
	// so a just-resumed plan doesn't see stale WAITING steps and skip the
	// phase this cycle.
	for _, ph := range p.phases {
		ph.setStepsWaiting(ph.IsInterrupted())
	}

	phaseIdx := p.strategy.GetCandidates(phasesContainer(p.phases), noFilter)
	var out []*Step
	for _, i := range phaseIdx {
		ph := p.phases[i]
		stepFilter := func(j int) bool {
			if assetFilter == nil {
				return false
			}
			return assetFilter(ph.steps[j].Pod())
		}
		out = append(out, ph.Candidates(stepFilter)...)
	}
	return out
}

// Step looks up a step by (phaseID, stepID) anywhere in the plan.
func (p *Plan) Step(phaseID, stepID types.UID) *Step {
	for _, ph := range p.phases {
		if ph.ID() != phaseID {
			continue
		}
		return ph.Step(stepID)
	}
	return nil
}

// AllSteps returns every step in the plan, across all phases, in order.
func (p *Plan) AllSteps() []*Step {
	var out []*Step
	for _, ph := range p.phases {
		out = append(out, ph.Steps()...)
	}
	return out
}

// Update delivers a TaskStatus to the step (if any) whose task-ids include
// its task-id.
func (p *Plan) Update(taskID specmodel.TaskID, apply func(*Step)) {
	for _, ph := range p.phases {
		for _, s := range ph.Steps() {
			if s.TaskIDs().Has(taskID) {
				apply(s)
			}
		}
	}
}

// Interrupt interrupts the plan's top-level strategy. In-flight operations
// already dispatched to the driver are unaffected; already-STARTING steps
// are not rolled back.
func (p *Plan) Interrupt() { p.strategy.Interrupt() }

// Proceed resumes the plan's top-level strategy.
func (p *Plan) Proceed() { p.strategy.Proceed() }

// IsInterrupted reports the plan's top-level interruption state.
func (p *Plan) IsInterrupted() bool { return p.strategy.IsInterrupted() }

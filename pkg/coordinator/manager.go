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

// Package coordinator implements the PlanManager and PlanCoordinator of
// routing task-status updates to the right Step, and
// multiplexing multiple PlanManagers across one offer batch.
package coordinator

import (
	"sync"

	"k8s.io/apimachinery/pkg/types"

	"github.com/mesosphere/dcos-plan-scheduler/pkg/offer"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/plan"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/specmodel"
)

// StatusObserver is notified whenever a PlanManager's plan's derived
// status changes. Observers are supplied explicitly through constructors
// and Subscribe; there is no ambient publish/subscribe mechanism.
type StatusObserver func(planName string, status plan.Status)

// PlanManager owns exactly one Plan.
type PlanManager struct {
	mu        sync.Mutex
	plan      *plan.Plan
	observers []StatusObserver
	lastSeen  plan.Status
}

// NewPlanManager constructs a PlanManager owning p.
func NewPlanManager(p *plan.Plan) *PlanManager {
	return &PlanManager{plan: p, lastSeen: p.Status()}
}

// GetPlan returns the owned plan.
func (m *PlanManager) GetPlan() *plan.Plan {
	return m.plan
}

// Subscribe registers an observer notified on every future status change.
func (m *PlanManager) Subscribe(obs StatusObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, obs)
}

// GetCandidates returns the ordered union of candidate steps across every
// phase the plan's strategy selects, excluding any step whose (pod, index)
// asset appears in dirty.
func (m *PlanManager) GetCandidates(dirty map[specmodel.PodInstance]bool) []*plan.Step {
	return m.plan.Candidates(func(pi specmodel.PodInstance) bool { return dirty[pi] })
}

// Update delivers a TaskStatus to whichever step owns its task-id, then
// notifies observers if the plan's derived status changed as a result.
func (m *PlanManager) Update(ts offer.TaskStatus) {
	m.plan.Update(ts.TaskID, func(s *plan.Step) { s.Update(ts) })
	m.notifyIfChanged()
}

// Restart issues an admin restart to one step.
func (m *PlanManager) Restart(phaseID, stepID types.UID) {
	if s := m.plan.Step(phaseID, stepID); s != nil {
		s.Restart()
	}
	m.notifyIfChanged()
}

// ForceComplete issues an admin force-complete to one step.
func (m *PlanManager) ForceComplete(phaseID, stepID types.UID) {
	if s := m.plan.Step(phaseID, stepID); s != nil {
		s.ForceComplete()
	}
	m.notifyIfChanged()
}

// Interrupt interrupts the owned plan.
func (m *PlanManager) Interrupt() {
	m.plan.Interrupt()
	m.notifyIfChanged()
}

// Proceed resumes the owned plan.
func (m *PlanManager) Proceed() {
	m.plan.Proceed()
	m.notifyIfChanged()
}

// IsInterrupted reports the owned plan's interruption state.
func (m *PlanManager) IsInterrupted() bool {
	return m.plan.IsInterrupted()
}

// HasOperations reports whether the owned plan still has work to do: its
// status is neither COMPLETE nor WAITING.
func (m *PlanManager) HasOperations() bool {
	st := m.plan.Status()
	return st != plan.StatusComplete && st != plan.StatusWaiting
}

func (m *PlanManager) notifyIfChanged() {
	m.mu.Lock()
	current := m.plan.Status()
	changed := current != m.lastSeen
	m.lastSeen = current
	observers := append([]StatusObserver(nil), m.observers...)
	m.mu.Unlock()

	if !changed {
		return
	}
	for _, obs := range observers {
		obs(m.plan.Name(), current)
	}
}

// NotifyExternalChange re-evaluates the plan's status and notifies
// observers if it moved since the last check. PlanCoordinator calls this
// after every processOffers cycle since a step transition (e.g.
// PREPARED->STARTING) does not otherwise route through one of the
// mutator methods above.
func (m *PlanManager) NotifyExternalChange() {
	m.notifyIfChanged()
}

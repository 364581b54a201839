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
	"fmt"
	"sync"

	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/uuid"

	"github.com/mesosphere/dcos-plan-scheduler/pkg/offer"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/specmodel"
)

// RequirementBuilder produces the OfferRequirement for a Step the first
// time it is started. Implementations must be safe to call more than once
// and return an equivalent requirement.
type RequirementBuilder interface {
	BuildOfferRequirement() (*offer.OfferRequirement, error)
}

// Step is the smallest unit of work: it owns the lifecycle state machine and,
// once PREPARED, exposes an OfferRequirement a PlanScheduler can match
// offers against.
type Step struct {
	mu sync.Mutex

	id      types.UID
	name    string
	pod     specmodel.PodInstance
	taskIDs sets.Set[specmodel.TaskID]
	target  specmodel.ConfigTarget
	builder RequirementBuilder

	status      Status
	waiting     bool
	requirement *offer.OfferRequirement
	launchedIDs sets.Set[specmodel.TaskID]
	lastErr     error
}

// NewStep constructs a PENDING step for the given pod asset, task-ids, and
// target generation. taskIDs must be non-empty and unique across every
// other live Step; neither NewStep nor NewPhase/NewPlan checks this, so
// callers derive distinct task-ids themselves.
func NewStep(name string, pod specmodel.PodInstance, taskIDs []specmodel.TaskID, target specmodel.ConfigTarget, builder RequirementBuilder) *Step {
	return &Step{
		id:      uuid.NewUUID(),
		name:    name,
		pod:     pod,
		taskIDs: sets.New(taskIDs...),
		target:  target,
		builder: builder,
		status:  StatusPending,
	}
}

// ID returns the step's unique identifier.
func (s *Step) ID() types.UID {
	return s.id
}

// Name returns the step's display name.
func (s *Step) Name() string {
	return s.name
}

// Pod returns the (pod type, index) asset this step acts on.
func (s *Step) Pod() specmodel.PodInstance {
	return s.pod
}

// TaskIDs returns the task-ids this step is responsible for.
func (s *Step) TaskIDs() sets.Set[specmodel.TaskID] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taskIDs.Clone()
}

// Target returns the ConfigTarget this step was created against.
func (s *Step) Target() specmodel.ConfigTarget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Status returns the step's current primitive status, WAITING taking
// precedence when the owning strategy has interrupted it.
func (s *Step) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.waiting && s.status != StatusComplete && s.status != StatusError {
		return StatusWaiting
	}
	return s.status
}

// SetWaiting marks or clears the WAITING sub-state. Owned by the
// container's Strategy, never by the Step itself.
func (s *Step) SetWaiting(waiting bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiting = waiting
}

// Start is called at most once per PENDING->PREPARED transition. Re-
// invoking it after a prior call returned a requirement is a no-op that
// returns the same requirement; re-invoking after a prior nil return asks
// the builder again.
func (s *Step) Start() (*offer.OfferRequirement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusPending {
		if s.status == StatusPrepared {
			return s.requirement, nil
		}
		return nil, nil
	}

	req, err := s.builder.BuildOfferRequirement()
	if err != nil {
		s.status = StatusError
		s.lastErr = err
		return nil, err
	}
	if req == nil {
		return nil, nil
	}

	s.requirement = req
	s.status = StatusPrepared
	return req, nil
}

// UpdateOfferStatus records the result of a PlanScheduler cycle against
// this step's requirement. A non-empty accepted set transitions
// PREPARED->STARTING and is remembered as the launched task-ids; an empty
// or nil set leaves the step PREPARED so it is retried on a later offer.
func (s *Step) UpdateOfferStatus(accepted sets.Set[specmodel.TaskID]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusPrepared {
		return nil
	}
	if accepted == nil || accepted.Len() == 0 {
		return nil
	}
	s.launchedIDs = accepted.Clone()
	s.status = StatusStarting
	return nil
}

// Update applies a TaskStatus to this step. It transitions STARTING to
// COMPLETE on an acceptable terminal/running status, and any state to
// PENDING on a config-target mismatch (a rollout). Update never moves a
// step to ERROR; only a failing RequirementBuilder in Start does. A status
// for a task-id this step does not own is ignored.
func (s *Step) Update(ts offer.TaskStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.taskIDs.Has(ts.TaskID) {
		return
	}

	if ts.Target != "" && ts.Target != s.target {
		s.status = StatusPending
		s.launchedIDs = nil
		return
	}

	switch s.status {
	case StatusStarting:
		if ts.State.IsRunning() || ts.State == offer.TaskFinished {
			if s.launchedIDs == nil || s.allLaunchedSatisfied(ts) {
				s.status = StatusComplete
			}
		} else if ts.State.IsTerminal() {
			// A terminal-but-not-finished status (failed/killed/error) while
			// STARTING means the launch didn't take; fall back to PENDING so
			// the next offer cycle retries it. Permanent-failure handling
			// lives in the recovery plan, not here.
			s.status = StatusPending
			s.launchedIDs = nil
		}
	case StatusPrepared:
		// A status for a task we haven't recorded as launched yet (e.g. a
		// stale duplicate from a previous generation) is ignored rather
		// than regressing an already-PREPARED step.
	}
}

func (s *Step) allLaunchedSatisfied(ts offer.TaskStatus) bool {
	// This step is COMPLETE once every task-id it launched has reported
	// running/finished at least once: each reporting id is struck from
	// launchedIDs, and the step completes when none are left.
	s.launchedIDs.Delete(ts.TaskID)
	return s.launchedIDs.Len() == 0
}

// Restart is an explicit admin transition back to PENDING, discarding any
// in-flight requirement so the next cycle rebuilds it from scratch.
func (s *Step) Restart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusPending
	s.requirement = nil
	s.launchedIDs = nil
	s.lastErr = nil
}

// ForceComplete is an explicit admin transition to COMPLETE, skipping
// whatever state the step was in.
func (s *Step) ForceComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusComplete
}

// SetTarget updates the target this step is pinned to. If the new target
// differs from the current one and the step is COMPLETE, it resets to
// PENDING (a rollout).
func (s *Step) SetTarget(target specmodel.ConfigTarget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if target == s.target {
		return
	}
	s.target = target
	if s.status == StatusComplete {
		s.status = StatusPending
		s.requirement = nil
		s.launchedIDs = nil
	}
}

// Err returns the error that drove this step to ERROR, if any.
func (s *Step) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Step) String() string {
	return fmt.Sprintf("Step(%s, pod=%s/%d, status=%s)", s.name, s.pod.Type, s.pod.Index, s.Status())
}

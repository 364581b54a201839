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

// Package events is the publishing seam for everything the engine wants to
// tell the outside world about: accepted operations and plan status
// transitions. It satisfies evaluator.OperationRecorder and
// coordinator.StatusObserver structurally - Go interfaces don't require an
// import to be implemented - so this stays the one place new sinks
// (logging, metrics, a message bus) get added without evaluator or
// coordinator needing to know about any of them.
package events

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/mesosphere/dcos-plan-scheduler/pkg/metrics"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/offer"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/plan"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/specmodel"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/statestore"
)

// Recorder fans accepted operations and plan status changes out to
// structured logs, Prometheus counters, and the persistent state store.
type Recorder struct {
	log   logr.Logger
	store statestore.StateStore
}

// NewRecorder constructs a Recorder. store may be nil, in which case
// accepted launches are logged and counted but not persisted.
func NewRecorder(log logr.Logger, store statestore.StateStore) *Recorder {
	return &Recorder{log: log, store: store}
}

// RecordOperation implements evaluator.OperationRecorder: it counts the
// operation by type and, for a LAUNCH, persists the task's requirement
// shape so a restart can rebuild the reconciler's known-task-id set.
func (r *Recorder) RecordOperation(ctx context.Context, rec offer.Recommendation) error {
	metrics.OperationsAccepted.WithLabelValues(string(rec.Operation)).Inc()
	correlationID := uuid.New().String()
	r.log.V(1).Info("operation accepted", "operation", rec.Operation, "offer", rec.Offer.ID, "correlationID", correlationID)

	if rec.Operation != offer.Launch || rec.TaskInfo == nil || r.store == nil {
		return nil
	}
	req := offer.OfferRequirement{
		Pod:    specmodel.PodInstance{Type: rec.TaskInfo.Pod},
		Tasks:  []offer.TaskInfo{*rec.TaskInfo},
		Target: rec.TaskInfo.Target,
	}
	return r.store.PutRequirement(ctx, rec.TaskInfo.TaskID, req)
}

// allPlanStatuses enumerates every plan.Status value for the metrics
// zeroing pass in ObservePlanStatus.
var allPlanStatuses = []string{
	string(plan.StatusPending),
	string(plan.StatusPrepared),
	string(plan.StatusStarting),
	string(plan.StatusInProgress),
	string(plan.StatusWaiting),
	string(plan.StatusComplete),
	string(plan.StatusError),
}

// ObservePlanStatus implements coordinator.StatusObserver: it logs and
// records a plan's derived status transition.
func (r *Recorder) ObservePlanStatus(planName string, status plan.Status) {
	r.log.Info("plan status changed", "plan", planName, "status", status)
	metrics.SetPlanStatus(planName, string(status), allPlanStatuses)
}

// SnapshotPlan refreshes the per-step status gauges for every step in p.
// Called after each offer cycle, where step transitions happen without
// routing through a PlanManager mutator.
func (r *Recorder) SnapshotPlan(p *plan.Plan) {
	for _, ph := range p.Phases() {
		for _, s := range ph.Steps() {
			metrics.SetStepStatus(p.Name(), ph.Name(), s.Name(), string(s.Status()), allPlanStatuses)
		}
	}
}

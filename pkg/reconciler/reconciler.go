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

// Package reconciler implements the task-status reconciliation protocol:
// tracking which task-ids the framework knows about but has not
// yet had confirmed by the cluster, and gating launches until that set is
// resolved.
package reconciler

import (
	"context"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"

	"github.com/mesosphere/dcos-plan-scheduler/pkg/metrics"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/offer"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/specmodel"
)

// TaskLister loads the set of task-ids the framework currently knows
// about from the persistent task store.
type TaskLister interface {
	KnownTaskIDs(ctx context.Context) ([]specmodel.TaskID, error)
}

// ReconcilingDriver is the subset of the driver boundary the reconciler
// needs.
type ReconcilingDriver interface {
	ReconcileTasks(ctx context.Context, taskIDs []specmodel.TaskID) error
}

// Reconciler tracks the set of task-ids whose state has not yet been
// confirmed by a non-lost TaskStatus from the cluster, and gates launch
// activity until that confirmation is complete.
type Reconciler struct {
	mu             sync.Mutex
	remaining      sets.Set[specmodel.TaskID]
	implicitDone   bool
	lastExplicitAt time.Time
	backoff        time.Duration
	clock          clock.Clock
	driver         ReconcilingDriver
}

// New constructs a Reconciler. backoff is the minimum interval between
// explicit reconcile requests for the same still-outstanding set.
func New(driver ReconcilingDriver, clk clock.Clock, backoff time.Duration) *Reconciler {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Reconciler{
		remaining: sets.New[specmodel.TaskID](),
		driver:    driver,
		clock:     clk,
		backoff:   backoff,
	}
}

// Start loads the known task-ids from the state store into remaining and
// resets implicitDone.
func (r *Reconciler) Start(ctx context.Context, lister TaskLister) error {
	ids, err := lister.KnownTaskIDs(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining = sets.New(ids...)
	r.implicitDone = false
	r.lastExplicitAt = time.Time{}
	metrics.ReconciliationOutstanding.Set(float64(r.remaining.Len()))
	return nil
}

// Reconcile asks the driver to reconcile the outstanding task-ids
// (explicit) if any remain and the backoff interval has elapsed, or
// issues a single empty reconciliation request (implicit, per Mesos
// documentation) once remaining has drained and no implicit request has
// been sent yet.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	r.mu.Lock()
	var (
		doExplicit bool
		doImplicit bool
		ids        []specmodel.TaskID
	)
	now := r.clock.Now()
	if r.remaining.Len() > 0 {
		if now.Sub(r.lastExplicitAt) >= r.backoff {
			doExplicit = true
			ids = r.remaining.UnsortedList()
			r.lastExplicitAt = now
		}
	} else if !r.implicitDone {
		doImplicit = true
	}
	r.mu.Unlock()

	if doExplicit {
		return r.driver.ReconcileTasks(ctx, ids)
	}
	if doImplicit {
		if err := r.driver.ReconcileTasks(ctx, nil); err != nil {
			return err
		}
		r.mu.Lock()
		r.implicitDone = true
		r.mu.Unlock()
	}
	return nil
}

// Update removes the status's task-id from remaining once the cluster has
// reported any state other than TASK_LOST for it. A non-terminal status
// (e.g. RUNNING) counts as confirmation just as a terminal one does: the framework's uncertainty was about
// whether the cluster knows the task at all, not about its lifecycle
// state, so any status at all resolves it except TASK_LOST, which the
// cluster may re-report without implying the id is now known-confirmed.
func (r *Reconciler) Update(ts offer.TaskStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ts.State == offer.TaskLost {
		return
	}
	r.remaining.Delete(ts.TaskID)
	metrics.ReconciliationOutstanding.Set(float64(r.remaining.Len()))
}

// IsReconciled reports whether the implicit request has been sent and no
// task-ids remain outstanding.
func (r *Reconciler) IsReconciled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.implicitDone && r.remaining.Len() == 0
}

// ForceComplete empties remaining and marks the implicit request done,
// for admin/test use when the operator is confident the cluster state is
// already consistent.
func (r *Reconciler) ForceComplete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining = sets.New[specmodel.TaskID]()
	r.implicitDone = true
	metrics.ReconciliationOutstanding.Set(0)
}

// Remaining returns a snapshot of the still-outstanding task-ids.
func (r *Reconciler) Remaining() []specmodel.TaskID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining.UnsortedList()
}

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

package recovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/uuid"
	"k8s.io/utils/clock"

	"github.com/mesosphere/dcos-plan-scheduler/pkg/coordinator"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/metrics"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/offer"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/plan"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/specmodel"
)

// FailingTask describes one task the state store reports as not in a
// healthy run state.
type FailingTask struct {
	TaskID       specmodel.TaskID
	Pod          specmodel.PodInstance
	Target       specmodel.ConfigTarget
	FailingSince time.Time
	// OriginalRequirement is the requirement the task was last launched
	// with; a transient recovery step relaunches it unchanged, a
	// permanent one derives a fresh reservation from it.
	OriginalRequirement offer.OfferRequirement
}

// FailureScanner reports the current set of failing tasks, e.g. by
// reading the persistent task store.
type FailureScanner interface {
	ScanFailingTasks(ctx context.Context) ([]FailingTask, error)
}

// RecoveryPlanManager synthesizes and owns a recovery Plan from observed
// task failures. It regenerates the plan whenever the failing-task
// set changes, preserving already in-flight steps by id rather than
// recreating them.
type RecoveryPlanManager struct {
	mu sync.Mutex

	scanner     FailureScanner
	monitor     FailureMonitor
	constrainer LaunchConstrainer
	clock       clock.Clock
	log         logr.Logger

	manager  *coordinator.PlanManager
	builders map[specmodel.TaskID]*recoveryStepBuilder
}

// Config bundles the constructor arguments for NewRecoveryPlanManager.
type Config struct {
	Scanner          FailureScanner
	Monitor          FailureMonitor
	PermanentTimeout time.Duration
	Constrainer      LaunchConstrainer
	Clock            clock.Clock
	Log              logr.Logger
}

// NewRecoveryPlanManager constructs a RecoveryPlanManager with an initially
// empty recovery plan.
func NewRecoveryPlanManager(cfg Config) *RecoveryPlanManager {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Constrainer == nil {
		cfg.Constrainer = UnconstrainedLaunchConstrainer{}
	}
	if cfg.Monitor == nil {
		cfg.Monitor = TimedFailureMonitor{Timeout: 20 * time.Minute}
	}
	cfg.Monitor = resolveFailureMonitor(cfg.Monitor, cfg.PermanentTimeout, cfg.Log)

	empty := plan.NewPlan("recovery", nil, plan.NewParallelWithErrorsStrategy())
	return &RecoveryPlanManager{
		scanner:     cfg.Scanner,
		monitor:     cfg.Monitor,
		constrainer: cfg.Constrainer,
		clock:       cfg.Clock,
		log:         cfg.Log,
		manager:     coordinator.NewPlanManager(empty),
		builders:    map[specmodel.TaskID]*recoveryStepBuilder{},
	}
}

// Manager returns the coordinator.PlanManager wrapping the recovery plan,
// for registration with a PlanCoordinator.
func (r *RecoveryPlanManager) Manager() *coordinator.PlanManager {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.manager
}

// Refresh rescans for failing tasks and regenerates the recovery plan if
// the failing set changed. Steps for tasks that are still failing keep
// their identity (and therefore their in-flight state) across
// regenerations; steps for tasks that recovered are dropped.
func (r *RecoveryPlanManager) Refresh(ctx context.Context) error {
	failing, err := r.scanner.ScanFailingTasks(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing := map[specmodel.TaskID]*plan.Step{}
	for _, s := range r.manager.GetPlan().AllSteps() {
		for id := range s.TaskIDs() {
			existing[id] = s
		}
	}

	now := r.clock.Now()
	steps := make([]*plan.Step, 0, len(failing))
	seen := map[types.UID]bool{}
	stillFailing := map[specmodel.TaskID]bool{}
	for _, ft := range failing {
		stillFailing[ft.TaskID] = true
		permanent := r.monitor.IsPermanent(ft.FailingSince, now)
		if s, ok := existing[ft.TaskID]; ok {
			// An in-flight step keeps its identity across regenerations. A
			// step still waiting for an offer is rebuilt when the monitor
			// has since declared the failure permanent, so the relaunch
			// picks up the destroy-then-fresh-reserve path.
			st := s.Status()
			b := r.builders[ft.TaskID]
			upgrade := permanent && (b == nil || !b.permanent) &&
				(st == plan.StatusPending || st == plan.StatusPrepared)
			if !upgrade {
				if !seen[s.ID()] {
					steps = append(steps, s)
					seen[s.ID()] = true
				}
				continue
			}
			r.log.Info("escalating failed task to permanent recovery", "task", ft.TaskID, "pod", fmt.Sprintf("%s/%d", ft.Pod.Type, ft.Pod.Index))
		}
		builder := &recoveryStepBuilder{
			task:        ft,
			permanent:   permanent,
			constrainer: r.constrainer,
			clock:       r.clock,
		}
		r.builders[ft.TaskID] = builder
		name := fmt.Sprintf("recover-%s-%s/%d", ft.TaskID, ft.Pod.Type, ft.Pod.Index)
		step := plan.NewStep(name, ft.Pod, []specmodel.TaskID{ft.TaskID}, ft.Target, builder)
		steps = append(steps, step)
	}
	for id := range r.builders {
		if !stillFailing[id] {
			delete(r.builders, id)
		}
	}

	phase := plan.NewPhase("recovery", steps, plan.NewParallelWithErrorsStrategy())
	newPlan := plan.NewPlan("recovery", []*plan.Phase{phase}, plan.NewParallelWithErrorsStrategy())
	r.manager = coordinator.NewPlanManager(newPlan)
	metrics.RecoveryStepsActive.Set(float64(len(steps)))
	return nil
}

// recoveryStepBuilder produces the OfferRequirement for a recovery step:
// a relaunch-in-place for a transient failure, or a
// destroy-then-fresh-reservation sequence for a permanent one.
type recoveryStepBuilder struct {
	task        FailingTask
	permanent   bool
	constrainer LaunchConstrainer
	clock       clock.Clock
}

// BuildOfferRequirement implements plan.RequirementBuilder.
func (b *recoveryStepBuilder) BuildOfferRequirement() (*offer.OfferRequirement, error) {
	if !b.permanent && !b.constrainer.CanLaunch(b.clock.Now()) {
		// The rate limiter has nothing to allow right now; surface this as
		// "not ready yet" by returning a nil requirement, same as a Step
		// whose builder has no offer to make this cycle.
		return nil, nil
	}

	req := b.task.OriginalRequirement
	if b.permanent {
		// Fresh reservation: new task-ids, and the old reservation's
		// resources are destroyed/unreserved before the new one is made.
		req.DestroyPriorReservation = resourcesOf(b.task.OriginalRequirement)
		req.Tasks = append([]offer.TaskInfo(nil), req.Tasks...)
		for i := range req.Tasks {
			req.Tasks[i].TaskID = specmodel.TaskID(fmt.Sprintf("%s-%s", req.Tasks[i].TaskID, uuid.NewUUID()))
		}
	}
	return &req, nil
}

// resourcesOf derives the resource slice of a previously-launched
// requirement's persistent-volume reservation, for the DESTROY/UNRESERVE
// pass ahead of a permanent-failure relaunch.
func resourcesOf(req offer.OfferRequirement) []offer.Resource {
	var out []offer.Resource
	for _, v := range req.Volumes {
		if len(v.Size) == 0 {
			out = append(out, offer.Resource{
				Name:     corev1.ResourceStorage,
				Reserved: true,
				DiskInfo: &offer.DiskInfo{PersistenceID: v.Name, Created: true},
			})
			continue
		}
		for name, qty := range v.Size {
			out = append(out, offer.Resource{
				Name:     name,
				Quantity: qty,
				Reserved: true,
				DiskInfo: &offer.DiskInfo{PersistenceID: v.Name, Created: true},
			})
		}
	}
	return out
}

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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"
	"sigs.k8s.io/yaml"

	internallog "github.com/mesosphere/dcos-plan-scheduler/internal/log"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/coordinator"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/deploy"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/driver"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/evaluator"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/events"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/executor"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/offer"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/reconciler"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/recovery"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/specmodel"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/statestore"
)

type options struct {
	role                       string
	principal                  string
	serviceSpecPath            string
	reconcileBackoff           time.Duration
	permanentFailureTimeoutSec int64
	minLaunchIntervalSec       int64
	develop                    bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "dcos-plan-scheduler",
		Short: "Plan-driven offer dispatch engine for a Mesos-style cluster manager.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.role, "role", "dcos-plan-scheduler", "resource role reserved for this framework")
	flags.StringVar(&opts.principal, "principal", "dcos-plan-scheduler-principal", "authentication principal used to reserve resources")
	flags.StringVar(&opts.serviceSpecPath, "service-spec", "", "path to the ServiceSpecification YAML to deploy")
	flags.DurationVar(&opts.reconcileBackoff, "reconcile-backoff", 30*time.Second, "minimum interval between explicit reconciliation requests")
	flags.Int64Var(&opts.permanentFailureTimeoutSec, "permanent-failure-timeout-sec", 20*60, "seconds a task must be failing before recovery treats it as permanent")
	flags.Int64Var(&opts.minLaunchIntervalSec, "min-launch-interval-sec", 10, "minimum seconds between transient-failure relaunches")
	flags.BoolVar(&opts.develop, "develop", false, "use a human-readable development logger instead of JSON")

	return cmd
}

func loadServiceSpec(path string) (specmodel.ServiceSpecification, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return specmodel.ServiceSpecification{}, fmt.Errorf("reading service spec: %w", err)
	}
	var spec specmodel.ServiceSpecification
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return specmodel.ServiceSpecification{}, fmt.Errorf("parsing service spec: %w", err)
	}
	return spec, nil
}

func run(ctx context.Context, opts *options) error {
	log, err := internallog.NewZap(opts.develop)
	if err != nil {
		return fmt.Errorf("constructing logger: %w", err)
	}
	ctx = internallog.IntoContext(ctx, log)

	store := statestore.NewMemoryStore()
	recorder := events.NewRecorder(log, store)

	var spec specmodel.ServiceSpecification
	if opts.serviceSpecPath != "" {
		if spec, err = loadServiceSpec(opts.serviceSpecPath); err != nil {
			// Configuration errors are fatal at startup.
			log.Error(err, "initialization failed")
			os.Exit(int(driver.ExitInitializationFailure))
		}
		if err := store.PutConfig(ctx, spec.Target, spec); err != nil {
			log.Error(err, "persisting config target failed")
			os.Exit(int(driver.ExitInitializationFailure))
		}
	}
	if spec.Role == "" {
		spec.Role = opts.role
	}
	if spec.Principal == "" {
		spec.Principal = opts.principal
	}

	// The real cluster-manager transport lives outside this repo's
	// boundary; a production deployment supplies its own driver.Driver/
	// driver.Callbacks adapter here. The in-memory FakeDriver lets the
	// engine run standalone for local operation and demos.
	drv := driver.NewFakeDriver()

	eval := evaluator.New(spec.Role, spec.Principal)
	accepter := evaluator.NewAccepter(drv, log, 0, recorder)
	planScheduler := evaluator.NewPlanScheduler(eval, accepter, log)

	recon := reconciler.New(drv, clock.RealClock{}, opts.reconcileBackoff)

	deployment := deploy.New(spec)
	deploymentPM := coordinator.NewPlanManager(deployment.Plan())
	deploymentPM.Subscribe(recorder.ObservePlanStatus)

	recoveryMgr := recovery.NewRecoveryPlanManager(recovery.Config{
		Scanner:          newStatusScanner(store),
		Monitor:          recovery.TimedFailureMonitor{Timeout: time.Duration(opts.permanentFailureTimeoutSec) * time.Second},
		PermanentTimeout: time.Duration(opts.permanentFailureTimeoutSec) * time.Second,
		Constrainer:      recovery.NewTimedLaunchConstrainer(time.Duration(opts.minLaunchIntervalSec) * time.Second),
		Clock:            clock.RealClock{},
		Log:              log,
	})
	recoveryMgr.Manager().Subscribe(recorder.ObservePlanStatus)

	// Deployment sees offers first; recovery gets what remains.
	coord := coordinator.NewPlanCoordinator(deploymentPM, recoveryMgr.Manager())

	eng := &engine{
		log:        log,
		store:      store,
		driver:     drv,
		coord:      coord,
		deployment: deployment,
		recovery:   recoveryMgr,
		recorder:   recorder,
		reconciler: recon,
		scheduler:  planScheduler,
		cleaner:    evaluator.NewCleaner(spec.Role, expectedVolumes{store: store, deployment: deployment}, log),
		accepter:   accepter,
		ready:      executor.NewReadyGate(),
	}

	exec := executor.New(eng.handle, log)
	eng.exec = exec

	dispatcher := &driver.Dispatcher{
		Policy: driver.DefaultPolicy(),
		Target: eng,
		Fatal:  exec.FatalErrorChannel(),
	}
	_ = dispatcher // wired for a transport adapter to invoke; nothing drives it with FakeDriver

	go exec.Run(ctx)
	go tick(ctx, exec, itemReconcile, 5*time.Second)
	go tick(ctx, exec, itemRecoveryRefresh, 15*time.Second)

	log.Info("dcos-plan-scheduler started", "role", spec.Role, "principal", spec.Principal, "target", spec.Target)

	select {
	case <-ctx.Done():
		return nil
	case fe := <-exec.FatalErrorChannel():
		log.Error(fe, "fatal condition, exiting", "code", fe.Code.String())
		os.Exit(int(fe.Code))
		return nil
	}
}

func tick(ctx context.Context, exec *executor.Executor, item string, every time.Duration) {
	_ = wait.PollUntilContextCancel(ctx, every, true, func(ctx context.Context) (bool, error) {
		exec.Enqueue(item)
		return false, nil
	})
}

// statusScanner derives the recovery manager's failing-task set from the
// last persisted status of every known task, remembering when each task
// was first seen failing so the failure monitor can measure duration.
type statusScanner struct {
	store statestore.StateStore

	mu           sync.Mutex
	firstFailing map[specmodel.TaskID]time.Time
}

func newStatusScanner(store statestore.StateStore) *statusScanner {
	return &statusScanner{store: store, firstFailing: map[specmodel.TaskID]time.Time{}}
}

func (s *statusScanner) ScanFailingTasks(ctx context.Context) ([]recovery.FailingTask, error) {
	ids, err := s.store.KnownTaskIDs(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var out []recovery.FailingTask
	for _, id := range ids {
		status, ok, err := s.store.GetStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		healthy := !ok || status.State.IsRunning() || status.State == offer.TaskStaging ||
			status.State == offer.TaskStarting || status.State == offer.TaskFinished
		if healthy {
			delete(s.firstFailing, id)
			continue
		}
		req, ok, err := s.store.GetRequirement(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		since, ok := s.firstFailing[id]
		if !ok {
			since = now
			s.firstFailing[id] = since
		}
		out = append(out, recovery.FailingTask{
			TaskID:              id,
			Pod:                 req.Pod,
			Target:              req.Target,
			FailingSince:        since,
			OriginalRequirement: req,
		})
	}
	return out, nil
}

// expectedVolumes lists the persistence ids the framework still expects:
// every volume referenced by a stored launch requirement or by the current
// service specification. Anything else found reserved in an offer is an
// orphan the cleanup pass may destroy.
type expectedVolumes struct {
	store      statestore.StateStore
	deployment *deploy.Deployment
}

func (v expectedVolumes) ExpectedPersistenceIDs(ctx context.Context) (sets.Set[string], error) {
	out := sets.New[string]()
	ids, err := v.store.KnownTaskIDs(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		req, ok, err := v.store.GetRequirement(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for _, vol := range req.Volumes {
			out.Insert(vol.Name)
		}
	}
	for _, pod := range v.deployment.Spec().Pods {
		for _, t := range pod.Tasks {
			for _, vol := range t.Volumes {
				out.Insert(vol.Name)
			}
		}
		for _, rs := range pod.Resources {
			for _, vol := range rs.Volumes {
				out.Insert(vol.Name)
			}
		}
	}
	return out, nil
}

const (
	itemOffers          = "offers"
	itemStatus          = "status"
	itemReconcile       = "reconcile"
	itemRecoveryRefresh = "recovery-refresh"
	itemRegistered      = "registered"
)

// engine binds the driver callbacks to the single-writer executor: every
// callback only buffers its payload and enqueues a named work item, so all
// plan/reconciler mutation happens on one goroutine.
type engine struct {
	log        logr.Logger
	store      statestore.StateStore
	driver     driver.Driver
	coord      *coordinator.PlanCoordinator
	deployment *deploy.Deployment
	recovery   *recovery.RecoveryPlanManager
	recorder   *events.Recorder
	reconciler *reconciler.Reconciler
	scheduler  *evaluator.PlanScheduler
	cleaner    *evaluator.Cleaner
	accepter   *evaluator.Accepter
	exec       *executor.Executor
	ready      *executor.ReadyGate

	mu          sync.Mutex
	offers      []offer.Offer
	statuses    []offer.TaskStatus
	frameworkID driver.FrameworkID
	suppressed  bool
}

func (e *engine) handle(ctx context.Context, item string) error {
	switch item {
	case itemRegistered:
		return e.handleRegistered(ctx)
	case itemReconcile:
		return e.handleReconcile(ctx)
	case itemRecoveryRefresh:
		return e.handleRecoveryRefresh(ctx)
	case itemStatus:
		return e.handleStatuses(ctx)
	case itemOffers:
		return e.handleOffers(ctx)
	}
	return nil
}

func (e *engine) handleRegistered(ctx context.Context) error {
	e.mu.Lock()
	id := e.frameworkID
	e.mu.Unlock()

	if err := e.store.PutFrameworkID(ctx, string(id)); err != nil {
		return err
	}
	if err := e.reconciler.Start(ctx, e.store); err != nil {
		return err
	}
	e.exec.Enqueue(itemReconcile)
	return e.suppressOrRevive(ctx)
}

func (e *engine) handleReconcile(ctx context.Context) error {
	if err := e.reconciler.Reconcile(ctx); err != nil {
		return err
	}
	if e.reconciler.IsReconciled() {
		// One-shot resources-ready handshake: once reconciliation has
		// drained, offers are never gated again for this registration.
		e.ready.Fire()
	}
	return nil
}

func (e *engine) handleRecoveryRefresh(ctx context.Context) error {
	if err := e.recovery.Refresh(ctx); err != nil {
		return err
	}
	return nil
}

func (e *engine) handleStatuses(ctx context.Context) error {
	e.mu.Lock()
	statuses := e.statuses
	e.statuses = nil
	e.mu.Unlock()

	for _, status := range statuses {
		// A store failure drops this update for the cycle; the cluster
		// manager will reissue it.
		if err := e.store.PutStatus(ctx, status); err != nil {
			e.log.Error(err, "persisting status failed", "task", status.TaskID)
			continue
		}
		// Reconciler sees updates before plan managers.
		e.reconciler.Update(status)
		e.coord.Update(status)
	}
	return e.suppressOrRevive(ctx)
}

func (e *engine) handleOffers(ctx context.Context) error {
	e.mu.Lock()
	offers := e.offers
	e.offers = nil
	e.mu.Unlock()
	if len(offers) == 0 {
		return nil
	}

	// Reconciliation gate: until every known task's state is
	// confirmed, no launch may be emitted - every offer is declined.
	if !e.ready.IsReady() {
		if !e.reconciler.IsReconciled() {
			e.exec.Enqueue(itemReconcile)
			e.declineAll(ctx, offers)
			return nil
		}
		e.ready.Fire()
	}

	accepted := e.coord.ProcessOffers(ctx, e.scheduler, offers)
	unused := removeAccepted(offers, accepted)

	// Resource cleanup pass: destroy orphaned reservations surfaced by the
	// offers no plan wanted, then decline whatever is left.
	if recs, err := e.cleaner.Recommend(ctx, unused); err != nil {
		e.log.Error(err, "resource cleanup pass failed")
	} else if len(recs) > 0 {
		cleaned, err := e.accepter.Accept(ctx, recs)
		if err != nil {
			e.log.Error(err, "accepting cleanup operations failed")
		}
		unused = removeAccepted(unused, cleaned)
	}
	e.declineAll(ctx, unused)

	e.recorder.SnapshotPlan(e.deployment.Plan())
	e.recorder.SnapshotPlan(e.recovery.Manager().GetPlan())
	return e.suppressOrRevive(ctx)
}

func (e *engine) declineAll(ctx context.Context, offers []offer.Offer) {
	for _, o := range offers {
		if err := e.driver.DeclineOffer(ctx, o.ID); err != nil {
			e.log.Error(err, "declining offer failed", "offer", o.ID)
		}
	}
}

// suppressOrRevive re-evaluates whether the framework still wants offers
// and flips the driver's suppression state on a change, mirroring the flag
// to the state store so a restart resumes in the same state.
func (e *engine) suppressOrRevive(ctx context.Context) error {
	wantOffers := e.coord.HasOperations()

	e.mu.Lock()
	changed := wantOffers == e.suppressed
	e.suppressed = !wantOffers
	e.mu.Unlock()
	if !changed {
		return nil
	}

	var err error
	if wantOffers {
		err = e.driver.ReviveOffers(ctx)
	} else {
		err = e.driver.SuppressOffers(ctx)
	}
	if err != nil {
		return err
	}
	return e.store.PutSuppressed(ctx, !wantOffers)
}

func removeAccepted(offers []offer.Offer, accepted []offer.OfferID) []offer.Offer {
	acceptedSet := map[offer.OfferID]bool{}
	for _, id := range accepted {
		acceptedSet[id] = true
	}
	out := make([]offer.Offer, 0, len(offers))
	for _, o := range offers {
		if !acceptedSet[o.ID] {
			out = append(out, o)
		}
	}
	return out
}

// Registered implements driver.Callbacks: store the framework id,
// trigger reconciliation, and settle the suppress/revive state - all on
// the executor, not the driver's callback thread.
func (e *engine) Registered(ctx context.Context, frameworkID driver.FrameworkID, master driver.MasterInfo) {
	e.mu.Lock()
	e.frameworkID = frameworkID
	e.mu.Unlock()
	e.exec.Enqueue(itemRegistered)
}

// Reregistered is only reached when Policy.FatalOnReregister is false.
func (e *engine) Reregistered(ctx context.Context) {
	e.exec.Enqueue(itemRegistered)
}

func (e *engine) ResourceOffers(ctx context.Context, offers []offer.Offer) {
	e.mu.Lock()
	e.offers = append(e.offers, offers...)
	e.mu.Unlock()
	e.exec.Enqueue(itemOffers)
}

// OfferRescinded is only reached when Policy.FatalOnOfferRescinded is
// false; the offer was never retained beyond its cycle, so nothing needs
// undoing.
func (e *engine) OfferRescinded(ctx context.Context, offerID offer.OfferID) {}

func (e *engine) StatusUpdate(ctx context.Context, status offer.TaskStatus) {
	e.mu.Lock()
	e.statuses = append(e.statuses, status)
	e.mu.Unlock()
	e.exec.Enqueue(itemStatus)
}

func (e *engine) Disconnected(ctx context.Context) {}

func (e *engine) Error(ctx context.Context, msg string) {}

func (e *engine) SlaveLost(ctx context.Context, agentID offer.AgentID) {}

func (e *engine) ExecutorLost(ctx context.Context, agentID offer.AgentID, executorID string) {}

func (e *engine) FrameworkMessage(ctx context.Context, agentID offer.AgentID, data []byte) {}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

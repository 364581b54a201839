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

package coordinator

import (
	"context"
	"sync"

	"github.com/mesosphere/dcos-plan-scheduler/pkg/metrics"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/offer"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/plan"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/specmodel"
)

// Scheduler matches one candidate Step against the still-unused offers in
// a batch and returns the offer-ids it accepted. Implemented by
// *evaluator.PlanScheduler; declared narrowly here so this package does
// not need to import the evaluation/accept machinery to use it.
type Scheduler interface {
	Schedule(ctx context.Context, offers []offer.Offer, step *plan.Step) ([]offer.OfferID, error)
}

// PlanCoordinator multiplexes an ordered list of PlanManagers across one
// offer batch. Earlier managers in the list see offers first;
// after a manager accepts or declines an offer for a (pod, index) asset,
// later managers in the same cycle treat that asset as dirty and skip it.
type PlanCoordinator struct {
	mu       sync.Mutex
	managers []*PlanManager
}

// NewPlanCoordinator constructs a coordinator over managers, in priority
// order (deployment first, recovery second, by convention).
func NewPlanCoordinator(managers ...*PlanManager) *PlanCoordinator {
	return &PlanCoordinator{managers: managers}
}

// Subscribe forwards notifications from every underlying PlanManager.
func (c *PlanCoordinator) Subscribe(obs StatusObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.managers {
		m.Subscribe(obs)
	}
}

// HasOperations reports whether any managed plan still has work pending:
// true iff any plan's status is neither COMPLETE nor WAITING.
func (c *PlanCoordinator) HasOperations() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.managers {
		if m.HasOperations() {
			return true
		}
	}
	return false
}

// Update delivers a TaskStatus to every managed plan; each plan ignores
// task-ids it does not own.
func (c *PlanCoordinator) Update(ts offer.TaskStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.managers {
		m.Update(ts)
	}
}

// ProcessOffers iterates the managers in priority order. For each, it
// fetches candidate steps (excluding whatever is already dirty this
// cycle), asks scheduler to place each one against the still-unused
// offers, removes any accepted offers from the working set, and - after
// every Schedule call that returns without error, whether or not it
// accepted anything - marks the candidate's pod asset dirty for the rest
// of the cycle. It returns the accumulated set of accepted offer ids; the
// remaining offers are this call's implicit "decline" set (the caller
// declines whatever isn't in the returned slice).
func (c *PlanCoordinator) ProcessOffers(ctx context.Context, scheduler Scheduler, offers []offer.Offer) []offer.OfferID {
	c.mu.Lock()
	managers := append([]*PlanManager(nil), c.managers...)
	c.mu.Unlock()

	working := append([]offer.Offer(nil), offers...)
	dirty := map[specmodel.PodInstance]bool{}
	var accepted []offer.OfferID

	for _, m := range managers {
		candidates := m.GetCandidates(dirty)
		for _, step := range candidates {
			if len(working) == 0 {
				break
			}
			ids, err := scheduler.Schedule(ctx, working, step)
			if err != nil {
				continue
			}
			if len(ids) > 0 {
				working = removeOffers(working, ids)
				accepted = append(accepted, ids...)
			}
			dirty[step.Pod()] = true
		}
		m.NotifyExternalChange()
	}
	metrics.OffersProcessed.WithLabelValues("accepted").Add(float64(len(accepted)))
	metrics.OffersProcessed.WithLabelValues("unused").Add(float64(len(working)))
	return accepted
}

func removeOffers(offers []offer.Offer, used []offer.OfferID) []offer.Offer {
	usedSet := map[offer.OfferID]bool{}
	for _, id := range used {
		usedSet[id] = true
	}
	out := make([]offer.Offer, 0, len(offers))
	for _, o := range offers {
		if !usedSet[o.ID] {
			out = append(out, o)
		}
	}
	return out
}

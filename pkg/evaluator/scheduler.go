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

package evaluator

import (
	"context"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/mesosphere/dcos-plan-scheduler/pkg/offer"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/plan"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/specmodel"
)

// PlanScheduler drives a single candidate Step against a batch of offers:
// start it, evaluate, accept, and feed the result back to the step.
type PlanScheduler struct {
	evaluator *Evaluator
	accepter  *Accepter
	log       logr.Logger
}

// NewPlanScheduler constructs a PlanScheduler.
func NewPlanScheduler(evaluator *Evaluator, accepter *Accepter, log logr.Logger) *PlanScheduler {
	return &PlanScheduler{evaluator: evaluator, accepter: accepter, log: log}
}

// Schedule attempts to place step against offers. It returns the ids of
// offers accepted on step's behalf. Every accepted offer is burned
// regardless of later errors: this call is side-effect-committing.
func (s *PlanScheduler) Schedule(ctx context.Context, offers []offer.Offer, step *plan.Step) ([]offer.OfferID, error) {
	if len(offers) == 0 || step == nil {
		s.log.V(1).Info("schedule called with no offers or no step")
		return nil, nil
	}
	if step.Status() != plan.StatusPending && step.Status() != plan.StatusPrepared {
		return nil, nil
	}

	req, err := step.Start()
	if err != nil {
		return nil, err
	}
	if req == nil {
		_ = step.UpdateOfferStatus(nil)
		return nil, nil
	}

	recs, err := s.evaluator.Evaluate(req, offers)
	if err != nil {
		s.log.V(1).Info("offer evaluation reported errors", "error", err.Error())
	}
	if len(recs) == 0 {
		_ = step.UpdateOfferStatus(nil)
		return nil, nil
	}

	accepted, err := s.accepter.Accept(ctx, recs)
	if err != nil {
		return nil, err
	}
	if len(accepted) == 0 {
		_ = step.UpdateOfferStatus(nil)
		return nil, nil
	}

	launched := sets.New[specmodel.TaskID]()
	for _, r := range recs {
		if r.Operation == offer.Launch && r.TaskInfo != nil && containsOffer(accepted, r.Offer.ID) {
			launched.Insert(r.TaskInfo.TaskID)
		}
	}
	if err := step.UpdateOfferStatus(launched); err != nil {
		return accepted, err
	}
	return accepted, nil
}

func containsOffer(ids []offer.OfferID, target offer.OfferID) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

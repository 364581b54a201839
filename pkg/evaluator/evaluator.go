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

// Package evaluator matches an OfferRequirement against a batch of offers
// and submits the resulting recommendations to the driver.
package evaluator

import (
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/multierr"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/mesosphere/dcos-plan-scheduler/pkg/offer"
)

// Evaluator matches an OfferRequirement against offers.
type Evaluator struct {
	role      string
	principal string
}

// New constructs an Evaluator scoped to the framework's role/principal,
// used to prefer already-reserved resources belonging to this framework
// over unreserved ones.
func New(role, principal string) *Evaluator {
	return &Evaluator{role: role, principal: principal}
}

// Evaluate returns a possibly-empty list of OfferRecommendations that, if
// accepted, fulfill req using exactly one offer from offers. The first
// offer that fully satisfies wins, ties broken by arrival order. It never
// emits a partial plan: either every recommendation needed to launch req
// is returned, or none are.
func (e *Evaluator) Evaluate(req *offer.OfferRequirement, offers []offer.Offer) ([]offer.Recommendation, error) {
	var errs error
	for _, o := range offers {
		if !e.satisfiesPlacement(req, o) {
			continue
		}
		recs, ok, err := e.tryOffer(req, o)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("offer %s: %w", o.ID, err))
			continue
		}
		if ok {
			return recs, nil
		}
	}
	return nil, errs
}

func (e *Evaluator) satisfiesPlacement(req *offer.OfferRequirement, o offer.Offer) bool {
	if req.Placement == nil || req.Placement.Expression == "" {
		return true
	}
	return matchPlacement(req.Placement.Expression, o.Attributes)
}

// tryOffer attempts to fulfill req entirely from o. ok is false (with no
// error) when o simply doesn't have enough resources - that is not an
// error, it is reported back to the caller as "no recommendations" and
// the offer is declined at the end of the cycle.
func (e *Evaluator) tryOffer(req *offer.OfferRequirement, o offer.Offer) ([]offer.Recommendation, bool, error) {
	available := indexResources(o.Resources)

	var recs []offer.Recommendation
	for _, old := range req.DestroyPriorReservation {
		recs = append(recs,
			offer.Recommendation{Offer: o, Operation: offer.Destroy, Resources: []offer.Resource{old}, DiskInfo: old.DiskInfo},
			offer.Recommendation{Offer: o, Operation: offer.Unreserve, Resources: []offer.Resource{old}},
		)
	}
	for _, vol := range req.Volumes {
		need := vol.Size[corev1.ResourceStorage]
		if !e.consume(available, corev1.ResourceStorage, need, false) {
			return nil, false, nil
		}
		recs = append(recs,
			offer.Recommendation{Offer: o, Operation: offer.Reserve, Resources: o.Resources},
			offer.Recommendation{Offer: o, Operation: offer.Create, DiskInfo: &offer.DiskInfo{PersistenceID: vol.Name}},
		)
	}

	for _, t := range req.Tasks {
		for name, qty := range t.Resources {
			if !e.consume(available, name, qty, true) {
				return nil, false, nil
			}
		}
	}

	for i := range req.Tasks {
		recs = append(recs, offer.Recommendation{
			Offer:     o,
			Operation: offer.Launch,
			TaskInfo:  &req.Tasks[i],
		})
	}
	return recs, true, nil
}

// consume decrements available[name] by qty, preferring entries already
// reserved to this framework's role/principal when preferReserved is true.
// It returns false without mutating available if there isn't enough.
func (e *Evaluator) consume(available map[corev1.ResourceName][]*trackedResource, name corev1.ResourceName, qty resource.Quantity, preferReserved bool) bool {
	entries := available[name]
	if len(entries) == 0 {
		if qty.IsZero() {
			return true
		}
		return false
	}

	ordered := entries
	if preferReserved {
		reserved := lo.Filter(entries, func(r *trackedResource, _ int) bool { return r.reserved })
		unreserved := lo.Filter(entries, func(r *trackedResource, _ int) bool { return !r.reserved })
		ordered = append(reserved, unreserved...)
	}

	total := resource.Quantity{}
	for _, r := range ordered {
		total.Add(r.remaining)
	}
	if total.Cmp(qty) < 0 {
		return false
	}

	remaining := qty.DeepCopy()
	for _, r := range ordered {
		if remaining.IsZero() {
			break
		}
		if r.remaining.IsZero() {
			continue
		}
		take := remaining.DeepCopy()
		if r.remaining.Cmp(take) < 0 {
			take = r.remaining.DeepCopy()
		}
		r.remaining.Sub(take)
		remaining.Sub(take)
	}
	return remaining.IsZero()
}

type trackedResource struct {
	reserved  bool
	remaining resource.Quantity
}

func indexResources(resources []offer.Resource) map[corev1.ResourceName][]*trackedResource {
	out := map[corev1.ResourceName][]*trackedResource{}
	for _, r := range resources {
		out[r.Name] = append(out[r.Name], &trackedResource{reserved: r.Reserved, remaining: r.Quantity.DeepCopy()})
	}
	return out
}

// matchPlacement is a minimal interpreter for the constraint expressions
// PlacementRule carries: "key:EXISTS", "key:LIKE:pattern" (exact match, no
// regex engine pulled in for this narrow need), "key:UNIQUE" always
// passes single-offer evaluation (uniqueness across offers is enforced by
// the caller tracking dirty assets, not here).
func matchPlacement(expr string, attrs map[string]string) bool {
	if expr == "" {
		return true
	}
	parts := splitN(expr, ':', 3)
	if len(parts) < 2 {
		return true
	}
	key, op := parts[0], parts[1]
	val, hasVal := attrs[key]
	switch op {
	case "EXISTS":
		return hasVal
	case "LIKE":
		if len(parts) < 3 {
			return hasVal
		}
		return hasVal && val == parts[2]
	case "UNIQUE":
		return true
	default:
		return true
	}
}

func splitN(s string, sep byte, n int) []string {
	var out []string
	start := 0
	for i := 0; i < len(s) && len(out) < n-1; i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

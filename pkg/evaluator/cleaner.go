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
)

// ReservationLister reports the persistence ids of every volume the
// framework still expects to exist: those referenced by stored launch
// requirements or the current service specification.
type ReservationLister interface {
	ExpectedPersistenceIDs(ctx context.Context) (sets.Set[string], error)
}

// Cleaner finds reservations in an offer batch that belong to this
// framework but are no longer expected - volumes left behind by a
// permanent-failure relaunch or a torn-down pod - and recommends
// DESTROY/UNRESERVE operations against them. It runs after plan dispatch
// and before unused offers are declined, so cleanup never competes with a
// launch for the same offer.
type Cleaner struct {
	role   string
	lister ReservationLister
	log    logr.Logger
}

// NewCleaner constructs a Cleaner scoped to the framework's role.
func NewCleaner(role string, lister ReservationLister, log logr.Logger) *Cleaner {
	return &Cleaner{role: role, lister: lister, log: log}
}

// Recommend returns DESTROY/UNRESERVE recommendations for every created
// volume in offers that is reserved to this framework's role but absent
// from the expected set.
func (c *Cleaner) Recommend(ctx context.Context, offers []offer.Offer) ([]offer.Recommendation, error) {
	expected, err := c.lister.ExpectedPersistenceIDs(ctx)
	if err != nil {
		return nil, err
	}

	var recs []offer.Recommendation
	for _, o := range offers {
		for _, r := range o.Resources {
			if !r.Reserved || r.Role != c.role {
				continue
			}
			if r.DiskInfo == nil || !r.DiskInfo.Created || expected.Has(r.DiskInfo.PersistenceID) {
				continue
			}
			c.log.Info("destroying orphaned volume", "persistenceID", r.DiskInfo.PersistenceID, "offer", o.ID)
			recs = append(recs,
				offer.Recommendation{Offer: o, Operation: offer.Destroy, Resources: []offer.Resource{r}, DiskInfo: r.DiskInfo},
				offer.Recommendation{Offer: o, Operation: offer.Unreserve, Resources: []offer.Resource{r}},
			)
		}
	}
	return recs, nil
}

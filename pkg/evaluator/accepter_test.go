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

package evaluator_test

import (
	"context"
	"errors"
	"sync"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mesosphere/dcos-plan-scheduler/pkg/evaluator"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/offer"
)

type fakeAcceptingDriver struct {
	mu       sync.Mutex
	accepted map[offer.OfferID][]offer.Recommendation
	failIDs  map[offer.OfferID]bool
}

func newFakeAcceptingDriver() *fakeAcceptingDriver {
	return &fakeAcceptingDriver{accepted: map[offer.OfferID][]offer.Recommendation{}, failIDs: map[offer.OfferID]bool{}}
}

func (d *fakeAcceptingDriver) AcceptOffers(ctx context.Context, offerID offer.OfferID, ops []offer.Recommendation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failIDs[offerID] {
		return errors.New("transport rejected accept")
	}
	d.accepted[offerID] = ops
	return nil
}

type fakeRecorder struct {
	mu  sync.Mutex
	ops []offer.Recommendation
	err error
}

func (r *fakeRecorder) RecordOperation(ctx context.Context, rec offer.Recommendation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.ops = append(r.ops, rec)
	return nil
}

var _ = Describe("Accepter", func() {
	It("groups recommendations by offer and issues one accept call per offer", func() {
		drv := newFakeAcceptingDriver()
		rec := &fakeRecorder{}
		a := evaluator.NewAccepter(drv, logr.Discard(), 1, rec)

		recs := []offer.Recommendation{
			{Offer: offer.Offer{ID: "o1"}, Operation: offer.Launch},
			{Offer: offer.Offer{ID: "o2"}, Operation: offer.Launch},
			{Offer: offer.Offer{ID: "o1"}, Operation: offer.Reserve},
		}
		accepted, err := a.Accept(context.Background(), recs)
		Expect(err).NotTo(HaveOccurred())
		Expect(accepted).To(ConsistOf(offer.OfferID("o1"), offer.OfferID("o2")))
		Expect(drv.accepted["o1"]).To(HaveLen(2))
		Expect(drv.accepted["o2"]).To(HaveLen(1))
	})

	It("omits an offer id whose accept call keeps failing, but still accepts the rest", func() {
		drv := newFakeAcceptingDriver()
		drv.failIDs["o1"] = true
		a := evaluator.NewAccepter(drv, logr.Discard(), 1)

		recs := []offer.Recommendation{
			{Offer: offer.Offer{ID: "o1"}, Operation: offer.Launch},
			{Offer: offer.Offer{ID: "o2"}, Operation: offer.Launch},
		}
		accepted, err := a.Accept(context.Background(), recs)
		Expect(err).NotTo(HaveOccurred())
		Expect(accepted).To(Equal([]offer.OfferID{"o2"}))
	})

	It("notifies every recorder for each accepted operation, independent of recorder failures", func() {
		drv := newFakeAcceptingDriver()
		ok := &fakeRecorder{}
		failing := &fakeRecorder{err: errors.New("store unavailable")}
		a := evaluator.NewAccepter(drv, logr.Discard(), 1, ok, failing)

		recs := []offer.Recommendation{{Offer: offer.Offer{ID: "o1"}, Operation: offer.Launch}}
		_, err := a.Accept(context.Background(), recs)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok.ops).To(HaveLen(1))
	})

	It("is a no-op for an empty recommendation list", func() {
		drv := newFakeAcceptingDriver()
		a := evaluator.NewAccepter(drv, logr.Discard(), 1)
		accepted, err := a.Accept(context.Background(), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(accepted).To(BeEmpty())
	})
})

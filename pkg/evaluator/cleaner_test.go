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

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/mesosphere/dcos-plan-scheduler/pkg/evaluator"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/offer"
)

type fakeReservationLister struct {
	ids sets.Set[string]
}

func (l fakeReservationLister) ExpectedPersistenceIDs(ctx context.Context) (sets.Set[string], error) {
	return l.ids, nil
}

func reservedVolume(persistenceID, role string) offer.Resource {
	return offer.Resource{
		Name:     corev1.ResourceStorage,
		Quantity: resource.MustParse("10Gi"),
		Reserved: true,
		Role:     role,
		DiskInfo: &offer.DiskInfo{PersistenceID: persistenceID, Created: true},
	}
}

var _ = Describe("Cleaner", func() {
	It("recommends DESTROY then UNRESERVE for an orphaned volume", func() {
		c := evaluator.NewCleaner("role", fakeReservationLister{ids: sets.New[string]()}, logr.Discard())
		o := offer.Offer{ID: "o1", Resources: []offer.Resource{reservedVolume("stale-data", "role")}}

		recs, err := c.Recommend(context.Background(), []offer.Offer{o})
		Expect(err).NotTo(HaveOccurred())
		Expect(recs).To(HaveLen(2))
		Expect(recs[0].Operation).To(Equal(offer.Destroy))
		Expect(recs[0].DiskInfo.PersistenceID).To(Equal("stale-data"))
		Expect(recs[1].Operation).To(Equal(offer.Unreserve))
	})

	It("leaves an expected volume alone", func() {
		c := evaluator.NewCleaner("role", fakeReservationLister{ids: sets.New("data")}, logr.Discard())
		o := offer.Offer{ID: "o1", Resources: []offer.Resource{reservedVolume("data", "role")}}

		recs, err := c.Recommend(context.Background(), []offer.Offer{o})
		Expect(err).NotTo(HaveOccurred())
		Expect(recs).To(BeEmpty())
	})

	It("ignores reservations held by other roles", func() {
		c := evaluator.NewCleaner("role", fakeReservationLister{ids: sets.New[string]()}, logr.Discard())
		o := offer.Offer{ID: "o1", Resources: []offer.Resource{reservedVolume("stale-data", "someone-else")}}

		recs, err := c.Recommend(context.Background(), []offer.Offer{o})
		Expect(err).NotTo(HaveOccurred())
		Expect(recs).To(BeEmpty())
	})

	It("ignores unreserved resources and bare reservations without a volume", func() {
		c := evaluator.NewCleaner("role", fakeReservationLister{ids: sets.New[string]()}, logr.Discard())
		o := offer.Offer{ID: "o1", Resources: []offer.Resource{
			{Name: corev1.ResourceCPU, Quantity: resource.MustParse("4")},
			{Name: corev1.ResourceCPU, Quantity: resource.MustParse("1"), Reserved: true, Role: "role"},
		}}

		recs, err := c.Recommend(context.Background(), []offer.Offer{o})
		Expect(err).NotTo(HaveOccurred())
		Expect(recs).To(BeEmpty())
	})
})

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

package plan_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/mesosphere/dcos-plan-scheduler/pkg/offer"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/plan"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/specmodel"
)

type fakeBuilder struct {
	calls int
	req   *offer.OfferRequirement
	err   error
}

func (b *fakeBuilder) BuildOfferRequirement() (*offer.OfferRequirement, error) {
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	return b.req, nil
}

func newStep(taskIDs ...specmodel.TaskID) (*plan.Step, *fakeBuilder) {
	builder := &fakeBuilder{req: &offer.OfferRequirement{
		Pod:    specmodel.PodInstance{Type: "web", Index: 0},
		Tasks:  []offer.TaskInfo{{TaskID: taskIDs[0]}},
		Target: "target-1",
	}}
	s := plan.NewStep("web-0", specmodel.PodInstance{Type: "web", Index: 0}, taskIDs, "target-1", builder)
	return s, builder
}

var _ = Describe("Step", func() {
	It("starts PENDING", func() {
		s, _ := newStep("task-1")
		Expect(s.Status()).To(Equal(plan.StatusPending))
	})

	It("transitions to PREPARED on a successful Start and is idempotent", func() {
		s, builder := newStep("task-1")
		req, err := s.Start()
		Expect(err).NotTo(HaveOccurred())
		Expect(req).NotTo(BeNil())
		Expect(s.Status()).To(Equal(plan.StatusPrepared))

		req2, err := s.Start()
		Expect(err).NotTo(HaveOccurred())
		Expect(req2).To(Equal(req))
		Expect(builder.calls).To(Equal(1))
	})

	It("transitions to ERROR when the builder fails", func() {
		s := plan.NewStep("web-0", specmodel.PodInstance{Type: "web", Index: 0}, []specmodel.TaskID{"task-1"}, "target-1", &fakeBuilder{err: errors.New("boom")})
		_, err := s.Start()
		Expect(err).To(HaveOccurred())
		Expect(s.Status()).To(Equal(plan.StatusError))
		Expect(s.Err()).To(MatchError("boom"))
	})

	It("stays PENDING when the builder has no requirement yet", func() {
		s := plan.NewStep("web-0", specmodel.PodInstance{Type: "web", Index: 0}, []specmodel.TaskID{"task-1"}, "target-1", &fakeBuilder{})
		req, err := s.Start()
		Expect(err).NotTo(HaveOccurred())
		Expect(req).To(BeNil())
		Expect(s.Status()).To(Equal(plan.StatusPending))
	})

	It("moves PREPARED->STARTING only on a non-empty accepted set", func() {
		s, _ := newStep("task-1")
		_, _ = s.Start()

		Expect(s.UpdateOfferStatus(nil)).To(Succeed())
		Expect(s.Status()).To(Equal(plan.StatusPrepared))

		Expect(s.UpdateOfferStatus(sets.New[specmodel.TaskID]("task-1"))).To(Succeed())
		Expect(s.Status()).To(Equal(plan.StatusStarting))
	})

	It("moves STARTING->COMPLETE on a running status for a single-task step", func() {
		s, _ := newStep("task-1")
		_, _ = s.Start()
		_ = s.UpdateOfferStatus(sets.New[specmodel.TaskID]("task-1"))

		s.Update(offer.TaskStatus{TaskID: "task-1", State: offer.TaskRunning, Target: "target-1"})
		Expect(s.Status()).To(Equal(plan.StatusComplete))
	})

	It("falls back to PENDING on a terminal-but-not-finished status while STARTING", func() {
		s, _ := newStep("task-1")
		_, _ = s.Start()
		_ = s.UpdateOfferStatus(sets.New[specmodel.TaskID]("task-1"))

		s.Update(offer.TaskStatus{TaskID: "task-1", State: offer.TaskFailed, Target: "target-1"})
		Expect(s.Status()).To(Equal(plan.StatusPending))
	})

	It("resets to PENDING on a target mismatch (rollout)", func() {
		s, _ := newStep("task-1")
		_, _ = s.Start()
		_ = s.UpdateOfferStatus(sets.New[specmodel.TaskID]("task-1"))

		s.Update(offer.TaskStatus{TaskID: "task-1", State: offer.TaskRunning, Target: "target-2"})
		Expect(s.Status()).To(Equal(plan.StatusPending))
	})

	It("ignores a status for a task-id it does not own", func() {
		s, _ := newStep("task-1")
		_, _ = s.Start()
		_ = s.UpdateOfferStatus(sets.New[specmodel.TaskID]("task-1"))

		s.Update(offer.TaskStatus{TaskID: "some-other-task", State: offer.TaskRunning, Target: "target-1"})
		Expect(s.Status()).To(Equal(plan.StatusStarting))
	})

	It("reports WAITING when the strategy has marked it waiting, unless terminal", func() {
		s, _ := newStep("task-1")
		s.SetWaiting(true)
		Expect(s.Status()).To(Equal(plan.StatusWaiting))

		s.ForceComplete()
		Expect(s.Status()).To(Equal(plan.StatusComplete))
	})

	It("Restart discards in-flight state back to PENDING", func() {
		s, _ := newStep("task-1")
		_, _ = s.Start()
		_ = s.UpdateOfferStatus(sets.New[specmodel.TaskID]("task-1"))

		s.Restart()
		Expect(s.Status()).To(Equal(plan.StatusPending))
	})

	It("SetTarget resets a COMPLETE step to PENDING on a target change", func() {
		s, _ := newStep("task-1")
		s.ForceComplete()

		s.SetTarget("target-2")
		Expect(s.Status()).To(Equal(plan.StatusPending))
		Expect(s.Target()).To(Equal(specmodel.ConfigTarget("target-2")))
	})
})

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
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mesosphere/dcos-plan-scheduler/pkg/plan"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/specmodel"
)

func newNamedStep(name string, podType specmodel.PodType, index int, taskID specmodel.TaskID) *plan.Step {
	return plan.NewStep(name, specmodel.PodInstance{Type: podType, Index: index}, []specmodel.TaskID{taskID}, "target-1", &fakeBuilder{})
}

var _ = Describe("Phase", func() {
	It("derives COMPLETE once every step is COMPLETE", func() {
		s1 := newNamedStep("s1", "web", 0, "t1")
		s2 := newNamedStep("s2", "web", 1, "t2")
		s1.ForceComplete()
		s2.ForceComplete()

		ph := plan.NewPhase("phase", []*plan.Step{s1, s2}, plan.NewParallelStrategy())
		Expect(ph.Status()).To(Equal(plan.StatusComplete))
	})

	It("exposes only the strategy's selected steps as candidates", func() {
		s1 := newNamedStep("s1", "web", 0, "t1")
		s2 := newNamedStep("s2", "web", 1, "t2")
		ph := plan.NewPhase("phase", []*plan.Step{s1, s2}, plan.NewSerialStrategy())

		Expect(ph.Candidates(nil)).To(Equal([]*plan.Step{s1}))
	})

	It("marks every step WAITING once interrupted", func() {
		s1 := newNamedStep("s1", "web", 0, "t1")
		s2 := newNamedStep("s2", "web", 1, "t2")
		ph := plan.NewPhase("phase", []*plan.Step{s1, s2}, plan.NewParallelStrategy())

		ph.Interrupt()
		Expect(ph.Candidates(nil)).To(BeEmpty())
		Expect(s1.Status()).To(Equal(plan.StatusWaiting))
		Expect(s2.Status()).To(Equal(plan.StatusWaiting))

		ph.Proceed()
		Expect(ph.IsInterrupted()).To(BeFalse())
	})

	It("looks a step up by id", func() {
		s1 := newNamedStep("s1", "web", 0, "t1")
		ph := plan.NewPhase("phase", []*plan.Step{s1}, plan.NewParallelStrategy())
		Expect(ph.Step(s1.ID())).To(BeIdenticalTo(s1))
		Expect(ph.Step("missing")).To(BeNil())
	})
})

var _ = Describe("Plan", func() {
	It("applies the asset filter at the step level across every candidate phase", func() {
		dirty := newNamedStep("dirty", "web", 0, "t1")
		clean := newNamedStep("clean", "web", 1, "t2")
		ph := plan.NewPhase("phase", []*plan.Step{dirty, clean}, plan.NewParallelStrategy())
		p := plan.NewPlan("plan", []*plan.Phase{ph}, plan.NewParallelStrategy())

		candidates := p.Candidates(func(pod specmodel.PodInstance) bool {
			return pod.Index == 0
		})
		Expect(candidates).To(Equal([]*plan.Step{clean}))
	})

	It("routes Update to the step owning the task-id", func() {
		s1 := newNamedStep("s1", "web", 0, "t1")
		s2 := newNamedStep("s2", "web", 1, "t2")
		ph := plan.NewPhase("phase", []*plan.Step{s1, s2}, plan.NewParallelStrategy())
		p := plan.NewPlan("plan", []*plan.Phase{ph}, plan.NewParallelStrategy())

		var touched *plan.Step
		p.Update("t2", func(s *plan.Step) { touched = s })
		Expect(touched).To(BeIdenticalTo(s2))
	})

	It("yields no candidates and reports steps WAITING while interrupted, resuming on Proceed", func() {
		s1 := newNamedStep("s1", "web", 0, "t1")
		ph := plan.NewPhase("phase", []*plan.Step{s1}, plan.NewParallelStrategy())
		p := plan.NewPlan("plan", []*plan.Phase{ph}, plan.NewParallelStrategy())

		p.Interrupt()
		Expect(p.Candidates(nil)).To(BeEmpty())
		Expect(p.Status()).To(Equal(plan.StatusWaiting))
		Expect(s1.Status()).To(Equal(plan.StatusWaiting))
		Expect(ph.IsInterrupted()).To(BeFalse()) // the phase's own strategy is untouched.

		p.Proceed()
		Expect(p.Candidates(nil)).To(Equal([]*plan.Step{s1}))
		Expect(s1.Status()).To(Equal(plan.StatusPending))
	})

	It("collects every step across phases via AllSteps", func() {
		s1 := newNamedStep("s1", "web", 0, "t1")
		s2 := newNamedStep("s2", "web", 1, "t2")
		ph1 := plan.NewPhase("p1", []*plan.Step{s1}, plan.NewParallelStrategy())
		ph2 := plan.NewPhase("p2", []*plan.Step{s2}, plan.NewParallelStrategy())
		p := plan.NewPlan("plan", []*plan.Phase{ph1, ph2}, plan.NewParallelStrategy())

		Expect(p.AllSteps()).To(Equal([]*plan.Step{s1, s2}))
	})
})

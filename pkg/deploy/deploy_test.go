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

package deploy_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/mesosphere/dcos-plan-scheduler/pkg/deploy"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/plan"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/specmodel"
)

func webService(target specmodel.ConfigTarget, cpus string) specmodel.ServiceSpecification {
	return specmodel.ServiceSpecification{
		Name:   "svc",
		Target: target,
		Pods: []specmodel.PodSpec{
			{
				Type:  "web",
				Index: 0,
				Tasks: []specmodel.TaskSpec{
					{Name: "server", Pod: "web", Command: "./server", Resources: corev1.ResourceList{
						corev1.ResourceCPU:    resource.MustParse(cpus),
						corev1.ResourceMemory: resource.MustParse("1000Mi"),
					}},
					{Name: "sidecar", Pod: "web", Command: "./sidecar", Resources: corev1.ResourceList{
						corev1.ResourceCPU:    resource.MustParse("1"),
						corev1.ResourceMemory: resource.MustParse("500Mi"),
					}},
				},
			},
		},
	}
}

var _ = Describe("Deployment", func() {
	It("builds one phase per pod type and one step per pod instance", func() {
		spec := webService("configA", "1")
		spec.Pods = append(spec.Pods, specmodel.PodSpec{
			Type:  "web",
			Index: 1,
			Tasks: []specmodel.TaskSpec{{Name: "server", Pod: "web", Command: "./server"}},
		}, specmodel.PodSpec{
			Type:  "db",
			Index: 0,
			Tasks: []specmodel.TaskSpec{{Name: "postgres", Pod: "db", Command: "./pg"}},
		})

		d := deploy.New(spec)
		p := d.Plan()
		Expect(p.Phases()).To(HaveLen(2))
		Expect(p.Phases()[0].Name()).To(Equal("web"))
		Expect(p.Phases()[0].Steps()).To(HaveLen(2))
		Expect(p.Phases()[1].Name()).To(Equal("db"))
		Expect(p.Phases()[1].Steps()).To(HaveLen(1))
	})

	It("assigns every task of a pod instance to its step, with unique ids", func() {
		d := deploy.New(webService("configA", "1"))
		step := d.Plan().AllSteps()[0]

		Expect(step.TaskIDs()).To(Equal(sets.New(
			deploy.TaskID("svc", specmodel.PodInstance{Type: "web", Index: 0}, "server"),
			deploy.TaskID("svc", specmodel.PodInstance{Type: "web", Index: 0}, "sidecar"),
		)))
	})

	It("builds a requirement launching all of the pod's tasks from one offer", func() {
		d := deploy.New(webService("configA", "1"))
		step := d.Plan().AllSteps()[0]

		req, err := step.Start()
		Expect(err).NotTo(HaveOccurred())
		Expect(req.Tasks).To(HaveLen(2))
		Expect(req.Target).To(Equal(specmodel.ConfigTarget("configA")))
		Expect(req.Tasks[0].Resources[corev1.ResourceCPU]).To(Equal(resource.MustParse("1")))
	})

	It("merges resource-set resources and volumes into the referencing task", func() {
		spec := specmodel.ServiceSpecification{
			Name:   "svc",
			Target: "configA",
			Pods: []specmodel.PodSpec{{
				Type:  "db",
				Index: 0,
				Resources: []specmodel.ResourceSet{{
					ID:        "db-resources",
					Resources: corev1.ResourceList{corev1.ResourceCPU: resource.MustParse("2")},
					Volumes:   []specmodel.VolumeRequirement{{Name: "data", MountPath: "/var/lib/db"}},
				}},
				Tasks: []specmodel.TaskSpec{{Name: "postgres", Pod: "db", Command: "./pg", ResourceSetID: "db-resources"}},
			}},
		}
		d := deploy.New(spec)

		req, err := d.Plan().AllSteps()[0].Start()
		Expect(err).NotTo(HaveOccurred())
		Expect(req.Tasks[0].Resources[corev1.ResourceCPU]).To(Equal(resource.MustParse("2")))
		Expect(req.Volumes).To(HaveLen(1))
		Expect(req.Volumes[0].Name).To(Equal("data"))
	})

	It("rejects an update that removes a task from an existing pod", func() {
		d := deploy.New(webService("configA", "1"))

		shrunk := webService("configB", "1")
		shrunk.Pods[0].Tasks = shrunk.Pods[0].Tasks[:1]
		result := d.UpdateSpec(shrunk)
		Expect(result.Accepted()).To(BeFalse())
		Expect(d.Spec().Target).To(Equal(specmodel.ConfigTarget("configA")))
	})

	It("reports only the pods whose launch shape actually changed", func() {
		spec := webService("configA", "1")
		spec.Pods = append(spec.Pods, specmodel.PodSpec{
			Type:  "db",
			Index: 0,
			Tasks: []specmodel.TaskSpec{{Name: "postgres", Pod: "db", Command: "./pg"}},
		})
		d := deploy.New(spec)

		next := webService("configB", "2")
		next.Pods = append(next.Pods, specmodel.PodSpec{
			Type:  "db",
			Index: 0,
			Tasks: []specmodel.TaskSpec{{Name: "postgres", Pod: "db", Command: "./pg"}},
		})
		result := d.UpdateSpec(next)
		Expect(result.Accepted()).To(BeTrue())
		Expect(result.ChangedPods).To(Equal([]specmodel.PodInstance{{Type: "web", Index: 0}}))
	})

	It("re-targets steps on an accepted update so completed ones roll out again", func() {
		d := deploy.New(webService("configA", "1"))
		step := d.Plan().AllSteps()[0]
		step.ForceComplete()

		result := d.UpdateSpec(webService("configB", "2"))
		Expect(result.Accepted()).To(BeTrue())
		Expect(step.Status()).To(Equal(plan.StatusPending))
		Expect(step.Target()).To(Equal(specmodel.ConfigTarget("configB")))

		// The rebuilt requirement carries the new generation's resources.
		req, err := step.Start()
		Expect(err).NotTo(HaveOccurred())
		Expect(req.Target).To(Equal(specmodel.ConfigTarget("configB")))
		Expect(req.Tasks[0].Resources[corev1.ResourceCPU]).To(Equal(resource.MustParse("2")))
	})

	It("rejects an update that removes a whole pod instance", func() {
		d := deploy.New(webService("configA", "1"))
		step := d.Plan().AllSteps()[0]

		result := d.UpdateSpec(specmodel.ServiceSpecification{Name: "svc", Target: "configB"})
		Expect(result.Accepted()).To(BeFalse())
		Expect(step.Target()).To(Equal(specmodel.ConfigTarget("configA")))
	})

	It("keeps task resources over resource-set resources on conflict", func() {
		spec := specmodel.ServiceSpecification{
			Name:   "svc",
			Target: "configA",
			Pods: []specmodel.PodSpec{{
				Type:  "db",
				Index: 0,
				Resources: []specmodel.ResourceSet{{
					ID:        "db-resources",
					Resources: corev1.ResourceList{corev1.ResourceCPU: resource.MustParse("2")},
				}},
				Tasks: []specmodel.TaskSpec{{
					Name: "postgres", Pod: "db", Command: "./pg", ResourceSetID: "db-resources",
					Resources: corev1.ResourceList{corev1.ResourceCPU: resource.MustParse("4")},
				}},
			}},
		}
		req, err := deploy.New(spec).Plan().AllSteps()[0].Start()
		Expect(err).NotTo(HaveOccurred())
		Expect(req.Tasks[0].Resources[corev1.ResourceCPU]).To(Equal(resource.MustParse("4")))
	})

	It("uses the pod placement rule, falling back to a task's", func() {
		spec := webService("configA", "1")
		spec.Pods[0].Tasks[0].Placement = &specmodel.PlacementRule{Expression: "rack:EXISTS"}
		req, err := deploy.New(spec).Plan().AllSteps()[0].Start()
		Expect(err).NotTo(HaveOccurred())
		Expect(req.Placement).NotTo(BeNil())
		Expect(req.Placement.Expression).To(Equal("rack:EXISTS"))

		spec = webService("configA", "1")
		spec.Pods[0].Placement = &specmodel.PlacementRule{Expression: "zone:EXISTS"}
		spec.Pods[0].Tasks[0].Placement = &specmodel.PlacementRule{Expression: "rack:EXISTS"}
		req, err = deploy.New(spec).Plan().AllSteps()[0].Start()
		Expect(err).NotTo(HaveOccurred())
		Expect(req.Placement.Expression).To(Equal("zone:EXISTS"))
	})
})

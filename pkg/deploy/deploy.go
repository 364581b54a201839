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

// Package deploy turns a ServiceSpecification into a deployment Plan: one
// phase per pod type, one step per pod instance, each step launching every
// task of its pod from a single offer. It also carries the config-change
// handshake: a new specification generation re-targets the existing steps
// so completed ones reset to PENDING and roll out again.
package deploy

import (
	"fmt"
	"sync"

	"github.com/samber/lo"
	corev1 "k8s.io/api/core/v1"

	"github.com/mesosphere/dcos-plan-scheduler/pkg/offer"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/plan"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/specmodel"
)

// Deployment owns the deployment plan for one service and the
// specification generation it is currently reconciling toward.
type Deployment struct {
	mu   sync.Mutex
	spec specmodel.ServiceSpecification
	plan *plan.Plan
}

// UpdateResult reports the outcome of submitting a new specification
// generation. A non-empty Errors list means the update was rejected and
// the previous generation remains in force. ChangedPods lists the pod
// instances whose launch shape differs between the two generations - the
// ones the rollout will actually relaunch.
type UpdateResult struct {
	Target      specmodel.ConfigTarget
	Errors      []string
	ChangedPods []specmodel.PodInstance
}

// Accepted reports whether the update was applied.
func (r UpdateResult) Accepted() bool { return len(r.Errors) == 0 }

// New builds a Deployment from spec. Phases are ordered by first
// appearance of each pod type in spec.Pods and advance serially; steps
// within a phase advance serially in the order their pods appear in
// spec.Pods (they are not sorted by index), so a rollout walks one pod
// instance at a time.
func New(spec specmodel.ServiceSpecification) *Deployment {
	d := &Deployment{spec: spec}

	grouped := lo.GroupBy(spec.Pods, func(p specmodel.PodSpec) specmodel.PodType { return p.Type })
	order := lo.Uniq(lo.Map(spec.Pods, func(p specmodel.PodSpec, _ int) specmodel.PodType { return p.Type }))

	phases := make([]*plan.Phase, 0, len(order))
	for _, podType := range order {
		pods := grouped[podType]
		steps := make([]*plan.Step, 0, len(pods))
		for _, pod := range pods {
			instance := specmodel.PodInstance{Type: pod.Type, Index: pod.Index}
			ids := lo.Map(pod.Tasks, func(t specmodel.TaskSpec, _ int) specmodel.TaskID {
				return TaskID(spec.Name, instance, t.Name)
			})
			name := fmt.Sprintf("%s-%d", pod.Type, pod.Index)
			steps = append(steps, plan.NewStep(name, instance, ids, spec.Target, &podBuilder{deployment: d, pod: instance}))
		}
		phases = append(phases, plan.NewPhase(string(podType), steps, plan.NewSerialStrategy()))
	}

	d.plan = plan.NewPlan("deploy", phases, plan.NewSerialStrategy())
	return d
}

// Plan returns the deployment plan.
func (d *Deployment) Plan() *plan.Plan {
	return d.plan
}

// Spec returns the specification generation currently being reconciled.
func (d *Deployment) Spec() specmodel.ServiceSpecification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.spec
}

// UpdateSpec submits a new specification generation. Task sets cannot
// shrink: removing a pod instance or a task from an existing pod is
// rejected, since the engine has no teardown semantics for orphaned
// tasks. On acceptance every step is re-targeted to the new generation,
// resetting COMPLETE steps whose target changed back to PENDING.
func (d *Deployment) UpdateSpec(spec specmodel.ServiceSpecification) UpdateResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	result := UpdateResult{Target: spec.Target}
	old := indexPods(d.spec)
	updated := indexPods(spec)
	for instance, tasks := range old {
		newTasks, ok := updated[instance]
		if !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("pod %s/%d removed; task sets cannot shrink", instance.Type, instance.Index))
			continue
		}
		for _, t := range tasks {
			if !lo.Contains(newTasks, t) {
				result.Errors = append(result.Errors, fmt.Sprintf("task %s removed from pod %s/%d; task sets cannot shrink", t, instance.Type, instance.Index))
			}
		}
	}
	if !result.Accepted() {
		return result
	}

	oldHashes := map[specmodel.PodInstance]uint64{}
	for _, p := range d.spec.Pods {
		h, err := podShapeHash(p)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("hashing pod %s/%d: %v", p.Type, p.Index, err))
			return result
		}
		oldHashes[specmodel.PodInstance{Type: p.Type, Index: p.Index}] = h
	}
	for _, p := range spec.Pods {
		h, err := podShapeHash(p)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("hashing pod %s/%d: %v", p.Type, p.Index, err))
			return result
		}
		instance := specmodel.PodInstance{Type: p.Type, Index: p.Index}
		if prior, ok := oldHashes[instance]; !ok || prior != h {
			result.ChangedPods = append(result.ChangedPods, instance)
		}
	}

	d.spec = spec
	for _, s := range d.plan.AllSteps() {
		s.SetTarget(spec.Target)
	}
	return result
}

// TaskID derives the deterministic task-id for one task of one pod
// instance. Step task-ids must be unique across all live plans; this
// naming makes collisions impossible within one service.
func TaskID(service string, pod specmodel.PodInstance, task specmodel.TaskName) specmodel.TaskID {
	return specmodel.TaskID(fmt.Sprintf("%s__%s-%d__%s", service, pod.Type, pod.Index, task))
}

func indexPods(spec specmodel.ServiceSpecification) map[specmodel.PodInstance][]specmodel.TaskName {
	out := map[specmodel.PodInstance][]specmodel.TaskName{}
	for _, p := range spec.Pods {
		instance := specmodel.PodInstance{Type: p.Type, Index: p.Index}
		out[instance] = lo.Map(p.Tasks, func(t specmodel.TaskSpec, _ int) specmodel.TaskName { return t.Name })
	}
	return out
}

// podBuilder derives a step's OfferRequirement from the deployment's
// current specification generation, so a step restarted after an
// UpdateSpec rebuilds against the new resources rather than the ones it
// was originally created with.
type podBuilder struct {
	deployment *Deployment
	pod        specmodel.PodInstance
}

// BuildOfferRequirement implements plan.RequirementBuilder.
func (b *podBuilder) BuildOfferRequirement() (*offer.OfferRequirement, error) {
	spec := b.deployment.Spec()

	pod, found := lo.Find(spec.Pods, func(p specmodel.PodSpec) bool {
		return p.Type == b.pod.Type && p.Index == b.pod.Index
	})
	if !found {
		return nil, fmt.Errorf("pod %s/%d not present in specification %q", b.pod.Type, b.pod.Index, spec.Target)
	}

	resourceSets := lo.SliceToMap(pod.Resources, func(rs specmodel.ResourceSet) (string, specmodel.ResourceSet) {
		return rs.ID, rs
	})

	var tasks []offer.TaskInfo
	var volumes []specmodel.VolumeRequirement
	for _, t := range pod.Tasks {
		resources := t.Resources
		volumes = append(volumes, t.Volumes...)
		if t.ResourceSetID != "" {
			rs, ok := resourceSets[t.ResourceSetID]
			if !ok {
				return nil, fmt.Errorf("task %s references unknown resource set %q", t.Name, t.ResourceSetID)
			}
			resources = mergeResources(resources, rs.Resources)
			volumes = append(volumes, rs.Volumes...)
		}
		tasks = append(tasks, offer.TaskInfo{
			TaskID:    TaskID(spec.Name, b.pod, t.Name),
			Name:      t.Name,
			Pod:       pod.Type,
			Command:   t.Command,
			Resources: resources,
			Target:    spec.Target,
		})
	}

	placement := pod.Placement
	if placement == nil {
		for _, t := range pod.Tasks {
			if t.Placement != nil {
				placement = t.Placement
				break
			}
		}
	}

	return &offer.OfferRequirement{
		Pod:       b.pod,
		Placement: placement,
		Tasks:     tasks,
		Volumes:   volumes,
		Target:    spec.Target,
	}, nil
}

func mergeResources(task, set corev1.ResourceList) corev1.ResourceList {
	out := corev1.ResourceList{}
	for name, qty := range set {
		out[name] = qty.DeepCopy()
	}
	for name, qty := range task {
		out[name] = qty.DeepCopy()
	}
	return out
}

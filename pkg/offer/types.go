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

// Package offer models the semantic surface of the cluster resource
// manager's offer/operation/status protocol: enough to evaluate and accept
// offers without depending on its wire encoding.
package offer

import (
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/mesosphere/dcos-plan-scheduler/pkg/specmodel"
)

// OfferID identifies one resource offer for the duration of its lifetime.
type OfferID string

// AgentID identifies the cluster node an offer was issued for.
type AgentID string

// Resource is a single typed, possibly-reserved resource slice on an offer.
type Resource struct {
	Name      corev1.ResourceName
	Quantity  resource.Quantity
	Reserved  bool
	Role      string
	Principal string
	DiskInfo  *DiskInfo
}

// DiskInfo marks a resource as backing a persistent volume, and whether
// that volume already exists (a CREATE operation is only needed once).
type DiskInfo struct {
	PersistenceID string
	Created       bool
}

// Offer is a time-bounded promise of resources on a specific agent.
type Offer struct {
	ID         OfferID
	AgentID    AgentID
	Hostname   string
	Attributes map[string]string
	Resources  []Resource
}

// OperationType enumerates the kinds of operations a recommendation may
// carry.
type OperationType string

const (
	Reserve   OperationType = "RESERVE"
	Unreserve OperationType = "UNRESERVE"
	Create    OperationType = "CREATE"
	Destroy   OperationType = "DESTROY"
	Launch    OperationType = "LAUNCH"
)

// TaskInfo is the skeleton of a task to be launched: enough for the driver
// to construct its own wire-level TaskInfo.
type TaskInfo struct {
	TaskID    specmodel.TaskID
	Name      specmodel.TaskName
	Pod       specmodel.PodType
	Command   string
	Resources corev1.ResourceList
	AgentID   AgentID
	Target    specmodel.ConfigTarget
}

// OfferRequirement is the immutable, PodSpec-derived description an
// OfferEvaluator matches against incoming offers: per-task resource asks,
// placement, taskInfo skeletons, and the ConfigTarget the requirement was
// built against.
type OfferRequirement struct {
	Pod       specmodel.PodInstance
	Placement *specmodel.PlacementRule
	Tasks     []TaskInfo
	Volumes   []specmodel.VolumeRequirement
	Target    specmodel.ConfigTarget
	// ExecutorInfo is left as an opaque blob: its contents are specific to
	// the cluster manager's executor model.
	ExecutorInfo []byte
	// DestroyPriorReservation, when non-empty, asks the evaluator to emit
	// DESTROY/UNRESERVE recommendations against these resources before
	// any RESERVE/CREATE/LAUNCH recommendations for the requirement
	// itself - the permanent-failure recovery path.
	DestroyPriorReservation []Resource
}

// TaskIDs returns the task-ids this requirement would launch.
func (r OfferRequirement) TaskIDs() []specmodel.TaskID {
	ids := make([]specmodel.TaskID, 0, len(r.Tasks))
	for _, t := range r.Tasks {
		ids = append(ids, t.TaskID)
	}
	return ids
}

// Recommendation bundles one operation with the offer it targets. A
// sequence of Recommendations against the same OfferID is submitted to the
// driver as a single accept call.
type Recommendation struct {
	Offer     Offer
	Operation OperationType
	// TaskInfo is populated for LAUNCH recommendations.
	TaskInfo *TaskInfo
	// DiskInfo is populated for CREATE and DESTROY recommendations that
	// manipulate a persistent volume; RESERVE and UNRESERVE leave it nil.
	DiskInfo *DiskInfo
	// Resources is the resource slice this operation consumes or frees.
	Resources []Resource
}

// TaskState enumerates the terminal/non-terminal states a TaskStatus can
// report, trimmed to the subset the engine's state machine inspects.
type TaskState string

const (
	TaskStaging  TaskState = "TASK_STAGING"
	TaskStarting TaskState = "TASK_STARTING"
	TaskRunning  TaskState = "TASK_RUNNING"
	TaskFinished TaskState = "TASK_FINISHED"
	TaskFailed   TaskState = "TASK_FAILED"
	TaskKilled   TaskState = "TASK_KILLED"
	TaskLost     TaskState = "TASK_LOST"
	TaskError    TaskState = "TASK_ERROR"
)

// IsTerminal reports whether a task in this state will not transition again
// without a fresh launch.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskFinished, TaskFailed, TaskKilled, TaskError:
		return true
	default:
		return false
	}
}

// IsRunning reports whether a task in this state is considered up.
func (s TaskState) IsRunning() bool {
	return s == TaskRunning
}

// TaskStatus is an asynchronous update from the cluster manager about a
// task's current state.
type TaskStatus struct {
	TaskID  specmodel.TaskID
	State   TaskState
	Target  specmodel.ConfigTarget
	Message string
	Healthy *bool
}

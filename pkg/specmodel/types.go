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

// Package specmodel holds the declarative input the engine reconciles
// against: a ServiceSpecification and the pod/task tree beneath it. These
// are plain records, not wire types - protobuf-shaped objects stay at the
// driver boundary only.
package specmodel

import (
	corev1 "k8s.io/api/core/v1"
)

// ConfigTarget is the opaque identifier the configuration store hands back
// for a generation of a ServiceSpecification. Steps carry the target they
// were created against so a rollout can be detected by comparison alone.
type ConfigTarget string

// ServiceSpecification is the top-level declarative input, immutable for
// the lifetime of a single ConfigTarget generation.
type ServiceSpecification struct {
	Name      string
	Principal string
	Role      string
	Target    ConfigTarget
	Pods      []PodSpec
}

// PodType names a pod within a ServiceSpecification.
type PodType string

// PodSpec describes one co-scheduled group of tasks.
type PodSpec struct {
	Type      PodType
	User      string
	Index     int
	Tasks     []TaskSpec
	Resources []ResourceSet
	Placement *PlacementRule
}

// PodInstance identifies a concrete pod instance: its type and ordinal
// index. This is the asset unit the coordinator's dirty-asset exchange
// tracks - two steps targeting the same PodInstance within one offer
// cycle are mutually exclusive.
type PodInstance struct {
	Type  PodType
	Index int
}

// TaskName names a task within a pod.
type TaskName string

// TaskSpec is one task within a pod: its command, resource asks, optional
// persistent volume requirements, placement, and health check.
type TaskSpec struct {
	Name          TaskName
	Pod           PodType
	Command       string
	Resources     corev1.ResourceList
	Volumes       []VolumeRequirement
	Placement     *PlacementRule
	HealthCheck   *HealthCheck
	ResourceSetID string
}

// VolumeRequirement describes a persistent volume a task needs mounted.
type VolumeRequirement struct {
	Name      string
	MountPath string
	Size      corev1.ResourceList
}

// HealthCheck describes how to determine a task is healthy once running.
type HealthCheck struct {
	Command             string
	IntervalSeconds     int64
	GracePeriodSeconds  int64
	MaxConsecutiveFails int32
}

// ResourceSet is a named, reusable bundle of resource asks a TaskSpec can
// reference by ResourceSetID instead of repeating requests inline.
type ResourceSet struct {
	ID        string
	Resources corev1.ResourceList
	Volumes   []VolumeRequirement
}

// PlacementRule constrains which offers a task or pod may land on.
type PlacementRule struct {
	// Expression is a small constraint language over offer attributes,
	// e.g. "rack:LIKE:us-east-1a" or "hostname:UNIQUE". Left opaque here;
	// pkg/evaluator interprets it.
	Expression string
}

// TaskID uniquely identifies one launched (or about-to-launch) task.
type TaskID string

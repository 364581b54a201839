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

// Package statestore defines the persistent-storage seam the engine reads
// and writes through - task status, launched requirements, and config
// targets - without depending on any concrete backend. It also ships an
// in-memory reference implementation for tests and single-node operation.
package statestore

import (
	"context"

	"github.com/mesosphere/dcos-plan-scheduler/pkg/offer"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/specmodel"
)

// StateStore persists what the engine has launched and last heard about
// each task, so a restarted process can rebuild its Reconciler and Step
// state.
type StateStore interface {
	PutFrameworkID(ctx context.Context, id string) error
	GetFrameworkID(ctx context.Context) (string, bool, error)
	PutRequirement(ctx context.Context, taskID specmodel.TaskID, req offer.OfferRequirement) error
	GetRequirement(ctx context.Context, taskID specmodel.TaskID) (offer.OfferRequirement, bool, error)
	PutStatus(ctx context.Context, status offer.TaskStatus) error
	GetStatus(ctx context.Context, taskID specmodel.TaskID) (offer.TaskStatus, bool, error)
	KnownTaskIDs(ctx context.Context) ([]specmodel.TaskID, error)
	ClearTask(ctx context.Context, taskID specmodel.TaskID) error
	// PutSuppressed mirrors the framework's current offer-suppression flag
	// so a restarted scheduler resumes in the same suppress/revive state.
	PutSuppressed(ctx context.Context, suppressed bool) error
	GetSuppressed(ctx context.Context) (bool, error)
}

// ConfigStore persists the ServiceSpecification revisions a deployment
// plan is built against, keyed by ConfigTarget, so a PlanManager rebuilt
// after a restart can recover which spec a given Step was launched under.
type ConfigStore interface {
	PutConfig(ctx context.Context, target specmodel.ConfigTarget, spec specmodel.ServiceSpecification) error
	GetConfig(ctx context.Context, target specmodel.ConfigTarget) (specmodel.ServiceSpecification, bool, error)
	ListTargets(ctx context.Context) ([]specmodel.ConfigTarget, error)
}

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

package statestore

import (
	"context"
	"fmt"

	cache "github.com/patrickmn/go-cache"

	"github.com/mesosphere/dcos-plan-scheduler/pkg/offer"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/specmodel"
)

// MemoryStore is a process-local StateStore/ConfigStore backed by go-cache.
// Entries never expire on their own - cache.NoExpiration is used throughout
// - since task records are only ever removed explicitly via ClearTask,
// and config records are never removed.
type MemoryStore struct {
	requirements *cache.Cache
	statuses     *cache.Cache
	configs      *cache.Cache
	framework    *cache.Cache
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requirements: cache.New(cache.NoExpiration, 0),
		statuses:     cache.New(cache.NoExpiration, 0),
		configs:      cache.New(cache.NoExpiration, 0),
		framework:    cache.New(cache.NoExpiration, 0),
	}
}

const (
	frameworkIDKey = "frameworkId"
	suppressedKey  = "suppressed"
)

// PutFrameworkID implements StateStore.
func (m *MemoryStore) PutFrameworkID(ctx context.Context, id string) error {
	m.framework.Set(frameworkIDKey, id, cache.NoExpiration)
	return nil
}

// GetFrameworkID implements StateStore.
func (m *MemoryStore) GetFrameworkID(ctx context.Context) (string, bool, error) {
	v, ok := m.framework.Get(frameworkIDKey)
	if !ok {
		return "", false, nil
	}
	id, ok := v.(string)
	if !ok {
		return "", false, fmt.Errorf("statestore: corrupt framework id entry")
	}
	return id, true, nil
}

// PutSuppressed implements StateStore.
func (m *MemoryStore) PutSuppressed(ctx context.Context, suppressed bool) error {
	m.framework.Set(suppressedKey, suppressed, cache.NoExpiration)
	return nil
}

// GetSuppressed implements StateStore. A missing entry reads as false: a
// fresh framework has never suppressed offers.
func (m *MemoryStore) GetSuppressed(ctx context.Context) (bool, error) {
	v, ok := m.framework.Get(suppressedKey)
	if !ok {
		return false, nil
	}
	suppressed, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("statestore: corrupt suppressed entry")
	}
	return suppressed, nil
}

func requirementKey(taskID specmodel.TaskID) string  { return string(taskID) }
func statusKey(taskID specmodel.TaskID) string       { return string(taskID) }
func configKey(target specmodel.ConfigTarget) string { return string(target) }

// PutRequirement implements StateStore.
func (m *MemoryStore) PutRequirement(ctx context.Context, taskID specmodel.TaskID, req offer.OfferRequirement) error {
	m.requirements.Set(requirementKey(taskID), req, cache.NoExpiration)
	return nil
}

// GetRequirement implements StateStore.
func (m *MemoryStore) GetRequirement(ctx context.Context, taskID specmodel.TaskID) (offer.OfferRequirement, bool, error) {
	v, ok := m.requirements.Get(requirementKey(taskID))
	if !ok {
		return offer.OfferRequirement{}, false, nil
	}
	req, ok := v.(offer.OfferRequirement)
	if !ok {
		return offer.OfferRequirement{}, false, fmt.Errorf("statestore: corrupt requirement entry for %s", taskID)
	}
	return req, true, nil
}

// PutStatus implements StateStore.
func (m *MemoryStore) PutStatus(ctx context.Context, status offer.TaskStatus) error {
	m.statuses.Set(statusKey(status.TaskID), status, cache.NoExpiration)
	return nil
}

// GetStatus implements StateStore.
func (m *MemoryStore) GetStatus(ctx context.Context, taskID specmodel.TaskID) (offer.TaskStatus, bool, error) {
	v, ok := m.statuses.Get(statusKey(taskID))
	if !ok {
		return offer.TaskStatus{}, false, nil
	}
	status, ok := v.(offer.TaskStatus)
	if !ok {
		return offer.TaskStatus{}, false, fmt.Errorf("statestore: corrupt status entry for %s", taskID)
	}
	return status, true, nil
}

// KnownTaskIDs implements StateStore, and TaskLister for the reconciler.
func (m *MemoryStore) KnownTaskIDs(ctx context.Context) ([]specmodel.TaskID, error) {
	items := m.requirements.Items()
	ids := make([]specmodel.TaskID, 0, len(items))
	for k := range items {
		ids = append(ids, specmodel.TaskID(k))
	}
	return ids, nil
}

// ClearTask implements StateStore.
func (m *MemoryStore) ClearTask(ctx context.Context, taskID specmodel.TaskID) error {
	m.requirements.Delete(requirementKey(taskID))
	m.statuses.Delete(statusKey(taskID))
	return nil
}

// PutConfig implements ConfigStore.
func (m *MemoryStore) PutConfig(ctx context.Context, target specmodel.ConfigTarget, spec specmodel.ServiceSpecification) error {
	m.configs.Set(configKey(target), spec, cache.NoExpiration)
	return nil
}

// GetConfig implements ConfigStore.
func (m *MemoryStore) GetConfig(ctx context.Context, target specmodel.ConfigTarget) (specmodel.ServiceSpecification, bool, error) {
	v, ok := m.configs.Get(configKey(target))
	if !ok {
		return specmodel.ServiceSpecification{}, false, nil
	}
	spec, ok := v.(specmodel.ServiceSpecification)
	if !ok {
		return specmodel.ServiceSpecification{}, false, fmt.Errorf("statestore: corrupt config entry for %s", target)
	}
	return spec, true, nil
}

// ListTargets implements ConfigStore.
func (m *MemoryStore) ListTargets(ctx context.Context) ([]specmodel.ConfigTarget, error) {
	items := m.configs.Items()
	out := make([]specmodel.ConfigTarget, 0, len(items))
	for k := range items {
		out = append(out, specmodel.ConfigTarget(k))
	}
	return out, nil
}

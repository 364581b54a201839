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

package driver

import (
	"context"
	"sync"

	"github.com/mesosphere/dcos-plan-scheduler/pkg/offer"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/specmodel"
)

// FakeDriver is an in-memory Driver for tests: it records every call it
// receives and lets a test inject failures or canned behavior through its
// *Behavior fields, following this repository's mock convention.
type FakeDriver struct {
	mu sync.RWMutex

	AcceptOffersBehavior   func(offerID offer.OfferID, ops []offer.Recommendation) error
	DeclineOfferBehavior   func(offerID offer.OfferID) error
	KillTaskBehavior       func(taskID specmodel.TaskID) error
	ReconcileTasksBehavior func(taskIDs []specmodel.TaskID) error
	SuppressOffersBehavior func() error
	ReviveOffersBehavior   func() error

	acceptedOffers []acceptedOffer
	declinedOffers []offer.OfferID
	killedTasks    []specmodel.TaskID
	reconcileCalls [][]specmodel.TaskID
	suppressCalls  int
	reviveCalls    int
}

type acceptedOffer struct {
	OfferID offer.OfferID
	Ops     []offer.Recommendation
}

// NewFakeDriver constructs a FakeDriver with no injected behaviors: every
// call succeeds and is merely recorded.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{}
}

// AcceptOffers implements Driver.
func (f *FakeDriver) AcceptOffers(ctx context.Context, offerID offer.OfferID, ops []offer.Recommendation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acceptedOffers = append(f.acceptedOffers, acceptedOffer{OfferID: offerID, Ops: append([]offer.Recommendation(nil), ops...)})
	if f.AcceptOffersBehavior != nil {
		return f.AcceptOffersBehavior(offerID, ops)
	}
	return nil
}

// DeclineOffer implements Driver.
func (f *FakeDriver) DeclineOffer(ctx context.Context, offerID offer.OfferID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declinedOffers = append(f.declinedOffers, offerID)
	if f.DeclineOfferBehavior != nil {
		return f.DeclineOfferBehavior(offerID)
	}
	return nil
}

// KillTask implements Driver.
func (f *FakeDriver) KillTask(ctx context.Context, taskID specmodel.TaskID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killedTasks = append(f.killedTasks, taskID)
	if f.KillTaskBehavior != nil {
		return f.KillTaskBehavior(taskID)
	}
	return nil
}

// ReconcileTasks implements Driver.
func (f *FakeDriver) ReconcileTasks(ctx context.Context, taskIDs []specmodel.TaskID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconcileCalls = append(f.reconcileCalls, append([]specmodel.TaskID(nil), taskIDs...))
	if f.ReconcileTasksBehavior != nil {
		return f.ReconcileTasksBehavior(taskIDs)
	}
	return nil
}

// SuppressOffers implements Driver.
func (f *FakeDriver) SuppressOffers(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suppressCalls++
	if f.SuppressOffersBehavior != nil {
		return f.SuppressOffersBehavior()
	}
	return nil
}

// ReviveOffers implements Driver.
func (f *FakeDriver) ReviveOffers(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviveCalls++
	if f.ReviveOffersBehavior != nil {
		return f.ReviveOffersBehavior()
	}
	return nil
}

// Reset clears all recorded calls without touching injected behaviors.
func (f *FakeDriver) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acceptedOffers = nil
	f.declinedOffers = nil
	f.killedTasks = nil
	f.reconcileCalls = nil
	f.suppressCalls = 0
	f.reviveCalls = 0
}

// AcceptedOffers returns a copy of every accepted-offer call received so far.
func (f *FakeDriver) AcceptedOffers() []acceptedOffer {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]acceptedOffer(nil), f.acceptedOffers...)
}

// DeclinedOffers returns a copy of every declined offer id seen so far.
func (f *FakeDriver) DeclinedOffers() []offer.OfferID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]offer.OfferID(nil), f.declinedOffers...)
}

// KilledTasks returns a copy of every killed task id seen so far.
func (f *FakeDriver) KilledTasks() []specmodel.TaskID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]specmodel.TaskID(nil), f.killedTasks...)
}

// SuppressCallCount returns the number of SuppressOffers calls received.
func (f *FakeDriver) SuppressCallCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.suppressCalls
}

// ReviveCallCount returns the number of ReviveOffers calls received.
func (f *FakeDriver) ReviveCallCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.reviveCalls
}

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

package evaluator

import (
	"context"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/go-logr/logr"

	"github.com/mesosphere/dcos-plan-scheduler/pkg/offer"
)

// AcceptingDriver is the subset of the driver boundary the accepter needs.
type AcceptingDriver interface {
	AcceptOffers(ctx context.Context, offerID offer.OfferID, ops []offer.Recommendation) error
}

// OperationRecorder is notified of every (operation, offer) pair actually
// submitted in an accept call, so it can persist launched TaskInfos or
// publish events. A recorder failure is logged, never rolled back - the
// cluster manager's view of the accept is authoritative once sent.
type OperationRecorder interface {
	RecordOperation(ctx context.Context, rec offer.Recommendation) error
}

// Accepter groups recommendations by offer and submits one accept call per
// offer, then fans the accepted (operation, offer) pairs out to recorders.
type Accepter struct {
	driver    AcceptingDriver
	recorders []OperationRecorder
	log       logr.Logger
	attempts  uint
}

// NewAccepter constructs an Accepter. attempts bounds the retry-go backoff
// around each accept call; every error from the driver is retried alike.
// 0 selects a sane default (3).
func NewAccepter(driver AcceptingDriver, log logr.Logger, attempts uint, recorders ...OperationRecorder) *Accepter {
	if attempts == 0 {
		attempts = 3
	}
	return &Accepter{driver: driver, recorders: recorders, log: log, attempts: attempts}
}

// Accept groups recs by offer id, issues one accept call per group, and
// returns the ids of offers that were actually accepted. Failures from a
// recorder are logged but never cause the accept to be retried or rolled
// back.
func (a *Accepter) Accept(ctx context.Context, recs []offer.Recommendation) ([]offer.OfferID, error) {
	if len(recs) == 0 {
		return nil, nil
	}

	grouped := map[offer.OfferID][]offer.Recommendation{}
	var order []offer.OfferID
	for _, r := range recs {
		if _, ok := grouped[r.Offer.ID]; !ok {
			order = append(order, r.Offer.ID)
		}
		grouped[r.Offer.ID] = append(grouped[r.Offer.ID], r)
	}

	var accepted []offer.OfferID
	for _, id := range order {
		ops := grouped[id]
		err := retry.Do(
			func() error { return a.driver.AcceptOffers(ctx, id, ops) },
			retry.Attempts(a.attempts),
			retry.Delay(50*time.Millisecond),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			a.log.Error(err, "accept offer failed", "offer", id)
			continue
		}
		accepted = append(accepted, id)
		a.notifyRecorders(ctx, ops)
	}
	return accepted, nil
}

func (a *Accepter) notifyRecorders(ctx context.Context, ops []offer.Recommendation) {
	for _, op := range ops {
		for _, rec := range a.recorders {
			if err := rec.RecordOperation(ctx, op); err != nil {
				a.log.Error(err, "operation recorder failed", "operation", op.Operation, "offer", op.Offer.ID)
			}
		}
	}
}

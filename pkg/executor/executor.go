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

// Package executor runs every mutation of the plan/coordinator state on a
// single goroutine. The plan graph needs no locking between an offer
// cycle, a status update, and an admin command as long as all three run
// from one writer; this package is that writer, built the same way this
// repository builds its reconcile loops - named, deduplicated work items
// pulled off a client-go workqueue - rather than a raw mutex.
package executor

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/client-go/util/workqueue"

	"github.com/mesosphere/dcos-plan-scheduler/pkg/driver"
)

// Handler runs one named unit of work. A returned error requeues the item
// with rate-limited backoff, the same contract as a controller-runtime
// Reconciler.
type Handler func(ctx context.Context, item string) error

// Executor serializes Handler invocations for a fixed set of named work
// items (e.g. "offers", "reconcile", "recovery") onto a single goroutine,
// so state shared across the plan/coordinator packages never needs its own
// locking at the call-site level.
type Executor struct {
	queue   workqueue.TypedRateLimitingInterface[string]
	handler Handler
	log     logr.Logger
	fatal   chan *driver.FatalError
}

// New constructs an Executor. The returned FatalErrorChannel is how a
// handler (via the driver callback Dispatcher) signals the process should
// exit - this package itself never calls os.Exit.
func New(handler Handler, log logr.Logger) *Executor {
	return &Executor{
		queue:   workqueue.NewTypedRateLimitingQueue(workqueue.DefaultTypedControllerRateLimiter[string]()),
		handler: handler,
		log:     log,
		fatal:   make(chan *driver.FatalError, 1),
	}
}

// FatalErrorChannel returns the channel a process supervisor should drain
// to learn when a fatal condition requires process exit.
func (e *Executor) FatalErrorChannel() chan *driver.FatalError {
	return e.fatal
}

// Enqueue schedules item to run on the single worker goroutine. Enqueuing
// the same item again before it has been processed collapses into one run,
// the same coalescing behavior a workqueue gives a controller watching
// bursty object updates.
func (e *Executor) Enqueue(item string) {
	e.queue.Add(item)
}

// EnqueueAfter schedules item to run after a delay, for periodic triggers
// like the reconciliation and recovery-refresh ticks.
func (e *Executor) EnqueueAfter(item string, delay time.Duration) {
	e.queue.AddAfter(item, delay)
}

// Run processes items until ctx is done, blocking the calling goroutine -
// this is the single writer. Callers typically invoke Run in its own
// goroutine and synchronize shutdown through ctx.
func (e *Executor) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		e.queue.ShutDown()
	}()

	for e.processNext(ctx) {
	}
}

func (e *Executor) processNext(ctx context.Context) bool {
	item, shutdown := e.queue.Get()
	if shutdown {
		return false
	}
	defer e.queue.Done(item)

	if err := e.handler(ctx, item); err != nil {
		e.log.Error(err, "handler failed, requeueing", "item", item)
		e.queue.AddRateLimited(item)
		return true
	}
	e.queue.Forget(item)
	return true
}

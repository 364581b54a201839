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

package executor_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mesosphere/dcos-plan-scheduler/pkg/executor"
)

var _ = Describe("Executor", func() {
	It("runs every handler invocation on one goroutine, in order per item", func() {
		var mu sync.Mutex
		var seen []string
		done := make(chan struct{})

		exec := executor.New(func(ctx context.Context, item string) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, item)
			if len(seen) == 2 {
				close(done)
			}
			return nil
		}, logr.Discard())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go exec.Run(ctx)

		exec.Enqueue("offers")
		exec.Enqueue("reconcile")

		Eventually(done, time.Second).Should(BeClosed())
		mu.Lock()
		defer mu.Unlock()
		Expect(seen).To(ConsistOf("offers", "reconcile"))
	})

	It("requeues an item whose handler fails until it succeeds", func() {
		var mu sync.Mutex
		calls := 0
		done := make(chan struct{})

		exec := executor.New(func(ctx context.Context, item string) error {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			close(done)
			return nil
		}, logr.Discard())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go exec.Run(ctx)

		exec.Enqueue("offers")
		Eventually(done, 5*time.Second).Should(BeClosed())
	})

	It("stops processing once the context is cancelled", func() {
		exec := executor.New(func(ctx context.Context, item string) error { return nil }, logr.Discard())

		ctx, cancel := context.WithCancel(context.Background())
		finished := make(chan struct{})
		go func() {
			exec.Run(ctx)
			close(finished)
		}()

		cancel()
		Eventually(finished, time.Second).Should(BeClosed())
	})
})

var _ = Describe("ReadyGate", func() {
	It("is not ready until fired, and stays ready afterward", func() {
		gate := executor.NewReadyGate()
		Expect(gate.IsReady()).To(BeFalse())

		gate.Fire()
		Expect(gate.IsReady()).To(BeTrue())
		Expect(gate.Done()).To(BeClosed())

		gate.Fire() // idempotent
		Expect(gate.IsReady()).To(BeTrue())
	})

	It("unblocks a waiter on Fire", func() {
		gate := executor.NewReadyGate()
		unblocked := make(chan struct{})
		go func() {
			<-gate.Done()
			close(unblocked)
		}()

		Consistently(unblocked, 50*time.Millisecond).ShouldNot(BeClosed())
		gate.Fire()
		Eventually(unblocked, time.Second).Should(BeClosed())
	})
})

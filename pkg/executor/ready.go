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

package executor

import "sync"

// ReadyGate is a one-shot future: it is closed exactly once, the moment the
// engine is first allowed to act on offers (registration completed and the
// Reconciler's implicit request has landed). Anything that must wait
// for that moment - the offer-processing handler chief among them - checks
// IsReady() (or waits on Done()) and is never gated again afterward.
type ReadyGate struct {
	once sync.Once
	ch   chan struct{}
}

// NewReadyGate constructs an unfired ReadyGate.
func NewReadyGate() *ReadyGate {
	return &ReadyGate{ch: make(chan struct{})}
}

// Fire closes the gate. Safe to call more than once; only the first call
// has any effect.
func (g *ReadyGate) Fire() {
	g.once.Do(func() { close(g.ch) })
}

// Done returns the channel that closes when Fire is first called.
func (g *ReadyGate) Done() <-chan struct{} {
	return g.ch
}

// IsReady reports whether Fire has already been called, without blocking.
func (g *ReadyGate) IsReady() bool {
	select {
	case <-g.ch:
		return true
	default:
		return false
	}
}

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

	"k8s.io/klog/v2"

	"github.com/mesosphere/dcos-plan-scheduler/pkg/offer"
)

// Callbacks is the inbound half of the boundary: the
// capability set the cluster manager invokes on the engine. The engine
// implements this and registers it with whatever transport adapts the
// real driver's wire callbacks onto these typed methods.
type Callbacks interface {
	Registered(ctx context.Context, frameworkID FrameworkID, master MasterInfo)
	Reregistered(ctx context.Context)
	ResourceOffers(ctx context.Context, offers []offer.Offer)
	OfferRescinded(ctx context.Context, offerID offer.OfferID)
	StatusUpdate(ctx context.Context, status offer.TaskStatus)
	Disconnected(ctx context.Context)
	Error(ctx context.Context, msg string)
	SlaveLost(ctx context.Context, agentID offer.AgentID)
	ExecutorLost(ctx context.Context, agentID offer.AgentID, executorID string)
	FrameworkMessage(ctx context.Context, agentID offer.AgentID, data []byte)
}

// Dispatcher adapts raw driver callbacks onto a Callbacks implementation,
// applying the fatal-exit Policy uniformly instead of scattering os.Exit
// calls through call sites. Fatal conditions are reported on Fatal rather
// than acted on directly; only the process supervisor may exit.
type Dispatcher struct {
	Policy Policy
	Target Callbacks
	Fatal  chan<- *FatalError
}

func (d *Dispatcher) raise(code ExitCode, err error) {
	fe := &FatalError{Code: code, Err: err}
	select {
	case d.Fatal <- fe:
	default:
		klog.ErrorS(fe, "fatal error channel full, dropping")
	}
}

// Registered handles the one-time registration callback.
func (d *Dispatcher) Registered(ctx context.Context, frameworkID FrameworkID, master MasterInfo) {
	klog.InfoS("registered", "frameworkID", frameworkID, "master", master.Hostname)
	d.Target.Registered(ctx, frameworkID, master)
}

// Reregistered treats re-registration as fatal when the policy says so:
// the framework is never expected to be re-registered from scratch under
// this design.
func (d *Dispatcher) Reregistered(ctx context.Context) {
	klog.InfoS("reregistered")
	if d.Policy.FatalOnReregister {
		d.raise(ExitReRegistration, nil)
		return
	}
	d.Target.Reregistered(ctx)
}

// ResourceOffers forwards an offer batch.
func (d *Dispatcher) ResourceOffers(ctx context.Context, offers []offer.Offer) {
	d.Target.ResourceOffers(ctx, offers)
}

// OfferRescinded treats a rescind as fatal when the policy says so.
func (d *Dispatcher) OfferRescinded(ctx context.Context, offerID offer.OfferID) {
	klog.InfoS("offer rescinded", "offer", offerID)
	if d.Policy.FatalOnOfferRescinded {
		d.raise(ExitOfferRescinded, nil)
		return
	}
	d.Target.OfferRescinded(ctx, offerID)
}

// StatusUpdate forwards a task status update.
func (d *Dispatcher) StatusUpdate(ctx context.Context, status offer.TaskStatus) {
	d.Target.StatusUpdate(ctx, status)
}

// Disconnected is always fatal.
func (d *Dispatcher) Disconnected(ctx context.Context) {
	klog.InfoS("disconnected")
	d.raise(ExitDisconnected, nil)
}

// Error is always fatal; a "framework removed" marker is logged distinctly
// so the operator gets recovery instructions.
func (d *Dispatcher) Error(ctx context.Context, msg string) {
	klog.ErrorS(nil, "driver error", "message", msg)
	if IsFrameworkRemoved(msg) {
		klog.ErrorS(nil, "framework was removed from the cluster manager; re-register a new framework id and redeploy")
	}
	d.raise(ExitError, errString(msg))
}

// SlaveLost is logged only.
func (d *Dispatcher) SlaveLost(ctx context.Context, agentID offer.AgentID) {
	klog.InfoS("slave lost", "agent", agentID)
}

// ExecutorLost is logged only.
func (d *Dispatcher) ExecutorLost(ctx context.Context, agentID offer.AgentID, executorID string) {
	klog.InfoS("executor lost", "agent", agentID, "executor", executorID)
}

// FrameworkMessage is logged only.
func (d *Dispatcher) FrameworkMessage(ctx context.Context, agentID offer.AgentID, data []byte) {
	klog.InfoS("framework message", "agent", agentID, "bytes", len(data))
}

type errString string

func (e errString) Error() string { return string(e) }

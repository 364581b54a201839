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

// Package driver is the boundary between the engine and the cluster
// resource manager: the semantic surface of its RPC, never its wire
// encoding.
package driver

import (
	"context"
	"strings"

	"github.com/mesosphere/dcos-plan-scheduler/pkg/offer"
	"github.com/mesosphere/dcos-plan-scheduler/pkg/specmodel"
)

// FrameworkID identifies this scheduler instance to the cluster manager
// across restarts.
type FrameworkID string

// MasterInfo describes the currently-leading resource manager instance.
type MasterInfo struct {
	ID       string
	Hostname string
}

// Driver is the outbound half of the boundary: everything
// the engine calls on the cluster resource manager.
type Driver interface {
	AcceptOffers(ctx context.Context, offerID offer.OfferID, ops []offer.Recommendation) error
	DeclineOffer(ctx context.Context, offerID offer.OfferID) error
	KillTask(ctx context.Context, taskID specmodel.TaskID) error
	ReconcileTasks(ctx context.Context, taskIDs []specmodel.TaskID) error
	SuppressOffers(ctx context.Context) error
	ReviveOffers(ctx context.Context) error
}

// Policy configures how the callback Dispatcher reacts to the two events
// that are unconditionally fatal by default, so a supervisor can choose
// restart-in-place over process death.
type Policy struct {
	FatalOnReregister     bool
	FatalOnOfferRescinded bool
}

// DefaultPolicy makes both events fatal.
func DefaultPolicy() Policy {
	return Policy{FatalOnReregister: true, FatalOnOfferRescinded: true}
}

// ExitCode enumerates the process exit codes, assigned in
// declaration order starting at 1 (0 is reserved for normal exit).
type ExitCode int

const (
	ExitNormal ExitCode = iota
	ExitInitializationFailure
	ExitRegistrationFailure
	ExitReRegistration
	ExitOfferRescinded
	ExitDisconnected
	ExitError
)

// String renders the exit code's name, for logging.
func (c ExitCode) String() string {
	switch c {
	case ExitNormal:
		return "NORMAL"
	case ExitInitializationFailure:
		return "INITIALIZATION_FAILURE"
	case ExitRegistrationFailure:
		return "REGISTRATION_FAILURE"
	case ExitReRegistration:
		return "RE_REGISTRATION"
	case ExitOfferRescinded:
		return "OFFER_RESCINDED"
	case ExitDisconnected:
		return "DISCONNECTED"
	case ExitError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FatalError pairs an ExitCode with the error that triggered it. Fatal
// paths send a FatalError on a channel the process supervisor drains
// instead of calling os.Exit - the engine itself never terminates the
// process.
type FatalError struct {
	Code ExitCode
	Err  error
}

func (f *FatalError) Error() string {
	if f.Err == nil {
		return f.Code.String()
	}
	return f.Code.String() + ": " + f.Err.Error()
}

func (f *FatalError) Unwrap() error { return f.Err }

// frameworkRemovedMarker is the substring of an error() message that
// indicates the framework was removed from the cluster manager and
// operator-driven recovery instructions should be printed.
const frameworkRemovedMarker = "framework removed"

// IsFrameworkRemoved reports whether msg indicates the framework has been
// removed from the cluster manager.
func IsFrameworkRemoved(msg string) bool {
	return strings.Contains(msg, frameworkRemovedMarker)
}

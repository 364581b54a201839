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

// Package recovery implements the RecoveryPlanManager: scanning
// for tasks that are not in a healthy run state, and synthesizing a
// recovery plan with rate-limited relaunches and failure-permanence
// detection.
package recovery

import (
	"time"

	"github.com/go-logr/logr"
)

// FailureMonitor decides whether a failing task should be treated as
// permanently lost (destroy its reservation and relaunch fresh) rather
// than transient (relaunch in place, rate-limited).
type FailureMonitor interface {
	IsPermanent(failingSince, now time.Time) bool
}

// TimedFailureMonitor declares a task permanently failed once it has been
// failing continuously for at least Timeout.
type TimedFailureMonitor struct {
	Timeout time.Duration
}

// IsPermanent implements FailureMonitor.
func (m TimedFailureMonitor) IsPermanent(failingSince, now time.Time) bool {
	if m.Timeout <= 0 {
		return false
	}
	return now.Sub(failingSince) >= m.Timeout
}

// NeverFailureMonitor never declares a task permanently failed: every
// failure is treated as transient forever. Combining this with a
// non-zero configured timeout is a configuration error - see
// NewRecoveryPlanManager, which resolves Open Question #2 by always
// honoring NeverFailureMonitor and logging a warning in that case.
type NeverFailureMonitor struct{}

// IsPermanent implements FailureMonitor.
func (NeverFailureMonitor) IsPermanent(time.Time, time.Time) bool { return false }

// resolveFailureMonitor treats a NeverFailureMonitor paired with a
// non-zero timeout as a configuration mistake, not a stacking of
// policies. NeverFailureMonitor always wins.
func resolveFailureMonitor(monitor FailureMonitor, timeout time.Duration, log logr.Logger) FailureMonitor {
	if _, never := monitor.(NeverFailureMonitor); never && timeout > 0 {
		log.Info("permanentFailureTimeoutSec is ignored because NeverFailureMonitor is configured", "timeoutSeconds", timeout.Seconds())
	}
	return monitor
}

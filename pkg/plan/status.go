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

// Package plan implements the Step/Phase/Plan hierarchy: the
// indivisible unit of work, its ordered containers, and the status join
// rule that derives a container's status from its children.
package plan

// Status is the derived or primitive status of a Step, Phase, or Plan.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusPrepared   Status = "PREPARED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusStarting   Status = "STARTING"
	StatusComplete   Status = "COMPLETE"
	StatusWaiting    Status = "WAITING"
	StatusError      Status = "ERROR"
)

// IsTerminal reports whether s will not change without external input
// (an admin action, a new status update, or a config change).
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusError
}

// Join derives a container's status from its children's statuses under a
// strategy: ERROR dominates; else COMPLETE if every
// child is COMPLETE; IN_PROGRESS if any child is not terminal and not
// pending-like; PREPARED if any child is PREPARED and none IN_PROGRESS;
// WAITING if the container itself is interrupted.
func Join(interrupted bool, children []Status) Status {
	if interrupted {
		return StatusWaiting
	}
	if len(children) == 0 {
		return StatusComplete
	}

	sawError := false
	sawInProgress := false
	sawPrepared := false
	allComplete := true

	for _, c := range children {
		switch c {
		case StatusError:
			sawError = true
			allComplete = false
		case StatusComplete:
		case StatusPrepared:
			sawPrepared = true
			allComplete = false
		case StatusStarting, StatusInProgress:
			sawInProgress = true
			allComplete = false
		case StatusWaiting:
			sawInProgress = true
			allComplete = false
		case StatusPending:
			allComplete = false
		default:
			allComplete = false
		}
	}

	switch {
	case sawError:
		return StatusError
	case allComplete:
		return StatusComplete
	case sawInProgress:
		return StatusInProgress
	case sawPrepared:
		return StatusPrepared
	default:
		// Every remaining child is PENDING: nothing has started yet.
		return StatusPending
	}
}

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

package recovery

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LaunchConstrainer decides whether a destructive (transient-recovery)
// launch may proceed right now. One instance is shared across every
// transient step a RecoveryPlanManager owns, enforcing a single rate
// across the whole manager.
type LaunchConstrainer interface {
	CanLaunch(now time.Time) bool
}

// TimedLaunchConstrainer enforces a minimum delay between destructive
// launches across its owning manager, using a token-bucket limiter with
// burst 1 so at most one launch is ever allowed per interval regardless of
// how many transient steps ask concurrently.
type TimedLaunchConstrainer struct {
	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewTimedLaunchConstrainer constructs a constrainer allowing at most one
// launch per minInterval.
func NewTimedLaunchConstrainer(minInterval time.Duration) *TimedLaunchConstrainer {
	var r rate.Limit
	if minInterval <= 0 {
		r = rate.Inf
	} else {
		r = rate.Every(minInterval)
	}
	return &TimedLaunchConstrainer{limiter: rate.NewLimiter(r, 1)}
}

// CanLaunch reports whether a launch may proceed now, consuming the
// token if so.
func (c *TimedLaunchConstrainer) CanLaunch(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limiter.AllowN(now, 1)
}

// UnconstrainedLaunchConstrainer never blocks a launch; useful for tests
// and for a deployment with no transient-recovery rate limit configured.
type UnconstrainedLaunchConstrainer struct{}

// CanLaunch implements LaunchConstrainer.
func (UnconstrainedLaunchConstrainer) CanLaunch(time.Time) bool { return true }

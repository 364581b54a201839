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

package recovery_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mesosphere/dcos-plan-scheduler/pkg/recovery"
)

var _ = Describe("TimedLaunchConstrainer", func() {
	It("allows the first launch and then blocks until the interval elapses", func() {
		c := recovery.NewTimedLaunchConstrainer(time.Minute)
		now := time.Now()
		Expect(c.CanLaunch(now)).To(BeTrue())
		Expect(c.CanLaunch(now.Add(time.Second))).To(BeFalse())
		Expect(c.CanLaunch(now.Add(time.Minute))).To(BeTrue())
	})

	It("never blocks with a zero or negative interval", func() {
		c := recovery.NewTimedLaunchConstrainer(0)
		now := time.Now()
		Expect(c.CanLaunch(now)).To(BeTrue())
		Expect(c.CanLaunch(now)).To(BeTrue())
	})
})

var _ = Describe("UnconstrainedLaunchConstrainer", func() {
	It("never blocks a launch", func() {
		c := recovery.UnconstrainedLaunchConstrainer{}
		Expect(c.CanLaunch(time.Now())).To(BeTrue())
		Expect(c.CanLaunch(time.Now())).To(BeTrue())
	})
})

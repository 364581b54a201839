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

var _ = Describe("TimedFailureMonitor", func() {
	It("is not permanent before the timeout elapses", func() {
		m := recovery.TimedFailureMonitor{Timeout: 20 * time.Minute}
		since := time.Now()
		Expect(m.IsPermanent(since, since.Add(10*time.Minute))).To(BeFalse())
	})

	It("is permanent once the timeout elapses", func() {
		m := recovery.TimedFailureMonitor{Timeout: 20 * time.Minute}
		since := time.Now()
		Expect(m.IsPermanent(since, since.Add(20*time.Minute))).To(BeTrue())
	})

	It("never declares permanent with a zero timeout", func() {
		m := recovery.TimedFailureMonitor{}
		since := time.Now()
		Expect(m.IsPermanent(since, since.Add(24*time.Hour))).To(BeFalse())
	})
})

var _ = Describe("NeverFailureMonitor", func() {
	It("never declares a task permanently failed", func() {
		m := recovery.NeverFailureMonitor{}
		Expect(m.IsPermanent(time.Now(), time.Now().Add(365*24*time.Hour))).To(BeFalse())
	})
})

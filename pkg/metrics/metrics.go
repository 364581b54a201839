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

// Package metrics exposes the engine's internal state - plan/phase/step
// status, offer acceptance, and reconciliation progress - as Prometheus
// collectors, mirroring the ambient observability stack without depending
// on any specific plan instance.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace is the Prometheus metric namespace all collectors below share.
const Namespace = "dcos_plan_scheduler"

var (
	// StepStatus reports the current Status of a step as a gauge set of
	// 0/1 indicators, one time series per (plan, phase, step, status)
	// tuple, following this repository's pattern of reporting enum-valued
	// state as a set of boolean gauges rather than a single numeric gauge.
	StepStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "plan",
		Name:      "step_status",
		Help:      "1 for the step's current status, 0 otherwise.",
	}, []string{"plan", "phase", "step", "status"})

	// PlanStatus reports the current derived Status of a plan.
	PlanStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "plan",
		Name:      "status",
		Help:      "1 for the plan's current derived status, 0 otherwise.",
	}, []string{"plan", "status"})

	// OffersProcessed counts offers the coordinator has seen, partitioned
	// by whether they were consumed by at least one recommendation.
	OffersProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "offers",
		Name:      "processed_total",
		Help:      "Offers processed by the plan coordinator.",
	}, []string{"outcome"})

	// OperationsAccepted counts individual accepted operations by type.
	OperationsAccepted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "offers",
		Name:      "operations_accepted_total",
		Help:      "Operations included in accepted offer calls, by operation type.",
	}, []string{"operation"})

	// ReconciliationOutstanding reports the count of task-ids still
	// awaiting status confirmation.
	ReconciliationOutstanding = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "reconciliation",
		Name:      "outstanding_tasks",
		Help:      "Task ids not yet confirmed by a status other than TASK_LOST.",
	})

	// RecoveryStepsActive reports the count of steps currently held by the
	// recovery plan manager.
	RecoveryStepsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "recovery",
		Name:      "steps_active",
		Help:      "Steps currently present in the recovery plan.",
	})
)

func init() {
	prometheus.MustRegister(
		StepStatus,
		PlanStatus,
		OffersProcessed,
		OperationsAccepted,
		ReconciliationOutstanding,
		RecoveryStepsActive,
	)
}

// SetStepStatus zeroes out every other status gauge for (planName,
// phaseName, stepName) before setting the current one, so stale
// time series from a prior status don't linger at 1.
func SetStepStatus(planName, phaseName, stepName, current string, allStatuses []string) {
	for _, s := range allStatuses {
		v := 0.0
		if s == current {
			v = 1.0
		}
		StepStatus.WithLabelValues(planName, phaseName, stepName, s).Set(v)
	}
}

// SetPlanStatus zeroes out every other status gauge for planName before
// setting the current one.
func SetPlanStatus(planName, current string, allStatuses []string) {
	for _, s := range allStatuses {
		v := 0.0
		if s == current {
			v = 1.0
		}
		PlanStatus.WithLabelValues(planName, s).Set(v)
	}
}

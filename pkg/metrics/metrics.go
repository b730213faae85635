// Copyright 2025 The shiki authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes Prometheus instrumentation for the agent.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts service operations by action and outcome.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shiki",
			Subsystem: "controller",
			Name:      "operations_total",
			Help:      "Service operations processed, by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	// OperationDuration observes how long service operations take.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shiki",
			Subsystem: "controller",
			Name:      "operation_duration_seconds",
			Help:      "Duration of service operations.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"action"},
	)

	// ActiveOperations tracks operations currently in flight.
	ActiveOperations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "shiki",
			Subsystem: "controller",
			Name:      "active_operations",
			Help:      "Service operations currently in flight.",
		},
	)

	// RequestsTotal counts HTTP requests by method, path and status.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shiki",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "HTTP requests processed, by method, path and status.",
		},
		[]string{"method", "path", "status"},
	)

	// AgentState publishes the current lifecycle state as a one-hot gauge.
	AgentState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "shiki",
			Subsystem: "agent",
			Name:      "state",
			Help:      "Current agent lifecycle state (1 for the active state).",
		},
		[]string{"state"},
	)
)

// ObserveOperation records one finished service operation.
func ObserveOperation(action string, outcome string, duration time.Duration) {
	OperationsTotal.WithLabelValues(action, outcome).Inc()
	OperationDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// SetAgentState marks state as active and clears the others.
func SetAgentState(state string, all []string) {
	for _, s := range all {
		value := 0.0
		if s == state {
			value = 1.0
		}

		AgentState.WithLabelValues(s).Set(value)
	}
}

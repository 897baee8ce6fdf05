// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics registers the control plane service layer's
// prometheus/client_golang instruments, pre-wired through promauto's
// default registerer so cmd/controlplane only needs to mount
// promhttp.Handler. Component-owned instruments (log pipeline, helper pod)
// live alongside their components instead.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsSubmitted counts task runs created, by outcome ("started", "conflict", "error").
	RunsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pyforge_task_runs_total",
			Help: "Total task runs created, by outcome",
		},
		[]string{"outcome"},
	)

	// FlowRunsSubmitted counts flow runs created, by outcome.
	FlowRunsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pyforge_flow_runs_total",
			Help: "Total flow runs created, by outcome",
		},
		[]string{"outcome"},
	)
)

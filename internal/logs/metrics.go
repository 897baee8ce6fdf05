// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package logs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// pullDuration times one pull-algorithm execution, by the result's source.
	pullDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pyforge_log_pull_duration_seconds",
			Help:    "Duration of a single log pull against the workflow engine",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// pushTickDuration times one push-loop reconciliation tick.
	pushTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pyforge_log_push_tick_duration_seconds",
			Help:    "Duration of one push-loop reconciliation tick",
			Buckets: prometheus.DefBuckets,
		},
	)
)

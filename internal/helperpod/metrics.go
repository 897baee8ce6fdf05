// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package helperpod

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// operations counts helper pod file operations, by operation name and
// outcome ("ok", "invalid_path", "error").
var operations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pyforge_helperpod_operations_total",
		Help: "Total volume helper pod operations, by operation and outcome",
	},
	[]string{"operation", "outcome"},
)

func recordOperation(op string, err error) {
	switch {
	case err == nil:
		operations.WithLabelValues(op, "ok").Inc()
	case errors.Is(err, ErrInvalidPath):
		operations.WithLabelValues(op, "invalid_path").Inc()
	default:
		operations.WithLabelValues(op, "error").Inc()
	}
}

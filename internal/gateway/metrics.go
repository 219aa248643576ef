// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

package gateway

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sorae_gateway_requests_total",
		Help: "Total number of HTTP requests by method, path, and status",
	}, []string{"method", "path", "status"})

	decisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sorae_login_decisions_total",
		Help: "Total number of login decisions by terminal code",
	}, []string{"decision"})
)

// Collectors returns the package metrics for registration into a registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{requestsTotal, decisionsTotal}
}

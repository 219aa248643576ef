// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

package auth

import "slices"

// Additive risk weights.
const (
	// riskUnknownDevice is added when the presenting device has never been
	// trusted for the account.
	riskUnknownDevice = 0.6

	// riskRecentFailures is added when the account carries more than
	// recentFailureFloor consecutive failures.
	riskRecentFailures = 0.2

	recentFailureFloor = 2
)

// Risk factor names as they appear in Assessment.Factors and security events.
const (
	FactorUnknownDevice  = "unknown_device"
	FactorRecentFailures = "recent_failures"
)

// Assessment is the per-attempt risk signal. It is advisory telemetry: a
// score above the configured threshold flags the attempt for step-up and
// emits a security event, but never blocks admission on its own.
type Assessment struct {
	Score   float64
	Factors []string
}

// Exceeds reports whether the score crosses the advisory threshold.
func (a Assessment) Exceeds(threshold float64) bool {
	return a.Score > threshold
}

// AssessRisk scores a login attempt from device novelty and recent failure
// history. The result is deterministic and monotonic in both factors.
func AssessRisk(deviceID string, knownDevices []string, failedAttempts int) Assessment {
	var a Assessment
	if !slices.Contains(knownDevices, deviceID) {
		a.Score += riskUnknownDevice
		a.Factors = append(a.Factors, FactorUnknownDevice)
	}
	if failedAttempts > recentFailureFloor {
		a.Score += riskRecentFailures
		a.Factors = append(a.Factors, FactorRecentFailures)
	}
	return a
}

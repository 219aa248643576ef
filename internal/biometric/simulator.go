// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

// Package biometric provides capture sources for the decision engine. The
// Simulator stands in for a real typing-pattern sensor; Static returns a
// fixed sample for tests and scripted demos.
package biometric

import (
	"context"
	"log/slog"
	"math/rand/v2"
)

// Enrollment baseline range. A fresh profile always lands in the middle of
// the scale so a later capture can plausibly fall on either side of it.
const (
	enrollFloor   = 0.3
	enrollCeiling = 0.8
)

// Simulator produces pseudo-random typing-pattern samples.
type Simulator struct {
	logger *slog.Logger
	randFn func() float64
}

// NewSimulator creates a Simulator.
func NewSimulator(logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{logger: logger, randFn: rand.Float64}
}

// Enroll samples a fresh baseline in [0.3, 0.8).
func (s *Simulator) Enroll(_ context.Context) (float64, error) {
	baseline := enrollFloor + s.randFn()*(enrollCeiling-enrollFloor)
	s.logger.Info("typing profile enrolled", "baseline", baseline)
	return baseline, nil
}

// Capture samples a login-time reading across the full [0, 1) scale.
func (s *Simulator) Capture(_ context.Context) (float64, error) {
	return s.randFn(), nil
}

// Static is a capturer that always returns the same sample.
type Static struct {
	Sample float64
}

// Capture returns the fixed sample.
func (s Static) Capture(_ context.Context) (float64, error) {
	return s.Sample, nil
}

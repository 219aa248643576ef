// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

package auth

import (
	"context"
	"time"
)

// Security event names emitted by the engine.
const (
	EventLoginSucceeded   = "login_successful"
	EventLoginRateLimited = "login_rate_limited"
	EventTokenExpired     = "login_token_expired"
	EventTokenMismatch    = "login_failed_token"
	EventBiometricFailed  = "login_failed_biometrics"
	EventBiometricBypass  = "biometric_bypass_engaged"
	EventHighRiskLogin    = "high_risk_login"
	EventRecoverySuccess  = "recovery_successful"
	EventRecoveryFailed   = "recovery_failed"
	EventEnrollment       = "onboarding_completed"
)

// Event is a structured security event record. Security-relevant denials
// emit one as an observable side effect, independent of the Decision value.
type Event struct {
	Name      string    `json:"event"`
	AccountID string    `json:"account_id"`
	Email     string    `json:"email,omitempty"`
	Success   bool      `json:"success"`
	RiskScore float64   `json:"risk_score,omitempty"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventRecorder receives security events. Sink selection belongs to the
// caller; the engine only emits structured records.
type EventRecorder interface {
	Record(ctx context.Context, event Event)
}

// NopRecorder discards all events.
type NopRecorder struct{}

// Record discards the event.
func (NopRecorder) Record(context.Context, Event) {}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

package auth

import (
	"time"

	"github.com/samber/oops"
)

// Engine defaults. Each knob is overridable through Options; these values
// mirror the documented configuration surface.
const (
	// DefaultMagicLinkExpiry is how long an issued credential stays valid.
	DefaultMagicLinkExpiry = 15 * time.Minute

	// DefaultMaxFailedAttempts is the lockout ceiling for the attempt counter.
	DefaultMaxFailedAttempts = 5

	// DefaultBiometricThreshold is the inclusive match tolerance. Lower is stricter.
	DefaultBiometricThreshold = 0.15

	// DefaultRiskScoreThreshold is the advisory step-up threshold.
	DefaultRiskScoreThreshold = 0.5

	// DefaultRecoveryCodeLength is the digit length of backup codes.
	DefaultRecoveryCodeLength = 6

	// DefaultBackupCodesCount is the size of a freshly issued code set.
	DefaultBackupCodesCount = 5
)

// Retry budgets. Both loops are bounded; the caller queries the remaining
// budget between prompts.
const (
	// CredentialAttemptSlots is the number of token submissions per login session.
	CredentialAttemptSlots = 3

	// RecoveryAttemptSlots is the number of code submissions per recovery session.
	RecoveryAttemptSlots = 3
)

// TokenLength is the fixed length of a magic-link token.
const TokenLength = 8

// Options holds the tunable policy knobs of the decision engine.
type Options struct {
	MagicLinkExpiry    time.Duration
	MaxFailedAttempts  int
	BiometricThreshold float64
	RiskScoreThreshold float64
	RecoveryCodeLength int
	BackupCodesCount   int

	// BiometricBypass forces the comparator to report a match. It exists
	// for controlled demo and test environments only and is logged as a
	// security event whenever it takes effect.
	BiometricBypass bool
}

// DefaultOptions returns Options populated with the engine defaults.
func DefaultOptions() Options {
	return Options{
		MagicLinkExpiry:    DefaultMagicLinkExpiry,
		MaxFailedAttempts:  DefaultMaxFailedAttempts,
		BiometricThreshold: DefaultBiometricThreshold,
		RiskScoreThreshold: DefaultRiskScoreThreshold,
		RecoveryCodeLength: DefaultRecoveryCodeLength,
		BackupCodesCount:   DefaultBackupCodesCount,
	}
}

// Validate checks that the options describe a usable policy.
func (o Options) Validate() error {
	if o.MagicLinkExpiry < time.Minute {
		return oops.Code("OPTIONS_INVALID").
			With("magic_link_expiry", o.MagicLinkExpiry).
			Errorf("magic link expiry must be at least one minute")
	}
	if o.MaxFailedAttempts < 1 {
		return oops.Code("OPTIONS_INVALID").
			With("max_failed_attempts", o.MaxFailedAttempts).
			Errorf("max failed attempts must be at least 1")
	}
	if o.BiometricThreshold <= 0 || o.BiometricThreshold >= 1 {
		return oops.Code("OPTIONS_INVALID").
			With("biometric_threshold", o.BiometricThreshold).
			Errorf("biometric threshold must be between 0 and 1 exclusive")
	}
	if o.RiskScoreThreshold <= 0 || o.RiskScoreThreshold >= 1 {
		return oops.Code("OPTIONS_INVALID").
			With("risk_score_threshold", o.RiskScoreThreshold).
			Errorf("risk score threshold must be between 0 and 1 exclusive")
	}
	if o.RecoveryCodeLength < 4 {
		return oops.Code("OPTIONS_INVALID").
			With("recovery_code_length", o.RecoveryCodeLength).
			Errorf("recovery code length must be at least 4 digits")
	}
	if o.BackupCodesCount < 1 {
		return oops.Code("OPTIONS_INVALID").
			With("backup_codes_count", o.BackupCodesCount).
			Errorf("backup codes count must be at least 1")
	}
	return nil
}

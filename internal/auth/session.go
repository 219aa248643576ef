// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/samber/oops"
)

// State identifies where a login session is in its progression.
type State int

// Login session states. Transitions only move forward; every path ends in
// StateTerminal.
const (
	StateStart State = iota
	StateRateCheck
	StateCredentialCheck
	StateBiometricCheck
	StateRiskCheck
	StateTerminal
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateRateCheck:
		return "rate_check"
	case StateCredentialCheck:
		return "credential_check"
	case StateBiometricCheck:
		return "biometric_check"
	case StateRiskCheck:
		return "risk_check"
	case StateTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DecisionCode is the terminal outcome of a session.
type DecisionCode string

// Terminal decision codes.
const (
	DecisionAdmitted           DecisionCode = "admitted"
	DecisionRateLimited        DecisionCode = "denied_rate_limited"
	DecisionCredentialExpired  DecisionCode = "denied_credential_expired"
	DecisionCredentialMismatch DecisionCode = "denied_credential_mismatch"
	DecisionBiometricMismatch  DecisionCode = "denied_biometric_mismatch"
	DecisionCaptureFailure     DecisionCode = "denied_capture_failure"
	DecisionInternalError      DecisionCode = "denied_internal_error"
	DecisionCancelled          DecisionCode = "cancelled"
)

// Mutations is the set of persistent account fields a session decision
// changes. The caller applies it and persists the account; the session never
// writes to storage itself.
type Mutations struct {
	// FailedAttempts is the new value of the consecutive failure counter.
	FailedAttempts int

	// LastLogin is set only on admission or successful recovery.
	LastLogin *time.Time
}

// Apply writes the mutations onto the account.
func (m Mutations) Apply(a *Account) {
	a.FailedAttempts = m.FailedAttempts
	if m.LastLogin != nil {
		a.LastLogin = m.LastLogin
	}
	a.UpdatedAt = time.Now()
}

// Decision is the terminal outcome of a login session plus the account
// mutations to persist.
type Decision struct {
	Code DecisionCode

	// StepUpRequired flags an elevated-risk admission for the caller to
	// surface. It never blocks; denial is driven solely by the rate,
	// credential, and biometric gates.
	StepUpRequired bool

	Risk      Assessment
	Mutations Mutations
}

// Admitted reports whether the session ended in admission.
func (d Decision) Admitted() bool {
	return d.Code == DecisionAdmitted
}

// LoginSession sequences the credential, biometric, and risk checks for a
// single login attempt. It is single-use and not safe for concurrent use;
// callers that share accounts across goroutines must serialize per account.
type LoginSession struct {
	account *Account
	opts    Options
	logger  *slog.Logger
	events  EventRecorder

	// now is the clock, injectable for deterministic tests.
	now func() time.Time

	state     State
	slotsUsed int
	failed    int
	stepUp    bool
	risk      Assessment
	decision  *Decision
}

// NewLoginSession creates a session over the given account snapshot.
// logger and events may be nil.
func NewLoginSession(account *Account, opts Options, logger *slog.Logger, events EventRecorder) (*LoginSession, error) {
	if account == nil {
		return nil, oops.Code("SESSION_INVALID_ACCOUNT").Errorf("account cannot be nil")
	}
	if err := account.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if events == nil {
		events = NopRecorder{}
	}
	return &LoginSession{
		account: account,
		opts:    opts,
		logger:  logger,
		events:  events,
		now:     time.Now,
		state:   StateStart,
		failed:  account.FailedAttempts,
	}, nil
}

// State returns the session's current state.
func (s *LoginSession) State() State {
	return s.state
}

// Terminal reports whether the session has reached a decision.
func (s *LoginSession) Terminal() bool {
	return s.state == StateTerminal
}

// RemainingCredentialAttempts returns how many token submissions are left.
// The caller's prompt loop queries this between re-prompts.
func (s *LoginSession) RemainingCredentialAttempts() int {
	remaining := CredentialAttemptSlots - s.slotsUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Begin evaluates the rate limit and credential expiry gates. On pass the
// session waits in StateCredentialCheck for token submissions.
func (s *LoginSession) Begin(ctx context.Context) (st State, err error) {
	defer s.recoverFault(&st, &err)

	if s.state != StateStart {
		return s.state, oops.Code("SESSION_BAD_TRANSITION").
			With("state", s.state.String()).
			Errorf("Begin called on a started session")
	}
	if s.cancelled(ctx) {
		return s.state, ctx.Err()
	}

	s.state = StateRateCheck
	if !Allowed(s.account.FailedAttempts, s.opts.MaxFailedAttempts) {
		s.logger.Warn("login rate limited",
			"account_id", s.account.ID.String(),
			"failed_attempts", s.account.FailedAttempts)
		s.record(ctx, EventLoginRateLimited, false, "too many consecutive failures")
		s.terminate(DecisionRateLimited)
		return s.state, oops.Code("AUTH_RATE_LIMITED").
			With("failed_attempts", s.account.FailedAttempts).
			With("ceiling", s.opts.MaxFailedAttempts).
			Errorf("too many failed attempts")
	}

	if s.account.Credential.IsExpired(s.now(), s.opts.MagicLinkExpiry) {
		s.logger.Warn("magic link expired",
			"account_id", s.account.ID.String(),
			"created_at", s.account.Credential.CreatedAt)
		s.record(ctx, EventTokenExpired, false, "credential past expiry")
		s.terminate(DecisionCredentialExpired)
		return s.state, oops.Code("CREDENTIAL_EXPIRED").Errorf("magic link has expired")
	}

	s.state = StateCredentialCheck
	return s.state, nil
}

// SubmitCredential advances the credential check with one token attempt.
// A malformed attempt consumes a slot without counting as a guess; a
// mismatch consumes a slot and increments the failure counter. Exhausting
// all slots without a match is terminal.
func (s *LoginSession) SubmitCredential(ctx context.Context, raw string) (st State, err error) {
	defer s.recoverFault(&st, &err)

	if s.state == StateTerminal {
		return s.state, ErrSessionTerminal
	}
	if s.state != StateCredentialCheck {
		return s.state, oops.Code("SESSION_BAD_TRANSITION").
			With("state", s.state.String()).
			Errorf("credential submitted outside credential check")
	}
	if s.cancelled(ctx) {
		return s.state, ctx.Err()
	}

	s.slotsUsed++
	attempt := SanitizeInput(raw)

	if formatErr := ValidateTokenFormat(attempt); formatErr != nil {
		// Shape errors are rejected before being treated as a guess and
		// never touch the failure counter.
		if s.RemainingCredentialAttempts() == 0 {
			s.terminate(DecisionCredentialMismatch)
		}
		return s.state, formatErr
	}

	if !s.account.Credential.Matches(attempt) {
		s.failed++
		s.record(ctx, EventTokenMismatch, false,
			fmt.Sprintf("attempt %d/%d", s.slotsUsed, CredentialAttemptSlots))
		if s.RemainingCredentialAttempts() == 0 {
			s.terminate(DecisionCredentialMismatch)
			return s.state, oops.Code("CREDENTIAL_MISMATCH").Errorf("maximum token attempts reached")
		}
		return s.state, oops.Code("CREDENTIAL_MISMATCH").
			With("remaining", s.RemainingCredentialAttempts()).
			Errorf("token does not match")
	}

	s.state = StateBiometricCheck
	return s.state, nil
}

// SubmitBiometric advances the biometric check with one validated sample.
// Biometrics are single-shot: a mismatch is terminal. On a match the risk
// check runs and the session terminates admitted.
func (s *LoginSession) SubmitBiometric(ctx context.Context, sample float64) (st State, err error) {
	defer s.recoverFault(&st, &err)

	if s.state == StateTerminal {
		return s.state, ErrSessionTerminal
	}
	if s.state != StateBiometricCheck {
		return s.state, oops.Code("SESSION_BAD_TRANSITION").
			With("state", s.state.String()).
			Errorf("biometric submitted outside biometric check")
	}
	if s.cancelled(ctx) {
		return s.state, ctx.Err()
	}

	if captureErr := ValidateSample(sample); captureErr != nil {
		// A system fault, not a user failure: the counter is untouched.
		s.logger.Error("biometric capture produced an invalid sample",
			"account_id", s.account.ID.String(),
			"sample", sample)
		s.terminate(DecisionCaptureFailure)
		return s.state, captureErr
	}

	matched := MatchBiometric(s.account.BiometricBaseline, sample, s.opts.BiometricThreshold)
	if s.opts.BiometricBypass && !matched {
		s.logger.Warn("biometric bypass engaged",
			"account_id", s.account.ID.String())
		s.record(ctx, EventBiometricBypass, true, "comparator forced to match")
		matched = true
	}

	if !matched {
		s.failed++
		s.record(ctx, EventBiometricFailed, false,
			fmt.Sprintf("pattern difference %.2f", math.Abs(s.account.BiometricBaseline-sample)))
		s.terminate(DecisionBiometricMismatch)
		return s.state, oops.Code("BIOMETRIC_MISMATCH").Errorf("typing pattern does not match enrolled baseline")
	}

	return s.assessAndAdmit(ctx), nil
}

// FailCapture records a capture collaborator fault and terminates the
// session without penalizing the user.
func (s *LoginSession) FailCapture(ctx context.Context, cause error) State {
	if s.state == StateTerminal {
		return s.state
	}
	s.logger.Error("biometric capture failed",
		"account_id", s.account.ID.String(),
		"error", cause)
	s.record(ctx, EventBiometricFailed, false, "capture failure")
	s.terminate(DecisionCaptureFailure)
	return s.state
}

// Cancel aborts the session from any non-terminal state. Cancellation adds
// no counter mutation of its own; increments already earned by mismatched
// attempts are preserved.
func (s *LoginSession) Cancel() State {
	if s.state == StateTerminal {
		return s.state
	}
	s.logger.Info("login cancelled", "account_id", s.account.ID.String())
	s.terminate(DecisionCancelled)
	return s.state
}

// Finalize returns the terminal decision. It is an error to call it before
// the session has terminated.
func (s *LoginSession) Finalize() (Decision, error) {
	if s.decision == nil {
		return Decision{}, oops.Code("SESSION_NOT_TERMINAL").
			With("state", s.state.String()).
			Errorf("session has not reached a decision")
	}
	return *s.decision, nil
}

// assessAndAdmit runs the advisory risk check and terminates admitted.
// Risk never blocks: a threshold crossing only attaches the step-up flag
// and emits a security event.
func (s *LoginSession) assessAndAdmit(ctx context.Context) State {
	s.state = StateRiskCheck

	s.risk = AssessRisk(s.account.CurrentDevice, s.account.KnownDevices, s.failed)
	if s.risk.Exceeds(s.opts.RiskScoreThreshold) {
		s.stepUp = true
		s.logger.Warn("high risk login",
			"account_id", s.account.ID.String(),
			"risk_score", s.risk.Score,
			"factors", s.risk.Factors)
		s.events.Record(ctx, Event{
			Name:      EventHighRiskLogin,
			AccountID: s.account.ID.String(),
			Email:     s.account.Email,
			Success:   true,
			RiskScore: s.risk.Score,
			Details:   fmt.Sprintf("device %s", s.account.CurrentDevice),
			Timestamp: s.now(),
		})
	}

	s.failed = 0
	now := s.now()
	s.record(ctx, EventLoginSucceeded, true,
		fmt.Sprintf("device %s, risk score %.2f", s.account.CurrentDevice, s.risk.Score))
	s.terminateWith(Decision{
		Code:           DecisionAdmitted,
		StepUpRequired: s.stepUp,
		Risk:           s.risk,
		Mutations:      Mutations{FailedAttempts: 0, LastLogin: &now},
	})
	return s.state
}

func (s *LoginSession) terminate(code DecisionCode) {
	s.terminateWith(Decision{
		Code:           code,
		StepUpRequired: s.stepUp,
		Risk:           s.risk,
		Mutations:      Mutations{FailedAttempts: s.failed},
	})
}

func (s *LoginSession) terminateWith(d Decision) {
	s.decision = &d
	s.state = StateTerminal
}

// cancelled folds an observed context cancellation into the Cancelled
// terminal state. Every suspension point checks it before doing work.
func (s *LoginSession) cancelled(ctx context.Context) bool {
	if ctx.Err() != nil {
		s.Cancel()
		return true
	}
	return false
}

// recoverFault is the session-boundary fault barrier. An unexpected panic
// from a collaborator is mapped to the generic internal-error decision and
// never propagates to the caller unstructured.
func (s *LoginSession) recoverFault(st *State, err *error) {
	if r := recover(); r != nil {
		s.logger.Error("unexpected fault during authentication",
			"account_id", s.account.ID.String(),
			"panic", r)
		s.terminate(DecisionInternalError)
		*st = s.state
		*err = oops.Code("AUTH_INTERNAL").Errorf("internal error during authentication")
	}
}

func (s *LoginSession) record(ctx context.Context, name string, success bool, details string) {
	s.events.Record(ctx, Event{
		Name:      name,
		AccountID: s.account.ID.String(),
		Email:     s.account.Email,
		Success:   success,
		Details:   details,
		Timestamp: s.now(),
	})
}

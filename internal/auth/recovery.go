// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"slices"
	"time"

	"github.com/samber/oops"
)

var digitsRegex = regexp.MustCompile(`^[0-9]+$`)

// CodeSupplyStatus describes how many backup codes remain.
type CodeSupplyStatus string

// Backup code supply levels.
const (
	CodeSupplyGood     CodeSupplyStatus = "good"
	CodeSupplyLow      CodeSupplyStatus = "low"
	CodeSupplyCritical CodeSupplyStatus = "critical"
)

// lowCodeFloor is the remaining-code count below which supply is low.
const lowCodeFloor = 3

// BackupCodeStatus classifies the remaining code count.
func BackupCodeStatus(remaining int) CodeSupplyStatus {
	switch {
	case remaining >= lowCodeFloor:
		return CodeSupplyGood
	case remaining >= 1:
		return CodeSupplyLow
	default:
		return CodeSupplyCritical
	}
}

// ValidateRecoveryCode checks the shape of a presented recovery code:
// exact digit length, digits only.
func ValidateRecoveryCode(code string, length int) error {
	if code == "" {
		return oops.Code("VALIDATION_RECOVERY_CODE").Errorf("recovery code cannot be empty")
	}
	if len(code) != length {
		return oops.Code("VALIDATION_RECOVERY_CODE").
			With("expected_length", length).
			Errorf("recovery code must be %d digits", length)
	}
	if !digitsRegex.MatchString(code) {
		return oops.Code("VALIDATION_RECOVERY_CODE").Errorf("recovery code must contain only digits")
	}
	return nil
}

// GenerateBackupCodes produces count single-use numeric codes of the given
// digit length. The returned set contains no duplicates.
func GenerateBackupCodes(count, length int) ([]string, error) {
	if count < 1 || length < 1 {
		return nil, oops.Code("RECOVERY_GENERATE_FAILED").
			With("count", count).
			With("length", length).
			Errorf("invalid backup code parameters")
	}

	ten := big.NewInt(10)
	seen := make(map[string]struct{}, count)
	codes := make([]string, 0, count)
	for len(codes) < count {
		digits := make([]byte, length)
		for i := range digits {
			d, err := rand.Int(rand.Reader, ten)
			if err != nil {
				return nil, oops.Code("RECOVERY_GENERATE_FAILED").
					With("operation", "crypto/rand.Int").
					Wrap(err)
			}
			digits[i] = byte('0' + d.Int64())
		}
		code := string(digits)
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// RecoveryOutcome is the terminal result of a recovery session plus the
// account mutations to persist.
type RecoveryOutcome struct {
	Recovered bool

	// RemainingCodes is the backup code set after any consumption.
	RemainingCodes []string

	Status    CodeSupplyStatus
	Mutations Mutations
}

// RecoverySession drives the backup-code fallback flow. It has its own
// bounded retry budget, independent of the primary failure counter: a
// well-formed miss is logged as a security event but never increments
// FailedAttempts, since recovery is already a fallback from lockout.
type RecoverySession struct {
	account *Account
	opts    Options
	logger  *slog.Logger
	events  EventRecorder
	now     func() time.Time

	slotsUsed int
	codes     []string
	outcome   *RecoveryOutcome
}

// NewRecoverySession creates a recovery session over the account snapshot.
// It fails if the account holds no backup codes at all.
func NewRecoverySession(account *Account, opts Options, logger *slog.Logger, events EventRecorder) (*RecoverySession, error) {
	if account == nil {
		return nil, oops.Code("SESSION_INVALID_ACCOUNT").Errorf("account cannot be nil")
	}
	if err := account.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(account.BackupCodes) == 0 {
		return nil, oops.Code("RECOVERY_NO_CODES").
			With("account_id", account.ID.String()).
			Errorf("no backup codes on file")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if events == nil {
		events = NopRecorder{}
	}
	return &RecoverySession{
		account: account,
		opts:    opts,
		logger:  logger,
		events:  events,
		now:     time.Now,
		codes:   slices.Clone(account.BackupCodes),
	}, nil
}

// Terminal reports whether the session has reached an outcome.
func (s *RecoverySession) Terminal() bool {
	return s.outcome != nil
}

// RemainingAttempts returns how many code submissions are left.
func (s *RecoverySession) RemainingAttempts() int {
	remaining := RecoveryAttemptSlots - s.slotsUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SubmitCode advances the recovery flow with one code attempt. A matched
// code is consumed permanently: it is removed from the remaining set and can
// never be presented again.
func (s *RecoverySession) SubmitCode(ctx context.Context, raw string) (err error) {
	defer s.recoverFault(&err)

	if s.Terminal() {
		return ErrSessionTerminal
	}
	if ctx.Err() != nil {
		s.Cancel()
		return ctx.Err()
	}

	s.slotsUsed++
	attempt := SanitizeInput(raw)

	if formatErr := ValidateRecoveryCode(attempt, s.opts.RecoveryCodeLength); formatErr != nil {
		if s.RemainingAttempts() == 0 {
			s.exhaust()
			return oops.Code("RECOVERY_EXHAUSTED").Errorf("maximum recovery attempts reached")
		}
		return formatErr
	}

	idx := slices.Index(s.codes, attempt)
	if idx < 0 {
		s.record(ctx, EventRecoveryFailed, false,
			fmt.Sprintf("attempt %d/%d", s.slotsUsed, RecoveryAttemptSlots))
		if s.RemainingAttempts() == 0 {
			s.exhaust()
			return oops.Code("RECOVERY_EXHAUSTED").Errorf("maximum recovery attempts reached")
		}
		return oops.Code("RECOVERY_CODE_MISMATCH").
			With("remaining", s.RemainingAttempts()).
			Errorf("recovery code does not match")
	}

	s.codes = slices.Delete(s.codes, idx, idx+1)
	now := s.now()
	s.record(ctx, EventRecoverySuccess, true,
		fmt.Sprintf("attempt %d/%d, %d codes remaining", s.slotsUsed, RecoveryAttemptSlots, len(s.codes)))
	s.outcome = &RecoveryOutcome{
		Recovered:      true,
		RemainingCodes: s.codes,
		Status:         BackupCodeStatus(len(s.codes)),
		Mutations:      Mutations{FailedAttempts: 0, LastLogin: &now},
	}
	return nil
}

// Cancel aborts the session without consuming a code or mutating counters.
func (s *RecoverySession) Cancel() {
	if s.Terminal() {
		return
	}
	s.logger.Info("recovery cancelled", "account_id", s.account.ID.String())
	s.outcome = &RecoveryOutcome{
		Recovered:      false,
		RemainingCodes: s.codes,
		Status:         BackupCodeStatus(len(s.codes)),
		Mutations:      Mutations{FailedAttempts: s.account.FailedAttempts},
	}
}

// Finalize returns the terminal outcome. It is an error to call it before
// the session has terminated.
func (s *RecoverySession) Finalize() (RecoveryOutcome, error) {
	if s.outcome == nil {
		return RecoveryOutcome{}, oops.Code("SESSION_NOT_TERMINAL").Errorf("recovery session has not reached an outcome")
	}
	return *s.outcome, nil
}

// ApplyTo writes a successful recovery back onto the account: the consumed
// code set, a reset counter, and the recovery login time.
func (o RecoveryOutcome) ApplyTo(a *Account) {
	if !o.Recovered {
		return
	}
	a.BackupCodes = slices.Clone(o.RemainingCodes)
	o.Mutations.Apply(a)
}

func (s *RecoverySession) exhaust() {
	s.logger.Warn("recovery attempts exhausted", "account_id", s.account.ID.String())
	s.outcome = &RecoveryOutcome{
		Recovered:      false,
		RemainingCodes: s.codes,
		Status:         BackupCodeStatus(len(s.codes)),
		Mutations:      Mutations{FailedAttempts: s.account.FailedAttempts},
	}
}

func (s *RecoverySession) record(ctx context.Context, name string, success bool, details string) {
	s.events.Record(ctx, Event{
		Name:      name,
		AccountID: s.account.ID.String(),
		Email:     s.account.Email,
		Success:   success,
		Details:   details,
		Timestamp: s.now(),
	})
}

func (s *RecoverySession) recoverFault(err *error) {
	if r := recover(); r != nil {
		s.logger.Error("unexpected fault during recovery",
			"account_id", s.account.ID.String(),
			"panic", r)
		s.outcome = &RecoveryOutcome{
			Recovered:      false,
			RemainingCodes: s.codes,
			Status:         BackupCodeStatus(len(s.codes)),
			Mutations:      Mutations{FailedAttempts: s.account.FailedAttempts},
		}
		*err = oops.Code("AUTH_INTERNAL").Errorf("internal error during recovery")
	}
}

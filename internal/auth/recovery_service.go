// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

package auth

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// RecoveryService handles backup-code recovery and rotation.
type RecoveryService struct {
	accounts AccountRepository
	events   EventRecorder
	logger   *slog.Logger
	locker   *AccountLocker
	opts     Options
}

// NewRecoveryService creates a RecoveryService.
func NewRecoveryService(accounts AccountRepository, locker *AccountLocker, logger *slog.Logger, events EventRecorder, opts Options) (*RecoveryService, error) {
	if accounts == nil {
		return nil, oops.Code("SERVICE_INVALID_DEPS").Errorf("account repository is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if locker == nil {
		locker = NewAccountLocker()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if events == nil {
		events = NopRecorder{}
	}
	return &RecoveryService{
		accounts: accounts,
		events:   events,
		logger:   logger,
		locker:   locker,
		opts:     opts,
	}, nil
}

// Recover runs one recovery session for the account, prompting through
// readCode up to the session's retry budget. A successful recovery consumes
// the matched code, resets the failure counter, and persists the account.
func (s *RecoveryService) Recover(ctx context.Context, accountID ulid.ULID, readCode CodeReader) (RecoveryOutcome, error) {
	if readCode == nil {
		return RecoveryOutcome{}, oops.Code("SERVICE_INVALID_DEPS").Errorf("code reader is required")
	}

	unlock := s.locker.Lock(accountID.String())
	defer unlock()

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return RecoveryOutcome{}, oops.Code("RECOVERY_FAILED").
			With("operation", "get account by id").
			Wrap(err)
	}

	sess, err := NewRecoverySession(account, s.opts, s.logger, s.events)
	if err != nil {
		return RecoveryOutcome{}, err
	}

	s.logger.Info("starting account recovery", "account_id", accountID.String())

	for !sess.Terminal() {
		raw, readErr := readCode(ctx, sess.RemainingAttempts())
		if readErr != nil {
			sess.Cancel()
			break
		}
		if submitErr := sess.SubmitCode(ctx, raw); submitErr != nil && !sess.Terminal() {
			s.logger.Debug("recovery attempt rejected",
				"account_id", accountID.String(),
				"remaining", sess.RemainingAttempts(),
				"error", submitErr)
		}
	}

	outcome, err := sess.Finalize()
	if err != nil {
		return RecoveryOutcome{}, err
	}

	if outcome.Recovered {
		outcome.ApplyTo(account)
		if updateErr := s.accounts.Update(ctx, account); updateErr != nil {
			// The code was consumed in the decision; failing to persist it
			// would let the same code be replayed, so this is a hard error.
			return RecoveryOutcome{}, oops.Code("RECOVERY_FAILED").
				With("operation", "persist consumed code").
				Wrap(updateErr)
		}
		if outcome.Status != CodeSupplyGood {
			s.logger.Warn("backup code supply running low",
				"account_id", accountID.String(),
				"remaining", len(outcome.RemainingCodes),
				"status", string(outcome.Status))
		}
	}

	return outcome, nil
}

// RegenerateBackupCodes replaces the account's entire backup code set with a
// fresh one, invalidating every previously unused code. Callers must treat
// this as a full rotation, not a top-up.
func (s *RecoveryService) RegenerateBackupCodes(ctx context.Context, accountID ulid.ULID) ([]string, error) {
	unlock := s.locker.Lock(accountID.String())
	defer unlock()

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, oops.Code("RECOVERY_ROTATE_FAILED").
			With("operation", "get account by id").
			Wrap(err)
	}

	codes, err := GenerateBackupCodes(s.opts.BackupCodesCount, s.opts.RecoveryCodeLength)
	if err != nil {
		return nil, err
	}
	if err := account.ReplaceBackupCodes(codes); err != nil {
		return nil, err
	}
	if err := s.accounts.Update(ctx, account); err != nil {
		return nil, oops.Code("RECOVERY_ROTATE_FAILED").
			With("operation", "persist new codes").
			Wrap(err)
	}

	s.logger.Info("backup codes rotated",
		"account_id", accountID.String(),
		"count", len(codes))
	return codes, nil
}

// CodeStatus reports the account's backup code supply.
func (s *RecoveryService) CodeStatus(ctx context.Context, accountID ulid.ULID) (CodeSupplyStatus, int, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return "", 0, oops.Code("RECOVERY_STATUS_FAILED").
			With("operation", "get account by id").
			Wrap(err)
	}
	remaining := len(account.BackupCodes)
	return BackupCodeStatus(remaining), remaining, nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MagicLinkSender delivers a freshly issued credential to the account's
// email. Implementations live outside the engine (SMTP, a console
// simulator, a test double).
type MagicLinkSender interface {
	SendMagicLink(ctx context.Context, email, token string, expiry time.Duration) error
}

// EnrollmentService creates accounts and rotates credentials.
type EnrollmentService struct {
	accounts AccountRepository
	capturer Capturer
	sender   MagicLinkSender
	events   EventRecorder
	logger   *slog.Logger
	locker   *AccountLocker
	opts     Options
}

// NewEnrollmentService creates an EnrollmentService.
func NewEnrollmentService(accounts AccountRepository, capturer Capturer, sender MagicLinkSender, locker *AccountLocker, logger *slog.Logger, events EventRecorder, opts Options) (*EnrollmentService, error) {
	if accounts == nil {
		return nil, oops.Code("SERVICE_INVALID_DEPS").Errorf("account repository is required")
	}
	if capturer == nil {
		return nil, oops.Code("SERVICE_INVALID_DEPS").Errorf("biometric capturer is required")
	}
	if sender == nil {
		return nil, oops.Code("SERVICE_INVALID_DEPS").Errorf("magic link sender is required")
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
	return &EnrollmentService{
		accounts: accounts,
		capturer: capturer,
		sender:   sender,
		events:   events,
		logger:   logger,
		locker:   locker,
		opts:     opts,
	}, nil
}

// Enroll creates a new account: the biometric baseline is sampled once, the
// first credential and backup code set are issued, and the magic link is
// delivered before the account is persisted. The returned account carries
// the backup codes for the caller to surface exactly once.
func (s *EnrollmentService) Enroll(ctx context.Context, email, deviceID string) (*Account, error) {
	email = SanitizeInput(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}

	baseline, err := s.captureBaseline(ctx)
	if err != nil {
		return nil, err
	}

	credential, err := IssueCredential()
	if err != nil {
		return nil, err
	}
	codes, err := GenerateBackupCodes(s.opts.BackupCodesCount, s.opts.RecoveryCodeLength)
	if err != nil {
		return nil, err
	}

	if err := s.sender.SendMagicLink(ctx, email, credential.Value, s.opts.MagicLinkExpiry); err != nil {
		return nil, oops.Code("ENROLL_DELIVERY_FAILED").
			With("operation", "send magic link").
			Wrap(err)
	}

	account, err := NewAccount(email, baseline, deviceID, credential, codes)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, oops.Code("ENROLL_FAILED").
			With("operation", "create account").
			Wrap(err)
	}

	s.logger.Info("enrollment completed",
		"account_id", account.ID.String(),
		"device", deviceID,
		"backup_codes", len(codes))
	s.events.Record(ctx, Event{
		Name:      EventEnrollment,
		AccountID: account.ID.String(),
		Email:     email,
		Success:   true,
		Details:   "baseline enrolled, first credential issued",
		Timestamp: time.Now(),
	})
	return account, nil
}

// IssueNewCredential rotates the account's magic-link credential and
// delivers the new value. The prior value becomes immediately invalid.
func (s *EnrollmentService) IssueNewCredential(ctx context.Context, accountID ulid.ULID) (Credential, error) {
	unlock := s.locker.Lock(accountID.String())
	defer unlock()

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return Credential{}, oops.Code("CREDENTIAL_ISSUE_FAILED").
			With("operation", "get account by id").
			Wrap(err)
	}

	credential, err := IssueCredential()
	if err != nil {
		return Credential{}, err
	}
	account.RotateCredential(credential)

	if err := s.accounts.Update(ctx, account); err != nil {
		return Credential{}, oops.Code("CREDENTIAL_ISSUE_FAILED").
			With("operation", "persist rotated credential").
			Wrap(err)
	}
	if err := s.sender.SendMagicLink(ctx, account.Email, credential.Value, s.opts.MagicLinkExpiry); err != nil {
		return Credential{}, oops.Code("CREDENTIAL_ISSUE_FAILED").
			With("operation", "send magic link").
			Wrap(err)
	}

	s.logger.Info("credential rotated", "account_id", accountID.String())
	return credential, nil
}

// captureBaseline samples the enrollment baseline behind the same fault
// barrier the login path uses.
func (s *EnrollmentService) captureBaseline(ctx context.Context) (baseline float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = oops.Code("CAPTURE_FAILED").Errorf("capture collaborator panicked: %v", r)
		}
	}()
	baseline, err = s.capturer.Capture(ctx)
	if err != nil {
		return 0, oops.Code("CAPTURE_FAILED").
			With("operation", "enroll baseline").
			Wrap(err)
	}
	if err := ValidateSample(baseline); err != nil {
		return 0, err
	}
	return baseline, nil
}

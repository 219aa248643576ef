// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

package auth

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// CredentialReader supplies the next token attempt from the caller's prompt
// surface (console, HTTP request, test double). remaining is the attempt
// budget left; a returned error abandons the session.
type CredentialReader func(ctx context.Context, remaining int) (string, error)

// CodeReader supplies the next recovery code attempt.
type CodeReader func(ctx context.Context, remaining int) (string, error)

// Service drives full login sessions over persistent accounts.
type Service struct {
	accounts AccountRepository
	capturer Capturer
	events   EventRecorder
	logger   *slog.Logger
	locker   *AccountLocker
	opts     Options
}

// NewService creates a login Service.
func NewService(accounts AccountRepository, capturer Capturer, locker *AccountLocker, logger *slog.Logger, events EventRecorder, opts Options) (*Service, error) {
	if accounts == nil {
		return nil, oops.Code("SERVICE_INVALID_DEPS").Errorf("account repository is required")
	}
	if capturer == nil {
		return nil, oops.Code("SERVICE_INVALID_DEPS").Errorf("biometric capturer is required")
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
	return &Service{
		accounts: accounts,
		capturer: capturer,
		events:   events,
		logger:   logger,
		locker:   locker,
		opts:     opts,
	}, nil
}

// Login runs one complete login session for the account: rate and expiry
// gates, the bounded credential prompt loop, one biometric capture, and the
// advisory risk check. The terminal decision's mutations are applied and
// persisted before returning.
func (s *Service) Login(ctx context.Context, accountID ulid.ULID, readCredential CredentialReader) (Decision, error) {
	if readCredential == nil {
		return Decision{}, oops.Code("SERVICE_INVALID_DEPS").Errorf("credential reader is required")
	}

	unlock := s.locker.Lock(accountID.String())
	defer unlock()

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return Decision{}, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get account by id").
			Wrap(err)
	}

	sess, err := NewLoginSession(account, s.opts, s.logger, s.events)
	if err != nil {
		return Decision{}, err
	}

	s.logger.Info("starting authentication", "account_id", accountID.String())

	state, _ := sess.Begin(ctx)

	for state == StateCredentialCheck {
		raw, readErr := readCredential(ctx, sess.RemainingCredentialAttempts())
		if readErr != nil {
			sess.Cancel()
			break
		}
		var submitErr error
		state, submitErr = sess.SubmitCredential(ctx, raw)
		if submitErr != nil && state == StateCredentialCheck {
			s.logger.Debug("credential attempt rejected",
				"account_id", accountID.String(),
				"remaining", sess.RemainingCredentialAttempts(),
				"error", submitErr)
		}
	}

	if state == StateBiometricCheck {
		sample, captureErr := s.capture(ctx)
		if captureErr != nil {
			sess.FailCapture(ctx, captureErr)
		} else {
			_, _ = sess.SubmitBiometric(ctx, sample)
		}
	}

	if !sess.Terminal() {
		sess.Cancel()
	}

	decision, err := sess.Finalize()
	if err != nil {
		return Decision{}, err
	}

	decision.Mutations.Apply(account)
	if decision.Admitted() {
		account.TrustDevice(account.CurrentDevice)
	}
	// Persisting the counter is best effort: the decision stands either way,
	// but a failed write is worth a warning since it weakens lockout.
	if updateErr := s.accounts.Update(ctx, account); updateErr != nil {
		s.logger.Warn("failed to persist account mutations",
			"account_id", accountID.String(),
			"decision", string(decision.Code),
			"error", updateErr)
	}

	return decision, nil
}

// capture invokes the biometric collaborator behind a fault barrier so a
// panicking sensor integration surfaces as a capture failure, never a crash.
func (s *Service) capture(ctx context.Context) (sample float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = oops.Code("CAPTURE_FAILED").Errorf("capture collaborator panicked: %v", r)
		}
	}()
	return s.capturer.Capture(ctx)
}

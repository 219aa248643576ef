// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

package auth

import (
	"context"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Account is a single user's authentication state. It is created once at
// enrollment and mutated only through session decisions (attempt counter,
// credential consumption, last login) and recovery (backup codes).
type Account struct {
	ID    ulid.ULID
	Email string

	// BiometricBaseline is the behavioral profile sampled at enrollment.
	// It is set once and never changes.
	BiometricBaseline float64

	KnownDevices  []string
	CurrentDevice string

	Credential     Credential
	FailedAttempts int
	BackupCodes    []string

	LastLogin *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccount creates a validated Account with its first credential and
// backup code set. The presenting device is trusted as the first known
// device.
func NewAccount(email string, baseline float64, deviceID string, credential Credential, backupCodes []string) (*Account, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}
	if baseline < 0 || baseline > 1 {
		return nil, oops.Code("ACCOUNT_INVALID_BASELINE").
			With("baseline", baseline).
			Errorf("biometric baseline must be between 0 and 1")
	}
	if credential.Value == "" || credential.CreatedAt.IsZero() {
		return nil, oops.Code("ACCOUNT_INVALID_CREDENTIAL").Errorf("account requires a live credential")
	}
	if err := validateBackupCodes(backupCodes); err != nil {
		return nil, err
	}

	now := time.Now()
	return &Account{
		ID:                ulid.Make(),
		Email:             email,
		BiometricBaseline: baseline,
		KnownDevices:      []string{deviceID},
		CurrentDevice:     deviceID,
		Credential:        credential,
		FailedAttempts:    0,
		BackupCodes:       slices.Clone(backupCodes),
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// Validate checks the account's persistent invariants. Repositories call it
// on records loaded from storage before handing them to a session.
func (a *Account) Validate() error {
	if err := ValidateEmail(a.Email); err != nil {
		return err
	}
	if a.FailedAttempts < 0 {
		return oops.Code("ACCOUNT_INVALID_COUNTER").
			With("failed_attempts", a.FailedAttempts).
			Errorf("failed attempt counter cannot be negative")
	}
	if a.BiometricBaseline < 0 || a.BiometricBaseline > 1 {
		return oops.Code("ACCOUNT_INVALID_BASELINE").
			With("baseline", a.BiometricBaseline).
			Errorf("biometric baseline must be between 0 and 1")
	}
	return nil
}

// KnowsDevice reports whether the device has ever been trusted for this
// account.
func (a *Account) KnowsDevice(deviceID string) bool {
	return slices.Contains(a.KnownDevices, deviceID)
}

// TrustDevice adds the device to the known set if absent.
func (a *Account) TrustDevice(deviceID string) {
	if !a.KnowsDevice(deviceID) {
		a.KnownDevices = append(a.KnownDevices, deviceID)
		a.UpdatedAt = time.Now()
	}
}

// RotateCredential replaces the live credential. The prior value becomes
// immediately invalid.
func (a *Account) RotateCredential(c Credential) {
	a.Credential = c
	a.UpdatedAt = time.Now()
}

// ReplaceBackupCodes swaps in a freshly generated code set, invalidating all
// previously unused codes. This is a full rotation, never an append.
func (a *Account) ReplaceBackupCodes(codes []string) error {
	if err := validateBackupCodes(codes); err != nil {
		return err
	}
	a.BackupCodes = slices.Clone(codes)
	a.UpdatedAt = time.Now()
	return nil
}

func validateBackupCodes(codes []string) error {
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		if _, dup := seen[code]; dup {
			return oops.Code("ACCOUNT_DUPLICATE_CODE").Errorf("backup codes must be unique")
		}
		seen[code] = struct{}{}
	}
	return nil
}

// AccountRepository manages account persistence.
type AccountRepository interface {
	// Create stores a new account.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByEmail retrieves an account by email (case-insensitive).
	// Returns ErrNotFound if no account has the given email.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// Update updates an existing account.
	Update(ctx context.Context, account *Account) error

	// Delete removes an account.
	Delete(ctx context.Context, id ulid.ULID) error
}

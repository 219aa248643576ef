// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

// Package memory provides an in-memory AccountRepository for demos and
// tests.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/sorae/sorae/internal/auth"
)

// AccountRepository implements auth.AccountRepository with a mutex-guarded
// map. Accounts are stored by value so callers cannot mutate shared state
// without going through Update.
type AccountRepository struct {
	mu       sync.RWMutex
	accounts map[ulid.ULID]auth.Account
}

// NewAccountRepository creates an empty in-memory repository.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{accounts: make(map[ulid.ULID]auth.Account)}
}

// Create stores a new account.
func (r *AccountRepository) Create(_ context.Context, account *auth.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[account.ID]; exists {
		return oops.Code("ACCOUNT_EXISTS").
			With("id", account.ID.String()).
			Errorf("account already exists")
	}
	for _, existing := range r.accounts {
		if strings.EqualFold(existing.Email, account.Email) {
			return oops.Code("ACCOUNT_EMAIL_TAKEN").
				With("email", account.Email).
				Errorf("email already enrolled")
		}
	}
	r.accounts[account.ID] = *cloneAccount(*account)
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return cloneAccount(account), nil
}

// GetByEmail retrieves an account by email (case-insensitive).
func (r *AccountRepository) GetByEmail(_ context.Context, email string) (*auth.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, account := range r.accounts {
		if strings.EqualFold(account.Email, email) {
			return cloneAccount(account), nil
		}
	}
	return nil, oops.Code("ACCOUNT_NOT_FOUND").
		With("email", email).
		Wrap(auth.ErrNotFound)
}

// Update updates an existing account.
func (r *AccountRepository) Update(_ context.Context, account *auth.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[account.ID]; !ok {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", account.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	r.accounts[account.ID] = *cloneAccount(*account)
	return nil
}

// Delete removes an account.
func (r *AccountRepository) Delete(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[id]; !ok {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	delete(r.accounts, id)
	return nil
}

// cloneAccount deep-copies the slices so a caller's edits stay private until
// Update.
func cloneAccount(a auth.Account) *auth.Account {
	a.KnownDevices = append([]string(nil), a.KnownDevices...)
	a.BackupCodes = append([]string(nil), a.BackupCodes...)
	if a.LastLogin != nil {
		t := *a.LastLogin
		a.LastLogin = &t
	}
	return &a
}

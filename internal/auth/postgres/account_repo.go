// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

// Package postgres implements auth.AccountRepository on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/sorae/sorae/internal/auth"
)

// Pool is the subset of pgxpool.Pool the repository needs. pgxmock satisfies
// it for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool Pool
}

// NewAccountRepository creates a PostgreSQL account repository.
func NewAccountRepository(pool Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

const accountColumns = `id, email, biometric_baseline, known_devices, current_device,
	 credential_value, credential_created_at, failed_attempts, backup_codes,
	 last_login, created_at, updated_at`

// Create stores a new account.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO accounts (`+accountColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		account.ID.String(),
		account.Email,
		account.BiometricBaseline,
		account.KnownDevices,
		account.CurrentDevice,
		account.Credential.Value,
		account.Credential.CreatedAt,
		account.FailedAttempts,
		account.BackupCodes,
		account.LastLogin,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("ACCOUNT_EMAIL_TAKEN").
				With("email", account.Email).
				Errorf("email already enrolled")
		}
		return oops.With("operation", "create account").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`,
		id.String())
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "get account by id").
			With("id", id.String()).
			Wrap(err)
	}
	return account, nil
}

// GetByEmail retrieves an account by email (case-insensitive).
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE LOWER(email) = LOWER($1)`,
		email)
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "get account by email").Wrap(err)
	}
	return account, nil
}

// Update updates an existing account.
func (r *AccountRepository) Update(ctx context.Context, account *auth.Account) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET
		 email = $2, biometric_baseline = $3, known_devices = $4,
		 current_device = $5, credential_value = $6, credential_created_at = $7,
		 failed_attempts = $8, backup_codes = $9, last_login = $10, updated_at = $11
		 WHERE id = $1`,
		account.ID.String(),
		account.Email,
		account.BiometricBaseline,
		account.KnownDevices,
		account.CurrentDevice,
		account.Credential.Value,
		account.Credential.CreatedAt,
		account.FailedAttempts,
		account.BackupCodes,
		account.LastLogin,
		account.UpdatedAt,
	)
	if err != nil {
		return oops.With("operation", "update account").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", account.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Delete removes an account.
func (r *AccountRepository) Delete(ctx context.Context, id ulid.ULID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id.String())
	if err != nil {
		return oops.With("operation", "delete account").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		account   auth.Account
		idStr     string
		credValue string
		credAt    time.Time
		lastLogin *time.Time
	)
	err := row.Scan(
		&idStr,
		&account.Email,
		&account.BiometricBaseline,
		&account.KnownDevices,
		&account.CurrentDevice,
		&credValue,
		&credAt,
		&account.FailedAttempts,
		&account.BackupCodes,
		&lastLogin,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers classify ErrNoRows before wrapping
	}

	account.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_CORRUPT").
			With("id", idStr).
			Wrap(err)
	}
	account.Credential = auth.Credential{Value: credValue, CreatedAt: credAt}
	account.LastLogin = lastLogin
	return &account, nil
}

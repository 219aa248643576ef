// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorae/sorae/internal/auth"
	"github.com/sorae/sorae/pkg/errutil"
)

func sampleAccount(t *testing.T) *auth.Account {
	t.Helper()
	account, err := auth.NewAccount("user@example.com", 0.5, "device1",
		auth.Credential{Value: "a1B2c3D4", CreatedAt: time.Now()},
		[]string{"111111", "222222", "333333", "444444", "555555"})
	require.NoError(t, err)
	return account
}

func accountRows(account *auth.Account) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "email", "biometric_baseline", "known_devices", "current_device",
		"credential_value", "credential_created_at", "failed_attempts",
		"backup_codes", "last_login", "created_at", "updated_at",
	}).AddRow(
		account.ID.String(), account.Email, account.BiometricBaseline,
		account.KnownDevices, account.CurrentDevice,
		account.Credential.Value, account.Credential.CreatedAt,
		account.FailedAttempts, account.BackupCodes,
		account.LastLogin, account.CreatedAt, account.UpdatedAt,
	)
}

func TestAccountRepository_Create(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface, account *auth.Account)
		wantErr   bool
		wantCode  string
	}{
		{
			name: "successful insert",
			setupMock: func(mock pgxmock.PgxPoolIface, account *auth.Account) {
				mock.ExpectExec(`INSERT INTO accounts`).
					WithArgs(
						account.ID.String(), account.Email, account.BiometricBaseline,
						account.KnownDevices, account.CurrentDevice,
						account.Credential.Value, account.Credential.CreatedAt,
						account.FailedAttempts, account.BackupCodes,
						account.LastLogin, account.CreatedAt, account.UpdatedAt,
					).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "duplicate email maps to ACCOUNT_EMAIL_TAKEN",
			setupMock: func(mock pgxmock.PgxPoolIface, _ *auth.Account) {
				mock.ExpectExec(`INSERT INTO accounts`).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
			},
			wantErr:  true,
			wantCode: "ACCOUNT_EMAIL_TAKEN",
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface, _ *auth.Account) {
				mock.ExpectExec(`INSERT INTO accounts`).
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			account := sampleAccount(t)
			tt.setupMock(mock, account)

			repo := NewAccountRepository(mock)
			err = repo.Create(context.Background(), account)

			if tt.wantErr {
				require.Error(t, err)
				if tt.wantCode != "" {
					errutil.AssertErrorCode(t, err, tt.wantCode)
				}
			} else {
				require.NoError(t, err)
			}

			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestAccountRepository_GetByID(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		account := sampleAccount(t)
		mock.ExpectQuery(`SELECT .+ FROM accounts WHERE id =`).
			WithArgs(account.ID.String()).
			WillReturnRows(accountRows(account))

		repo := NewAccountRepository(mock)
		got, err := repo.GetByID(context.Background(), account.ID)
		require.NoError(t, err)

		assert.Equal(t, account.ID, got.ID)
		assert.Equal(t, account.Email, got.Email)
		assert.Equal(t, account.BackupCodes, got.BackupCodes)
		assert.Equal(t, account.Credential.Value, got.Credential.Value)
		assert.Nil(t, got.LastLogin)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing maps to ErrNotFound", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := ulid.Make()
		mock.ExpectQuery(`SELECT .+ FROM accounts WHERE id =`).
			WithArgs(id.String()).
			WillReturnError(pgx.ErrNoRows)

		repo := NewAccountRepository(mock)
		_, err = repo.GetByID(context.Background(), id)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("corrupt id is surfaced", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		account := sampleAccount(t)
		corrupt := pgxmock.NewRows([]string{
			"id", "email", "biometric_baseline", "known_devices", "current_device",
			"credential_value", "credential_created_at", "failed_attempts",
			"backup_codes", "last_login", "created_at", "updated_at",
		}).AddRow(
			"not-a-ulid", account.Email, account.BiometricBaseline,
			account.KnownDevices, account.CurrentDevice,
			account.Credential.Value, account.Credential.CreatedAt,
			account.FailedAttempts, account.BackupCodes,
			account.LastLogin, account.CreatedAt, account.UpdatedAt,
		)
		mock.ExpectQuery(`SELECT .+ FROM accounts WHERE id =`).
			WithArgs(account.ID.String()).
			WillReturnRows(corrupt)

		repo := NewAccountRepository(mock)
		_, err = repo.GetByID(context.Background(), account.ID)
		require.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAccountRepository_GetByEmail(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		account := sampleAccount(t)
		mock.ExpectQuery(`SELECT .+ FROM accounts WHERE LOWER\(email\) = LOWER`).
			WithArgs("USER@example.com").
			WillReturnRows(accountRows(account))

		repo := NewAccountRepository(mock)
		got, err := repo.GetByEmail(context.Background(), "USER@example.com")
		require.NoError(t, err)
		assert.Equal(t, account.ID, got.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing maps to ErrNotFound", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT .+ FROM accounts WHERE LOWER\(email\) = LOWER`).
			WithArgs("ghost@example.com").
			WillReturnError(pgx.ErrNoRows)

		repo := NewAccountRepository(mock)
		_, err = repo.GetByEmail(context.Background(), "ghost@example.com")
		assert.ErrorIs(t, err, auth.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAccountRepository_Update(t *testing.T) {
	t.Run("successful update", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		account := sampleAccount(t)
		account.FailedAttempts = 3
		mock.ExpectExec(`UPDATE accounts SET`).
			WithArgs(
				account.ID.String(), account.Email, account.BiometricBaseline,
				account.KnownDevices, account.CurrentDevice,
				account.Credential.Value, account.Credential.CreatedAt,
				account.FailedAttempts, account.BackupCodes,
				account.LastLogin, account.UpdatedAt,
			).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		repo := NewAccountRepository(mock)
		require.NoError(t, repo.Update(context.Background(), account))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero rows maps to ErrNotFound", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		account := sampleAccount(t)
		mock.ExpectExec(`UPDATE accounts SET`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := NewAccountRepository(mock)
		assert.ErrorIs(t, repo.Update(context.Background(), account), auth.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAccountRepository_Delete(t *testing.T) {
	t.Run("successful delete", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := ulid.Make()
		mock.ExpectExec(`DELETE FROM accounts WHERE id =`).
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		repo := NewAccountRepository(mock)
		require.NoError(t, repo.Delete(context.Background(), id))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero rows maps to ErrNotFound", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := ulid.Make()
		mock.ExpectExec(`DELETE FROM accounts WHERE id =`).
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		repo := NewAccountRepository(mock)
		assert.ErrorIs(t, repo.Delete(context.Background(), id), auth.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

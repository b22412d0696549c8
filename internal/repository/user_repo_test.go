package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accounts-service/internal/apperr"
	"accounts-service/internal/domain"
)

var userRowColumns = []string{
	"id", "email", "phone", "full_name", "address", "password",
	"is_active", "is_deleted", "created_at", "updated_at",
}

func userRow(id int64, email string, active bool) *pgxmock.Rows {
	now := time.Now().UTC()
	return pgxmock.NewRows(userRowColumns).
		AddRow(id, email, "1234567890", "Test User", "Street 1", "$2a$10$hash", active, false, now, now)
}

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *PgUserRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(mock.Close)
	return mock, NewPgUserRepository(mock)
}

func TestPgUserRepository_FindByEmail(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantKind  apperr.Kind
		wantErr   bool
		wantID    int64
	}{
		{
			name: "found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT (.+) FROM users WHERE lower\(email\) = lower\(\$1\) AND NOT is_deleted`).
					WithArgs("a@x.com").
					WillReturnRows(userRow(7, "a@x.com", true))
			},
			wantID: 7,
		},
		{
			name: "missing row is not found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT (.+) FROM users WHERE lower\(email\)`).
					WithArgs("a@x.com").
					WillReturnRows(pgxmock.NewRows(userRowColumns))
			},
			wantErr:  true,
			wantKind: apperr.KindNotFound,
		},
		{
			name: "connection failure is wrapped",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT (.+) FROM users WHERE lower\(email\)`).
					WithArgs("a@x.com").
					WillReturnError(errors.New("connection refused"))
			},
			wantErr:  true,
			wantKind: apperr.KindInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, repo := newMockRepo(t)
			tt.setupMock(mock)

			got, err := repo.FindByEmail(context.Background(), "a@x.com")
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, apperr.Classify(err).Kind)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantID, got.ID)
				assert.Equal(t, "a@x.com", got.Email)
			}
			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestPgUserRepository_FindByEmailNotFoundCarriesFieldError(t *testing.T) {
	mock, repo := newMockRepo(t)
	mock.ExpectQuery(`SELECT (.+) FROM users`).
		WithArgs("ghost@x.com").
		WillReturnRows(pgxmock.NewRows(userRowColumns))

	_, err := repo.FindByEmail(context.Background(), "ghost@x.com")
	appErr := apperr.Classify(err)
	assert.Equal(t, "User not found", appErr.Message)
	assert.Equal(t, "ghost@x.com not found", appErr.Fields["email"])
}

func TestPgUserRepository_ExistsActiveEmail(t *testing.T) {
	mock, repo := newMockRepo(t)
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM users WHERE lower\(email\) = lower\(\$1\) AND NOT is_deleted\)`).
		WithArgs("a@x.com").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsActiveEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUserRepository_ExistsActivePhone(t *testing.T) {
	mock, repo := newMockRepo(t)
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM users WHERE phone = \$1 AND NOT is_deleted\)`).
		WithArgs("1234567890").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err := repo.ExistsActivePhone(context.Background(), "1234567890")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUserRepository_Create(t *testing.T) {
	input := domain.NewUser{
		Email:        "a@x.com",
		Phone:        "1234567890",
		FullName:     "Test User",
		Address:      "Street 1",
		PasswordHash: "$2a$10$hash",
	}

	t.Run("inserts inactive user", func(t *testing.T) {
		mock, repo := newMockRepo(t)
		mock.ExpectQuery(`INSERT INTO users \(email, phone, full_name, address, password, is_active\)`).
			WithArgs(input.Email, input.Phone, input.FullName, input.Address, input.PasswordHash).
			WillReturnRows(userRow(1, input.Email, false))

		user, err := repo.Create(context.Background(), input)
		require.NoError(t, err)
		assert.Equal(t, int64(1), user.ID)
		assert.False(t, user.IsActive)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("email unique violation is conflict", func(t *testing.T) {
		mock, repo := newMockRepo(t)
		mock.ExpectQuery(`INSERT INTO users`).
			WithArgs(input.Email, input.Phone, input.FullName, input.Address, input.PasswordHash).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_live_key"})

		_, err := repo.Create(context.Background(), input)
		require.Error(t, err)
		appErr := apperr.Classify(err)
		assert.Equal(t, apperr.KindConflict, appErr.Kind)
		assert.Equal(t, "User with email a@x.com already exists", appErr.Message)
	})

	t.Run("phone unique violation is conflict", func(t *testing.T) {
		mock, repo := newMockRepo(t)
		mock.ExpectQuery(`INSERT INTO users`).
			WithArgs(input.Email, input.Phone, input.FullName, input.Address, input.PasswordHash).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_phone_live_key"})

		_, err := repo.Create(context.Background(), input)
		appErr := apperr.Classify(err)
		assert.Equal(t, apperr.KindConflict, appErr.Kind)
		assert.Equal(t, "Phone number already registered.", appErr.Message)
	})
}

func TestPgUserRepository_Activate(t *testing.T) {
	t.Run("activates inactive user", func(t *testing.T) {
		mock, repo := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT is_active FROM users WHERE id = \$1 AND NOT is_deleted FOR UPDATE`).
			WithArgs(int64(3)).
			WillReturnRows(pgxmock.NewRows([]string{"is_active"}).AddRow(false))
		mock.ExpectExec(`UPDATE users SET is_active = TRUE`).
			WithArgs(int64(3)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		require.NoError(t, repo.Activate(context.Background(), 3))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already active rolls back with conflict", func(t *testing.T) {
		mock, repo := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT is_active FROM users`).
			WithArgs(int64(3)).
			WillReturnRows(pgxmock.NewRows([]string{"is_active"}).AddRow(true))
		mock.ExpectRollback()

		err := repo.Activate(context.Background(), 3)
		require.Error(t, err)
		assert.True(t, apperr.IsKind(err, apperr.KindConflict))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("update failure rolls back", func(t *testing.T) {
		mock, repo := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT is_active FROM users`).
			WithArgs(int64(3)).
			WillReturnRows(pgxmock.NewRows([]string{"is_active"}).AddRow(false))
		mock.ExpectExec(`UPDATE users SET is_active = TRUE`).
			WithArgs(int64(3)).
			WillReturnError(errors.New("deadlock detected"))
		mock.ExpectRollback()

		err := repo.Activate(context.Background(), 3)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "deadlock detected")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing user is not found", func(t *testing.T) {
		mock, repo := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT is_active FROM users`).
			WithArgs(int64(9)).
			WillReturnRows(pgxmock.NewRows([]string{"is_active"}))
		mock.ExpectRollback()

		err := repo.Activate(context.Background(), 9)
		assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgUserRepository_UpdatePassword(t *testing.T) {
	t.Run("updates hash", func(t *testing.T) {
		mock, repo := newMockRepo(t)
		mock.ExpectExec(`UPDATE users SET password = \$2`).
			WithArgs(int64(1), "newhash").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.UpdatePassword(context.Background(), 1, "newhash"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no rows is not found", func(t *testing.T) {
		mock, repo := newMockRepo(t)
		mock.ExpectExec(`UPDATE users SET password = \$2`).
			WithArgs(int64(1), "newhash").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.UpdatePassword(context.Background(), 1, "newhash")
		assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	})
}

func TestPgUserRepository_UpdateProfile(t *testing.T) {
	name := "New Name"
	patch := domain.UserPatch{FullName: &name}

	mock, repo := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`UPDATE users SET(.+)COALESCE`).
		WithArgs(int64(4), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(userRowColumns).
			AddRow(int64(4), "a@x.com", "1234567890", name, "Street 1", "hash", true, false, now, now))

	user, err := repo.UpdateProfile(context.Background(), 4, patch)
	require.NoError(t, err)
	assert.Equal(t, name, user.FullName)
	assert.Equal(t, "Street 1", user.Address)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUserRepository_SoftDelete(t *testing.T) {
	mock, repo := newMockRepo(t)
	mock.ExpectExec(`UPDATE users SET is_deleted = TRUE`).
		WithArgs(int64(2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.SoftDelete(context.Background(), 2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

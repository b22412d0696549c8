package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"accounts-service/internal/apperr"
	"accounts-service/internal/domain"
)

// UserRepository define el contrato de persistencia para usuarios.
// Ninguna operacion ve filas con is_deleted.
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	FindByPhone(ctx context.Context, phone string) (domain.User, error)
	ExistsActiveEmail(ctx context.Context, email string) (bool, error)
	ExistsActivePhone(ctx context.Context, phone string) (bool, error)
	Create(ctx context.Context, user domain.NewUser) (domain.User, error)
	Activate(ctx context.Context, id int64) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	UpdateProfile(ctx context.Context, id int64, patch domain.UserPatch) (domain.User, error)
	SoftDelete(ctx context.Context, id int64) error
}

// pgxPool es el subconjunto de pgxpool.Pool que usa el repositorio.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const (
	emailUniqueIndex = "users_email_live_key"
	phoneUniqueIndex = "users_phone_live_key"

	userColumns = `id, email, phone, full_name, address, password, is_active, is_deleted, created_at, updated_at`

	msgUserNotFound = "User not found"
)

// PgUserRepository implementa UserRepository usando pgx.
type PgUserRepository struct {
	pool pgxPool
}

func NewPgUserRepository(pool pgxPool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

func (r *PgUserRepository) FindByID(ctx context.Context, id int64) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND NOT is_deleted`
	u, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, apperr.NotFound(msgUserNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

func (r *PgUserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1) AND NOT is_deleted`
	u, err := scanUser(r.pool.QueryRow(ctx, query, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, apperr.NotFound(msgUserNotFound).WithField("email", email+" not found")
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("find user by email: %w", err)
	}
	return u, nil
}

func (r *PgUserRepository) FindByPhone(ctx context.Context, phone string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE phone = $1 AND NOT is_deleted`
	u, err := scanUser(r.pool.QueryRow(ctx, query, phone))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, apperr.NotFound(msgUserNotFound).WithField("phone", phone+" not found")
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("find user by phone: %w", err)
	}
	return u, nil
}

func (r *PgUserRepository) ExistsActiveEmail(ctx context.Context, email string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1) AND NOT is_deleted)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

func (r *PgUserRepository) ExistsActivePhone(ctx context.Context, phone string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE phone = $1 AND NOT is_deleted)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, phone).Scan(&exists); err != nil {
		return false, fmt.Errorf("check phone: %w", err)
	}
	return exists, nil
}

// Create inserta la cuenta inactiva. PasswordHash ya debe venir hasheado.
func (r *PgUserRepository) Create(ctx context.Context, user domain.NewUser) (domain.User, error) {
	query := `
		INSERT INTO users (email, phone, full_name, address, password, is_active)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		RETURNING ` + userColumns
	u, err := scanUser(r.pool.QueryRow(ctx, query,
		user.Email,
		user.Phone,
		user.FullName,
		user.Address,
		user.PasswordHash,
	))
	if err != nil {
		if conflict := uniqueConflict(err, user.Email, user.Phone); conflict != nil {
			return domain.User{}, conflict
		}
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// Activate marca la cuenta activa dentro de una transaccion con lock de fila.
func (r *PgUserRepository) Activate(ctx context.Context, id int64) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		var active bool
		err := tx.QueryRow(ctx, `SELECT is_active FROM users WHERE id = $1 AND NOT is_deleted FOR UPDATE`, id).Scan(&active)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound(msgUserNotFound)
		}
		if err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		if active {
			return apperr.Conflict("User is already active.")
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET is_active = TRUE, updated_at = now() WHERE id = $1`, id); err != nil {
			return fmt.Errorf("activate user: %w", err)
		}
		return nil
	})
}

func (r *PgUserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	const query = `UPDATE users SET password = $2, updated_at = now() WHERE id = $1 AND NOT is_deleted`
	tag, err := r.pool.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(msgUserNotFound)
	}
	return nil
}

// UpdateProfile aplica solo los campos no nil del patch.
func (r *PgUserRepository) UpdateProfile(ctx context.Context, id int64, patch domain.UserPatch) (domain.User, error) {
	query := `
		UPDATE users SET
			full_name = COALESCE($2, full_name),
			phone = COALESCE($3, phone),
			address = COALESCE($4, address),
			updated_at = now()
		WHERE id = $1 AND NOT is_deleted
		RETURNING ` + userColumns
	u, err := scanUser(r.pool.QueryRow(ctx, query, id, patch.FullName, patch.Phone, patch.Address))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, apperr.NotFound(msgUserNotFound)
	}
	if err != nil {
		phone := ""
		if patch.Phone != nil {
			phone = *patch.Phone
		}
		if conflict := uniqueConflict(err, "", phone); conflict != nil {
			return domain.User{}, conflict
		}
		return domain.User{}, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}

func (r *PgUserRepository) SoftDelete(ctx context.Context, id int64) error {
	const query = `UPDATE users SET is_deleted = TRUE, is_active = FALSE, updated_at = now() WHERE id = $1 AND NOT is_deleted`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("soft delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(msgUserNotFound)
	}
	return nil
}

// inTx ejecuta fn en una transaccion; cualquier error hace rollback explicito
// antes de devolver el control.
func (r *PgUserRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback tx: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Phone,
		&u.FullName,
		&u.Address,
		&u.Password,
		&u.IsActive,
		&u.IsDeleted,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

// uniqueConflict traduce una violacion de indice unico a un Conflict.
func uniqueConflict(err error, email, phone string) *apperr.Error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return nil
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, emailUniqueIndex):
		return apperr.Conflict(fmt.Sprintf("User with email %s already exists", email)).
			WithField("email", email+" already registered.")
	case strings.Contains(pgErr.ConstraintName, phoneUniqueIndex):
		return apperr.Conflict("Phone number already registered.").
			WithField("phone", phone+" already registered.")
	default:
		return apperr.Conflict("Duplicate value, please use another")
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/sirmadman/gatekeeper/internal/identity"
)

// UserRepository implements identity.Repository using PostgreSQL.
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create stores a new user. A case-insensitive username collision is
// reported as identity.ErrUsernameTaken.
func (r *UserRepository) Create(ctx context.Context, user *identity.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (
			id, username, password_hash, email, first_name, last_name,
			status, last_login, reset_code, reset_code_expires,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		user.ID.String(),
		user.Username,
		user.PasswordHash,
		user.Email,
		user.FirstName,
		user.LastName,
		string(user.Status),
		user.LastLogin,
		user.ResetCode,
		user.ResetCodeExpires,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("USER_USERNAME_TAKEN").
				With("username", user.Username).
				Wrap(identity.ErrUsernameTaken)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", user.Username).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*identity.User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, username, password_hash, email, first_name, last_name,
		       status, last_login, reset_code, reset_code_expires,
		       created_at, updated_at
		FROM users
		WHERE id = $1
	`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(identity.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByUsername retrieves a user by username (case-insensitive).
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*identity.User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, username, password_hash, email, first_name, last_name,
		       status, last_login, reset_code, reset_code_expires,
		       created_at, updated_at
		FROM users
		WHERE LOWER(username) = LOWER($1)
	`, username)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("username", username).
			Wrap(identity.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_USERNAME_FAILED").
			With("operation", "get user by username").
			With("username", username).
			Wrap(err)
	}
	return user, nil
}

// Update updates an existing user.
func (r *UserRepository) Update(ctx context.Context, user *identity.User) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET
			username = $2,
			password_hash = $3,
			email = $4,
			first_name = $5,
			last_name = $6,
			status = $7,
			last_login = $8,
			reset_code = $9,
			reset_code_expires = $10,
			updated_at = $11
		WHERE id = $1
	`,
		user.ID.String(),
		user.Username,
		user.PasswordHash,
		user.Email,
		user.FirstName,
		user.LastName,
		string(user.Status),
		user.LastLogin,
		user.ResetCode,
		user.ResetCodeExpires,
		user.UpdatedAt,
	)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", user.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", user.ID.String()).
			Wrap(identity.ErrNotFound)
	}
	return nil
}

// Delete removes a user.
func (r *UserRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.db.Exec(ctx, `
		DELETE FROM users WHERE id = $1
	`, id.String())
	if err != nil {
		return oops.Code("USER_DELETE_FAILED").
			With("operation", "delete user").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(identity.ErrNotFound)
	}
	return nil
}

// scanUser scans a single row into a User.
func scanUser(row pgx.Row) (*identity.User, error) {
	var (
		user   identity.User
		id     string
		status string
	)
	err := row.Scan(
		&id,
		&user.Username,
		&user.PasswordHash,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&status,
		&user.LastLogin,
		&user.ResetCode,
		&user.ResetCodeExpires,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.ID, err = ulid.Parse(id)
	if err != nil {
		return nil, oops.Code("USER_SCAN_FAILED").
			With("operation", "parse user id").
			With("id", id).
			Wrap(err)
	}
	user.Status = identity.Status(status)
	return &user, nil
}

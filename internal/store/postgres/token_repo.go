// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

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

	"github.com/sirmadman/gatekeeper/internal/trust"
)

// TokenRepository implements trust.Repository using PostgreSQL. Delete
// returning trust.ErrNotFound on an already-deleted row is what makes
// tokens single-use under concurrent verification: only one caller sees
// the row disappear on its own delete.
type TokenRepository struct {
	db DB
}

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(db DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create stores a new trust token.
func (r *TokenRepository) Create(ctx context.Context, token *trust.Token) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO trust_tokens (id, secret_hash, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		token.ID.String(),
		token.SecretHash,
		token.UserID.String(),
		token.ExpiresAt,
		token.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("TRUST_TOKEN_EXISTS").
				With("user_id", token.UserID.String()).
				Wrap(trust.ErrTokenExists)
		}
		return oops.Code("TRUST_CREATE_FAILED").
			With("operation", "insert trust token").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a token by its public identifier.
func (r *TokenRepository) GetByID(ctx context.Context, id ulid.ULID) (*trust.Token, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, secret_hash, user_id, expires_at, created_at
		FROM trust_tokens
		WHERE id = $1
	`, id.String())

	token, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TRUST_NOT_FOUND").
			With("id", id.String()).
			Wrap(trust.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TRUST_GET_BY_ID_FAILED").
			With("operation", "get trust token by id").
			With("id", id.String()).
			Wrap(err)
	}
	return token, nil
}

// GetByUser retrieves the token held by a user.
func (r *TokenRepository) GetByUser(ctx context.Context, userID ulid.ULID) (*trust.Token, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, secret_hash, user_id, expires_at, created_at
		FROM trust_tokens
		WHERE user_id = $1
	`, userID.String())

	token, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TRUST_NOT_FOUND").
			With("user_id", userID.String()).
			Wrap(trust.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TRUST_GET_BY_USER_FAILED").
			With("operation", "get trust token by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return token, nil
}

// Delete removes a token by ID. An absent row returns trust.ErrNotFound.
func (r *TokenRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.db.Exec(ctx, `
		DELETE FROM trust_tokens WHERE id = $1
	`, id.String())
	if err != nil {
		return oops.Code("TRUST_DELETE_FAILED").
			With("operation", "delete trust token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("TRUST_NOT_FOUND").
			With("id", id.String()).
			Wrap(trust.ErrNotFound)
	}
	return nil
}

// DeleteExpired removes all expired tokens and returns the count.
func (r *TokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.Exec(ctx, `
		DELETE FROM trust_tokens WHERE expires_at <= $1
	`, time.Now())
	if err != nil {
		return 0, oops.Code("TRUST_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired trust tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanToken scans a single row into a Token.
func scanToken(row pgx.Row) (*trust.Token, error) {
	var (
		token  trust.Token
		id     string
		userID string
	)
	err := row.Scan(&id, &token.SecretHash, &userID, &token.ExpiresAt, &token.CreatedAt)
	if err != nil {
		return nil, err
	}

	token.ID, err = ulid.Parse(id)
	if err != nil {
		return nil, oops.Code("TRUST_SCAN_FAILED").
			With("operation", "parse token id").
			With("id", id).
			Wrap(err)
	}
	token.UserID, err = ulid.Parse(userID)
	if err != nil {
		return nil, oops.Code("TRUST_SCAN_FAILED").
			With("operation", "parse token user id").
			With("user_id", userID).
			Wrap(err)
	}
	return &token, nil
}

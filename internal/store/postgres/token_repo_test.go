// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirmadman/gatekeeper/internal/store/postgres"
	"github.com/sirmadman/gatekeeper/internal/trust"
)

func testToken() *trust.Token {
	now := time.Now().Truncate(time.Microsecond)
	return &trust.Token{
		ID:         ulid.Make(),
		SecretHash: trust.HashSecret("s3cret"),
		UserID:     ulid.Make(),
		ExpiresAt:  now.Add(14 * 24 * time.Hour),
		CreatedAt:  now,
	}
}

func tokenRows(token *trust.Token) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "secret_hash", "user_id", "expires_at", "created_at",
	}).AddRow(
		token.ID.String(), token.SecretHash, token.UserID.String(),
		token.ExpiresAt, token.CreatedAt,
	)
}

func TestTokenRepositoryCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts the token", func(t *testing.T) {
		mock := newMockPool(t)
		repo := postgres.NewTokenRepository(mock)
		token := testToken()

		mock.ExpectExec(`INSERT INTO trust_tokens`).
			WithArgs(token.ID.String(), token.SecretHash, token.UserID.String(),
				token.ExpiresAt, token.CreatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, repo.Create(ctx, token))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate user is ErrTokenExists", func(t *testing.T) {
		mock := newMockPool(t)
		repo := postgres.NewTokenRepository(mock)
		token := testToken()

		mock.ExpectExec(`INSERT INTO trust_tokens`).
			WithArgs(token.ID.String(), token.SecretHash, token.UserID.String(),
				token.ExpiresAt, token.CreatedAt).
			WillReturnError(&pgconn.PgError{Code: "23505"})

		assert.ErrorIs(t, repo.Create(ctx, token), trust.ErrTokenExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTokenRepositoryGet(t *testing.T) {
	ctx := context.Background()

	t.Run("by id", func(t *testing.T) {
		mock := newMockPool(t)
		repo := postgres.NewTokenRepository(mock)
		token := testToken()

		mock.ExpectQuery(`SELECT (.+) FROM trust_tokens WHERE id = \$1`).
			WithArgs(token.ID.String()).
			WillReturnRows(tokenRows(token))

		got, err := repo.GetByID(ctx, token.ID)
		require.NoError(t, err)
		assert.Equal(t, token.ID, got.ID)
		assert.Equal(t, token.UserID, got.UserID)
		assert.Equal(t, token.SecretHash, got.SecretHash)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("by user", func(t *testing.T) {
		mock := newMockPool(t)
		repo := postgres.NewTokenRepository(mock)
		token := testToken()

		mock.ExpectQuery(`SELECT (.+) FROM trust_tokens WHERE user_id = \$1`).
			WithArgs(token.UserID.String()).
			WillReturnRows(tokenRows(token))

		got, err := repo.GetByUser(ctx, token.UserID)
		require.NoError(t, err)
		assert.Equal(t, token.ID, got.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing token is ErrNotFound", func(t *testing.T) {
		mock := newMockPool(t)
		repo := postgres.NewTokenRepository(mock)
		id := ulid.Make()

		mock.ExpectQuery(`SELECT (.+) FROM trust_tokens WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetByID(ctx, id)
		assert.ErrorIs(t, err, trust.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTokenRepositoryDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes the token", func(t *testing.T) {
		mock := newMockPool(t)
		repo := postgres.NewTokenRepository(mock)
		id := ulid.Make()

		mock.ExpectExec(`DELETE FROM trust_tokens WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		assert.NoError(t, repo.Delete(ctx, id))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already deleted is ErrNotFound", func(t *testing.T) {
		mock := newMockPool(t)
		repo := postgres.NewTokenRepository(mock)
		id := ulid.Make()

		mock.ExpectExec(`DELETE FROM trust_tokens WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		assert.ErrorIs(t, repo.Delete(ctx, id), trust.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTokenRepositoryDeleteExpired(t *testing.T) {
	mock := newMockPool(t)
	repo := postgres.NewTokenRepository(mock)

	mock.ExpectExec(`DELETE FROM trust_tokens WHERE expires_at <= \$1`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	count, err := repo.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

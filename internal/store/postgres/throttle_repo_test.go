// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirmadman/gatekeeper/internal/store/postgres"
	"github.com/sirmadman/gatekeeper/internal/throttle"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func throttleRows(rec *throttle.Record) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"user_id", "attempts", "status", "last_attempt", "status_change",
		"created_at", "updated_at",
	}).AddRow(
		rec.UserID.String(), rec.Attempts, string(rec.Status),
		rec.LastAttempt, rec.StatusChange, rec.CreatedAt, rec.UpdatedAt,
	)
}

func TestThrottleRepositoryGet(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the record", func(t *testing.T) {
		mock := newMockPool(t)
		repo := postgres.NewThrottleRepository(mock)
		rec := throttle.NewRecord(ulid.Make())
		rec.Attempts = 3

		mock.ExpectQuery(`SELECT (.+) FROM throttle`).
			WithArgs(rec.UserID.String()).
			WillReturnRows(throttleRows(rec))

		got, err := repo.Get(ctx, rec.UserID)
		require.NoError(t, err)
		assert.Equal(t, rec.UserID, got.UserID)
		assert.Equal(t, 3, got.Attempts)
		assert.Equal(t, throttle.StatusAllowed, got.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing record is ErrNoRecord", func(t *testing.T) {
		mock := newMockPool(t)
		repo := postgres.NewThrottleRepository(mock)
		userID := ulid.Make()

		mock.ExpectQuery(`SELECT (.+) FROM throttle`).
			WithArgs(userID.String()).
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.Get(ctx, userID)
		assert.ErrorIs(t, err, throttle.ErrNoRecord)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestThrottleRepositoryMutate(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a record when absent", func(t *testing.T) {
		mock := newMockPool(t)
		repo := postgres.NewThrottleRepository(mock)
		userID := ulid.Make()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT (.+) FROM throttle (.+) FOR UPDATE`).
			WithArgs(userID.String()).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectExec(`INSERT INTO throttle`).
			WithArgs(userID.String(), 1, "allowed",
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		rec, err := repo.Mutate(ctx, userID, func(rec *throttle.Record, created bool) error {
			assert.True(t, created)
			assert.Equal(t, 1, rec.Attempts)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, rec.Attempts)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("updates an existing record under row lock", func(t *testing.T) {
		mock := newMockPool(t)
		repo := postgres.NewThrottleRepository(mock)
		existing := throttle.NewRecord(ulid.Make())
		existing.Attempts = 4

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT (.+) FROM throttle (.+) FOR UPDATE`).
			WithArgs(existing.UserID.String()).
			WillReturnRows(throttleRows(existing))
		mock.ExpectExec(`UPDATE throttle SET`).
			WithArgs(existing.UserID.String(), 5, "blocked",
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		rec, err := repo.Mutate(ctx, existing.UserID, func(rec *throttle.Record, created bool) error {
			assert.False(t, created)
			rec.Attempts++
			rec.Status = throttle.StatusBlocked
			rec.StatusChange = time.Now()
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 5, rec.Attempts)
		assert.Equal(t, throttle.StatusBlocked, rec.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fn error aborts without writing", func(t *testing.T) {
		mock := newMockPool(t)
		repo := postgres.NewThrottleRepository(mock)
		userID := ulid.Make()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT (.+) FROM throttle (.+) FOR UPDATE`).
			WithArgs(userID.String()).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		boom := assert.AnError
		_, err := repo.Mutate(ctx, userID, func(*throttle.Record, bool) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestThrottleRepositoryDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes the record", func(t *testing.T) {
		mock := newMockPool(t)
		repo := postgres.NewThrottleRepository(mock)
		userID := ulid.Make()

		mock.ExpectExec(`DELETE FROM throttle`).
			WithArgs(userID.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		assert.NoError(t, repo.Delete(ctx, userID))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("absent record is ErrNoRecord", func(t *testing.T) {
		mock := newMockPool(t)
		repo := postgres.NewThrottleRepository(mock)
		userID := ulid.Make()

		mock.ExpectExec(`DELETE FROM throttle`).
			WithArgs(userID.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		assert.ErrorIs(t, repo.Delete(ctx, userID), throttle.ErrNoRecord)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

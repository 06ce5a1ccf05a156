// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirmadman/gatekeeper/internal/identity"
	"github.com/sirmadman/gatekeeper/internal/store/postgres"
)

func testQuestion(userID ulid.ULID, question string) *identity.SecurityQuestion {
	now := time.Now().Truncate(time.Microsecond)
	return &identity.SecurityQuestion{
		ID:         ulid.Make(),
		UserID:     userID,
		Question:   question,
		AnswerHash: "$argon2id$fake",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestQuestionRepositoryCreate(t *testing.T) {
	mock := newMockPool(t)
	repo := postgres.NewQuestionRepository(mock)
	q := testQuestion(ulid.Make(), "First pet?")

	mock.ExpectExec(`INSERT INTO security_questions`).
		WithArgs(q.ID.String(), q.UserID.String(), q.Question, q.AnswerHash,
			q.CreatedAt, q.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), q))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuestionRepositoryListByUser(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the user's questions", func(t *testing.T) {
		mock := newMockPool(t)
		repo := postgres.NewQuestionRepository(mock)
		userID := ulid.Make()
		first := testQuestion(userID, "First pet?")
		second := testQuestion(userID, "Mother's maiden name?")

		rows := pgxmock.NewRows([]string{
			"id", "user_id", "question", "answer_hash", "created_at", "updated_at",
		}).AddRow(
			first.ID.String(), userID.String(), first.Question, first.AnswerHash,
			first.CreatedAt, first.UpdatedAt,
		).AddRow(
			second.ID.String(), userID.String(), second.Question, second.AnswerHash,
			second.CreatedAt, second.UpdatedAt,
		)
		mock.ExpectQuery(`SELECT (.+) FROM security_questions\s+WHERE user_id = \$1`).
			WithArgs(userID.String()).
			WillReturnRows(rows)

		questions, err := repo.ListByUser(ctx, userID)
		require.NoError(t, err)
		require.Len(t, questions, 2)
		assert.Equal(t, "First pet?", questions[0].Question)
		assert.Equal(t, "Mother's maiden name?", questions[1].Question)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no questions yields empty list", func(t *testing.T) {
		mock := newMockPool(t)
		repo := postgres.NewQuestionRepository(mock)
		userID := ulid.Make()

		mock.ExpectQuery(`SELECT (.+) FROM security_questions`).
			WithArgs(userID.String()).
			WillReturnRows(pgxmock.NewRows([]string{
				"id", "user_id", "question", "answer_hash", "created_at", "updated_at",
			}))

		questions, err := repo.ListByUser(ctx, userID)
		require.NoError(t, err)
		assert.Empty(t, questions)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestQuestionRepositoryDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes the question", func(t *testing.T) {
		mock := newMockPool(t)
		repo := postgres.NewQuestionRepository(mock)
		id := ulid.Make()

		mock.ExpectExec(`DELETE FROM security_questions`).
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		assert.NoError(t, repo.Delete(ctx, id))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing question is ErrNotFound", func(t *testing.T) {
		mock := newMockPool(t)
		repo := postgres.NewQuestionRepository(mock)
		id := ulid.Make()

		mock.ExpectExec(`DELETE FROM security_questions`).
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		assert.ErrorIs(t, repo.Delete(ctx, id), identity.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

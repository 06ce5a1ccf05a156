// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/sirmadman/gatekeeper/internal/identity"
)

// QuestionRepository implements identity.QuestionRepository using PostgreSQL.
type QuestionRepository struct {
	db DB
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(db DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

// Create stores a new security question.
func (r *QuestionRepository) Create(ctx context.Context, question *identity.SecurityQuestion) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO security_questions (id, user_id, question, answer_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		question.ID.String(),
		question.UserID.String(),
		question.Question,
		question.AnswerHash,
		question.CreatedAt,
		question.UpdatedAt,
	)
	if err != nil {
		return oops.Code("QUESTION_CREATE_FAILED").
			With("operation", "insert security question").
			With("user_id", question.UserID.String()).
			Wrap(err)
	}
	return nil
}

// ListByUser returns all security questions held by a user.
func (r *QuestionRepository) ListByUser(ctx context.Context, userID ulid.ULID) ([]*identity.SecurityQuestion, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, question, answer_hash, created_at, updated_at
		FROM security_questions
		WHERE user_id = $1
		ORDER BY created_at
	`, userID.String())
	if err != nil {
		return nil, oops.Code("QUESTION_LIST_FAILED").
			With("operation", "list security questions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var questions []*identity.SecurityQuestion
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("QUESTION_LIST_FAILED").
			With("operation", "iterate security questions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return questions, nil
}

// Delete removes a security question by ID. An absent row returns
// identity.ErrNotFound.
func (r *QuestionRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.db.Exec(ctx, `
		DELETE FROM security_questions WHERE id = $1
	`, id.String())
	if err != nil {
		return oops.Code("QUESTION_DELETE_FAILED").
			With("operation", "delete security question").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("QUESTION_NOT_FOUND").
			With("id", id.String()).
			Wrap(identity.ErrNotFound)
	}
	return nil
}

// scanQuestion scans a single row into a SecurityQuestion.
func scanQuestion(row pgx.Row) (*identity.SecurityQuestion, error) {
	var (
		q      identity.SecurityQuestion
		id     string
		userID string
	)
	err := row.Scan(&id, &userID, &q.Question, &q.AnswerHash, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}

	q.ID, err = ulid.Parse(id)
	if err != nil {
		return nil, oops.Code("QUESTION_SCAN_FAILED").
			With("operation", "parse question id").
			With("id", id).
			Wrap(err)
	}
	q.UserID, err = ulid.Parse(userID)
	if err != nil {
		return nil, oops.Code("QUESTION_SCAN_FAILED").
			With("operation", "parse question user id").
			With("user_id", userID).
			Wrap(err)
	}
	return &q, nil
}

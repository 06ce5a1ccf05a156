// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package identity

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// ErrAnswerMatchesPassword is returned when a security question answer is
// the user's current password. An answer that doubles as the password
// would turn the question into a second login prompt.
var ErrAnswerMatchesPassword = errors.New("security answer cannot match the password")

// SecurityQuestion is a per-user challenge for account recovery. The
// answer is stored as a password hash, never in plaintext.
type SecurityQuestion struct {
	ID         ulid.ULID
	UserID     ulid.ULID
	Question   string
	AnswerHash string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewSecurityQuestion builds a question for the user, hashing the answer
// with the same hasher used for passwords. The answer is rejected when it
// matches the user's current password.
func NewSecurityQuestion(hasher PasswordHasher, user *User, question, answer string) (*SecurityQuestion, error) {
	if question == "" || answer == "" {
		return nil, oops.Code("QUESTION_INVALID").
			Errorf("question and answer are both required")
	}

	same, err := hasher.Verify(answer, user.PasswordHash)
	if err == nil && same {
		return nil, oops.Code("QUESTION_ANSWER_IS_PASSWORD").
			With("user_id", user.ID.String()).
			Wrap(ErrAnswerMatchesPassword)
	}

	hash, err := hasher.Hash(answer)
	if err != nil {
		return nil, oops.Code("QUESTION_HASH_FAILED").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	now := time.Now()
	return &SecurityQuestion{
		ID:         ulid.Make(),
		UserID:     user.ID,
		Question:   question,
		AnswerHash: hash,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// VerifyAnswer checks a presented answer against the stored hash.
func (q *SecurityQuestion) VerifyAnswer(hasher PasswordHasher, answer string) (bool, error) {
	return hasher.Verify(answer, q.AnswerHash)
}

// QuestionRepository manages security question persistence.
type QuestionRepository interface {
	// Create stores a new security question.
	Create(ctx context.Context, question *SecurityQuestion) error

	// ListByUser returns all questions held by a user.
	ListByUser(ctx context.Context, userID ulid.ULID) ([]*SecurityQuestion, error)

	// Delete removes a question by ID.
	Delete(ctx context.Context, id ulid.ULID) error
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/sirmadman/gatekeeper/internal/throttle"
)

// ThrottleRepository implements throttle.Repository using PostgreSQL.
// Mutate serializes per-subject read-modify-write cycles with a row-level
// lock (SELECT ... FOR UPDATE) inside a transaction.
type ThrottleRepository struct {
	db DB
}

// NewThrottleRepository creates a new ThrottleRepository.
func NewThrottleRepository(db DB) *ThrottleRepository {
	return &ThrottleRepository{db: db}
}

// Get retrieves the throttle record for a subject.
func (r *ThrottleRepository) Get(ctx context.Context, userID ulid.ULID) (*throttle.Record, error) {
	row := r.db.QueryRow(ctx, `
		SELECT user_id, attempts, status, last_attempt, status_change,
		       created_at, updated_at
		FROM throttle
		WHERE user_id = $1
	`, userID.String())

	rec, err := scanThrottle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("THROTTLE_NOT_FOUND").
			With("user_id", userID.String()).
			Wrap(throttle.ErrNoRecord)
	}
	if err != nil {
		return nil, oops.Code("THROTTLE_GET_FAILED").
			With("operation", "get throttle record").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return rec, nil
}

// Mutate atomically applies fn to the subject's record, creating it when
// absent. The row stays locked for the duration of fn, so concurrent
// evaluations of the same subject serialize here.
func (r *ThrottleRepository) Mutate(ctx context.Context, userID ulid.ULID, fn func(rec *throttle.Record, created bool) error) (*throttle.Record, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, oops.Code("THROTTLE_MUTATE_FAILED").
			With("operation", "begin transaction").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer func() { _ = tx.Rollback(ctx) }() //nolint:errcheck // no-op after commit

	row := tx.QueryRow(ctx, `
		SELECT user_id, attempts, status, last_attempt, status_change,
		       created_at, updated_at
		FROM throttle
		WHERE user_id = $1
		FOR UPDATE
	`, userID.String())

	rec, err := scanThrottle(row)
	created := false
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		rec = throttle.NewRecord(userID)
		created = true
	case err != nil:
		return nil, oops.Code("THROTTLE_MUTATE_FAILED").
			With("operation", "lock throttle record").
			With("user_id", userID.String()).
			Wrap(err)
	}

	if err := fn(rec, created); err != nil {
		return nil, err
	}

	if created {
		_, err = tx.Exec(ctx, `
			INSERT INTO throttle (
				user_id, attempts, status, last_attempt, status_change,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
			rec.UserID.String(),
			rec.Attempts,
			string(rec.Status),
			rec.LastAttempt,
			rec.StatusChange,
			rec.CreatedAt,
			rec.UpdatedAt,
		)
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE throttle SET
				attempts = $2,
				status = $3,
				last_attempt = $4,
				status_change = $5,
				updated_at = $6
			WHERE user_id = $1
		`,
			rec.UserID.String(),
			rec.Attempts,
			string(rec.Status),
			rec.LastAttempt,
			rec.StatusChange,
			rec.UpdatedAt,
		)
	}
	if err != nil {
		return nil, oops.Code("THROTTLE_MUTATE_FAILED").
			With("operation", "write throttle record").
			With("user_id", userID.String()).
			Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, oops.Code("THROTTLE_MUTATE_FAILED").
			With("operation", "commit").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return rec, nil
}

// Delete removes the throttle record for a subject.
func (r *ThrottleRepository) Delete(ctx context.Context, userID ulid.ULID) error {
	result, err := r.db.Exec(ctx, `
		DELETE FROM throttle WHERE user_id = $1
	`, userID.String())
	if err != nil {
		return oops.Code("THROTTLE_DELETE_FAILED").
			With("operation", "delete throttle record").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("THROTTLE_NOT_FOUND").
			With("user_id", userID.String()).
			Wrap(throttle.ErrNoRecord)
	}
	return nil
}

// scanThrottle scans a single row into a Record.
func scanThrottle(row pgx.Row) (*throttle.Record, error) {
	var (
		rec    throttle.Record
		id     string
		status string
	)
	err := row.Scan(
		&id,
		&rec.Attempts,
		&status,
		&rec.LastAttempt,
		&rec.StatusChange,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.UserID, err = ulid.Parse(id)
	if err != nil {
		return nil, oops.Code("THROTTLE_SCAN_FAILED").
			With("operation", "parse user id").
			With("user_id", id).
			Wrap(err)
	}
	rec.Status = throttle.Status(status)
	return &rec, nil
}

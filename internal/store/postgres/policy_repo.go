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

	"github.com/sirmadman/gatekeeper/internal/policy"
)

// PolicyRepository implements policy.Store using PostgreSQL.
type PolicyRepository struct {
	db DB
}

// NewPolicyRepository creates a new PolicyRepository.
func NewPolicyRepository(db DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// Create stores a new policy.
func (r *PolicyRepository) Create(ctx context.Context, p *policy.Policy) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO policies (id, name, expression, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID.String(), p.Name, p.Expression, p.Description, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("POLICY_NAME_TAKEN").
				With("name", p.Name).
				Errorf("policy %q already exists", p.Name)
		}
		return oops.Code("POLICY_CREATE_FAILED").
			With("operation", "insert policy").
			With("name", p.Name).
			Wrap(err)
	}
	return nil
}

// GetByName retrieves a policy by name.
func (r *PolicyRepository) GetByName(ctx context.Context, name string) (*policy.Policy, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, expression, description, created_at, updated_at
		FROM policies
		WHERE name = $1
	`, name)

	p, err := scanPolicy(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("POLICY_NOT_FOUND").
			With("name", name).
			Wrap(policy.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("POLICY_GET_FAILED").
			With("operation", "get policy by name").
			With("name", name).
			Wrap(err)
	}
	return p, nil
}

// Update persists changes to an existing policy.
func (r *PolicyRepository) Update(ctx context.Context, p *policy.Policy) error {
	result, err := r.db.Exec(ctx, `
		UPDATE policies SET
			name = $2,
			expression = $3,
			description = $4,
			updated_at = $5
		WHERE id = $1
	`, p.ID.String(), p.Name, p.Expression, p.Description, p.UpdatedAt)
	if err != nil {
		return oops.Code("POLICY_UPDATE_FAILED").
			With("operation", "update policy").
			With("id", p.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("POLICY_NOT_FOUND").
			With("id", p.ID.String()).
			Wrap(policy.ErrNotFound)
	}
	return nil
}

// Delete removes a policy by name.
func (r *PolicyRepository) Delete(ctx context.Context, name string) error {
	result, err := r.db.Exec(ctx, `
		DELETE FROM policies WHERE name = $1
	`, name)
	if err != nil {
		return oops.Code("POLICY_DELETE_FAILED").
			With("operation", "delete policy").
			With("name", name).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("POLICY_NOT_FOUND").
			With("name", name).
			Wrap(policy.ErrNotFound)
	}
	return nil
}

// List returns all policies ordered by name.
func (r *PolicyRepository) List(ctx context.Context) ([]*policy.Policy, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, expression, description, created_at, updated_at
		FROM policies
		ORDER BY name
	`)
	if err != nil {
		return nil, oops.Code("POLICY_LIST_FAILED").
			With("operation", "list policies").
			Wrap(err)
	}
	defer rows.Close()

	var policies []*policy.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, oops.Code("POLICY_SCAN_FAILED").
				With("operation", "scan policy").
				Wrap(err)
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("POLICY_LIST_FAILED").
			With("operation", "list policies").
			Wrap(err)
	}
	return policies, nil
}

// scanPolicy scans a single row into a Policy.
func scanPolicy(row pgx.Row) (*policy.Policy, error) {
	var (
		p  policy.Policy
		id string
	)
	err := row.Scan(&id, &p.Name, &p.Expression, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	p.ID, err = ulid.Parse(id)
	if err != nil {
		return nil, oops.Code("POLICY_SCAN_FAILED").
			With("operation", "parse policy id").
			With("id", id).
			Wrap(err)
	}
	return &p, nil
}

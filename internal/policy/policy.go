// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

// Package policy evaluates named boolean expressions against runtime
// context objects, for attribute-based decisions beyond the RBAC graph.
package policy

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrNotFound is returned when a named policy does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidExpression is returned when a policy cannot be evaluated:
// empty or unparseable expression, reference to an undefined context name,
// or a non-boolean result. Distinct from a normal false so callers can
// tell "denied" from "policy broken".
var ErrInvalidExpression = errors.New("invalid policy expression")

// Policy is a persisted named expression.
type Policy struct {
	ID          ulid.ULID
	Name        string
	Expression  string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store manages policy persistence.
type Store interface {
	// Create stores a new policy.
	Create(ctx context.Context, p *Policy) error

	// GetByName retrieves a policy by name.
	GetByName(ctx context.Context, name string) (*Policy, error)

	// Update persists changes to an existing policy.
	Update(ctx context.Context, p *Policy) error

	// Delete removes a policy by name.
	Delete(ctx context.Context, name string) error

	// List returns all policies.
	List(ctx context.Context) ([]*Policy, error)
}

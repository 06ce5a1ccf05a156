// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package identity

import (
	"context"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Status represents the account status of a user.
type Status string

// Account status values.
const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
)

// usernameRegex matches usernames that:
// - Start with a letter (a-z, A-Z)
// - Contain only letters, numbers, and underscores
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// User represents a user account.
type User struct {
	ID               ulid.ULID
	Username         string
	PasswordHash     string
	Email            *string
	FirstName        *string
	LastName         *string
	Status           Status
	LastLogin        *time.Time
	ResetCode        *string
	ResetCodeExpires *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewUser creates a validated User with an active status and a fresh ID.
// The password hash must already be computed by a PasswordHasher.
func NewUser(username, passwordHash string) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_HASH").Errorf("password hash cannot be empty")
	}

	now := time.Now()
	return &User{
		ID:           ulid.Make(),
		Username:     username,
		PasswordHash: passwordHash,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsActive returns true if the account may authenticate.
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// Activate marks the account active.
func (u *User) Activate() {
	u.Status = StatusActive
	u.UpdatedAt = time.Now()
}

// Deactivate marks the account inactive. Inactive accounts are rejected
// before any restriction is evaluated.
func (u *User) Deactivate() {
	u.Status = StatusInactive
	u.UpdatedAt = time.Now()
}

// RecordLogin stamps the last-login time.
func (u *User) RecordLogin(at time.Time) {
	t := at
	u.LastLogin = &t
	u.UpdatedAt = time.Now()
}

// ValidateUsername validates a username against rules.
// Username requirements:
// - Length: MinUsernameLength to MaxUsernameLength characters
// - Must start with a letter
// - Can contain only letters (a-z, A-Z), numbers (0-9), and underscores (_)
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code("USER_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if len(username) < MinUsernameLength {
		return oops.Code("USER_INVALID_USERNAME").
			With("min", MinUsernameLength).
			Errorf("username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("USER_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code("USER_INVALID_USERNAME").
			Errorf("username must start with a letter and contain only letters, numbers, and underscores")
	}
	return nil
}

// Repository manages user persistence.
type Repository interface {
	// Create stores a new user.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByUsername retrieves a user by username (case-insensitive).
	GetByUsername(ctx context.Context, username string) (*User, error)

	// Update persists changes to an existing user.
	Update(ctx context.Context, user *User) error

	// Delete removes a user by ID.
	Delete(ctx context.Context, id ulid.ULID) error
}

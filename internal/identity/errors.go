// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package identity

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrUsernameTaken is returned when creating a user whose username is
// already registered. Usernames compare case-insensitively.
var ErrUsernameTaken = errors.New("username already taken")

// ErrInactive is returned when an inactive account attempts an operation
// that requires an active one.
var ErrInactive = errors.New("account inactive")

// ErrResetCodeMissing is returned when a reset code check runs against a
// user with no pending reset code.
var ErrResetCodeMissing = errors.New("no reset code defined")

// ErrResetCodeExpired is returned when a reset code has timed out. The code
// is cleared from the user record as a side effect.
var ErrResetCodeExpired = errors.New("reset code expired")

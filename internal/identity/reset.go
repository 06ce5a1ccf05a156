// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package identity

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/samber/oops"
)

// Reset code configuration.
const (
	ResetCodeLength = 80        // hex characters in the generated code
	ResetCodeExpiry = time.Hour // 1 hour expiry
)

// GenerateResetCode creates a password reset code, stores it on the user
// record, and returns the plaintext value. The caller is responsible for
// persisting the updated user.
func (u *User) GenerateResetCode() (string, error) {
	buf := make([]byte, (ResetCodeLength+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("RESET_CODE_GENERATE_FAILED").Wrap(err)
	}

	code := hex.EncodeToString(buf)[:ResetCodeLength]
	expires := time.Now().Add(ResetCodeExpiry)

	u.ResetCode = &code
	u.ResetCodeExpires = &expires
	u.UpdatedAt = time.Now()

	return code, nil
}

// CheckResetCode compares the presented code against the stored one using a
// constant-time comparison. A matching code is cleared so it cannot be used
// twice. An expired code is cleared and reported as ErrResetCodeExpired; the
// caller must persist the cleared user either way.
func (u *User) CheckResetCode(code string) (bool, error) {
	if u.ResetCode == nil {
		return false, oops.Code("RESET_CODE_MISSING").
			With("username", u.Username).
			Wrap(ErrResetCodeMissing)
	}

	if u.ResetCodeExpires != nil && !time.Now().Before(*u.ResetCodeExpires) {
		u.ClearResetCode()
		return false, oops.Code("RESET_CODE_EXPIRED").
			With("username", u.Username).
			Wrap(ErrResetCodeExpired)
	}

	match := subtle.ConstantTimeCompare([]byte(*u.ResetCode), []byte(code)) == 1
	if match {
		u.ClearResetCode()
	}
	return match, nil
}

// ClearResetCode removes any pending reset code state.
func (u *User) ClearResetCode() {
	u.ResetCode = nil
	u.ResetCodeExpires = nil
	u.UpdatedAt = time.Now()
}

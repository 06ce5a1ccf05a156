// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

// Package gate composes the authentication path: account status, pluggable
// restrictions (throttle, IP, custom), password verification, and the
// post-success bookkeeping (throttle reset, last-login update, optional
// trust-token issuance).
package gate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/sirmadman/gatekeeper/internal/identity"
	"github.com/sirmadman/gatekeeper/internal/rbac"
	"github.com/sirmadman/gatekeeper/internal/throttle"
	"github.com/sirmadman/gatekeeper/internal/trust"
)

// ErrInvalidCredentials is returned for a wrong password or an unknown
// username. The wrapped chain distinguishes the two for auditing; callers
// at the protocol boundary must not.
var ErrInvalidCredentials = errors.New("invalid username or password")

// dummyPasswordHash is verified when a user doesn't exist so the call's
// duration does not reveal whether the username was known. It can never
// match a real password.
//
//nolint:gosec // G101: intentionally fake hash for timing equalization, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Credentials carries one login attempt.
type Credentials struct {
	Username string
	Password string
	RemoteIP string
}

// Result is a successful authentication.
type Result struct {
	User *identity.User

	// TrustToken is the client-facing remember-me value, set only when
	// issuance was requested and succeeded.
	TrustToken string
}

// Gate is the authentication orchestrator. Restrictions and collaborators
// are explicit configuration fixed at construction; a Gate holds no
// mutable global state.
type Gate struct {
	users        identity.Repository
	hasher       identity.PasswordHasher
	guard        *throttle.Guard
	trust        *trust.Store
	rbac         rbac.Repository
	questions    identity.QuestionRepository
	restrictions []Restriction
	logger       *slog.Logger
}

// GateOption configures a Gate.
//
//nolint:revive // Name keeps the option type greppable next to Gate.
type GateOption func(*Gate)

// WithThrottle enables throttle gating with the given guard.
func WithThrottle(guard *throttle.Guard) GateOption {
	return func(g *Gate) { g.guard = guard }
}

// WithTrust enables remember-me token issuance.
func WithTrust(store *trust.Store) GateOption {
	return func(g *Gate) { g.trust = store }
}

// WithRestrictions appends restrictions evaluated after the throttle.
func WithRestrictions(rs ...Restriction) GateOption {
	return func(g *Gate) { g.restrictions = append(g.restrictions, rs...) }
}

// WithRBAC wires the permission graph store used by RegisterUser grants.
func WithRBAC(repo rbac.Repository) GateOption {
	return func(g *Gate) { g.rbac = repo }
}

// WithQuestions wires the security question store.
func WithQuestions(repo identity.QuestionRepository) GateOption {
	return func(g *Gate) { g.questions = repo }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) { g.logger = logger }
}

// New creates a Gate.
func New(users identity.Repository, hasher identity.PasswordHasher, opts ...GateOption) *Gate {
	g := &Gate{
		users:  users,
		hasher: hasher,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authenticate processes one login attempt:
// lookup → status check → restrictions → password verification.
//
// Inactive accounts are rejected before any restriction cost is incurred.
// The throttle (when enabled) runs as the first restriction; all
// restrictions must pass and the first failure aborts with a
// RestrictionError. Only a verified success resets throttle state.
// When remember is true and a trust store is configured, a remember-me
// token is issued on success.
func (g *Gate) Authenticate(ctx context.Context, creds Credentials, remember bool) (*Result, error) {
	started := time.Now()

	g.logger.InfoContext(ctx, "authenticating user", "username", creds.Username)

	user, lookupErr := g.users.GetByUsername(ctx, creds.Username)
	if lookupErr != nil {
		if errors.Is(lookupErr, identity.ErrNotFound) {
			// Burn a verification anyway to keep unknown-username timing
			// in line with wrong-password timing.
			_, _ = g.hasher.Verify(creds.Password, dummyPasswordHash) //nolint:errcheck // Outcome is fixed
			recordAttempt(outcomeInvalidCredentials, started)
			g.logger.WarnContext(ctx, "unknown username", "username", creds.Username)
			return nil, oops.Code("AUTH_INVALID_CREDENTIALS").
				Wrap(errors.Join(ErrInvalidCredentials, lookupErr))
		}
		recordAttempt(outcomeError, started)
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "get user by username").
			Wrap(lookupErr)
	}

	if !user.IsActive() {
		recordAttempt(outcomeInactive, started)
		g.logger.WarnContext(ctx, "inactive account rejected", "username", creds.Username)
		return nil, oops.Code("AUTH_USER_INACTIVE").
			With("username", creds.Username).
			Wrap(identity.ErrInactive)
	}

	req := &Request{User: user, RemoteIP: creds.RemoteIP}
	for _, restriction := range g.activeRestrictions() {
		if err := restriction.Evaluate(ctx, req); err != nil {
			recordAttempt(outcomeRestricted, started)
			g.logger.WarnContext(ctx, "restriction denied attempt",
				"username", creds.Username,
				"restriction", restriction.Kind(),
			)
			return nil, &RestrictionError{RestrictionKind: restriction.Kind(), Err: err}
		}
	}

	valid, err := g.hasher.Verify(creds.Password, user.PasswordHash)
	if err != nil {
		recordAttempt(outcomeError, started)
		return nil, oops.Code("AUTH_VERIFY_FAILED").
			With("operation", "verify password").
			Wrap(err)
	}
	if !valid {
		recordAttempt(outcomeInvalidCredentials, started)
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}

	if g.guard != nil {
		if err := g.guard.Allow(ctx, user.ID); err != nil {
			recordAttempt(outcomeError, started)
			return nil, oops.Code("AUTH_THROTTLE_RESET_FAILED").
				With("username", creds.Username).
				Wrap(err)
		}
	}

	// Upgrade the stored hash when the algorithm or parameters changed.
	if g.hasher.NeedsUpgrade(user.PasswordHash) {
		if newHash, hashErr := g.hasher.Hash(creds.Password); hashErr == nil {
			user.PasswordHash = newHash
		}
	}

	user.RecordLogin(time.Now())
	// Best effort: login succeeds even if the bookkeeping write fails.
	if err := g.users.Update(ctx, user); err != nil {
		g.logger.WarnContext(ctx, "last-login update failed",
			"username", creds.Username, "error", err)
	}

	result := &Result{User: user}
	if remember && g.trust != nil {
		token, issueErr := g.trust.Issue(ctx, user.ID)
		switch {
		case issueErr == nil:
			result.TrustToken = token
		case errors.Is(issueErr, trust.ErrTokenExists):
			g.logger.DebugContext(ctx, "trust token already active", "username", creds.Username)
		default:
			recordAttempt(outcomeError, started)
			return nil, oops.Code("AUTH_TRUST_ISSUE_FAILED").
				With("username", creds.Username).
				Wrap(issueErr)
		}
	}

	recordAttempt(outcomeSuccess, started)
	g.logger.InfoContext(ctx, "user authenticated", "username", creds.Username)
	return result, nil
}

// VerifyTrustToken authenticates by remember-me token, rotating it on use.
// Returns the user and the replacement client token.
func (g *Gate) VerifyTrustToken(ctx context.Context, clientToken string) (*identity.User, string, error) {
	if g.trust == nil {
		return nil, "", oops.Code("AUTH_TRUST_DISABLED").Errorf("trust tokens are not configured")
	}
	user, replacement, err := g.trust.Verify(ctx, clientToken)
	if err != nil {
		trustVerifications.WithLabelValues("failure").Inc()
		return nil, "", err
	}
	trustVerifications.WithLabelValues("success").Inc()
	return user, replacement, nil
}

// activeRestrictions returns the restriction chain for one attempt, with
// the throttle first when enabled.
func (g *Gate) activeRestrictions() []Restriction {
	if g.guard == nil {
		return g.restrictions
	}
	chain := make([]Restriction, 0, len(g.restrictions)+1)
	chain = append(chain, &throttleRestriction{guard: g.guard})
	return append(chain, g.restrictions...)
}

// throttleRestriction adapts the Guard to the Restriction interface.
type throttleRestriction struct {
	guard *throttle.Guard
}

func (r *throttleRestriction) Kind() string { return "throttle" }

func (r *throttleRestriction) Evaluate(ctx context.Context, req *Request) error {
	return r.guard.Evaluate(ctx, req.User.ID)
}

// RegisterInput describes a new account.
type RegisterInput struct {
	Username    string
	Password    string
	Email       *string
	FirstName   *string
	LastName    *string
	Groups      []string // group names to join
	Permissions []string // permission names to grant
}

// RegisterUser creates an account and attaches any initial groups and
// permissions by name. Group and permission names must already exist.
func (g *Gate) RegisterUser(ctx context.Context, input RegisterInput) (*identity.User, error) {
	hash, err := g.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	user, err := identity.NewUser(input.Username, hash)
	if err != nil {
		return nil, err
	}
	user.Email = input.Email
	user.FirstName = input.FirstName
	user.LastName = input.LastName

	// Validate before Create so a misconfigured call leaves no user behind.
	if (len(input.Groups) > 0 || len(input.Permissions) > 0) && g.rbac == nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			Errorf("initial grants requested but no permission store configured")
	}

	if err := g.users.Create(ctx, user); err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			With("username", input.Username).
			Wrap(err)
	}

	for _, name := range input.Groups {
		group, err := g.rbac.GetGroupByName(ctx, name)
		if err != nil {
			return nil, oops.Code("AUTH_REGISTER_FAILED").
				With("operation", "resolve group").
				With("group", name).
				Wrap(err)
		}
		if err := g.rbac.GrantUserGroup(ctx, user.ID, group.ID, nil); err != nil {
			return nil, oops.Code("AUTH_REGISTER_FAILED").
				With("operation", "grant group").
				With("group", name).
				Wrap(err)
		}
	}
	for _, name := range input.Permissions {
		perm, err := g.rbac.GetPermissionByName(ctx, name)
		if err != nil {
			return nil, oops.Code("AUTH_REGISTER_FAILED").
				With("operation", "resolve permission").
				With("permission", name).
				Wrap(err)
		}
		if err := g.rbac.GrantUserPermission(ctx, user.ID, perm.ID, nil); err != nil {
			return nil, oops.Code("AUTH_REGISTER_FAILED").
				With("operation", "grant permission").
				With("permission", name).
				Wrap(err)
		}
	}

	return user, nil
}

// ChangePassword rehashes and stores a new password for the user.
func (g *Gate) ChangePassword(ctx context.Context, username, newPassword string) error {
	user, err := g.users.GetByUsername(ctx, username)
	if err != nil {
		return oops.Code("AUTH_PASSWORD_CHANGE_FAILED").
			With("operation", "get user by username").
			With("username", username).
			Wrap(err)
	}

	hash, err := g.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.ClearResetCode()

	if err := g.users.Update(ctx, user); err != nil {
		return oops.Code("AUTH_PASSWORD_CHANGE_FAILED").
			With("operation", "update user").
			With("username", username).
			Wrap(err)
	}
	return nil
}

// AddSecurityQuestion attaches a recovery question to the user. The answer
// is hashed before storage and may not equal the account password.
func (g *Gate) AddSecurityQuestion(ctx context.Context, username, question, answer string) (*identity.SecurityQuestion, error) {
	if g.questions == nil {
		return nil, oops.Code("AUTH_QUESTION_FAILED").
			Errorf("no security question store configured")
	}

	user, err := g.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, oops.Code("AUTH_QUESTION_FAILED").
			With("operation", "get user by username").
			With("username", username).
			Wrap(err)
	}

	q, err := identity.NewSecurityQuestion(g.hasher, user, question, answer)
	if err != nil {
		return nil, err
	}
	if err := g.questions.Create(ctx, q); err != nil {
		return nil, oops.Code("AUTH_QUESTION_FAILED").
			With("operation", "store security question").
			With("username", username).
			Wrap(err)
	}
	return q, nil
}

// SecurityQuestions lists the user's recovery questions.
func (g *Gate) SecurityQuestions(ctx context.Context, username string) ([]*identity.SecurityQuestion, error) {
	if g.questions == nil {
		return nil, oops.Code("AUTH_QUESTION_FAILED").
			Errorf("no security question store configured")
	}

	user, err := g.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, oops.Code("AUTH_QUESTION_FAILED").
			With("operation", "get user by username").
			With("username", username).
			Wrap(err)
	}
	return g.questions.ListByUser(ctx, user.ID)
}

// VerifySecurityAnswer checks an answer against one of the user's stored
// questions. An unknown question ID returns identity.ErrNotFound.
func (g *Gate) VerifySecurityAnswer(ctx context.Context, username string, questionID ulid.ULID, answer string) (bool, error) {
	questions, err := g.SecurityQuestions(ctx, username)
	if err != nil {
		return false, err
	}
	for _, q := range questions {
		if q.ID == questionID {
			return q.VerifyAnswer(g.hasher, answer)
		}
	}
	return false, oops.Code("AUTH_QUESTION_NOT_FOUND").
		With("username", username).
		With("question_id", questionID.String()).
		Wrap(identity.ErrNotFound)
}

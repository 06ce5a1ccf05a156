// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

// Package throttle implements the failed-login rate-limiting state machine.
//
// Each subject (user) owns one Record that moves between StatusAllowed and
// StatusBlocked. Every failed attempt increments the counter; reaching the
// configured threshold blocks the subject until the cooldown window has
// elapsed since the last status change.
package throttle

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// Status represents the throttle state of a subject.
type Status string

// Throttle status values.
const (
	StatusAllowed Status = "allowed"
	StatusBlocked Status = "blocked"
)

// Defaults match the recognized configuration options.
const (
	DefaultThreshold = 5
	DefaultCooldown  = time.Minute
)

// ErrBlocked is returned when an evaluation pushes the subject over the
// attempt threshold.
var ErrBlocked = errors.New("too many failed attempts")

// ErrStillBlocked is returned when a blocked subject retries before the
// cooldown window has elapsed.
var ErrStillBlocked = errors.New("still blocked")

// ErrNoRecord is returned by Repository.Get when the subject has no record.
var ErrNoRecord = errors.New("no throttle record")

// Record tracks consecutive failed attempts for one subject.
// Invariant: StatusBlocked implies Attempts reached the threshold at the
// most recent transition.
type Record struct {
	UserID       ulid.ULID
	Attempts     int
	Status       Status
	LastAttempt  time.Time
	StatusChange time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewRecord creates the record for a subject's first failed attempt.
// The first attempt is never itself a block.
func NewRecord(userID ulid.ULID) *Record {
	now := time.Now()
	return &Record{
		UserID:       userID,
		Attempts:     1,
		Status:       StatusAllowed,
		LastAttempt:  now,
		StatusChange: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Repository manages throttle record persistence.
//
// Mutate is the contract the persistence collaborator must honor: the
// load-modify-store of a subject's record runs serialized per subject ID,
// so two concurrent evaluations cannot both observe the same attempt count.
// Row-level locking and optimistic-concurrency retry are both acceptable.
type Repository interface {
	// Get retrieves the record for a subject.
	Get(ctx context.Context, userID ulid.ULID) (*Record, error)

	// Mutate atomically applies fn to the subject's record, creating it via
	// NewRecord when absent (fn then receives created=true). The record is
	// persisted after fn returns nil; fn errors abort the write and
	// propagate.
	Mutate(ctx context.Context, userID ulid.ULID, fn func(rec *Record, created bool) error) (*Record, error)

	// Delete removes the record for a subject.
	Delete(ctx context.Context, userID ulid.ULID) error
}

// Guard is the per-subject throttle state machine.
type Guard struct {
	records   Repository
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithThreshold overrides the attempt threshold.
func WithThreshold(n int) Option {
	return func(g *Guard) {
		if n > 0 {
			g.threshold = n
		}
	}
}

// WithCooldown overrides the cooldown window.
func WithCooldown(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.cooldown = d
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

// NewGuard creates a Guard with the default threshold and cooldown.
func NewGuard(records Repository, opts ...Option) *Guard {
	g := &Guard{
		records:   records,
		threshold: DefaultThreshold,
		cooldown:  DefaultCooldown,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Threshold returns the configured attempt threshold.
func (g *Guard) Threshold() int { return g.threshold }

// Cooldown returns the configured cooldown window.
func (g *Guard) Cooldown() time.Duration { return g.cooldown }

// Evaluate records an authentication attempt for the subject and decides
// whether it may proceed.
//
// A missing record is created with Attempts=1 and permitted. A blocked
// subject is permitted again once the cooldown has elapsed since the last
// status change (the boundary is inclusive); the transition back to allowed
// resets the attempt counter. An allowed subject whose incremented count
// reaches the threshold transitions to blocked and is denied.
func (g *Guard) Evaluate(ctx context.Context, userID ulid.ULID) error {
	var denial error

	_, err := g.records.Mutate(ctx, userID, func(rec *Record, created bool) error {
		now := g.now()
		denial = nil

		if created {
			// NewRecord already counted this attempt.
			rec.LastAttempt = now
			return nil
		}

		rec.Attempts++
		rec.LastAttempt = now
		rec.UpdatedAt = now

		if rec.Status == StatusBlocked {
			if now.Sub(rec.StatusChange) >= g.cooldown {
				rec.Status = StatusAllowed
				rec.Attempts = 0
				rec.StatusChange = now
				return nil
			}
			denial = ErrStillBlocked
			return nil
		}

		if rec.Attempts >= g.threshold {
			rec.Status = StatusBlocked
			rec.StatusChange = now
			denial = ErrBlocked
		}
		return nil
	})
	if err != nil {
		return err
	}
	return denial
}

// Allow resets the subject to the allowed state with a clean counter. It is
// called only after a verified successful credential check; no other path
// resets throttle state.
func (g *Guard) Allow(ctx context.Context, userID ulid.ULID) error {
	_, err := g.records.Mutate(ctx, userID, func(rec *Record, _ bool) error {
		now := g.now()
		rec.Attempts = 0
		rec.Status = StatusAllowed
		rec.StatusChange = now
		rec.UpdatedAt = now
		return nil
	})
	return err
}

// IsBlocked reports whether the subject is currently in the blocked state.
// A missing record means the subject has never failed a login.
func (g *Guard) IsBlocked(ctx context.Context, userID ulid.ULID) (bool, error) {
	rec, err := g.records.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoRecord) {
			return false, nil
		}
		return false, err
	}
	return rec.Status == StatusBlocked, nil
}

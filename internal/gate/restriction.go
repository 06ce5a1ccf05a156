// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package gate

import (
	"context"
	"errors"
	"fmt"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/sirmadman/gatekeeper/internal/identity"
)

// Request carries the attempt context restrictions evaluate against.
type Request struct {
	User     *identity.User
	RemoteIP string
}

// Restriction is a pluggable pre-authentication check that can veto a
// login attempt. All configured restrictions must pass; the first failure
// aborts the attempt.
type Restriction interface {
	// Kind names the restriction for error reporting ("throttle", "ip", ...).
	Kind() string

	// Evaluate returns nil to permit the attempt or an error to veto it.
	Evaluate(ctx context.Context, req *Request) error
}

// RestrictionError reports which restriction vetoed an attempt.
type RestrictionError struct {
	RestrictionKind string
	Err             error
}

func (e *RestrictionError) Error() string {
	return fmt.Sprintf("restriction %q denied the attempt: %v", e.RestrictionKind, e.Err)
}

func (e *RestrictionError) Unwrap() error {
	return e.Err
}

// ErrIPDenied is returned when the remote address fails the IP restriction.
var ErrIPDenied = errors.New("ip address not permitted")

// IPRestriction filters attempts by remote address. Deny patterns are
// checked before allow patterns; with a non-empty allow list an address
// must match one of its patterns. Patterns are globs with "." as the
// separator, so "10.0.*.*" matches one octet per star.
type IPRestriction struct {
	allow []glob.Glob
	deny  []glob.Glob
}

// NewIPRestriction compiles the allow and deny pattern lists.
func NewIPRestriction(allow, deny []string) (*IPRestriction, error) {
	compile := func(patterns []string) ([]glob.Glob, error) {
		globs := make([]glob.Glob, 0, len(patterns))
		for _, p := range patterns {
			g, err := glob.Compile(p, '.')
			if err != nil {
				return nil, oops.Code("RESTRICTION_BAD_PATTERN").
					With("pattern", p).
					Wrap(err)
			}
			globs = append(globs, g)
		}
		return globs, nil
	}

	allowGlobs, err := compile(allow)
	if err != nil {
		return nil, err
	}
	denyGlobs, err := compile(deny)
	if err != nil {
		return nil, err
	}
	return &IPRestriction{allow: allowGlobs, deny: denyGlobs}, nil
}

// Kind implements Restriction.
func (r *IPRestriction) Kind() string { return "ip" }

// Evaluate implements Restriction.
func (r *IPRestriction) Evaluate(_ context.Context, req *Request) error {
	if req.RemoteIP == "" {
		return oops.Code("RESTRICTION_NO_ADDRESS").Errorf("remote address missing from request")
	}
	for _, g := range r.deny {
		if g.Match(req.RemoteIP) {
			return oops.Code("RESTRICTION_IP_DENIED").
				With("remote_ip", req.RemoteIP).
				Wrap(ErrIPDenied)
		}
	}
	if len(r.allow) == 0 {
		return nil
	}
	for _, g := range r.allow {
		if g.Match(req.RemoteIP) {
			return nil
		}
	}
	return oops.Code("RESTRICTION_IP_DENIED").
		With("remote_ip", req.RemoteIP).
		Wrap(ErrIPDenied)
}

// FuncRestriction adapts a plain function into a Restriction for custom
// checks.
type FuncRestriction struct {
	kind string
	fn   func(ctx context.Context, req *Request) error
}

// NewFuncRestriction creates a named custom restriction.
func NewFuncRestriction(kind string, fn func(ctx context.Context, req *Request) error) *FuncRestriction {
	return &FuncRestriction{kind: kind, fn: fn}
}

// Kind implements Restriction.
func (r *FuncRestriction) Kind() string { return r.kind }

// Evaluate implements Restriction.
func (r *FuncRestriction) Evaluate(ctx context.Context, req *Request) error {
	return r.fn(ctx, req)
}

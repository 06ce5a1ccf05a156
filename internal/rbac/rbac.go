// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

// Package rbac models users' permissions through direct grants and group
// membership, with optional per-grant expiry and explicit parent-link
// hierarchies for both groups and permissions.
//
// Holding a permission never implies its parents: parent links are
// additional grantable nodes that callers expand explicitly through the
// ancestor queries on Graph.
package rbac

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDanglingReference is returned when a grant row points at a group or
// permission that no longer exists. Surfaced, never silently dropped, so
// data-integrity bugs stay visible.
var ErrDanglingReference = errors.New("dangling grant reference")

// Permission is a grantable node.
type Permission struct {
	ID          ulid.ULID
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Group is a named collection of permissions that users join.
type Group struct {
	ID          ulid.ULID
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PermissionGrant links a holder (user or group) to a permission. A grant
// with a past Expires is inactive and excluded from resolution; nil means
// never-expiring.
type PermissionGrant struct {
	PermissionID ulid.ULID
	Expires      *time.Time
	CreatedAt    time.Time
}

// Active reports whether the grant is usable at the given time.
func (g PermissionGrant) Active(at time.Time) bool {
	return g.Expires == nil || at.Before(*g.Expires)
}

// GroupGrant links a user to a group, optionally time-bound. An expired
// membership excludes that group's permissions even though the grant rows
// still exist.
type GroupGrant struct {
	GroupID   ulid.ULID
	Expires   *time.Time
	CreatedAt time.Time
}

// Active reports whether the membership is usable at the given time.
func (g GroupGrant) Active(at time.Time) bool {
	return g.Expires == nil || at.Before(*g.Expires)
}

// Repository is the persistence collaborator for the permission graph.
// Grant rows are pure relations: their lifecycle is tied to the explicit
// grant/revoke calls, never to cascading deletes.
type Repository interface {
	// GetPermission retrieves a permission by ID.
	GetPermission(ctx context.Context, id ulid.ULID) (*Permission, error)

	// GetPermissionByName retrieves a permission by name.
	GetPermissionByName(ctx context.Context, name string) (*Permission, error)

	// CreatePermission stores a new permission.
	CreatePermission(ctx context.Context, perm *Permission) error

	// GetGroup retrieves a group by ID.
	GetGroup(ctx context.Context, id ulid.ULID) (*Group, error)

	// GetGroupByName retrieves a group by name.
	GetGroupByName(ctx context.Context, name string) (*Group, error)

	// CreateGroup stores a new group.
	CreateGroup(ctx context.Context, group *Group) error

	// UserPermissions returns the user's direct permission grants,
	// including inactive ones.
	UserPermissions(ctx context.Context, userID ulid.ULID) ([]PermissionGrant, error)

	// UserGroups returns the user's group memberships, including inactive
	// ones.
	UserGroups(ctx context.Context, userID ulid.ULID) ([]GroupGrant, error)

	// GroupPermissions returns the group's direct permission grants.
	GroupPermissions(ctx context.Context, groupID ulid.ULID) ([]PermissionGrant, error)

	// GrantUserPermission adds a user→permission grant.
	GrantUserPermission(ctx context.Context, userID, permissionID ulid.ULID, expires *time.Time) error

	// RevokeUserPermission removes a user→permission grant.
	RevokeUserPermission(ctx context.Context, userID, permissionID ulid.ULID) error

	// GrantUserGroup adds a user→group membership.
	GrantUserGroup(ctx context.Context, userID, groupID ulid.ULID, expires *time.Time) error

	// RevokeUserGroup removes a user→group membership.
	RevokeUserGroup(ctx context.Context, userID, groupID ulid.ULID) error

	// GrantGroupPermission adds a group→permission grant.
	GrantGroupPermission(ctx context.Context, groupID, permissionID ulid.ULID, expires *time.Time) error

	// RevokeGroupPermission removes a group→permission grant.
	RevokeGroupPermission(ctx context.Context, groupID, permissionID ulid.ULID) error

	// PermissionParents returns the direct parents of a permission.
	PermissionParents(ctx context.Context, permissionID ulid.ULID) ([]ulid.ULID, error)

	// GroupParents returns the direct parents of a group.
	GroupParents(ctx context.Context, groupID ulid.ULID) ([]ulid.ULID, error)

	// AddPermissionParent links a permission to a parent permission.
	AddPermissionParent(ctx context.Context, permissionID, parentID ulid.ULID) error

	// AddGroupParent links a group to a parent group.
	AddGroupParent(ctx context.Context, groupID, parentID ulid.ULID) error
}

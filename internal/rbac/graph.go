// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package rbac

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Graph resolves effective permissions over the user/group/permission
// relations.
type Graph struct {
	repo Repository
	now  func() time.Time
}

// GraphOption configures a Graph.
type GraphOption func(*Graph)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) GraphOption {
	return func(g *Graph) {
		g.now = now
	}
}

// NewGraph creates a Graph over the given repository.
func NewGraph(repo Repository, opts ...GraphOption) *Graph {
	g := &Graph{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ResolveEffectivePermissions returns the user's effective permission set:
// direct active grants plus the direct active grants of each group the user
// actively belongs to. Group-parent and permission-parent chains are NOT
// walked; callers wanting hierarchy expansion use the ancestor queries.
//
// A grant pointing at a deleted permission or group surfaces as
// ErrDanglingReference.
func (g *Graph) ResolveEffectivePermissions(ctx context.Context, userID ulid.ULID) ([]*Permission, error) {
	now := g.now()
	seen := make(map[ulid.ULID]struct{})
	var result []*Permission

	collect := func(grants []PermissionGrant) error {
		for _, grant := range grants {
			if !grant.Active(now) {
				continue
			}
			if _, ok := seen[grant.PermissionID]; ok {
				continue
			}
			perm, err := g.repo.GetPermission(ctx, grant.PermissionID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return oops.Code("RBAC_DANGLING_GRANT").
						With("permission_id", grant.PermissionID.String()).
						With("user_id", userID.String()).
						Wrap(ErrDanglingReference)
				}
				return err
			}
			seen[perm.ID] = struct{}{}
			result = append(result, perm)
		}
		return nil
	}

	direct, err := g.repo.UserPermissions(ctx, userID)
	if err != nil {
		return nil, oops.Code("RBAC_RESOLVE_FAILED").
			With("operation", "list user permissions").
			Wrap(err)
	}
	if err := collect(direct); err != nil {
		return nil, err
	}

	memberships, err := g.repo.UserGroups(ctx, userID)
	if err != nil {
		return nil, oops.Code("RBAC_RESOLVE_FAILED").
			With("operation", "list user groups").
			Wrap(err)
	}
	for _, membership := range memberships {
		if !membership.Active(now) {
			continue
		}
		if _, err := g.repo.GetGroup(ctx, membership.GroupID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, oops.Code("RBAC_DANGLING_MEMBERSHIP").
					With("group_id", membership.GroupID.String()).
					With("user_id", userID.String()).
					Wrap(ErrDanglingReference)
			}
			return nil, err
		}
		grants, err := g.repo.GroupPermissions(ctx, membership.GroupID)
		if err != nil {
			return nil, oops.Code("RBAC_RESOLVE_FAILED").
				With("operation", "list group permissions").
				With("group_id", membership.GroupID.String()).
				Wrap(err)
		}
		if err := collect(grants); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// HasPermission reports whether the named permission is in the user's
// effective set.
func (g *Graph) HasPermission(ctx context.Context, userID ulid.ULID, name string) (bool, error) {
	perms, err := g.ResolveEffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// InGroup reports whether the user actively belongs to the named group.
func (g *Graph) InGroup(ctx context.Context, userID ulid.ULID, name string) (bool, error) {
	group, err := g.repo.GetGroupByName(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	memberships, err := g.repo.UserGroups(ctx, userID)
	if err != nil {
		return false, err
	}
	now := g.now()
	for _, m := range memberships {
		if m.GroupID == group.ID && m.Active(now) {
			return true, nil
		}
	}
	return false, nil
}

// ResolvePermissionAncestors walks the permission parent-link chain
// breadth-first and returns every ancestor, nearest first. Cycles in the
// parent data terminate the walk instead of looping.
func (g *Graph) ResolvePermissionAncestors(ctx context.Context, permissionID ulid.ULID) ([]*Permission, error) {
	ids, err := g.walkParents(ctx, permissionID, g.repo.PermissionParents)
	if err != nil {
		return nil, err
	}
	result := make([]*Permission, 0, len(ids))
	for _, id := range ids {
		perm, err := g.repo.GetPermission(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, oops.Code("RBAC_DANGLING_PARENT").
					With("permission_id", id.String()).
					Wrap(ErrDanglingReference)
			}
			return nil, err
		}
		result = append(result, perm)
	}
	return result, nil
}

// ResolveGroupAncestors walks the group parent-link chain breadth-first and
// returns every ancestor, nearest first.
func (g *Graph) ResolveGroupAncestors(ctx context.Context, groupID ulid.ULID) ([]*Group, error) {
	ids, err := g.walkParents(ctx, groupID, g.repo.GroupParents)
	if err != nil {
		return nil, err
	}
	result := make([]*Group, 0, len(ids))
	for _, id := range ids {
		group, err := g.repo.GetGroup(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, oops.Code("RBAC_DANGLING_PARENT").
					With("group_id", id.String()).
					Wrap(ErrDanglingReference)
			}
			return nil, err
		}
		result = append(result, group)
	}
	return result, nil
}

// walkParents is a BFS over parent links with a visited set guarding
// against cyclic data.
func (g *Graph) walkParents(
	ctx context.Context,
	start ulid.ULID,
	parents func(context.Context, ulid.ULID) ([]ulid.ULID, error),
) ([]ulid.ULID, error) {
	visited := map[ulid.ULID]struct{}{start: {}}
	queue := []ulid.ULID{start}
	var order []ulid.ULID

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		next, err := parents(ctx, current)
		if err != nil {
			return nil, oops.Code("RBAC_ANCESTOR_WALK_FAILED").
				With("node_id", current.String()).
				Wrap(err)
		}
		for _, id := range next {
			if _, ok := visited[id]; ok {
				continue
			}
			visited[id] = struct{}{}
			order = append(order, id)
			queue = append(queue, id)
		}
	}
	return order, nil
}

// GrantPermission attaches a permission directly to a user, optionally
// time-bound.
func (g *Graph) GrantPermission(ctx context.Context, userID, permissionID ulid.ULID, expires *time.Time) error {
	return g.repo.GrantUserPermission(ctx, userID, permissionID, expires)
}

// RevokePermission removes a direct user permission grant.
func (g *Graph) RevokePermission(ctx context.Context, userID, permissionID ulid.ULID) error {
	return g.repo.RevokeUserPermission(ctx, userID, permissionID)
}

// GrantGroup adds a user to a group, optionally time-bound.
func (g *Graph) GrantGroup(ctx context.Context, userID, groupID ulid.ULID, expires *time.Time) error {
	return g.repo.GrantUserGroup(ctx, userID, groupID, expires)
}

// RevokeGroup removes a user from a group.
func (g *Graph) RevokeGroup(ctx context.Context, userID, groupID ulid.ULID) error {
	return g.repo.RevokeUserGroup(ctx, userID, groupID)
}

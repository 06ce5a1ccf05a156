// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/sirmadman/gatekeeper/internal/rbac"
)

// RBACRepository implements rbac.Repository using PostgreSQL. Grant tables
// carry no foreign keys on purpose: deleting an entity leaves its grant rows
// behind, and resolution surfaces them as dangling references.
type RBACRepository struct {
	db DB
}

// NewRBACRepository creates a new RBACRepository.
func NewRBACRepository(db DB) *RBACRepository {
	return &RBACRepository{db: db}
}

// GetPermission retrieves a permission by ID.
func (r *RBACRepository) GetPermission(ctx context.Context, id ulid.ULID) (*rbac.Permission, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM permissions
		WHERE id = $1
	`, id.String())
	return scanPermission(row, "id", id.String())
}

// GetPermissionByName retrieves a permission by name.
func (r *RBACRepository) GetPermissionByName(ctx context.Context, name string) (*rbac.Permission, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM permissions
		WHERE name = $1
	`, name)
	return scanPermission(row, "name", name)
}

// CreatePermission stores a new permission.
func (r *RBACRepository) CreatePermission(ctx context.Context, perm *rbac.Permission) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO permissions (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, perm.ID.String(), perm.Name, perm.Description, perm.CreatedAt, perm.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("PERMISSION_NAME_TAKEN").
				With("name", perm.Name).
				Errorf("permission %q already exists", perm.Name)
		}
		return oops.Code("PERMISSION_CREATE_FAILED").
			With("operation", "insert permission").
			With("name", perm.Name).
			Wrap(err)
	}
	return nil
}

// GetGroup retrieves a group by ID.
func (r *RBACRepository) GetGroup(ctx context.Context, id ulid.ULID) (*rbac.Group, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM groups
		WHERE id = $1
	`, id.String())
	return scanGroup(row, "id", id.String())
}

// GetGroupByName retrieves a group by name.
func (r *RBACRepository) GetGroupByName(ctx context.Context, name string) (*rbac.Group, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM groups
		WHERE name = $1
	`, name)
	return scanGroup(row, "name", name)
}

// CreateGroup stores a new group.
func (r *RBACRepository) CreateGroup(ctx context.Context, group *rbac.Group) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO groups (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, group.ID.String(), group.Name, group.Description, group.CreatedAt, group.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("GROUP_NAME_TAKEN").
				With("name", group.Name).
				Errorf("group %q already exists", group.Name)
		}
		return oops.Code("GROUP_CREATE_FAILED").
			With("operation", "insert group").
			With("name", group.Name).
			Wrap(err)
	}
	return nil
}

// UserPermissions returns the user's direct permission grants, including
// inactive ones.
func (r *RBACRepository) UserPermissions(ctx context.Context, userID ulid.ULID) ([]rbac.PermissionGrant, error) {
	rows, err := r.db.Query(ctx, `
		SELECT permission_id, expires, created_at
		FROM user_permissions
		WHERE user_id = $1
	`, userID.String())
	if err != nil {
		return nil, oops.Code("RBAC_QUERY_FAILED").
			With("operation", "list user permissions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return scanPermissionGrants(rows)
}

// UserGroups returns the user's group memberships, including inactive ones.
func (r *RBACRepository) UserGroups(ctx context.Context, userID ulid.ULID) ([]rbac.GroupGrant, error) {
	rows, err := r.db.Query(ctx, `
		SELECT group_id, expires, created_at
		FROM user_groups
		WHERE user_id = $1
	`, userID.String())
	if err != nil {
		return nil, oops.Code("RBAC_QUERY_FAILED").
			With("operation", "list user groups").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var grants []rbac.GroupGrant
	for rows.Next() {
		var (
			grant rbac.GroupGrant
			id    string
		)
		if err := rows.Scan(&id, &grant.Expires, &grant.CreatedAt); err != nil {
			return nil, oops.Code("RBAC_SCAN_FAILED").
				With("operation", "scan group grant").
				Wrap(err)
		}
		grant.GroupID, err = ulid.Parse(id)
		if err != nil {
			return nil, oops.Code("RBAC_SCAN_FAILED").
				With("operation", "parse group id").
				With("group_id", id).
				Wrap(err)
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("RBAC_QUERY_FAILED").
			With("operation", "list user groups").
			Wrap(err)
	}
	return grants, nil
}

// GroupPermissions returns the group's direct permission grants.
func (r *RBACRepository) GroupPermissions(ctx context.Context, groupID ulid.ULID) ([]rbac.PermissionGrant, error) {
	rows, err := r.db.Query(ctx, `
		SELECT permission_id, expires, created_at
		FROM group_permissions
		WHERE group_id = $1
	`, groupID.String())
	if err != nil {
		return nil, oops.Code("RBAC_QUERY_FAILED").
			With("operation", "list group permissions").
			With("group_id", groupID.String()).
			Wrap(err)
	}
	return scanPermissionGrants(rows)
}

// GrantUserPermission adds a user→permission grant. Re-granting refreshes
// the expiry instead of failing.
func (r *RBACRepository) GrantUserPermission(ctx context.Context, userID, permissionID ulid.ULID, expires *time.Time) error {
	return r.grant(ctx, `
		INSERT INTO user_permissions (user_id, permission_id, expires, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, permission_id) DO UPDATE SET expires = $3
	`, "grant user permission", userID.String(), permissionID.String(), expires)
}

// RevokeUserPermission removes a user→permission grant.
func (r *RBACRepository) RevokeUserPermission(ctx context.Context, userID, permissionID ulid.ULID) error {
	return r.revoke(ctx, `
		DELETE FROM user_permissions WHERE user_id = $1 AND permission_id = $2
	`, "revoke user permission", userID.String(), permissionID.String())
}

// GrantUserGroup adds a user→group membership.
func (r *RBACRepository) GrantUserGroup(ctx context.Context, userID, groupID ulid.ULID, expires *time.Time) error {
	return r.grant(ctx, `
		INSERT INTO user_groups (user_id, group_id, expires, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, group_id) DO UPDATE SET expires = $3
	`, "grant user group", userID.String(), groupID.String(), expires)
}

// RevokeUserGroup removes a user→group membership.
func (r *RBACRepository) RevokeUserGroup(ctx context.Context, userID, groupID ulid.ULID) error {
	return r.revoke(ctx, `
		DELETE FROM user_groups WHERE user_id = $1 AND group_id = $2
	`, "revoke user group", userID.String(), groupID.String())
}

// GrantGroupPermission adds a group→permission grant.
func (r *RBACRepository) GrantGroupPermission(ctx context.Context, groupID, permissionID ulid.ULID, expires *time.Time) error {
	return r.grant(ctx, `
		INSERT INTO group_permissions (group_id, permission_id, expires, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (group_id, permission_id) DO UPDATE SET expires = $3
	`, "grant group permission", groupID.String(), permissionID.String(), expires)
}

// RevokeGroupPermission removes a group→permission grant.
func (r *RBACRepository) RevokeGroupPermission(ctx context.Context, groupID, permissionID ulid.ULID) error {
	return r.revoke(ctx, `
		DELETE FROM group_permissions WHERE group_id = $1 AND permission_id = $2
	`, "revoke group permission", groupID.String(), permissionID.String())
}

// PermissionParents returns the direct parents of a permission.
func (r *RBACRepository) PermissionParents(ctx context.Context, permissionID ulid.ULID) ([]ulid.ULID, error) {
	return r.parents(ctx, `
		SELECT parent_id FROM permission_parents WHERE permission_id = $1
	`, "list permission parents", permissionID.String())
}

// GroupParents returns the direct parents of a group.
func (r *RBACRepository) GroupParents(ctx context.Context, groupID ulid.ULID) ([]ulid.ULID, error) {
	return r.parents(ctx, `
		SELECT parent_id FROM group_parents WHERE group_id = $1
	`, "list group parents", groupID.String())
}

// AddPermissionParent links a permission to a parent permission.
func (r *RBACRepository) AddPermissionParent(ctx context.Context, permissionID, parentID ulid.ULID) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO permission_parents (permission_id, parent_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, permissionID.String(), parentID.String())
	if err != nil {
		return oops.Code("RBAC_PARENT_FAILED").
			With("operation", "add permission parent").
			With("permission_id", permissionID.String()).
			With("parent_id", parentID.String()).
			Wrap(err)
	}
	return nil
}

// AddGroupParent links a group to a parent group.
func (r *RBACRepository) AddGroupParent(ctx context.Context, groupID, parentID ulid.ULID) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO group_parents (group_id, parent_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, groupID.String(), parentID.String())
	if err != nil {
		return oops.Code("RBAC_PARENT_FAILED").
			With("operation", "add group parent").
			With("group_id", groupID.String()).
			With("parent_id", parentID.String()).
			Wrap(err)
	}
	return nil
}

func (r *RBACRepository) grant(ctx context.Context, query, op, holderID, targetID string, expires *time.Time) error {
	_, err := r.db.Exec(ctx, query, holderID, targetID, expires, time.Now())
	if err != nil {
		return oops.Code("RBAC_GRANT_FAILED").
			With("operation", op).
			With("holder_id", holderID).
			With("target_id", targetID).
			Wrap(err)
	}
	return nil
}

func (r *RBACRepository) revoke(ctx context.Context, query, op, holderID, targetID string) error {
	result, err := r.db.Exec(ctx, query, holderID, targetID)
	if err != nil {
		return oops.Code("RBAC_REVOKE_FAILED").
			With("operation", op).
			With("holder_id", holderID).
			With("target_id", targetID).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("RBAC_GRANT_NOT_FOUND").
			With("operation", op).
			With("holder_id", holderID).
			With("target_id", targetID).
			Wrap(rbac.ErrNotFound)
	}
	return nil
}

func (r *RBACRepository) parents(ctx context.Context, query, op, id string) ([]ulid.ULID, error) {
	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, oops.Code("RBAC_QUERY_FAILED").
			With("operation", op).
			With("id", id).
			Wrap(err)
	}
	defer rows.Close()

	var parents []ulid.ULID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, oops.Code("RBAC_SCAN_FAILED").
				With("operation", op).
				Wrap(err)
		}
		parent, err := ulid.Parse(raw)
		if err != nil {
			return nil, oops.Code("RBAC_SCAN_FAILED").
				With("operation", "parse parent id").
				With("parent_id", raw).
				Wrap(err)
		}
		parents = append(parents, parent)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("RBAC_QUERY_FAILED").
			With("operation", op).
			Wrap(err)
	}
	return parents, nil
}

func scanPermission(row pgx.Row, key, value string) (*rbac.Permission, error) {
	var (
		perm rbac.Permission
		id   string
	)
	err := row.Scan(&id, &perm.Name, &perm.Description, &perm.CreatedAt, &perm.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PERMISSION_NOT_FOUND").
			With(key, value).
			Wrap(rbac.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("PERMISSION_GET_FAILED").
			With("operation", "get permission").
			With(key, value).
			Wrap(err)
	}
	perm.ID, err = ulid.Parse(id)
	if err != nil {
		return nil, oops.Code("RBAC_SCAN_FAILED").
			With("operation", "parse permission id").
			With("id", id).
			Wrap(err)
	}
	return &perm, nil
}

func scanGroup(row pgx.Row, key, value string) (*rbac.Group, error) {
	var (
		group rbac.Group
		id    string
	)
	err := row.Scan(&id, &group.Name, &group.Description, &group.CreatedAt, &group.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("GROUP_NOT_FOUND").
			With(key, value).
			Wrap(rbac.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("GROUP_GET_FAILED").
			With("operation", "get group").
			With(key, value).
			Wrap(err)
	}
	group.ID, err = ulid.Parse(id)
	if err != nil {
		return nil, oops.Code("RBAC_SCAN_FAILED").
			With("operation", "parse group id").
			With("id", id).
			Wrap(err)
	}
	return &group, nil
}

func scanPermissionGrants(rows pgx.Rows) ([]rbac.PermissionGrant, error) {
	defer rows.Close()

	var grants []rbac.PermissionGrant
	for rows.Next() {
		var (
			grant rbac.PermissionGrant
			id    string
		)
		if err := rows.Scan(&id, &grant.Expires, &grant.CreatedAt); err != nil {
			return nil, oops.Code("RBAC_SCAN_FAILED").
				With("operation", "scan permission grant").
				Wrap(err)
		}
		parsed, err := ulid.Parse(id)
		if err != nil {
			return nil, oops.Code("RBAC_SCAN_FAILED").
				With("operation", "parse permission id").
				With("permission_id", id).
				Wrap(err)
		}
		grant.PermissionID = parsed
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("RBAC_QUERY_FAILED").
			With("operation", "scan permission grants").
			Wrap(err)
	}
	return grants, nil
}

// internal/acl/store.go
//
// Capability lookups for admin forms.
//
// Context
// -------
// Every form names the capability its submitter must hold (default
// "manage_options").  The model lives in the store database:
//
//	role             (id PK, name, enabled)
//	role_capability  (role_id, capability, permitted)
//	user_role        (user_id, role_id)
//
// Callers need answers to two questions:
//  1. Which *role names* does user X have?          → `UserRoles()`
//  2. Does user X hold capability C through a role? → `UserCan()`
//
// The helpers accept a *sql.DB and perform simple parameterised queries.
// `Checker` wraps them for the form security check, reading the acting
// user from the request context.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
// • Max line length 100 columns.
package acl

import (
	"context"
	"database/sql"
	"errors"

	"github.com/yanizio/adept-forms/internal/auth"
)

// UserRoles returns the role *names* bound to userID.  Disabled roles are
// filtered out.
func UserRoles(ctx context.Context, db *sql.DB, userID int64) ([]string, error) {
	const q = `SELECT r.name
                 FROM user_role ur
                 JOIN role r ON r.id = ur.role_id
                WHERE ur.user_id = ? AND r.enabled = TRUE`

	rows, err := db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := make([]string, 0, 4)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

// UserCan reports whether any enabled role of userID grants capability.
func UserCan(ctx context.Context, db *sql.DB, userID int64, capability string) (bool, error) {
	const q = `SELECT 1
                 FROM user_role ur
                 JOIN role r             ON r.id = ur.role_id
                 JOIN role_capability rc ON rc.role_id = r.id
                WHERE ur.user_id = ?
                  AND r.enabled = TRUE
                  AND rc.capability = ?
                  AND rc.permitted = TRUE
                LIMIT 1`

	var dummy int
	err := db.QueryRowContext(ctx, q, userID, capability).Scan(&dummy)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Checker answers capability questions for the user in the request context.
type Checker struct {
	DB *sql.DB
}

// Can reports whether the acting user holds capability.  A request without
// a user is never allowed.
func (c *Checker) Can(ctx context.Context, capability string) (bool, error) {
	uid, ok := auth.UserID(ctx)
	if !ok {
		return false, nil
	}
	return UserCan(ctx, c.DB, uid, capability)
}

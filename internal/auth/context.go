// internal/auth/context.go
//
// Acting-principal helpers.  The session middleware attaches the signed-in
// admin user ID to the request context; the form security check, the ACL
// lookups, and the encrypted-field viewer all read it back from here.
//
// Usage
// -----
//     ctx = auth.WithUser(ctx, 123)
//     id, ok := auth.UserID(ctx)   // 123, true
//
// Notes
// -----
// • Oxford commas, two spaces after periods.

package auth

import "context"

// userKey is unexported to avoid context-key collisions.
type userKey struct{}

// WithUser returns a new context carrying the given userID.
func WithUser(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserID extracts the userID from ctx.  It returns (0, false) if no user is
// set.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userKey{}).(int64)
	return id, ok
}

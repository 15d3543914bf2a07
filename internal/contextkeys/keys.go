package contextkeys

import "context"

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

const (
	// UserID is the context key for the authenticated user's ID.
	UserID contextKey = "userID"
	// UserEmail is the context key for the authenticated user's email.
	UserEmail contextKey = "userEmail"
	// UserRole is the context key for the authenticated user's role.
	UserRole contextKey = "userRole"
)

// UserIDFrom returns the authenticated user's ID, or "" outside an
// authenticated request.
func UserIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(UserID).(string)
	return id
}

// RoleFrom returns the authenticated user's role.
func RoleFrom(ctx context.Context) string {
	role, _ := ctx.Value(UserRole).(string)
	return role
}

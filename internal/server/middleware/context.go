package middleware

import "context"

type contextKey struct{ name string }

var (
	userIDKey      = contextKey{"user_id"}
	sessionIDKey   = contextKey{"session_id"}
	rolesKey       = contextKey{"roles"}
	accessTokenKey = contextKey{"access_token"}
)

// WithIdentity returns a context with user_id and session_id set.
// Handlers and the audit middleware read these via GetUserID and GetSessionID.
func WithIdentity(ctx context.Context, userID, sessionID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, sessionIDKey, sessionID)
	return ctx
}

// WithRoles returns a context carrying the caller's provider roles.
func WithRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, rolesKey, roles)
}

// GetUserID returns the user_id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok
}

// GetSessionID returns the session_id from context and true if set; otherwise "", false.
func GetSessionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionIDKey).(string)
	return v, ok
}

// GetRoles returns the roles from context and true if set; otherwise nil, false.
func GetRoles(ctx context.Context) ([]string, bool) {
	v, ok := ctx.Value(rolesKey).([]string)
	return v, ok
}

// WithAccessToken returns a context carrying the session's live access token,
// for handlers that call the provider on the user's behalf.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey, token)
}

// GetAccessToken returns the access token from context and true if set; otherwise "", false.
func GetAccessToken(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(accessTokenKey).(string)
	return v, ok
}

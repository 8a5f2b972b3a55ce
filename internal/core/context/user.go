// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// Caller is the verified identity behind a request.
// UserID is the key of the caller's eligibility set, usually an email.
type Caller struct {
	UserID       string
	RoleUUID     string
	GroupUUID    string
	FirebaseUUID string
	ManagedUUID  string
	SessionID    string
}

type callerContextKey struct{}

// WithCaller adds Caller to context.
func WithCaller(ctx context.Context, caller *Caller) context.Context {
	return context.WithValue(ctx, callerContextKey{}, caller)
}

// GetCaller returns Caller from context.
func GetCaller(ctx context.Context) *Caller {
	if v, ok := ctx.Value(callerContextKey{}).(*Caller); ok {
		return v
	}
	return nil
}

// GetUserID returns the caller's user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if c := GetCaller(ctx); c != nil {
		return c.UserID
	}
	return ""
}

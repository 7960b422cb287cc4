// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// Actor identifies who triggered a posting. Authentication happens upstream;
// the posting core only records the identity it is handed.
type Actor struct {
	UserID string
	Source string // "api", "cli", "test"
}

type actorContextKey struct{}

// WithActor adds Actor to context.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// GetActor returns Actor from context.
func GetActor(ctx context.Context) *Actor {
	if v, ok := ctx.Value(actorContextKey{}).(*Actor); ok {
		return v
	}
	return nil
}

// GetUserID returns the acting user ID or "system".
func GetUserID(ctx context.Context) string {
	if a := GetActor(ctx); a != nil && a.UserID != "" {
		return a.UserID
	}
	return "system"
}

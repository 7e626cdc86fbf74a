// Package actor identifies who triggered a payroll operation: an operator
// calling the API, or the service itself when it reacts to an event.
//
// This package is used for:
// - Audit logging (who generated, settled or finalized a period)
// - Attributing event-driven recomputation to the system
package actor

import (
	"context"
	"fmt"
)

const systemID = "00000000-0000-0000-0000-000000000000"

// Actor represents the entity performing an action
type Actor struct {
	// ID is the operator's subject from the access token
	ID string `json:"id"`

	// RoleName is the operator's role (optional, for display purposes)
	RoleName string `json:"role_name,omitempty"`
}

// String returns a string representation of the actor for logging
func (a *Actor) String() string {
	if a.IsSystem() {
		return "system"
	}
	if a.RoleName == "" {
		return a.ID
	}
	return fmt.Sprintf("%s (%s)", a.ID, a.RoleName)
}

type contextKey string

const actorContextKey contextKey = "actor"

// FromContext retrieves the Actor from the context.
// Returns nil if no actor is present (e.g., event consumers).
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	a, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return a
}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, a)
}

// SystemActor returns an Actor representing the service itself.
func SystemActor() *Actor {
	return &Actor{ID: systemID}
}

// IsSystem reports whether the actor is the service itself. A missing
// actor counts as the system.
func (a *Actor) IsSystem() bool {
	return a == nil || a.ID == systemID
}

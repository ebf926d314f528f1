package policies

import (
	"context"
	"slices"

	"rigshare/internal/app/apperr"
	domainuser "rigshare/internal/domain/user"
)

// Actor is the authenticated caller of a command.
type Actor struct {
	ID    string
	Roles []domainuser.Role
}

func (a Actor) Has(role domainuser.Role) bool {
	return slices.Contains(a.Roles, role)
}

func (a Actor) IsAdmin() bool { return a.Has(domainuser.RoleAdmin) }

// Guarded is implemented by messages that need an authenticated caller.
// RequiredRole may be empty when any signed-in user is allowed and the
// handler decides ownership.
type Guarded interface {
	Caller() Actor
	RequiredRole() domainuser.Role
}

// RoleAuthorizer rejects guarded messages whose caller is missing or lacks
// the required role. Admins pass every role check.
type RoleAuthorizer struct{}

func (RoleAuthorizer) Authorize(_ context.Context, message any) error {
	g, ok := message.(Guarded)
	if !ok {
		return nil
	}
	actor := g.Caller()
	if actor.ID == "" {
		return apperr.Unauthenticated("authorize")
	}
	role := g.RequiredRole()
	if role == "" || actor.Has(role) || actor.IsAdmin() {
		return nil
	}
	return apperr.Forbidden("authorize", "role "+string(role)+" required")
}

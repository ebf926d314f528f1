package middleware

import (
	"context"
)

// Authorizer decides whether the caller carried by a message may run it.
// policies.RoleAuthorizer compares the actor's roles with the message's
// RequiredRole; ownership checks stay in the handlers.
type Authorizer interface {
	Authorize(ctx context.Context, message any) error
}

func Authorization(a Authorizer) CommandMiddleware {
	if a == nil {
		panic("middleware: authorizer required")
	}
	return gateCommands(a.Authorize)
}

func QueryAuthorization(a Authorizer) QueryMiddleware {
	if a == nil {
		panic("middleware: authorizer required")
	}
	return gateQueries(a.Authorize)
}

package middleware

import (
	"context"
)

// Validator checks the struct tags of a command or query. StructValidator is
// the wired implementation and reports failures as apperr validation errors.
type Validator interface {
	Validate(ctx context.Context, message any) error
}

// Validation runs first in the command chain, ahead of the role check.
func Validation(v Validator) CommandMiddleware {
	if v == nil {
		panic("middleware: validator required")
	}
	return gateCommands(v.Validate)
}

func QueryValidation(v Validator) QueryMiddleware {
	if v == nil {
		panic("middleware: validator required")
	}
	return gateQueries(v.Validate)
}

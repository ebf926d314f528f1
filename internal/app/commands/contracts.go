// Package commands is the write side of the application bus. Every
// booking, listing, checkout and settlement mutation is a Command routed
// by key to exactly one Handler.
package commands

import (
	"context"
	"errors"
	"fmt"
)

// Command is a write intent. Key doubles as the handler registration key
// and the operation name in logs; the middleware chain checks commands for
// optional capabilities (caller actor, required role, idempotency key,
// autocommit).
type Command interface {
	Key() string
}

type Handler[C Command, R any] interface {
	Handle(ctx context.Context, cmd C) (R, error)
}

// HandlerFunc adapts a closure, mostly used for cross-bus forwarding such as
// payment confirmation dispatching to the rental or sale recorder.
type HandlerFunc[C Command, R any] func(ctx context.Context, cmd C) (R, error)

func (f HandlerFunc[C, R]) Handle(ctx context.Context, cmd C) (R, error) {
	return f(ctx, cmd)
}

// Bus dispatches commands; the wired bus is the in-memory registry wrapped
// in middleware.
type Bus interface {
	Dispatch(ctx context.Context, cmd Command) (any, error)
}

var (
	ErrHandlerNotFound = errors.New("commands: handler not found")
	ErrInvalidCommand  = errors.New("commands: invalid command for handler")
	ErrResultType      = errors.New("commands: result type mismatch")
	ErrNilBus          = errors.New("commands: nil bus")
)

// Dispatch sends cmd through bus and asserts the result type. A mismatch
// names the command and the type that came back, which is how a handler
// registered under the wrong key shows up.
func Dispatch[C Command, R any](ctx context.Context, bus Bus, cmd C) (R, error) {
	var zero R
	if bus == nil {
		return zero, ErrNilBus
	}
	res, err := bus.Dispatch(ctx, cmd)
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	value, ok := res.(R)
	if !ok {
		return zero, fmt.Errorf("%w: %s returned %T", ErrResultType, cmd.Key(), res)
	}
	return value, nil
}

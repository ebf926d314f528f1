package middleware

import (
	"context"
	"log/slog"

	"rigshare/internal/app/commands"
	"rigshare/internal/app/outbox"
)

// OutboxFlush hands buffered records to the relay once the command has
// committed. A failed flush leaves the records for the next flush and does
// not fail the command.
func OutboxFlush(box outbox.Outbox, logger *slog.Logger) CommandMiddleware {
	if box == nil {
		panic("middleware: outbox required")
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			res, err := nextFn(ctx, cmd)
			if err != nil {
				return nil, err
			}
			if err := box.Flush(ctx); err != nil && logger != nil {
				logger.Warn("outbox flush failed", "command", cmd.Key(), "error", err)
			}
			return res, nil
		})
	}
}

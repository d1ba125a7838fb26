package middleware

import (
	"context"
	"log/slog"

	"zedflip/internal/app/commands"
	"zedflip/internal/app/outbox"
)

// OutboxFlush hands buffered event records to the outbox once the command
// succeeded. Flush failures are logged only: the state change is already
// committed and the records carry side effects, not the command's result.
func OutboxFlush(box outbox.Outbox, logger *slog.Logger) CommandMiddleware {
	if box == nil {
		panic("middleware: outbox required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			res, err := next.Dispatch(ctx, cmd)
			if err != nil {
				return nil, err
			}
			if err := box.Flush(ctx); err != nil {
				logger.WarnContext(ctx, "outbox flush failed", "command", cmd.Key(), "error", err)
			}
			return res, nil
		})
	}
}

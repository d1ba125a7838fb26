package middleware

import (
	"context"
	"log/slog"
	"time"

	"zedflip/internal/app/commands"
	"zedflip/internal/app/queries"
)

func Logging(logger *slog.Logger) CommandMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			start := time.Now()
			res, err := next.Dispatch(ctx, cmd)
			attrs := []any{"command", cmd.Key(), "duration", time.Since(start)}
			if err != nil {
				logger.DebugContext(ctx, "command failed", append(attrs, "error", err)...)
				return nil, err
			}
			logger.DebugContext(ctx, "command handled", attrs...)
			return res, nil
		})
	}
}

func QueryLogging(logger *slog.Logger) QueryMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next queries.Bus) queries.Bus {
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			start := time.Now()
			res, err := next.Ask(ctx, q)
			if err != nil {
				logger.DebugContext(ctx, "query failed", "query", q.Key(), "duration", time.Since(start), "error", err)
				return nil, err
			}
			return res, nil
		})
	}
}

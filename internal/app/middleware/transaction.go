package middleware

import (
	"context"
	"log/slog"
	"time"

	"zedflip/internal/app/commands"
	"zedflip/internal/app/uow"
)

const (
	maxTxAttempts = 3
	txRetryDelay  = 15 * time.Millisecond
)

// Transaction runs every command inside one unit of work bound to the
// context. Hooks registered with uow.AfterCommit run only after a successful
// commit. When the factory classifies a failure as transient, the whole unit
// is run again, up to maxTxAttempts times.
func Transaction(factory uow.UoWFactory, logger *slog.Logger) CommandMiddleware {
	if factory == nil {
		panic("middleware: uow factory required")
	}
	classifier, _ := factory.(uow.TransientClassifier)
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			for attempt := 1; ; attempt++ {
				res, err := runUnit(ctx, factory, next, cmd, logger)
				if err == nil || classifier == nil || !classifier.IsTransient(err) || attempt == maxTxAttempts {
					return res, err
				}
				if logger != nil {
					logger.WarnContext(ctx, "transaction conflict, retrying", "command", cmd.Key(), "attempt", attempt, "error", err)
				}
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(time.Duration(attempt) * txRetryDelay):
				}
			}
		})
	}
}

func runUnit(ctx context.Context, factory uow.UoWFactory, next commands.Bus, cmd commands.Command, logger *slog.Logger) (any, error) {
	unit, err := factory.Begin(ctx, uow.TxOptions{})
	if err != nil {
		return nil, err
	}
	execCtx, hooks := uow.WithCommitHooks(uow.Bind(ctx, unit))
	// no-op once the unit has committed or rolled back
	defer func() { _ = unit.Rollback(execCtx) }()

	res, err := next.Dispatch(execCtx, cmd)
	if err != nil {
		if rbErr := unit.Rollback(execCtx); rbErr != nil && logger != nil {
			logger.WarnContext(ctx, "rollback failed", "command", cmd.Key(), "error", rbErr)
		}
		return nil, err
	}
	if err := unit.Commit(execCtx); err != nil {
		if logger != nil {
			logger.ErrorContext(ctx, "commit failed", "command", cmd.Key(), "error", err)
		}
		return nil, err
	}
	hooks.Run(ctx)
	return res, nil
}

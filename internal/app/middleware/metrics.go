package middleware

import (
	"context"

	"zedflip/internal/app/commands"
)

// CommandObserver counts dispatched commands by outcome.
type CommandObserver interface {
	ObserveCommand(key string, err error)
}

func Metrics(observer CommandObserver) CommandMiddleware {
	return func(next commands.Bus) commands.Bus {
		if observer == nil {
			return next
		}
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			res, err := next.Dispatch(ctx, cmd)
			observer.ObserveCommand(cmd.Key(), err)
			return res, err
		})
	}
}

package middleware

import (
	"context"

	"zedflip/internal/app/commands"
	"zedflip/internal/app/queries"
)

type (
	CommandMiddleware func(next commands.Bus) commands.Bus
	QueryMiddleware   func(next queries.Bus) queries.Bus
)

// ChainCommands wraps base so that mws[0] sees a command first and the
// transaction, listed last, sits closest to the handler.
func ChainCommands(base commands.Bus, mws ...CommandMiddleware) commands.Bus {
	return chain(base, mws)
}

func ChainQueries(base queries.Bus, mws ...QueryMiddleware) queries.Bus {
	return chain(base, mws)
}

func chain[B any, M ~func(B) B](bus B, layers []M) B {
	for i := len(layers) - 1; i >= 0; i-- {
		if layers[i] != nil {
			bus = layers[i](bus)
		}
	}
	return bus
}

type commandFunc func(ctx context.Context, cmd commands.Command) (any, error)

func (f commandFunc) Dispatch(ctx context.Context, cmd commands.Command) (any, error) {
	return f(ctx, cmd)
}

type queryFunc func(ctx context.Context, q queries.Query) (any, error)

func (f queryFunc) Ask(ctx context.Context, q queries.Query) (any, error) {
	return f(ctx, q)
}

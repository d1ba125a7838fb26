package uow

import (
	"context"
	"sync"
)

type hooksKey struct{}

// CommitHooks collects callbacks that must only run once the surrounding
// unit of work has committed.
type CommitHooks struct {
	mu    sync.Mutex
	hooks []func(context.Context)
}

// WithCommitHooks attaches an empty hook list to ctx.
func WithCommitHooks(ctx context.Context) (context.Context, *CommitHooks) {
	hooks := &CommitHooks{}
	return context.WithValue(ctx, hooksKey{}, hooks), hooks
}

// AfterCommit defers fn until the unit bound to ctx commits. Outside a
// transaction fn runs immediately.
func AfterCommit(ctx context.Context, fn func(context.Context)) {
	if fn == nil {
		return
	}
	hooks, ok := ctx.Value(hooksKey{}).(*CommitHooks)
	if !ok || hooks == nil {
		fn(ctx)
		return
	}
	hooks.mu.Lock()
	hooks.hooks = append(hooks.hooks, fn)
	hooks.mu.Unlock()
}

// Run executes the collected hooks in registration order.
func (h *CommitHooks) Run(ctx context.Context) {
	h.mu.Lock()
	pending := h.hooks
	h.hooks = nil
	h.mu.Unlock()
	for _, fn := range pending {
		fn(ctx)
	}
}

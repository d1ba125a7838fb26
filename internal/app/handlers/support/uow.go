package support

import (
	"context"

	"zedflip/internal/app/uow"
)

// BeginReadOnlyUnit reuses the unit bound to ctx or opens a read-only one.
// The returned cleanup is nil when an existing unit was reused.
func BeginReadOnlyUnit(ctx context.Context, factory uow.UoWFactory) (uow.UnitOfWork, context.Context, func(), error) {
	if unit, ok := uow.FromContext(ctx); ok {
		return unit, ctx, nil, nil
	}
	if factory == nil {
		return nil, ctx, nil, uow.ErrUnitOfWorkMissing
	}
	unit, err := factory.Begin(ctx, uow.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, ctx, nil, err
	}
	execCtx := uow.Bind(ctx, unit)
	cleanup := func() {
		_ = unit.Rollback(execCtx)
	}
	return unit, execCtx, cleanup, nil
}

// WithUnit runs fn inside the unit bound to ctx. When ctx carries none, it
// opens one from factory and commits it after fn succeeds, running any
// AfterCommit callbacks fn registered.
func WithUnit(ctx context.Context, factory uow.UoWFactory, opts uow.TxOptions, fn func(ctx context.Context, unit uow.UnitOfWork) error) error {
	if unit, ok := uow.FromContext(ctx); ok {
		return fn(ctx, unit)
	}
	if factory == nil {
		return uow.ErrUnitOfWorkMissing
	}
	unit, err := factory.Begin(ctx, opts)
	if err != nil {
		return err
	}
	execCtx, hooks := uow.WithCommitHooks(uow.Bind(ctx, unit))
	if err := fn(execCtx, unit); err != nil {
		_ = unit.Rollback(execCtx)
		return err
	}
	if err := unit.Commit(execCtx); err != nil {
		_ = unit.Rollback(execCtx)
		return err
	}
	hooks.Run(ctx)
	return nil
}

package uow

import (
	"context"

	domainchat "zedflip/internal/domain/chat"
	domainlistings "zedflip/internal/domain/listings"
	domainuser "zedflip/internal/domain/user"
)

// UnitOfWork coordinates repositories inside a transaction boundary.
type UnitOfWork interface {
	Conversations() domainchat.Repository
	Listings() domainlistings.ListingRepository
	Users() domainuser.Repository

	Commit(ctx context.Context) error
	// Rollback after Commit, or a second Rollback, is a no-op.
	Rollback(ctx context.Context) error
}

// UoWFactory starts unit of work instances.
type UoWFactory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

// TransientClassifier is implemented by factories whose units can fail on a
// write conflict with a concurrent unit. Such a failure succeeds when the
// whole unit is run again.
type TransientClassifier interface {
	IsTransient(err error) bool
}

// TxOptions configure transaction boundaries. Read-only units used by
// queries skip the Mongo transaction.
type TxOptions struct {
	ReadOnly bool
}

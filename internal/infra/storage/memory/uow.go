package memory

import (
	"context"
	"errors"

	"zedflip/internal/app/uow"
	domainchat "zedflip/internal/domain/chat"
	domainlistings "zedflip/internal/domain/listings"
	domainuser "zedflip/internal/domain/user"
)

// Factory wires in-memory repositories into a unit-of-work boundary.
type Factory struct {
	ConversationsRepo domainchat.Repository
	ListingsRepo      domainlistings.ListingRepository
	UsersRepo         domainuser.Repository
}

// ErrFactoryMisconfigured indicates missing repositories.
var ErrFactoryMisconfigured = errors.New("memory: unit of work factory misconfigured")

// NewFactory builds a factory over fresh, empty repositories.
func NewFactory() Factory {
	return Factory{
		ConversationsRepo: NewConversationRepository(),
		ListingsRepo:      NewListingRepository(),
		UsersRepo:         NewUserRepository(),
	}
}

// Begin starts a lightweight transaction boundary. Each repository call is
// atomic on its own; there is no rollback.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.ConversationsRepo == nil || f.ListingsRepo == nil || f.UsersRepo == nil {
		return nil, ErrFactoryMisconfigured
	}
	return &Unit{
		conversations: f.ConversationsRepo,
		listings:      f.ListingsRepo,
		users:         f.UsersRepo,
	}, nil
}

// Unit is a lightweight uow.UnitOfWork backed by in-memory stores.
type Unit struct {
	conversations domainchat.Repository
	listings      domainlistings.ListingRepository
	users         domainuser.Repository
}

func (u *Unit) Conversations() domainchat.Repository {
	return u.conversations
}

func (u *Unit) Listings() domainlistings.ListingRepository {
	return u.listings
}

func (u *Unit) Users() domainuser.Repository {
	return u.users
}

func (u *Unit) Commit(ctx context.Context) error {
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	return nil
}

var _ uow.UoWFactory = Factory{}

package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"

	"zedflip/internal/app/uow"
	domainchat "zedflip/internal/domain/chat"
	domainlistings "zedflip/internal/domain/listings"
	domainuser "zedflip/internal/domain/user"
)

// Factory wires Mongo transactions into the generic UnitOfWork interface.
type Factory struct {
	DB *mongo.Database

	ConversationsRepo domainchat.Repository
	ListingsRepo      domainlistings.ListingRepository
	UsersRepo         domainuser.Repository
}

var ErrUnitOfWorkNotConfigured = errors.New("mongo: unit of work factory missing database")

func NewFactory(db *mongo.Database) Factory {
	return Factory{
		DB:                db,
		ConversationsRepo: NewConversationRepository(db),
		ListingsRepo:      NewListingRepository(db),
		UsersRepo:         NewUserRepository(db),
	}
}

const (
	labelTransientTransaction = "TransientTransactionError"
	labelUnknownCommitResult  = "UnknownTransactionCommitResult"
	maxCommitAttempts         = 3
)

// IsTransient reports errors the server labels as safe to retry with a fresh
// transaction, such as a WriteConflict between two appends to one
// conversation.
func (f Factory) IsTransient(err error) bool {
	return hasErrorLabel(err, labelTransientTransaction)
}

func hasErrorLabel(err error, label string) bool {
	var serverErr mongo.ServerError
	return errors.As(err, &serverErr) && serverErr.HasErrorLabel(label)
}

// Begin starts a session. Writable units run inside a transaction; read-only
// units read with snapshot concern outside one.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.DB == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	sessionOpts := options.Session()
	if opts.ReadOnly {
		sessionOpts = sessionOpts.SetDefaultReadConcern(readconcern.Majority())
	}
	session, err := f.DB.Client().StartSession(sessionOpts)
	if err != nil {
		return nil, err
	}
	unit := &Unit{
		session:       session,
		conversations: f.ConversationsRepo,
		listings:      f.ListingsRepo,
		users:         f.UsersRepo,
	}
	if opts.ReadOnly {
		return unit, nil
	}
	txnOpts := options.Transaction().SetReadConcern(f.DB.ReadConcern()).SetWriteConcern(f.DB.WriteConcern())
	if err := session.StartTransaction(txnOpts); err != nil {
		session.EndSession(ctx)
		return nil, err
	}
	unit.inTxn = true
	return unit, nil
}

type Unit struct {
	session mongo.Session
	inTxn   bool
	done    bool

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
	if u.done {
		return nil
	}
	u.done = true
	defer u.session.EndSession(ctx)
	if !u.inTxn {
		return nil
	}
	var err error
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		err = u.session.CommitTransaction(ctx)
		if err == nil || !hasErrorLabel(err, labelUnknownCommitResult) {
			return err
		}
	}
	return err
}

func (u *Unit) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	defer u.session.EndSession(ctx)
	if !u.inTxn {
		return nil
	}
	return u.session.AbortTransaction(ctx)
}

// InjectContext ensures Mongo session is available in context for downstream repos.
func (u *Unit) InjectContext(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, u.session)
}

var (
	_ uow.UoWFactory          = Factory{}
	_ uow.TransientClassifier = Factory{}
)

package listings

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"zedflip/internal/app/commands"
	"zedflip/internal/app/dto"
	"zedflip/internal/app/handlers/support"
	"zedflip/internal/app/outbox"
	"zedflip/internal/app/uow"
	domainlistings "zedflip/internal/domain/listings"
	"zedflip/internal/domain/shared/money"
	domainuser "zedflip/internal/domain/user"
)

const (
	createListingKey = "listings.create"
	updateListingKey = "listings.update"
	deleteListingKey = "listings.delete"
	markSoldKey      = "listings.sold"
)

// ListingPayload carries the seller-editable fields as clients send them.
// Price is in kwacha.
type ListingPayload struct {
	Title        string
	Description  string
	Price        float64
	Category     string
	Condition    string
	City         string
	Location     string
	Tags         []string
	IsNegotiable bool
	ContactPhone string
}

func (p ListingPayload) details() (domainlistings.Details, error) {
	price, err := money.Kwacha(p.Price)
	if err != nil {
		return domainlistings.Details{}, domainlistings.ErrPriceInvalid
	}
	return domainlistings.Details{
		Title:        p.Title,
		Description:  p.Description,
		Price:        price,
		Category:     p.Category,
		Condition:    domainlistings.Condition(p.Condition),
		City:         p.City,
		Location:     p.Location,
		Tags:         p.Tags,
		IsNegotiable: p.IsNegotiable,
		ContactPhone: p.ContactPhone,
	}, nil
}

type CreateListingCommand struct {
	SellerID string
	Payload  ListingPayload
}

func (c CreateListingCommand) Key() string { return createListingKey }

// listingHandler holds what every listing write needs.
type listingHandler struct {
	UoWFactory uow.UoWFactory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Logger     *slog.Logger
	Now        func() time.Time
}

func (h listingHandler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func (h listingHandler) encoder() outbox.EventEncoder {
	if h.Encoder != nil {
		return h.Encoder
	}
	return outbox.JSONEventEncoder{}
}

func (h listingHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// save persists l and records its pending events.
func (h listingHandler) save(ctx context.Context, unit uow.UnitOfWork, l *domainlistings.Listing) error {
	if err := unit.Listings().Save(ctx, l); err != nil {
		return err
	}
	return outbox.RecordDomainEvents(ctx, h.Outbox, h.encoder(), l.Drain())
}

type CreateListingHandler struct {
	listingHandler
}

func NewCreateListingHandler(factory uow.UoWFactory, box outbox.Outbox, logger *slog.Logger) *CreateListingHandler {
	return &CreateListingHandler{listingHandler{UoWFactory: factory, Outbox: box, Logger: logger}}
}

func (h *CreateListingHandler) Handle(ctx context.Context, cmd CreateListingCommand) (dto.Listing, error) {
	if strings.TrimSpace(cmd.SellerID) == "" {
		return dto.Listing{}, domainlistings.ErrSellerRequired
	}
	details, err := cmd.Payload.details()
	if err != nil {
		return dto.Listing{}, err
	}
	var out dto.Listing
	err = support.WithUnit(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		now := h.now()
		listing, err := domainlistings.NewListing(domainlistings.CreateListingParams{
			ID:      domainlistings.ListingID(uuid.NewString()),
			Seller:  domainuser.ID(cmd.SellerID),
			Details: details,
			Now:     now,
		})
		if err != nil {
			return err
		}
		if err := h.save(ctx, unit, listing); err != nil {
			return err
		}
		out = dto.MapListing(listing, now)
		return nil
	})
	if err != nil {
		return dto.Listing{}, err
	}
	h.logger().Info("listing created", "listing_id", out.ID, "seller_id", cmd.SellerID)
	return out, nil
}

type UpdateListingCommand struct {
	ActorID   string
	ListingID string
	Payload   ListingPayload
}

func (c UpdateListingCommand) Key() string { return updateListingKey }

type UpdateListingHandler struct {
	listingHandler
}

func NewUpdateListingHandler(factory uow.UoWFactory, box outbox.Outbox, logger *slog.Logger) *UpdateListingHandler {
	return &UpdateListingHandler{listingHandler{UoWFactory: factory, Outbox: box, Logger: logger}}
}

func (h *UpdateListingHandler) Handle(ctx context.Context, cmd UpdateListingCommand) (dto.Listing, error) {
	details, err := cmd.Payload.details()
	if err != nil {
		return dto.Listing{}, err
	}
	var out dto.Listing
	err = support.WithUnit(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		listing, err := ownedListing(ctx, unit, cmd.ListingID, cmd.ActorID, false)
		if err != nil {
			return err
		}
		now := h.now()
		if err := listing.UpdateDetails(details, now); err != nil {
			return err
		}
		if err := h.save(ctx, unit, listing); err != nil {
			return err
		}
		out = dto.MapListing(listing, now)
		return nil
	})
	if err != nil {
		return dto.Listing{}, err
	}
	return out, nil
}

// DeleteListingCommand soft-deletes a listing. Admins may delete any listing.
type DeleteListingCommand struct {
	ActorID   string
	ListingID string
	AsAdmin   bool
}

func (c DeleteListingCommand) Key() string { return deleteListingKey }

type DeleteListingHandler struct {
	listingHandler
}

func NewDeleteListingHandler(factory uow.UoWFactory, box outbox.Outbox, logger *slog.Logger) *DeleteListingHandler {
	return &DeleteListingHandler{listingHandler{UoWFactory: factory, Outbox: box, Logger: logger}}
}

func (h *DeleteListingHandler) Handle(ctx context.Context, cmd DeleteListingCommand) (dto.Empty, error) {
	err := support.WithUnit(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		listing, err := ownedListing(ctx, unit, cmd.ListingID, cmd.ActorID, cmd.AsAdmin)
		if err != nil {
			return err
		}
		if err := listing.Delete(h.now()); err != nil {
			return err
		}
		return h.save(ctx, unit, listing)
	})
	if err != nil {
		return dto.Empty{}, err
	}
	h.logger().Info("listing deleted", "listing_id", cmd.ListingID, "actor_id", cmd.ActorID, "as_admin", cmd.AsAdmin)
	return dto.Empty{}, nil
}

type MarkSoldCommand struct {
	ActorID   string
	ListingID string
}

func (c MarkSoldCommand) Key() string { return markSoldKey }

type MarkSoldHandler struct {
	listingHandler
}

func NewMarkSoldHandler(factory uow.UoWFactory, box outbox.Outbox, logger *slog.Logger) *MarkSoldHandler {
	return &MarkSoldHandler{listingHandler{UoWFactory: factory, Outbox: box, Logger: logger}}
}

func (h *MarkSoldHandler) Handle(ctx context.Context, cmd MarkSoldCommand) (dto.Listing, error) {
	var out dto.Listing
	err := support.WithUnit(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		listing, err := ownedListing(ctx, unit, cmd.ListingID, cmd.ActorID, false)
		if err != nil {
			return err
		}
		now := h.now()
		if err := listing.MarkSold(now); err != nil {
			return err
		}
		if err := h.save(ctx, unit, listing); err != nil {
			return err
		}
		out = dto.MapListing(listing, now)
		return nil
	})
	if err != nil {
		return dto.Listing{}, err
	}
	return out, nil
}

// ownedListing loads a visible listing the actor may change.
func ownedListing(ctx context.Context, unit uow.UnitOfWork, listingID, actorID string, asAdmin bool) (*domainlistings.Listing, error) {
	listing, err := unit.Listings().ByID(ctx, domainlistings.ListingID(strings.TrimSpace(listingID)))
	if err != nil {
		return nil, err
	}
	if !listing.Visible() {
		return nil, domainlistings.ErrListingNotFound
	}
	if !asAdmin && !listing.OwnedBy(domainuser.ID(actorID)) {
		return nil, domainlistings.ErrNotSeller
	}
	return listing, nil
}

var (
	_ commands.Handler[CreateListingCommand, dto.Listing] = (*CreateListingHandler)(nil)
	_ commands.Handler[UpdateListingCommand, dto.Listing] = (*UpdateListingHandler)(nil)
	_ commands.Handler[DeleteListingCommand, dto.Empty]   = (*DeleteListingHandler)(nil)
	_ commands.Handler[MarkSoldCommand, dto.Listing]      = (*MarkSoldHandler)(nil)
)

package listings

import (
	"context"
	"time"

	"zedflip/internal/app/dto"
	"zedflip/internal/app/handlers/support"
	"zedflip/internal/app/queries"
	"zedflip/internal/app/uow"
	domainlistings "zedflip/internal/domain/listings"
	domainuser "zedflip/internal/domain/user"
)

const (
	sellerProfileKey  = "listings.seller_profile"
	sellerListingsKey = "listings.by_seller"

	profileListingsLimit = 10
)

// SellerProfileQuery loads the public page of an account. Banned accounts
// are not found.
type SellerProfileQuery struct {
	UserID string
}

func (q SellerProfileQuery) Key() string { return sellerProfileKey }

type SellerProfileHandler struct {
	UoWFactory uow.UoWFactory
	Now        func() time.Time
}

func (h *SellerProfileHandler) Handle(ctx context.Context, q SellerProfileQuery) (dto.SellerProfile, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.SellerProfile{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	seller, err := visibleSeller(execCtx, unit, q.UserID)
	if err != nil {
		return dto.SellerProfile{}, err
	}
	result, err := unit.Listings().Search(execCtx, domainlistings.SearchParams{
		Seller: seller.ID,
		Sort:   domainlistings.SortByNewest,
		Limit:  profileListingsLimit,
	}.Normalized())
	if err != nil {
		return dto.SellerProfile{}, err
	}
	at := now(h.Now)
	public := dto.MapPublicUser(seller)
	out := dto.SellerProfile{
		User:     *public,
		Listings: make([]dto.Listing, 0, len(result.Items)),
	}
	for _, l := range result.Items {
		item := dto.MapListing(l, at)
		item.Seller = public
		out.Listings = append(out.Listings, item)
	}
	return out, nil
}

// SellerListingsQuery pages through one seller's listings. Status is empty
// for active only, "all", or a single status.
type SellerListingsQuery struct {
	SellerID string
	Status   string
	Page     int
	Limit    int
}

func (q SellerListingsQuery) Key() string { return sellerListingsKey }

type SellerListingsHandler struct {
	UoWFactory uow.UoWFactory
	Now        func() time.Time
}

func (h *SellerListingsHandler) Handle(ctx context.Context, q SellerListingsQuery) (dto.ListingPage, error) {
	statuses, err := domainlistings.StatusFilter(q.Status, false)
	if err != nil {
		return dto.ListingPage{}, err
	}
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.ListingPage{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	seller, err := visibleSeller(execCtx, unit, q.SellerID)
	if err != nil {
		return dto.ListingPage{}, err
	}
	params := domainlistings.SearchParams{
		Seller:   seller.ID,
		Statuses: statuses,
		Sort:     domainlistings.SortByNewest,
		Limit:    q.Limit,
	}.Normalized()
	params.Offset = (clampPage(q.Page, params.Limit) - 1) * params.Limit
	result, err := unit.Listings().Search(execCtx, params)
	if err != nil {
		return dto.ListingPage{}, err
	}
	page := dto.MapListingPage(result, params, now(h.Now))
	attachSellers(execCtx, unit, page.Listings)
	return page, nil
}

func visibleSeller(ctx context.Context, unit uow.UnitOfWork, id string) (*domainuser.User, error) {
	if id == "" {
		return nil, domainuser.ErrNotFound
	}
	seller, err := unit.Users().ByID(ctx, domainuser.ID(id))
	if err != nil {
		return nil, err
	}
	if seller.Banned {
		return nil, domainuser.ErrNotFound
	}
	return seller, nil
}

var (
	_ queries.Handler[SellerProfileQuery, dto.SellerProfile] = (*SellerProfileHandler)(nil)
	_ queries.Handler[SellerListingsQuery, dto.ListingPage]  = (*SellerListingsHandler)(nil)
)

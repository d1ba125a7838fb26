package listings

import (
	"context"
	"errors"
	"math"
	"time"

	"zedflip/internal/app/commands"
	"zedflip/internal/app/dto"
	"zedflip/internal/app/handlers/support"
	"zedflip/internal/app/queries"
	"zedflip/internal/app/uow"
	domainlistings "zedflip/internal/domain/listings"
	domainuser "zedflip/internal/domain/user"
)

const (
	searchListingsKey   = "listings.search"
	featuredListingsKey = "listings.featured"
	viewListingKey      = "listings.view"

	relatedLimit  = 4
	featuredLimit = 8
)

// SearchListingsQuery describes catalog filters. Prices are in kwacha and
// Page starts at 1.
type SearchListingsQuery struct {
	Query     string
	Category  string
	City      string
	Condition string
	SellerID  string
	MinPrice  float64
	MaxPrice  float64
	Sort      string
	Page      int
	Limit     int
}

func (q SearchListingsQuery) Key() string { return searchListingsKey }

func (q SearchListingsQuery) params() domainlistings.SearchParams {
	params := domainlistings.SearchParams{
		Query:         q.Query,
		Seller:        domainuser.ID(q.SellerID),
		Category:      q.Category,
		City:          q.City,
		Condition:     domainlistings.Condition(q.Condition),
		PriceMinNgwee: toNgwee(q.MinPrice),
		PriceMaxNgwee: toNgwee(q.MaxPrice),
		Sort:          domainlistings.CatalogSort(q.Sort),
		Limit:         q.Limit,
	}.Normalized()
	params.Offset = (clampPage(q.Page, params.Limit) - 1) * params.Limit
	return params
}

// maxCatalogOffset bounds how deep a catalog page can reach.
const maxCatalogOffset = 1_000_000

func clampPage(page, limit int) int {
	if page < 1 {
		return 1
	}
	if limit < 1 {
		limit = 1
	}
	if last := maxCatalogOffset/limit + 1; page > last {
		return last
	}
	return page
}

type SearchListingsHandler struct {
	UoWFactory uow.UoWFactory
	Now        func() time.Time
}

func (h *SearchListingsHandler) Handle(ctx context.Context, q SearchListingsQuery) (dto.ListingPage, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.ListingPage{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	params := q.params()
	result, err := unit.Listings().Search(execCtx, params)
	if err != nil {
		return dto.ListingPage{}, err
	}
	page := dto.MapListingPage(result, params, now(h.Now))
	attachSellers(execCtx, unit, page.Listings)
	return page, nil
}

type FeaturedListingsQuery struct{}

func (q FeaturedListingsQuery) Key() string { return featuredListingsKey }

type FeaturedListingsHandler struct {
	UoWFactory uow.UoWFactory
	Now        func() time.Time
}

func (h *FeaturedListingsHandler) Handle(ctx context.Context, _ FeaturedListingsQuery) ([]dto.Listing, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	result, err := unit.Listings().Search(execCtx, domainlistings.SearchParams{
		FeaturedOnly: true,
		Limit:        featuredLimit,
	}.Normalized())
	if err != nil {
		return nil, err
	}
	at := now(h.Now)
	out := make([]dto.Listing, 0, len(result.Items))
	for _, l := range result.Items {
		out = append(out, dto.MapListing(l, at))
	}
	attachSellers(execCtx, unit, out)
	return out, nil
}

// ViewListingCommand loads a listing for display and counts the view.
type ViewListingCommand struct {
	ListingID string
}

func (c ViewListingCommand) Key() string { return viewListingKey }

type ViewListingHandler struct {
	UoWFactory uow.UoWFactory
	Now        func() time.Time
}

func (h *ViewListingHandler) Handle(ctx context.Context, cmd ViewListingCommand) (dto.ListingDetail, error) {
	var out dto.ListingDetail
	err := support.WithUnit(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		listing, err := unit.Listings().ByID(ctx, domainlistings.ListingID(cmd.ListingID))
		if err != nil {
			return err
		}
		if !listing.Visible() {
			return domainlistings.ErrListingNotFound
		}
		if err := unit.Listings().IncrementViews(ctx, listing.ID); err != nil {
			return err
		}
		listing.Views++

		at := now(h.Now)
		related, err := unit.Listings().Search(ctx, domainlistings.SearchParams{
			Category: listing.Category,
			Limit:    relatedLimit + 1,
		}.Normalized())
		if err != nil {
			return err
		}
		out.Listing = dto.MapListing(listing, at)
		out.Related = make([]dto.Listing, 0, relatedLimit)
		for _, l := range related.Items {
			if l.ID == listing.ID || len(out.Related) == relatedLimit {
				continue
			}
			out.Related = append(out.Related, dto.MapListing(l, at))
		}
		single := []dto.Listing{out.Listing}
		attachSellers(ctx, unit, single)
		out.Listing = single[0]
		return nil
	})
	if err != nil {
		return dto.ListingDetail{}, err
	}
	return out, nil
}

// attachSellers fills in the public seller profile. Unknown sellers are left empty.
func attachSellers(ctx context.Context, unit uow.UnitOfWork, items []dto.Listing) {
	cache := make(map[string]*dto.PublicUser)
	for i := range items {
		id := items[i].SellerID
		seller, seen := cache[id]
		if !seen {
			u, err := unit.Users().ByID(ctx, domainuser.ID(id))
			if err != nil && !errors.Is(err, domainuser.ErrNotFound) {
				continue
			}
			seller = dto.MapPublicUser(u)
			cache[id] = seller
		}
		items[i].Seller = seller
	}
}

func toNgwee(kwacha float64) int64 {
	if kwacha <= 0 {
		return 0
	}
	return int64(math.Round(kwacha * 100))
}

func now(fn func() time.Time) time.Time {
	if fn != nil {
		return fn().UTC()
	}
	return time.Now().UTC()
}

var (
	_ queries.Handler[SearchListingsQuery, dto.ListingPage]   = (*SearchListingsHandler)(nil)
	_ queries.Handler[FeaturedListingsQuery, []dto.Listing]   = (*FeaturedListingsHandler)(nil)
	_ commands.Handler[ViewListingCommand, dto.ListingDetail] = (*ViewListingHandler)(nil)
)

package memory

import (
	"context"
	"sort"
	"sync"

	domainlistings "zedflip/internal/domain/listings"
)

// ListingRepository is an in-memory catalog used in local mode and tests.
type ListingRepository struct {
	mu    sync.RWMutex
	items map[domainlistings.ListingID]*domainlistings.Listing
}

func NewListingRepository() *ListingRepository {
	return &ListingRepository{
		items: make(map[domainlistings.ListingID]*domainlistings.Listing),
	}
}

// ByID returns a copy of the listing or ErrListingNotFound.
func (r *ListingRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	listing, ok := r.items[id]
	if !ok {
		return nil, domainlistings.ErrListingNotFound
	}
	return cloneListing(listing), nil
}

func (r *ListingRepository) Save(ctx context.Context, listing *domainlistings.Listing) error {
	if listing == nil || listing.ID == "" {
		return domainlistings.ErrIDRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[listing.ID] = cloneListing(listing)
	return nil
}

func (r *ListingRepository) IncrementViews(ctx context.Context, id domainlistings.ListingID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	listing, ok := r.items[id]
	if !ok {
		return domainlistings.ErrListingNotFound
	}
	listing.Views++
	return nil
}

// Search returns listings that satisfy provided filters.
func (r *ListingRepository) Search(ctx context.Context, params domainlistings.SearchParams) (domainlistings.SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	opts := params.Normalized()
	matches := make([]*domainlistings.Listing, 0, len(r.items))
	for _, listing := range r.items {
		if err := ctx.Err(); err != nil {
			return domainlistings.SearchResult{}, err
		}
		if !opts.Matches(listing) {
			continue
		}
		matches = append(matches, listing)
	}

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		switch opts.Sort {
		case domainlistings.SortByOldest:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		case domainlistings.SortByPriceAsc:
			if a.Price.Amount != b.Price.Amount {
				return a.Price.Amount < b.Price.Amount
			}
		case domainlistings.SortByPriceDesc:
			if a.Price.Amount != b.Price.Amount {
				return a.Price.Amount > b.Price.Amount
			}
		case domainlistings.SortByPopular:
			if a.Views != b.Views {
				return a.Views > b.Views
			}
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	total := len(matches)
	start := opts.Offset
	if start > total {
		start = total
	}
	end := start + opts.Limit
	if end > total {
		end = total
	}
	items := make([]*domainlistings.Listing, 0, end-start)
	for _, listing := range matches[start:end] {
		items = append(items, cloneListing(listing))
	}
	return domainlistings.SearchResult{Items: items, Total: total}, nil
}

func (r *ListingRepository) CountByStatus(ctx context.Context) (map[domainlistings.Status]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[domainlistings.Status]int)
	for _, listing := range r.items {
		counts[listing.Status]++
	}
	return counts, nil
}

func cloneListing(l *domainlistings.Listing) *domainlistings.Listing {
	if l == nil {
		return nil
	}
	out := *l
	out.Images = append([]string(nil), l.Images...)
	out.Tags = append([]string(nil), l.Tags...)
	if l.SoldAt != nil {
		soldAt := *l.SoldAt
		out.SoldAt = &soldAt
	}
	out.ClearEvents()
	return &out
}

var _ domainlistings.ListingRepository = (*ListingRepository)(nil)

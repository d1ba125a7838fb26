package dto

import (
	"time"

	domainlistings "zedflip/internal/domain/listings"
)

// Listing is the full listing payload.
type Listing struct {
	ID           string      `json:"id"`
	SellerID     string      `json:"sellerId"`
	Seller       *PublicUser `json:"seller,omitempty"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	Price        float64     `json:"price"`
	Currency     string      `json:"currency"`
	Category     string      `json:"category"`
	Condition    string      `json:"condition"`
	City         string      `json:"city"`
	Location     string      `json:"location,omitempty"`
	Images       []string    `json:"images"`
	Tags         []string    `json:"tags,omitempty"`
	Status       string      `json:"status"`
	Views        int64       `json:"views"`
	IsFeatured   bool        `json:"isFeatured"`
	IsNegotiable bool        `json:"isNegotiable"`
	ContactPhone string      `json:"contactPhone,omitempty"`
	ExpiresAt    time.Time   `json:"expiresAt"`
	SoldAt       *time.Time  `json:"soldAt,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type ListingPage struct {
	Listings   []Listing  `json:"listings"`
	Pagination Pagination `json:"pagination"`
}

type ListingDetail struct {
	Listing Listing   `json:"listing"`
	Related []Listing `json:"relatedListings"`
}

type ListingImageUpload struct {
	ListingID string   `json:"listingId"`
	URL       string   `json:"url"`
	Images    []string `json:"images"`
}

func MapListing(l *domainlistings.Listing, now time.Time) Listing {
	if l == nil {
		return Listing{}
	}
	images := append([]string{}, l.Images...)
	return Listing{
		ID:           string(l.ID),
		SellerID:     string(l.Seller),
		Title:        l.Title,
		Description:  l.Description,
		Price:        l.Price.Major(),
		Currency:     l.Price.Currency,
		Category:     l.Category,
		Condition:    string(l.Condition),
		City:         l.City,
		Location:     l.Location,
		Images:       images,
		Tags:         append([]string(nil), l.Tags...),
		Status:       string(l.EffectiveStatus(now)),
		Views:        l.Views,
		IsFeatured:   l.IsFeatured,
		IsNegotiable: l.IsNegotiable,
		ContactPhone: l.ContactPhone,
		ExpiresAt:    l.ExpiresAt,
		SoldAt:       l.SoldAt,
		CreatedAt:    l.CreatedAt,
		UpdatedAt:    l.UpdatedAt,
	}
}

// MapListingPage builds a page from a search result.
func MapListingPage(result domainlistings.SearchResult, params domainlistings.SearchParams, now time.Time) ListingPage {
	items := make([]Listing, 0, len(result.Items))
	for _, l := range result.Items {
		items = append(items, MapListing(l, now))
	}
	return ListingPage{
		Listings:   items,
		Pagination: NewPagination(params.Offset, params.Limit, result.Total),
	}
}

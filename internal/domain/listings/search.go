package listings

import (
	"strings"

	"zedflip/internal/domain/user"
)

// CatalogSort defines a supported ordering.
type CatalogSort string

const (
	SortByNewest    CatalogSort = "newest"
	SortByOldest    CatalogSort = "oldest"
	SortByPriceAsc  CatalogSort = "price_asc"
	SortByPriceDesc CatalogSort = "price_desc"
	SortByPopular   CatalogSort = "popular"

	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// SearchParams describe catalog filters and paging options.
type SearchParams struct {
	Query         string
	Seller        user.ID
	Statuses      []Status
	Category      string
	City          string
	Condition     Condition
	PriceMinNgwee int64
	PriceMaxNgwee int64
	FeaturedOnly  bool
	Sort          CatalogSort
	Limit         int
	Offset        int
}

// Normalized returns a sanitized copy of params.
func (p SearchParams) Normalized() SearchParams {
	normalized := p
	normalized.Query = strings.TrimSpace(strings.ToLower(normalized.Query))
	normalized.Category = strings.TrimSpace(strings.ToLower(normalized.Category))
	if city, ok := CanonicalCity(normalized.City); ok {
		normalized.City = city
	} else {
		normalized.City = strings.TrimSpace(normalized.City)
	}
	normalized.Condition = Condition(strings.TrimSpace(strings.ToLower(string(normalized.Condition))))
	if !normalized.Condition.Valid() {
		normalized.Condition = ""
	}
	if len(normalized.Statuses) == 0 {
		normalized.Statuses = []Status{StatusActive}
	}
	if normalized.PriceMinNgwee < 0 {
		normalized.PriceMinNgwee = 0
	}
	if normalized.PriceMaxNgwee > 0 && normalized.PriceMaxNgwee < normalized.PriceMinNgwee {
		normalized.PriceMaxNgwee = 0
	}
	if normalized.Limit <= 0 {
		normalized.Limit = defaultSearchLimit
	}
	if normalized.Limit > maxSearchLimit {
		normalized.Limit = maxSearchLimit
	}
	if normalized.Offset < 0 {
		normalized.Offset = 0
	}
	switch normalized.Sort {
	case SortByNewest, SortByOldest, SortByPriceAsc, SortByPriceDesc, SortByPopular:
	default:
		normalized.Sort = SortByNewest
	}
	return normalized
}

// Matches applies the filter part of params to a single listing. Stores that
// cannot push filters down to a query engine use it directly.
func (p SearchParams) Matches(l *Listing) bool {
	if l == nil {
		return false
	}
	if p.Seller != "" && l.Seller != p.Seller {
		return false
	}
	if !containsStatus(p.Statuses, l.Status) {
		return false
	}
	if p.Category != "" && l.Category != p.Category {
		return false
	}
	if p.City != "" && !strings.EqualFold(l.City, p.City) {
		return false
	}
	if p.Condition != "" && l.Condition != p.Condition {
		return false
	}
	if p.PriceMinNgwee > 0 && l.Price.Amount < p.PriceMinNgwee {
		return false
	}
	if p.PriceMaxNgwee > 0 && l.Price.Amount > p.PriceMaxNgwee {
		return false
	}
	if p.FeaturedOnly && !l.IsFeatured {
		return false
	}
	if p.Query != "" {
		haystack := strings.ToLower(l.Title + " " + l.Description + " " + strings.Join(l.Tags, " "))
		if !strings.Contains(haystack, p.Query) {
			return false
		}
	}
	return true
}

// StatusFilter parses a status query value. Empty means the catalog default,
// "all" means every status, deleted ones only when withDeleted is set.
func StatusFilter(raw string, withDeleted bool) ([]Status, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	all := []Status{StatusActive, StatusReserved, StatusSold, StatusExpired}
	if withDeleted {
		all = append(all, StatusDeleted)
	}
	switch raw {
	case "":
		return nil, nil
	case "all":
		return all, nil
	}
	for _, s := range all {
		if Status(raw) == s {
			return []Status{s}, nil
		}
	}
	return nil, ErrStatusInvalid
}

func containsStatus(statuses []Status, s Status) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func normalizeTokens(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}
	out := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		token = strings.TrimSpace(strings.ToLower(token))
		if token == "" {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}

// SearchResult wraps search hits with meta.
type SearchResult struct {
	Items []*Listing
	Total int
}

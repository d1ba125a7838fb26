package listings

import (
	"errors"
	"strings"
	"testing"
	"time"

	"zedflip/internal/domain/shared/money"
)

func validDetails() Details {
	return Details{
		Title:       "Samsung Galaxy A14",
		Description: "Lightly used phone, comes with charger and box.",
		Price:       money.Must(250000, money.ZMW),
		Category:    "Electronics",
		Condition:   ConditionLikeNew,
		City:        "lusaka",
	}
}

func TestNewListingNormalizes(t *testing.T) {
	now := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	l, err := NewListing(CreateListingParams{ID: "l1", Seller: "s1", Details: validDetails(), Now: now})
	if err != nil {
		t.Fatalf("new listing: %v", err)
	}
	if l.City != "Lusaka" || l.Category != "electronics" {
		t.Fatalf("normalization failed: city=%q category=%q", l.City, l.Category)
	}
	if l.Status != StatusActive {
		t.Fatalf("status = %s", l.Status)
	}
	if !l.ExpiresAt.Equal(now.Add(DefaultExpiration)) {
		t.Fatalf("expires at %v", l.ExpiresAt)
	}
	if l.EffectiveStatus(now.Add(31*24*time.Hour)) != StatusExpired {
		t.Fatal("listing past expiry should report expired")
	}
}

func TestNewListingValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Details)
		want   error
	}{
		{"short title", func(d *Details) { d.Title = "TV" }, ErrTitleLength},
		{"short description", func(d *Details) { d.Description = "too short" }, ErrDescriptionLength},
		{"long description", func(d *Details) { d.Description = strings.Repeat("x", 2001) }, ErrDescriptionLength},
		{"negative price", func(d *Details) { d.Price = money.Money{Amount: -1, Currency: money.ZMW} }, ErrPriceInvalid},
		{"foreign currency", func(d *Details) { d.Price = money.Must(100, "USD") }, ErrPriceInvalid},
		{"bad condition", func(d *Details) { d.Condition = "broken" }, ErrConditionInvalid},
		{"unknown city", func(d *Details) { d.City = "Harare" }, ErrCityInvalid},
		{"bad phone", func(d *Details) { d.ContactPhone = "0977123456" }, ErrPhoneInvalid},
		{"missing category", func(d *Details) { d.Category = " " }, ErrCategoryRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := validDetails()
			tc.mutate(&d)
			_, err := NewListing(CreateListingParams{ID: "l1", Seller: "s1", Details: d})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestMarkSoldTransitions(t *testing.T) {
	l, err := NewListing(CreateListingParams{ID: "l1", Seller: "s1", Details: validDetails()})
	if err != nil {
		t.Fatal(err)
	}
	if err := l.MarkSold(time.Now()); err != nil {
		t.Fatalf("mark sold: %v", err)
	}
	if l.SoldAt == nil {
		t.Fatal("sold at must be set")
	}
	if err := l.MarkSold(time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second sale: expected ErrInvalidTransition, got %v", err)
	}
	if err := l.Delete(time.Now()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if l.Visible() {
		t.Fatal("deleted listing must not be visible")
	}
}

func TestSearchParamsMatches(t *testing.T) {
	l, _ := NewListing(CreateListingParams{ID: "l1", Seller: "s1", Details: validDetails()})
	params := SearchParams{Query: "galaxy", City: "LUSAKA", PriceMaxNgwee: 300000}.Normalized()
	if !params.Matches(l) {
		t.Fatal("expected listing to match")
	}
	if (SearchParams{PriceMinNgwee: 300000}).Normalized().Matches(l) {
		t.Fatal("price floor should exclude listing")
	}
	if (SearchParams{Statuses: []Status{StatusSold}}).Normalized().Matches(l) {
		t.Fatal("status filter should exclude active listing")
	}
}

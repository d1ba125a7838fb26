package listings

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"zedflip/internal/domain/shared/events"
	"zedflip/internal/domain/shared/money"
	"zedflip/internal/domain/user"
)

var (
	ErrIDRequired        = errors.New("listings: id is required")
	ErrSellerRequired    = errors.New("listings: seller is required")
	ErrTitleLength       = errors.New("listings: title must be between 5 and 100 characters")
	ErrDescriptionLength = errors.New("listings: description must be between 20 and 2000 characters")
	ErrPriceInvalid      = errors.New("listings: price must be a non-negative ZMW amount")
	ErrCategoryRequired  = errors.New("listings: category is required")
	ErrConditionInvalid  = errors.New("listings: invalid condition")
	ErrCityInvalid       = errors.New("listings: invalid city")
	ErrStatusInvalid     = errors.New("listings: invalid status filter")
	ErrPhoneInvalid      = errors.New("listings: contact phone must be a valid Zambian number (+260XXXXXXXXX)")
	ErrTooManyImages     = errors.New("listings: a listing can have at most 10 images")
	ErrInvalidTransition = errors.New("listings: invalid status transition")
	ErrListingNotFound   = errors.New("listings: listing not found")
	ErrNotSeller         = errors.New("listings: only the seller can change this listing")
	ErrImageURLRequired  = errors.New("listings: image url is required")
)

const (
	MaxImages         = 10
	DefaultExpiration = 30 * 24 * time.Hour
)

var contactPhonePattern = regexp.MustCompile(`^\+260[0-9]{9}$`)

type ListingID string

type Condition string

const (
	ConditionNew     Condition = "new"
	ConditionLikeNew Condition = "like-new"
	ConditionGood    Condition = "good"
	ConditionFair    Condition = "fair"
	ConditionPoor    Condition = "poor"
)

func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair, ConditionPoor:
		return true
	}
	return false
}

type Status string

const (
	StatusActive   Status = "active"
	StatusSold     Status = "sold"
	StatusReserved Status = "reserved"
	StatusExpired  Status = "expired"
	StatusDeleted  Status = "deleted"
)

// Cities lists the towns listings can be posted in.
var Cities = []string{
	"Lusaka", "Kitwe", "Ndola", "Kabwe", "Livingstone", "Chipata",
	"Mansa", "Mongu", "Solwezi", "Kasama", "Mufulira", "Luanshya",
}

// CanonicalCity resolves a case-insensitive city name to its canonical spelling.
func CanonicalCity(city string) (string, bool) {
	city = strings.TrimSpace(city)
	for _, known := range Cities {
		if strings.EqualFold(known, city) {
			return known, true
		}
	}
	return "", false
}

type Listing struct {
	ID           ListingID
	Seller       user.ID
	Title        string
	Description  string
	Price        money.Money
	Category     string
	Condition    Condition
	City         string
	Location     string
	Images       []string
	Tags         []string
	Status       Status
	Views        int64
	IsFeatured   bool
	IsNegotiable bool
	ContactPhone string
	ExpiresAt    time.Time
	SoldAt       *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	events.EventRecorder
}

type ListingRepository interface {
	ByID(ctx context.Context, id ListingID) (*Listing, error)
	Save(ctx context.Context, listing *Listing) error
	IncrementViews(ctx context.Context, id ListingID) error
	Search(ctx context.Context, params SearchParams) (SearchResult, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

// Details are the seller-editable attributes of a listing.
type Details struct {
	Title        string
	Description  string
	Price        money.Money
	Category     string
	Condition    Condition
	City         string
	Location     string
	Tags         []string
	IsNegotiable bool
	ContactPhone string
}

type CreateListingParams struct {
	ID      ListingID
	Seller  user.ID
	Details Details
	Images  []string
	Now     time.Time
}

func NewListing(params CreateListingParams) (*Listing, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, ErrIDRequired
	}
	if strings.TrimSpace(string(params.Seller)) == "" {
		return nil, ErrSellerRequired
	}
	details, err := params.Details.normalized()
	if err != nil {
		return nil, err
	}
	if len(params.Images) > MaxImages {
		return nil, ErrTooManyImages
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	listing := &Listing{
		ID:        params.ID,
		Seller:    params.Seller,
		Images:    append([]string(nil), params.Images...),
		Status:    StatusActive,
		ExpiresAt: now.Add(DefaultExpiration),
		CreatedAt: now,
		UpdatedAt: now,
	}
	listing.apply(details)
	listing.Record(ListingCreatedEvent{ListingID: listing.ID, SellerID: listing.Seller, At: now})
	return listing, nil
}

// UpdateDetails replaces the seller-editable attributes.
func (l *Listing) UpdateDetails(details Details, now time.Time) error {
	if l.Status == StatusDeleted {
		return ErrListingNotFound
	}
	normalized, err := details.normalized()
	if err != nil {
		return err
	}
	l.apply(normalized)
	l.touch(now)
	l.Record(ListingUpdatedEvent{ListingID: l.ID, At: l.UpdatedAt})
	return nil
}

func (l *Listing) AddImage(url string, now time.Time) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return ErrImageURLRequired
	}
	if len(l.Images) >= MaxImages {
		return ErrTooManyImages
	}
	l.Images = append(l.Images, url)
	l.touch(now)
	return nil
}

func (l *Listing) MarkSold(now time.Time) error {
	switch l.Status {
	case StatusActive, StatusReserved:
	default:
		return ErrInvalidTransition
	}
	l.touch(now)
	soldAt := l.UpdatedAt
	l.Status = StatusSold
	l.SoldAt = &soldAt
	l.Record(ListingSoldEvent{ListingID: l.ID, SellerID: l.Seller, At: soldAt})
	return nil
}

// Delete soft-deletes the listing; deleted listings are invisible everywhere.
func (l *Listing) Delete(now time.Time) error {
	if l.Status == StatusDeleted {
		return ErrListingNotFound
	}
	l.Status = StatusDeleted
	l.touch(now)
	l.Record(ListingDeletedEvent{ListingID: l.ID, At: l.UpdatedAt})
	return nil
}

// ToggleFeatured flips the featured flag and reports the new value.
func (l *Listing) ToggleFeatured(now time.Time) bool {
	l.IsFeatured = !l.IsFeatured
	l.touch(now)
	return l.IsFeatured
}

// EffectiveStatus reports expired for active listings past their expiry.
func (l *Listing) EffectiveStatus(now time.Time) Status {
	if l.Status == StatusActive && !l.ExpiresAt.IsZero() && !now.Before(l.ExpiresAt) {
		return StatusExpired
	}
	return l.Status
}

func (l *Listing) Visible() bool {
	return l.Status != StatusDeleted
}

func (l *Listing) OwnedBy(id user.ID) bool {
	return l.Seller == id
}

func (l *Listing) apply(d Details) {
	l.Title = d.Title
	l.Description = d.Description
	l.Price = d.Price
	l.Category = d.Category
	l.Condition = d.Condition
	l.City = d.City
	l.Location = d.Location
	l.Tags = d.Tags
	l.IsNegotiable = d.IsNegotiable
	l.ContactPhone = d.ContactPhone
}

func (l *Listing) touch(now time.Time) {
	if now.IsZero() {
		now = time.Now()
	}
	l.UpdatedAt = now.UTC()
}

func (d Details) normalized() (Details, error) {
	out := d
	out.Title = strings.TrimSpace(d.Title)
	if n := utf8.RuneCountInString(out.Title); n < 5 || n > 100 {
		return Details{}, ErrTitleLength
	}
	out.Description = strings.TrimSpace(d.Description)
	if n := utf8.RuneCountInString(out.Description); n < 20 || n > 2000 {
		return Details{}, ErrDescriptionLength
	}
	if d.Price.Amount < 0 || (d.Price.Currency != "" && d.Price.Currency != money.ZMW) {
		return Details{}, ErrPriceInvalid
	}
	out.Price = money.Money{Amount: d.Price.Amount, Currency: money.ZMW}
	out.Category = strings.ToLower(strings.TrimSpace(d.Category))
	if out.Category == "" {
		return Details{}, ErrCategoryRequired
	}
	out.Condition = Condition(strings.ToLower(strings.TrimSpace(string(d.Condition))))
	if !out.Condition.Valid() {
		return Details{}, ErrConditionInvalid
	}
	city, ok := CanonicalCity(d.City)
	if !ok {
		return Details{}, ErrCityInvalid
	}
	out.City = city
	out.Location = strings.TrimSpace(d.Location)
	out.ContactPhone = strings.TrimSpace(d.ContactPhone)
	if out.ContactPhone != "" && !contactPhonePattern.MatchString(out.ContactPhone) {
		return Details{}, ErrPhoneInvalid
	}
	out.Tags = normalizeTokens(d.Tags)
	return out, nil
}

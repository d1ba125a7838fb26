package listings

import (
	"time"

	"zedflip/internal/domain/user"
)

type ListingCreatedEvent struct {
	ListingID ListingID
	SellerID  user.ID
	At        time.Time
}

func (e ListingCreatedEvent) EventName() string     { return "listing.created" }
func (e ListingCreatedEvent) AggregateID() string   { return string(e.ListingID) }
func (e ListingCreatedEvent) OccurredAt() time.Time { return e.At }

type ListingUpdatedEvent struct {
	ListingID ListingID
	At        time.Time
}

func (e ListingUpdatedEvent) EventName() string     { return "listing.updated" }
func (e ListingUpdatedEvent) AggregateID() string   { return string(e.ListingID) }
func (e ListingUpdatedEvent) OccurredAt() time.Time { return e.At }

type ListingSoldEvent struct {
	ListingID ListingID
	SellerID  user.ID
	At        time.Time
}

func (e ListingSoldEvent) EventName() string     { return "listing.sold" }
func (e ListingSoldEvent) AggregateID() string   { return string(e.ListingID) }
func (e ListingSoldEvent) OccurredAt() time.Time { return e.At }

type ListingDeletedEvent struct {
	ListingID ListingID
	At        time.Time
}

func (e ListingDeletedEvent) EventName() string     { return "listing.deleted" }
func (e ListingDeletedEvent) AggregateID() string   { return string(e.ListingID) }
func (e ListingDeletedEvent) OccurredAt() time.Time { return e.At }

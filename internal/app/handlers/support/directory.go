package support

import (
	"context"
	"errors"

	"zedflip/internal/app/dto"
	"zedflip/internal/app/uow"
	domainchat "zedflip/internal/domain/chat"
	domainlistings "zedflip/internal/domain/listings"
	domainuser "zedflip/internal/domain/user"
)

// LoadDirectory fetches the profiles and listings conversations refer to.
// Missing users or listings are left out; the view degrades to bare ids.
func LoadDirectory(ctx context.Context, unit uow.UnitOfWork, convs ...*domainchat.Conversation) (dto.ConversationDirectory, error) {
	dir := dto.ConversationDirectory{
		Users:    make(map[domainuser.ID]*domainuser.User),
		Listings: make(map[domainlistings.ListingID]*domainlistings.Listing),
	}
	for _, conv := range convs {
		if conv == nil {
			continue
		}
		for _, id := range conv.Participants {
			if _, seen := dir.Users[id]; seen {
				continue
			}
			u, err := unit.Users().ByID(ctx, id)
			switch {
			case err == nil:
				dir.Users[id] = u
			case errors.Is(err, domainuser.ErrNotFound):
				dir.Users[id] = nil
			default:
				return dir, err
			}
		}
		if _, seen := dir.Listings[conv.Listing]; seen {
			continue
		}
		l, err := unit.Listings().ByID(ctx, conv.Listing)
		switch {
		case err == nil:
			dir.Listings[conv.Listing] = l
		case errors.Is(err, domainlistings.ErrListingNotFound):
			dir.Listings[conv.Listing] = nil
		default:
			return dir, err
		}
	}
	return dir, nil
}

package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"zedflip/internal/app/commands"
	"zedflip/internal/app/dto"
	"zedflip/internal/app/handlers/support"
	"zedflip/internal/app/middleware"
	"zedflip/internal/app/outbox"
	"zedflip/internal/app/realtime"
	"zedflip/internal/app/uow"
	domainchat "zedflip/internal/domain/chat"
	domainlistings "zedflip/internal/domain/listings"
	domainuser "zedflip/internal/domain/user"
)

const startConversationKey = "chat.start"

// StartConversationCommand finds the active conversation between the
// initiator and the listing's seller, creating it when missing. A non-empty
// Message is appended either way.
type StartConversationCommand struct {
	ListingID   string
	InitiatorID string
	Message     string
}

func (c StartConversationCommand) Key() string { return startConversationKey }

func (c StartConversationCommand) Validate() error {
	if strings.TrimSpace(c.ListingID) == "" {
		return domainchat.ErrListingRequired
	}
	if strings.TrimSpace(c.InitiatorID) == "" {
		return domainchat.ErrParticipantsInvalid
	}
	if c.Message == "" {
		return nil
	}
	_, err := domainchat.NormalizeContent(c.Message)
	return err
}

type StartConversationHandler struct {
	UoWFactory uow.UoWFactory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Notifier   realtime.Notifier
	Logger     *slog.Logger
	Now        func() time.Time
}

func (h *StartConversationHandler) Handle(ctx context.Context, cmd StartConversationCommand) (dto.StartConversationResult, error) {
	var result dto.StartConversationResult
	err := support.WithUnit(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		now := clock(h.Now)
		initiator := domainuser.ID(strings.TrimSpace(cmd.InitiatorID))

		listing, err := unit.Listings().ByID(ctx, domainlistings.ListingID(strings.TrimSpace(cmd.ListingID)))
		if err != nil {
			return err
		}
		if !listing.Visible() {
			return domainlistings.ErrListingNotFound
		}
		if listing.Seller == initiator {
			return domainchat.ErrSelfConversation
		}

		conv, created, err := h.findOrCreate(ctx, unit, listing, initiator, now)
		if err != nil {
			return err
		}

		var sent *domainchat.Message
		if cmd.Message != "" {
			msg, err := conv.AppendMessage(newMessageID(), initiator, cmd.Message, now)
			if err != nil {
				return err
			}
			if err := unit.Conversations().AppendMessage(ctx, conv.ID, msg); err != nil {
				return err
			}
			sent = &msg
		}

		if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.encoder(), conv.Drain()); err != nil {
			return err
		}

		dir, err := support.LoadDirectory(ctx, unit, conv)
		if err != nil {
			return err
		}
		result = dto.StartConversationResult{
			Conversation: dto.MapConversationDetail(conv, initiator, dir),
			Created:      created,
		}
		if sent != nil {
			payload := dto.MapChatMessage(conv.ID, *sent)
			result.Message = &payload
		}

		h.scheduleFanOut(ctx, conv, listing, initiator, created, result.Message, dir)
		return nil
	})
	if err != nil {
		return dto.StartConversationResult{}, err
	}
	h.logger().Info("conversation opened",
		"conversation_id", result.Conversation.ID,
		"listing_id", cmd.ListingID,
		"initiator_id", cmd.InitiatorID,
		"created", result.Created)
	return result, nil
}

// findOrCreate returns the active conversation for the pair, creating it when
// missing. A concurrent creator winning the race is resolved by re-reading.
func (h *StartConversationHandler) findOrCreate(ctx context.Context, unit uow.UnitOfWork, listing *domainlistings.Listing, initiator domainuser.ID, now time.Time) (*domainchat.Conversation, bool, error) {
	pair := [2]domainuser.ID{initiator, listing.Seller}
	existing, err := unit.Conversations().FindActive(ctx, listing.ID, pair)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domainchat.ErrConversationNotFound) {
		return nil, false, err
	}

	conv, err := domainchat.NewConversation(domainchat.StartParams{
		ID:        newConversationID(),
		Listing:   listing.ID,
		Initiator: initiator,
		Seller:    listing.Seller,
		Now:       now,
	})
	if err != nil {
		return nil, false, err
	}
	if err := unit.Conversations().Create(ctx, conv); err != nil {
		if !errors.Is(err, domainchat.ErrConversationExists) {
			return nil, false, err
		}
		winner, findErr := unit.Conversations().FindActive(ctx, listing.ID, pair)
		if findErr != nil {
			return nil, false, findErr
		}
		return winner, false, nil
	}
	return conv, true, nil
}

func (h *StartConversationHandler) scheduleFanOut(ctx context.Context, conv *domainchat.Conversation, listing *domainlistings.Listing, initiator domainuser.ID, created bool, msg *dto.ChatMessage, dir dto.ConversationDirectory) {
	if h.Notifier == nil {
		return
	}
	notifier := h.Notifier
	seller := listing.Seller
	convID := conv.ID
	title := listing.Title
	name := "Someone"
	if u := dir.Users[initiator]; u != nil {
		name = u.Name
	}
	uow.AfterCommit(ctx, func(ctx context.Context) {
		if created {
			notifier.Notify(ctx, seller, realtime.Notification{
				Type:    "message",
				Title:   "New conversation",
				Message: name + " is interested in " + title,
				Link:    "/messages/" + string(convID),
			})
		}
		if msg != nil {
			notifier.NotifyNewMessage(ctx, convID, *msg, seller)
		}
	})
}

func (h *StartConversationHandler) encoder() outbox.EventEncoder {
	if h.Encoder != nil {
		return h.Encoder
	}
	return outbox.JSONEventEncoder{}
}

func (h *StartConversationHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var _ commands.Handler[StartConversationCommand, dto.StartConversationResult] = (*StartConversationHandler)(nil)
var _ middleware.SelfValidating = StartConversationCommand{}

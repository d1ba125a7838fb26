package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"zedflip/internal/app/handlers/support"
	appoutbox "zedflip/internal/app/outbox"
	"zedflip/internal/app/policies"
	"zedflip/internal/app/uow"
	domainchat "zedflip/internal/domain/chat"
	domainlistings "zedflip/internal/domain/listings"
	domainuser "zedflip/internal/domain/user"
)

const (
	TemplateConversationStarted = "conversation_started"
	TemplateNewMessage          = "new_message"
	TemplateInquirySMS          = "inquiry_sms"
)

// ConversationStartedData is rendered into the seller's email and SMS.
type ConversationStartedData struct {
	ConversationID string
	ListingTitle   string
	BuyerName      string
	Text           string
}

func (d ConversationStartedData) SMSText() string { return d.Text }

// NewMessageData is rendered into the recipient's email.
type NewMessageData struct {
	ConversationID string
	SenderName     string
	Preview        string
}

// Presence reports whether a user holds a live socket on this node.
type Presence interface {
	Online(id domainuser.ID) bool
}

// Dispatcher turns chat event records into email and SMS notifications.
// Collaborator failures are logged and swallowed; only undecodable records
// produce an error. New-message email is skipped for recipients Presence
// reports online, since the socket already delivered the message.
type Dispatcher struct {
	UoWFactory uow.UoWFactory
	Email      policies.Notifier
	SMS        policies.Notifier
	Presence   Presence
	Logger     *slog.Logger
}

func NewDispatcher(factory uow.UoWFactory, email, sms policies.Notifier, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{UoWFactory: factory, Email: email, SMS: sms, Logger: logger}
}

var ErrUndecodableRecord = errors.New("notifications: undecodable event record")

// Dispatch handles one event record. Records other than chat events are ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, rec appoutbox.EventRecord) error {
	switch rec.Name {
	case domainchat.EventConversationStarted:
		var ev domainchat.ConversationStarted
		if err := json.Unmarshal(rec.Payload, &ev); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrUndecodableRecord, rec.Name, err)
		}
		return d.conversationStarted(ctx, ev)
	case domainchat.EventMessageSent:
		var ev domainchat.MessageSent
		if err := json.Unmarshal(rec.Payload, &ev); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrUndecodableRecord, rec.Name, err)
		}
		return d.messageSent(ctx, ev)
	default:
		return nil
	}
}

func (d *Dispatcher) conversationStarted(ctx context.Context, ev domainchat.ConversationStarted) error {
	var (
		seller, buyer *domainuser.User
		listing       *domainlistings.Listing
	)
	err := d.read(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		if seller, err = unit.Users().ByID(ctx, ev.SellerID); err != nil {
			return err
		}
		if buyer, err = unit.Users().ByID(ctx, ev.InitiatorID); err != nil {
			return err
		}
		listing, err = unit.Listings().ByID(ctx, ev.ListingID)
		return err
	})
	if err != nil {
		d.logger().WarnContext(ctx, "notification recipients unavailable",
			"event", domainchat.EventConversationStarted, "conversation_id", ev.ConversationID, "error", err)
		return nil
	}
	data := ConversationStartedData{
		ConversationID: string(ev.ConversationID),
		ListingTitle:   listing.Title,
		BuyerName:      buyer.Name,
		Text:           fmt.Sprintf("Someone is interested in your listing %q on ZedFlip. Check your messages!", listing.Title),
	}
	d.send(ctx, d.Email, "email", seller.Email, TemplateConversationStarted, data)
	if seller.Phone != "" {
		d.send(ctx, d.SMS, "sms", seller.Phone, TemplateInquirySMS, data)
	}
	return nil
}

func (d *Dispatcher) messageSent(ctx context.Context, ev domainchat.MessageSent) error {
	var recipient, sender *domainuser.User
	err := d.read(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		if recipient, err = unit.Users().ByID(ctx, ev.RecipientID); err != nil {
			return err
		}
		sender, err = unit.Users().ByID(ctx, ev.SenderID)
		return err
	})
	if err != nil {
		d.logger().WarnContext(ctx, "notification recipients unavailable",
			"event", domainchat.EventMessageSent, "conversation_id", ev.ConversationID, "error", err)
		return nil
	}
	if recipient.Banned {
		return nil
	}
	if d.Presence != nil && d.Presence.Online(recipient.ID) {
		d.logger().DebugContext(ctx, "recipient online, email skipped", "conversation_id", ev.ConversationID)
		return nil
	}
	d.send(ctx, d.Email, "email", recipient.Email, TemplateNewMessage, NewMessageData{
		ConversationID: string(ev.ConversationID),
		SenderName:     sender.Name,
		Preview:        ev.Preview,
	})
	return nil
}

func (d *Dispatcher) read(ctx context.Context, fn func(ctx context.Context, unit uow.UnitOfWork) error) error {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, d.UoWFactory)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}
	return fn(execCtx, unit)
}

func (d *Dispatcher) send(ctx context.Context, channel policies.Notifier, kind, to, template string, data any) {
	if channel == nil || to == "" {
		return
	}
	if err := channel.Send(ctx, to, template, data); err != nil {
		d.logger().WarnContext(ctx, "notification delivery failed", "channel", kind, "template", template, "error", err)
	}
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

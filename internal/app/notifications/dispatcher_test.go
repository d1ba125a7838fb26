package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	appoutbox "zedflip/internal/app/outbox"
	domainchat "zedflip/internal/domain/chat"
	domainlistings "zedflip/internal/domain/listings"
	"zedflip/internal/domain/shared/money"
	domainuser "zedflip/internal/domain/user"
	"zedflip/internal/infra/storage/memory"
)

type sent struct {
	to       string
	template string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, to, template string, _ any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{to: to, template: template})
	return n.err
}

func seedFactory(t *testing.T) memory.Factory {
	t.Helper()
	ctx := context.Background()
	factory := memory.NewFactory()
	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	for _, u := range []struct{ id, phone string }{{"buyer", ""}, {"seller", "+260971234567"}} {
		user, err := domainuser.NewUser(domainuser.CreateParams{
			ID:           domainuser.ID(u.id),
			Email:        u.id + "@example.com",
			Name:         "User " + u.id,
			Phone:        u.phone,
			PasswordHash: "hash",
			CreatedAt:    now,
		})
		if err != nil {
			t.Fatalf("seed user: %v", err)
		}
		if err := factory.UsersRepo.Save(ctx, user); err != nil {
			t.Fatalf("save user: %v", err)
		}
	}
	listing, err := domainlistings.NewListing(domainlistings.CreateListingParams{
		ID:     "listing-1",
		Seller: "seller",
		Details: domainlistings.Details{
			Title:       "Gas cooker",
			Description: "Four plate cooker with oven, barely used.",
			Price:       money.Must(250000, money.ZMW),
			Category:    "home",
			Condition:   domainlistings.ConditionLikeNew,
			City:        "Kitwe",
		},
		Now: now,
	})
	if err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	if err := factory.ListingsRepo.Save(ctx, listing); err != nil {
		t.Fatalf("save listing: %v", err)
	}
	return factory
}

func record(t *testing.T, name string, payload any) appoutbox.EventRecord {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return appoutbox.EventRecord{ID: "evt-1", Name: name, Payload: raw}
}

func newTestDispatcher(factory memory.Factory, email, sms *recordingNotifier) *Dispatcher {
	return NewDispatcher(factory, email, sms, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestConversationStartedNotifiesSeller(t *testing.T) {
	email, sms := &recordingNotifier{}, &recordingNotifier{}
	d := newTestDispatcher(seedFactory(t), email, sms)

	err := d.Dispatch(context.Background(), record(t, domainchat.EventConversationStarted, domainchat.ConversationStarted{
		ConversationID: "c1",
		ListingID:      "listing-1",
		InitiatorID:    "buyer",
		SellerID:       "seller",
	}))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(email.sent) != 1 || email.sent[0].to != "seller@example.com" || email.sent[0].template != TemplateConversationStarted {
		t.Fatalf("email: %+v", email.sent)
	}
	if len(sms.sent) != 1 || sms.sent[0].to != "+260971234567" {
		t.Fatalf("sms: %+v", sms.sent)
	}
}

func TestMessageSentEmailsRecipientOnly(t *testing.T) {
	email, sms := &recordingNotifier{}, &recordingNotifier{}
	d := newTestDispatcher(seedFactory(t), email, sms)

	err := d.Dispatch(context.Background(), record(t, domainchat.EventMessageSent, domainchat.MessageSent{
		ConversationID: "c1",
		MessageID:      "m1",
		SenderID:       "seller",
		RecipientID:    "buyer",
		Preview:        "Still available",
	}))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(email.sent) != 1 || email.sent[0].to != "buyer@example.com" {
		t.Fatalf("email: %+v", email.sent)
	}
	if len(sms.sent) != 0 {
		t.Fatalf("no sms expected: %+v", sms.sent)
	}
}

func TestCollaboratorFailuresAreSwallowed(t *testing.T) {
	email := &recordingNotifier{err: errors.New("smtp down")}
	d := newTestDispatcher(seedFactory(t), email, &recordingNotifier{})

	err := d.Dispatch(context.Background(), record(t, domainchat.EventMessageSent, domainchat.MessageSent{
		ConversationID: "c1",
		SenderID:       "seller",
		RecipientID:    "buyer",
	}))
	if err != nil {
		t.Fatalf("delivery failure must not surface: %v", err)
	}

	err = d.Dispatch(context.Background(), record(t, domainchat.EventMessageSent, domainchat.MessageSent{
		ConversationID: "c1",
		SenderID:       "seller",
		RecipientID:    "ghost",
	}))
	if err != nil {
		t.Fatalf("missing recipient must not surface: %v", err)
	}
}

func TestUndecodableAndUnknownRecords(t *testing.T) {
	d := newTestDispatcher(seedFactory(t), &recordingNotifier{}, &recordingNotifier{})
	ctx := context.Background()

	bad := appoutbox.EventRecord{Name: domainchat.EventMessageSent, Payload: []byte("{")}
	if err := d.Dispatch(ctx, bad); !errors.Is(err, ErrUndecodableRecord) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if err := d.Dispatch(ctx, appoutbox.EventRecord{Name: "listing.created", Payload: []byte("{}")}); err != nil {
		t.Fatalf("unknown records are ignored: %v", err)
	}
}

type presenceSet map[domainuser.ID]bool

func (p presenceSet) Online(id domainuser.ID) bool { return p[id] }

func TestMessageSentSkipsEmailForOnlineRecipient(t *testing.T) {
	email := &recordingNotifier{}
	d := newTestDispatcher(seedFactory(t), email, &recordingNotifier{})
	d.Presence = presenceSet{"buyer": true}

	ev := domainchat.MessageSent{ConversationID: "c1", SenderID: "seller", RecipientID: "buyer", Preview: "hi"}
	if err := d.Dispatch(context.Background(), record(t, domainchat.EventMessageSent, ev)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(email.sent) != 0 {
		t.Fatalf("online recipient emailed: %+v", email.sent)
	}

	d.Presence = presenceSet{"seller": true}
	if err := d.Dispatch(context.Background(), record(t, domainchat.EventMessageSent, ev)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(email.sent) != 1 || email.sent[0].to != "buyer@example.com" {
		t.Fatalf("offline recipient not emailed: %+v", email.sent)
	}
}

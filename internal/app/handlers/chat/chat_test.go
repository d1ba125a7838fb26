package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"zedflip/internal/app/dto"
	"zedflip/internal/app/realtime"
	domainchat "zedflip/internal/domain/chat"
	domainlistings "zedflip/internal/domain/listings"
	"zedflip/internal/domain/shared/money"
	domainuser "zedflip/internal/domain/user"
	"zedflip/internal/infra/storage/memory"
)

type recordedCall struct {
	kind      string
	recipient domainuser.ID
	convID    domainchat.ConversationID
	marked    int
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (n *fakeNotifier) record(c recordedCall) {
	n.mu.Lock()
	n.calls = append(n.calls, c)
	n.mu.Unlock()
}

func (n *fakeNotifier) NotifyNewMessage(_ context.Context, convID domainchat.ConversationID, _ dto.ChatMessage, recipient domainuser.ID) {
	n.record(recordedCall{kind: "message", recipient: recipient, convID: convID})
}

func (n *fakeNotifier) NotifyTyping(_ context.Context, convID domainchat.ConversationID, _ domainuser.ID, _ bool) {
	n.record(recordedCall{kind: "typing", convID: convID})
}

func (n *fakeNotifier) NotifyRead(_ context.Context, convID domainchat.ConversationID, _, recipient domainuser.ID, marked int) {
	n.record(recordedCall{kind: "read", recipient: recipient, convID: convID, marked: marked})
}

func (n *fakeNotifier) Notify(_ context.Context, userID domainuser.ID, _ realtime.Notification) {
	n.record(recordedCall{kind: "notification", recipient: userID})
}

func (n *fakeNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.calls))
	for _, c := range n.calls {
		out = append(out, c.kind)
	}
	return out
}

type fixture struct {
	factory  memory.Factory
	notifier *fakeNotifier
	outbox   *memory.Outbox
	now      func() time.Time

	start  *StartConversationHandler
	send   *SendMessageHandler
	open   *OpenConversationHandler
	read   *MarkReadHandler
	get    *GetConversationHandler
	list   *ListConversationsHandler
	unread *UnreadCountHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	factory := memory.NewFactory()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	for _, u := range []struct{ id, name string }{{"alice", "Alice Banda"}, {"bob", "Bob Phiri"}, {"carol", "Carol Zulu"}} {
		user, err := domainuser.NewUser(domainuser.CreateParams{
			ID:           domainuser.ID(u.id),
			Email:        u.id + "@example.com",
			Name:         u.name,
			City:         "Lusaka",
			PasswordHash: "hash",
			CreatedAt:    base,
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
		Seller: "bob",
		Details: domainlistings.Details{
			Title:       "Hisense 43 inch TV",
			Description: "Smart TV in great shape, remote included.",
			Price:       money.Must(350000, money.ZMW),
			Category:    "electronics",
			Condition:   domainlistings.ConditionGood,
			City:        "Lusaka",
		},
		Now: base,
	})
	if err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	if err := factory.ListingsRepo.Save(ctx, listing); err != nil {
		t.Fatalf("save listing: %v", err)
	}

	notifier := &fakeNotifier{}
	box := memory.NewOutbox(nil)
	return &fixture{
		factory:  factory,
		notifier: notifier,
		outbox:   box,
		now:      now,
		start:    &StartConversationHandler{UoWFactory: factory, Outbox: box, Notifier: notifier, Now: now},
		send:     &SendMessageHandler{UoWFactory: factory, Outbox: box, Notifier: notifier, Now: now},
		open:     &OpenConversationHandler{UoWFactory: factory, Notifier: notifier},
		read:     &MarkReadHandler{UoWFactory: factory, Notifier: notifier},
		get:      &GetConversationHandler{UoWFactory: factory},
		list:     &ListConversationsHandler{UoWFactory: factory},
		unread:   &UnreadCountHandler{UoWFactory: factory},
	}
}

func (f *fixture) unreadFor(t *testing.T, user string) int {
	t.Helper()
	res, err := f.unread.Handle(context.Background(), UnreadCountQuery{UserID: user})
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	return res.UnreadCount
}

func TestBuyerSellerScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started, err := f.start.Handle(ctx, StartConversationCommand{ListingID: "listing-1", InitiatorID: "alice", Message: "Is this available?"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	conv := started.Conversation
	if !started.Created || len(conv.Messages) != 1 {
		t.Fatalf("expected new conversation with one message, got created=%v messages=%d", started.Created, len(conv.Messages))
	}
	if conv.LastMessageText != "Is this available?" {
		t.Fatalf("last message = %q", conv.LastMessageText)
	}
	if conv.Listing.Title != "Hisense 43 inch TV" || len(conv.Participants) != 2 {
		t.Fatalf("unexpected view: %+v", conv)
	}

	reply, err := f.send.Handle(ctx, SendMessageCommand{ConversationID: conv.ID, SenderID: "bob", Content: "Yes"})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if got := f.unreadFor(t, "alice"); got != 1 {
		t.Fatalf("alice unread = %d, want 1", got)
	}
	if got := f.unreadFor(t, "bob"); got != 1 {
		t.Fatalf("bob unread = %d, want 1", got)
	}

	opened, err := f.open.Handle(ctx, OpenConversationCommand{ConversationID: conv.ID, ViewerID: "alice"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(opened.Messages) != 2 || opened.UnreadCount != 0 {
		t.Fatalf("opened: messages=%d unread=%d", len(opened.Messages), opened.UnreadCount)
	}
	if !opened.LastMessageAt.Equal(reply.CreatedAt) || opened.LastMessageText != "Yes" {
		t.Fatalf("summary out of sync: %v %q", opened.LastMessageAt, opened.LastMessageText)
	}
	if got := f.unreadFor(t, "alice"); got != 0 {
		t.Fatalf("alice unread after open = %d", got)
	}
	if got := f.unreadFor(t, "bob"); got != 1 {
		t.Fatalf("bob unread must be unaffected by alice reading, got %d", got)
	}

	kinds := strings.Join(f.notifier.kinds(), ",")
	if kinds != "notification,message,message,read" {
		t.Fatalf("fan-out sequence = %s", kinds)
	}
	if f.outbox.Pending() != 3 {
		t.Fatalf("outbox pending = %d, want 3", f.outbox.Pending())
	}
}

func TestStartConversationIsFindOrCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.start.Handle(ctx, StartConversationCommand{ListingID: "listing-1", InitiatorID: "alice"})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := f.start.Handle(ctx, StartConversationCommand{ListingID: "listing-1", InitiatorID: "alice", Message: "Still there?"})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.Created || second.Conversation.ID != first.Conversation.ID {
		t.Fatalf("expected the same conversation, got %s vs %s", second.Conversation.ID, first.Conversation.ID)
	}
	if len(second.Conversation.Messages) != 1 || second.Message == nil {
		t.Fatalf("message should be appended to existing conversation")
	}
	list, err := f.list.Handle(ctx, ListConversationsQuery{UserID: "bob"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("bob conversations = %d, want 1", len(list))
	}
}

func TestStartConversationFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.start.Handle(ctx, StartConversationCommand{ListingID: "listing-1", InitiatorID: "bob"})
	if !errors.Is(err, domainchat.ErrSelfConversation) {
		t.Fatalf("self conversation: got %v", err)
	}
	_, err = f.start.Handle(ctx, StartConversationCommand{ListingID: "missing", InitiatorID: "alice"})
	if !errors.Is(err, domainlistings.ErrListingNotFound) {
		t.Fatalf("missing listing: got %v", err)
	}
	if len(f.notifier.kinds()) != 0 {
		t.Fatalf("failed starts must not fan out, got %v", f.notifier.kinds())
	}
}

func TestSendMessageContentBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	started, err := f.start.Handle(ctx, StartConversationCommand{ListingID: "listing-1", InitiatorID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		name    string
		content string
		want    error
	}{
		{"empty", "   ", domainchat.ErrContentRequired},
		{"one char", "k", nil},
		{"max", strings.Repeat("a", 1000), nil},
		{"too long", strings.Repeat("a", 1001), domainchat.ErrContentTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := SendMessageCommand{ConversationID: started.Conversation.ID, SenderID: "alice", Content: tc.content}
			err := cmd.Validate()
			if err == nil {
				_, err = f.send.Handle(ctx, cmd)
			}
			if !errors.Is(err, tc.want) && !(tc.want == nil && err == nil) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestNonParticipantSeesNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	started, err := f.start.Handle(ctx, StartConversationCommand{ListingID: "listing-1", InitiatorID: "alice", Message: "Hello"})
	if err != nil {
		t.Fatal(err)
	}
	id := started.Conversation.ID

	_, strangerErr := f.get.Handle(ctx, GetConversationQuery{ConversationID: id, ViewerID: "carol"})
	_, missingErr := f.get.Handle(ctx, GetConversationQuery{ConversationID: "nope", ViewerID: "carol"})
	if !errors.Is(strangerErr, domainchat.ErrConversationNotFound) || strangerErr.Error() != missingErr.Error() {
		t.Fatalf("stranger=%v missing=%v", strangerErr, missingErr)
	}
	if _, err := f.send.Handle(ctx, SendMessageCommand{ConversationID: id, SenderID: "carol", Content: "hi"}); !errors.Is(err, domainchat.ErrConversationNotFound) {
		t.Fatalf("stranger send: %v", err)
	}
	if _, err := f.open.Handle(ctx, OpenConversationCommand{ConversationID: id, ViewerID: "carol"}); !errors.Is(err, domainchat.ErrConversationNotFound) {
		t.Fatalf("stranger open: %v", err)
	}
	if _, err := f.read.Handle(ctx, MarkReadCommand{ConversationID: id, ReaderID: "carol"}); !errors.Is(err, domainchat.ErrConversationNotFound) {
		t.Fatalf("stranger mark read: %v", err)
	}
}

func TestMarkReadIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	started, err := f.start.Handle(ctx, StartConversationCommand{ListingID: "listing-1", InitiatorID: "alice", Message: "One"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.send.Handle(ctx, SendMessageCommand{ConversationID: started.Conversation.ID, SenderID: "alice", Content: "Two"}); err != nil {
		t.Fatal(err)
	}

	first, err := f.read.Handle(ctx, MarkReadCommand{ConversationID: started.Conversation.ID, ReaderID: "bob"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.read.Handle(ctx, MarkReadCommand{ConversationID: started.Conversation.ID, ReaderID: "bob"})
	if err != nil {
		t.Fatal(err)
	}
	if first.Marked != 2 || second.Marked != 0 {
		t.Fatalf("marked first=%d second=%d", first.Marked, second.Marked)
	}
	if got := f.unreadFor(t, "bob"); got != 0 {
		t.Fatalf("bob unread = %d", got)
	}
	reads := 0
	for _, k := range f.notifier.kinds() {
		if k == "read" {
			reads++
		}
	}
	if reads != 1 {
		t.Fatalf("read receipts pushed %d times, want 1", reads)
	}
}

func TestUnreadIgnoresInactiveConversations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	started, err := f.start.Handle(ctx, StartConversationCommand{ListingID: "listing-1", InitiatorID: "alice", Message: "Hello"})
	if err != nil {
		t.Fatal(err)
	}
	if got := f.unreadFor(t, "bob"); got != 1 {
		t.Fatalf("bob unread = %d", got)
	}
	id := domainchat.ConversationID(started.Conversation.ID)
	if err := f.factory.ConversationsRepo.SetActive(ctx, id, false, f.now()); err != nil {
		t.Fatal(err)
	}
	if got := f.unreadFor(t, "bob"); got != 0 {
		t.Fatalf("inactive conversation still counted: %d", got)
	}
	if _, err := f.send.Handle(ctx, SendMessageCommand{ConversationID: string(id), SenderID: "alice", Content: "ping"}); !errors.Is(err, domainchat.ErrConversationNotFound) {
		t.Fatalf("append to inactive: %v", err)
	}

	restarted, err := f.start.Handle(ctx, StartConversationCommand{ListingID: "listing-1", InitiatorID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if !restarted.Created || restarted.Conversation.ID == string(id) {
		t.Fatal("a disabled conversation must not be reused")
	}
}

func TestListOrdersByActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	second, err := domainlistings.NewListing(domainlistings.CreateListingParams{
		ID:     "listing-2",
		Seller: "bob",
		Details: domainlistings.Details{
			Title:       "Mountain bike",
			Description: "Twenty one gears, new tyres fitted last month.",
			Price:       money.Must(180000, money.ZMW),
			Category:    "sports",
			Condition:   domainlistings.ConditionFair,
			City:        "Kitwe",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.factory.ListingsRepo.Save(ctx, second); err != nil {
		t.Fatal(err)
	}

	older, err := f.start.Handle(ctx, StartConversationCommand{ListingID: "listing-1", InitiatorID: "alice", Message: "TV?"})
	if err != nil {
		t.Fatal(err)
	}
	newer, err := f.start.Handle(ctx, StartConversationCommand{ListingID: "listing-2", InitiatorID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	list, err := f.list.Handle(ctx, ListConversationsQuery{UserID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != newer.Conversation.ID {
		t.Fatalf("newest conversation should lead: %+v", list)
	}
	if _, err := f.send.Handle(ctx, SendMessageCommand{ConversationID: older.Conversation.ID, SenderID: "bob", Content: "Yes"}); err != nil {
		t.Fatal(err)
	}
	list, err = f.list.Handle(ctx, ListConversationsQuery{UserID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if list[0].ID != older.Conversation.ID || list[0].UnreadCount != 1 {
		t.Fatalf("conversation with fresh reply should lead: %+v", list[0])
	}
}

func TestSendIdempotencyKeyIsScopedToConversation(t *testing.T) {
	first := SendMessageCommand{ConversationID: "conv-1", SenderID: "alice", Content: "hi", IdempotencyKeyV: "retry-1"}
	second := first
	second.ConversationID = "conv-2"
	if first.IdempotencyKey() == second.IdempotencyKey() {
		t.Fatalf("same client key in two conversations collides: %q", first.IdempotencyKey())
	}
	if (SendMessageCommand{ConversationID: "conv-1", SenderID: "alice"}).IdempotencyKey() != "" {
		t.Fatal("commands without a client key must not be deduplicated")
	}
}

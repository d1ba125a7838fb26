package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"zedflip/internal/app/dto"
	domainuser "zedflip/internal/domain/user"
)

type fakeSubscriber struct {
	id     string
	userID domainuser.ID

	mu     sync.Mutex
	frames []Frame
	fail   bool
}

func newFakeSubscriber(id string, user domainuser.ID) *fakeSubscriber {
	return &fakeSubscriber{id: id, userID: user}
}

func (s *fakeSubscriber) ID() string            { return s.id }
func (s *fakeSubscriber) UserID() domainuser.ID { return s.userID }

func (s *fakeSubscriber) Send(payload []byte) error {
	if s.fail {
		return errors.New("buffer full")
	}
	var frame Frame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return err
	}
	s.mu.Lock()
	s.frames = append(s.frames, frame)
	s.mu.Unlock()
	return nil
}

func (s *fakeSubscriber) events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.frames))
	for _, f := range s.frames {
		out = append(out, f.Event)
	}
	return out
}

type failingBroker struct{}

func (failingBroker) Publish(context.Context, Delivery) error { return errors.New("redis down") }

func newTestHub() *Hub {
	return NewHub(NewRegistry(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNotifyNewMessageReachesRecipientAndConversation(t *testing.T) {
	hub := newTestHub()
	recipientPhone := newFakeSubscriber("r-phone", "bob")
	recipientLaptop := newFakeSubscriber("r-laptop", "bob")
	sender := newFakeSubscriber("s", "alice")
	stranger := newFakeSubscriber("x", "carol")
	for _, sub := range []*fakeSubscriber{recipientPhone, recipientLaptop, sender, stranger} {
		hub.Registry.Attach(sub)
	}
	hub.Registry.Join(ConversationChannel("c1"), recipientLaptop)
	hub.Registry.Join(ConversationChannel("c1"), sender)

	msg := dto.ChatMessage{ID: "m1", ConversationID: "c1", SenderID: "alice", Content: "hi"}
	hub.NotifyNewMessage(context.Background(), "c1", msg, "bob")

	if got := recipientPhone.events(); len(got) != 1 || got[0] != EventNewMessage {
		t.Fatalf("phone got %v", got)
	}
	// laptop is on both channels and still gets the frame once
	if got := recipientLaptop.events(); len(got) != 1 {
		t.Fatalf("laptop got %v", got)
	}
	if got := sender.events(); len(got) != 0 {
		t.Fatalf("sender should not receive its own message, got %v", got)
	}
	if got := stranger.events(); len(got) != 0 {
		t.Fatalf("stranger got %v", got)
	}
}

func TestNotifyTypingExcludesSender(t *testing.T) {
	hub := newTestHub()
	typist := newFakeSubscriber("a", "alice")
	typistOtherTab := newFakeSubscriber("a2", "alice")
	peer := newFakeSubscriber("b", "bob")
	for _, sub := range []*fakeSubscriber{typist, typistOtherTab, peer} {
		hub.Registry.Attach(sub)
		hub.Registry.Join(ConversationChannel("c1"), sub)
	}

	hub.NotifyTyping(context.Background(), "c1", "alice", true)

	if len(typist.events()) != 0 || len(typistOtherTab.events()) != 0 {
		t.Fatal("typing signal must not echo to the typist")
	}
	if got := peer.events(); len(got) != 1 || got[0] != EventUserTyping {
		t.Fatalf("peer got %v", got)
	}
}

func TestNotifyWithoutConnectionsIsSilent(t *testing.T) {
	hub := newTestHub()
	hub.NotifyNewMessage(context.Background(), "c1", dto.ChatMessage{ID: "m1", SenderID: "alice"}, "bob")
	hub.NotifyRead(context.Background(), "c1", "bob", "alice", 0)
}

func TestBrokerFailureFallsBackToLocalDelivery(t *testing.T) {
	hub := newTestHub()
	hub.Broker = failingBroker{}
	sub := newFakeSubscriber("b", "bob")
	hub.Registry.Attach(sub)

	hub.Notify(context.Background(), "bob", Notification{Type: "message", Title: "New conversation"})

	if got := sub.events(); len(got) != 1 || got[0] != EventNewNotification {
		t.Fatalf("got %v", got)
	}
}

func TestFailingSubscriberDoesNotBlockOthers(t *testing.T) {
	hub := newTestHub()
	broken := newFakeSubscriber("broken", "bob")
	broken.fail = true
	healthy := newFakeSubscriber("healthy", "bob")
	hub.Registry.Attach(broken)
	hub.Registry.Attach(healthy)

	delivered := hub.Registry.Deliver(UserChannel("bob"), EncodeFrame(EventNewMessage, nil), "")
	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1", delivered)
	}
}

func TestRegistryConcurrentJoinLeave(t *testing.T) {
	reg := NewRegistry()
	const workers = 32
	subs := make([]*fakeSubscriber, workers)
	for i := range subs {
		subs[i] = newFakeSubscriber(fmt.Sprintf("s%d", i), domainuser.ID(fmt.Sprintf("u%d", i%4)))
		reg.Attach(subs[i])
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(sub *fakeSubscriber) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				ch := ConversationChannel("c1")
				reg.Join(ch, sub)
				reg.Deliver(ch, []byte(`{"event":"ping","data":null}`), "")
				reg.Leave(ch, sub)
			}
			reg.Join(ConversationChannel("c1"), sub)
		}(subs[i])
	}
	wg.Wait()

	if got := len(reg.Members(ConversationChannel("c1"))); got != workers {
		t.Fatalf("members = %d, want %d", got, workers)
	}
	for _, sub := range subs {
		reg.Detach(sub)
	}
	if reg.Connections() != 0 {
		t.Fatalf("connections left: %d", reg.Connections())
	}
	if len(reg.Members(ConversationChannel("c1"))) != 0 {
		t.Fatal("detach must clear conversation membership")
	}
	if reg.Online("u1") {
		t.Fatal("user should be offline after detach")
	}
}

func TestJoinRequiresAttach(t *testing.T) {
	reg := NewRegistry()
	sub := newFakeSubscriber("s", "alice")
	if reg.Join(ConversationChannel("c1"), sub) {
		t.Fatal("join must fail for unattached subscriber")
	}
}

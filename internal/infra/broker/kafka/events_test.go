package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"

	appoutbox "zedflip/internal/app/outbox"
)

type memoryInbox struct{ seen map[string]bool }

func (m *memoryInbox) Seen(_ context.Context, id string) (bool, error) {
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	was := m.seen[id]
	m.seen[id] = true
	return was, nil
}

func (m *memoryInbox) Forget(_ context.Context, id string) error {
	delete(m.seen, id)
	return nil
}

const sample = `{"specversion":"1.0","id":"evt-9","type":"chat.message_sent.v1","subject":"conv-1",` +
	`"time":"2025-06-01T12:00:00Z","data":{"conversation_id":"conv-1","preview":"hello"}}`

func TestEventHandlerDispatchesOnce(t *testing.T) {
	var got []appoutbox.EventRecord
	h := &EventHandler{
		Inbox: &memoryInbox{},
		Dispatch: func(_ context.Context, rec appoutbox.EventRecord) error {
			got = append(got, rec)
			return nil
		},
	}
	msg := &sarama.ConsumerMessage{
		Value:   []byte(sample),
		Headers: []*sarama.RecordHeader{{Key: []byte("traceparent"), Value: []byte("00-1")}},
	}
	for i := 0; i < 2; i++ {
		if err := h.Handle(context.Background(), msg); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	if len(got) != 1 {
		t.Fatalf("redelivery must be ignored, dispatched %d", len(got))
	}
	rec := got[0]
	if rec.ID != "evt-9" || rec.Name != "chat.message_sent" || rec.Aggregate != "conv-1" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if string(rec.Payload) != `{"conversation_id":"conv-1","preview":"hello"}` || rec.Headers["traceparent"] != "00-1" {
		t.Fatalf("unexpected payload or headers: %s %v", rec.Payload, rec.Headers)
	}
}

func TestEventHandlerRetriesFailedDispatch(t *testing.T) {
	calls := 0
	h := &EventHandler{
		Inbox: &memoryInbox{},
		Dispatch: func(context.Context, appoutbox.EventRecord) error {
			calls++
			if calls == 1 {
				return errors.New("transient")
			}
			return nil
		},
	}
	msg := &sarama.ConsumerMessage{Value: []byte(sample)}
	if err := h.Handle(context.Background(), msg); err == nil {
		t.Fatal("expected first dispatch error")
	}
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	if calls != 2 {
		t.Fatalf("failed event should be retried, calls=%d", calls)
	}
}

func TestEventHandlerRejectsMalformed(t *testing.T) {
	h := &EventHandler{Dispatch: func(context.Context, appoutbox.EventRecord) error { return nil }}
	for _, body := range []string{"{", `{"type":"chat.message_sent.v1"}`} {
		if err := h.Handle(context.Background(), &sarama.ConsumerMessage{Value: []byte(body)}); err == nil {
			t.Fatalf("expected error for %q", body)
		}
	}
}

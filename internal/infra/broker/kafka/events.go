package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	appoutbox "zedflip/internal/app/outbox"
)

// Deduper remembers handled event ids.
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// Dispatch receives a decoded event record.
type Dispatch func(ctx context.Context, record appoutbox.EventRecord) error

type cloudEvent struct {
	SpecVersion string          `json:"specversion"`
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Subject     string          `json:"subject"`
	Time        time.Time       `json:"time"`
	Data        json.RawMessage `json:"data"`
}

// EventHandler turns CloudEvents published by the outbox worker back into
// event records and hands each one to Dispatch at most once.
type EventHandler struct {
	Inbox    Deduper
	Dispatch Dispatch
}

func (h *EventHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var evt cloudEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return fmt.Errorf("kafka: decode cloudevent at offset %d: %w", msg.Offset, err)
	}
	if evt.ID == "" || evt.Type == "" {
		return fmt.Errorf("kafka: cloudevent at offset %d missing id or type", msg.Offset)
	}
	if h.Inbox != nil {
		seen, err := h.Inbox.Seen(ctx, evt.ID)
		if err != nil {
			return err
		}
		if seen {
			return nil
		}
	}
	rec := appoutbox.EventRecord{
		ID:         evt.ID,
		Name:       strings.TrimSuffix(evt.Type, ".v1"),
		Payload:    evt.Data,
		OccurredAt: evt.Time,
		Aggregate:  evt.Subject,
		Headers:    headersOf(msg),
	}
	if err := h.Dispatch(ctx, rec); err != nil {
		if h.Inbox != nil {
			_ = h.Inbox.Forget(ctx, evt.ID)
		}
		return err
	}
	return nil
}

func headersOf(msg *sarama.ConsumerMessage) map[string]string {
	out := make(map[string]string, len(msg.Headers))
	for _, hdr := range msg.Headers {
		if hdr != nil {
			out[string(hdr.Key)] = string(hdr.Value)
		}
	}
	return out
}

var _ MessageHandler = (*EventHandler)(nil)

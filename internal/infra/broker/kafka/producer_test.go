package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestProducerPublishesKeyedRecords(t *testing.T) {
	sync := mocks.NewSyncProducer(t, nil)
	defer sync.Close()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := &Producer{sync: sync, now: func() time.Time { return at }}

	sync.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil || string(key) != "conv-1" {
			return errors.New("record not keyed by conversation")
		}
		if msg.Topic != "chat.events.v1" || !msg.Timestamp.Equal(at) {
			return errors.New("unexpected topic or timestamp")
		}
		if len(msg.Headers) != 1 || string(msg.Headers[0].Key) != "ce_type" {
			return errors.New("headers not carried")
		}
		return nil
	})
	err := p.Publish(context.Background(), "chat.events.v1", "conv-1", []byte(`{}`), map[string]string{"ce_type": "chat.message_sent.v1"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestProducerStopsOnCancelledContext(t *testing.T) {
	p := &Producer{sync: mocks.NewSyncProducer(t, nil), now: time.Now}
	defer p.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Publish(ctx, "chat.events.v1", "conv-1", nil, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

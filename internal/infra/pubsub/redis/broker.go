package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"zedflip/internal/app/realtime"
)

const DefaultChannel = "zedflip:realtime"

// Deliverer hands a received delivery to the local registry.
type Deliverer interface {
	Deliver(delivery realtime.Delivery) int
}

// Broker bridges fan-out between instances over Redis pub/sub. Every
// instance, the publisher included, receives each delivery through Run.
type Broker struct {
	client  *goredis.Client
	channel string
	logger  *slog.Logger
}

func NewBroker(ctx context.Context, url, channel string, logger *slog.Logger) (*Broker, error) {
	if url == "" {
		return nil, errors.New("redis: url is required")
	}
	opt, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := goredis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return newBroker(client, channel, logger), nil
}

func newBroker(client *goredis.Client, channel string, logger *slog.Logger) *Broker {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{client: client, channel: channel, logger: logger}
}

func (b *Broker) Publish(ctx context.Context, delivery realtime.Delivery) error {
	payload, err := json.Marshal(delivery)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Run subscribes to the fan-out channel and delivers every message locally
// until ctx is cancelled.
func (b *Broker) Run(ctx context.Context, target Deliverer) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis: subscribe %s: %w", b.channel, err)
	}
	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			delivery, err := decodeDelivery(msg.Payload)
			if err != nil {
				b.logger.WarnContext(ctx, "fan-out message dropped", "channel", b.channel, "error", err)
				continue
			}
			target.Deliver(delivery)
		}
	}
}

func (b *Broker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *Broker) Close() error {
	return b.client.Close()
}

func decodeDelivery(payload string) (realtime.Delivery, error) {
	var delivery realtime.Delivery
	if err := json.Unmarshal([]byte(payload), &delivery); err != nil {
		return realtime.Delivery{}, fmt.Errorf("redis: decode delivery: %w", err)
	}
	if delivery.Channel == "" || len(delivery.Frame) == 0 {
		return realtime.Delivery{}, errors.New("redis: delivery missing channel or frame")
	}
	return delivery, nil
}

var _ realtime.Broker = (*Broker)(nil)

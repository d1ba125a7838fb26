package kafka

import (
	"context"
	"time"

	"github.com/IBM/sarama"
)

const producerClientID = "zedflip-outbox"

// Producer relays outbox records to Kafka. Records are keyed by aggregate id
// (the conversation or listing), so the hash partitioner keeps each thread's
// events in order on one partition.
type Producer struct {
	sync sarama.SyncProducer
	now  func() time.Time
}

func NewProducer(brokers []string, cfg *sarama.Config) (*Producer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
		cfg.ClientID = producerClientID
	}
	cfg.Version = sarama.V2_5_0_0
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Return.Successes = true
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	cfg.Producer.Compression = sarama.CompressionSnappy
	sync, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &Producer{sync: sync, now: time.Now}, nil
}

func (p *Producer) Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := p.sync.SendMessage(p.message(topic, key, payload, headers))
	return err
}

func (p *Producer) message(topic, key string, payload []byte, headers map[string]string) *sarama.ProducerMessage {
	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Value:     sarama.ByteEncoder(payload),
		Headers:   make([]sarama.RecordHeader, 0, len(headers)),
		Timestamp: p.now().UTC(),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	return msg
}

func (p *Producer) Close() error {
	if p.sync == nil {
		return nil
	}
	return p.sync.Close()
}

package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

type ProducerConfig struct {
	Brokers      []string
	ClientID     string
	WriteTimeout time.Duration // default 10s
}

// Producer publishes to any topic through one shared writer; the topic is set
// per message. Used for dead-letter publishing and the seed command.
type Producer struct {
	w *kafka.Writer
}

func NewProducer(c ProducerConfig) *Producer {
	wt := c.WriteTimeout
	if wt <= 0 {
		wt = 10 * time.Second
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(c.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		WriteTimeout: wt,
		BatchTimeout: 50 * time.Millisecond,
		Transport:    &kafka.Transport{ClientID: c.ClientID},
		// dead-letter topics are created on demand in dev setups
		AllowAutoTopicCreation: true,
	}

	return &Producer{w: w}
}

// Publish writes one message to the given topic, keeping key and body as-is.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte) error {
	return p.w.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	})
}

func (p *Producer) Close() error { return p.w.Close() }

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mariks1/unipeople-notify/internal/cache"
	"github.com/mariks1/unipeople-notify/internal/kafka"
	"github.com/mariks1/unipeople-notify/internal/logger"
	"github.com/mariks1/unipeople-notify/internal/metrics"
	"github.com/mariks1/unipeople-notify/internal/model"
	"github.com/mariks1/unipeople-notify/internal/repository"
	"github.com/mariks1/unipeople-notify/internal/service/delivery"
)

// Processor runs the per-message store/resolve/fan-out transaction.
type Processor interface {
	Process(ctx context.Context, env model.Envelope, now time.Time) (delivery.Result, error)
}

// Publisher sends a message body unchanged to a topic (dead-letter path).
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// DeliveryConsumer:
// - fetches envelopes from one domain topic,
// - drives the delivery pipeline per message with retry/dead-letter policy,
// - commits the offset only after the message succeeded or was dead-lettered.
type DeliveryConsumer struct {
	// Dependencies
	Consumer *kafka.Consumer
	DLQ      Publisher
	Delivery Processor
	Reports  repository.CHDeliveriesRepository // optional
	Unread   *cache.UnreadCache                // optional

	// Behavior
	Topic            string
	DLQTopic         string // default Topic + ".dlq"
	Workers          int    // goroutines processing fetched messages
	MaxRetryAttempts int    // transient failures before dead-lettering
	RetryBackoff     time.Duration
}

// NewDeliveryConsumer builds a consumer for one topic with sane defaults.
func NewDeliveryConsumer(
	consumer *kafka.Consumer,
	dlq Publisher,
	proc Processor,
	reports repository.CHDeliveriesRepository,
	unread *cache.UnreadCache,
	topic, dlqSuffix string,
) *DeliveryConsumer {
	suffix := dlqSuffix
	if suffix == "" {
		suffix = ".dlq"
	}
	return &DeliveryConsumer{
		Consumer:         consumer,
		DLQ:              dlq,
		Delivery:         proc,
		Reports:          reports,
		Unread:           unread,
		Topic:            topic,
		DLQTopic:         topic + suffix,
		Workers:          8,
		MaxRetryAttempts: 3,
		RetryBackoff:     2 * time.Second,
	}
}

// Run starts the fetch loop and processors and blocks until ctx is cancelled.
func (w *DeliveryConsumer) Run(ctx context.Context) error {
	if w.Topic == "" {
		return errors.New("delivery consumer: empty topic")
	}
	if w.Workers <= 0 {
		w.Workers = 8
	}
	if w.MaxRetryAttempts <= 0 {
		w.MaxRetryAttempts = 3
	}
	if w.RetryBackoff <= 0 {
		w.RetryBackoff = 2 * time.Second
	}

	msgCh := make(chan kafka.Message, w.Workers*2)

	// Fetcher goroutine
	go func() {
		defer close(msgCh)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				m, err := w.Consumer.Fetch(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					logger.Log.Warn("kafka fetch failed", zap.String("topic", w.Topic), zap.Error(err))
					time.Sleep(200 * time.Millisecond)
					continue
				}
				msgCh <- m
			}
		}
	}()

	// Processors
	done := make(chan struct{})
	for i := 0; i < w.Workers; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for {
				select {
				case <-ctx.Done():
					return
				case m, ok := <-msgCh:
					if !ok {
						return
					}
					w.processOne(ctx, m)
				}
			}
		}()
	}

	for i := 0; i < w.Workers; i++ {
		<-done
	}
	return nil
}

func (w *DeliveryConsumer) processOne(ctx context.Context, m kafka.Message) {
	if err := w.Handle(ctx, m); err != nil {
		// Leaving the offset uncommitted keeps at-least-once: the message
		// comes back after a rebalance or restart.
		logger.Log.Error("message not committed",
			zap.String("topic", w.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
		return
	}
	if err := w.Consumer.Commit(ctx, m); err != nil {
		logger.Log.Error("offset commit failed", zap.String("topic", w.Topic), zap.Error(err))
	}
}

// Handle runs the full per-message policy and reports whether the offset may
// be committed. The error is non-nil only when the message was neither
// processed nor dead-lettered.
func (w *DeliveryConsumer) Handle(ctx context.Context, m kafka.Message) error {
	var env model.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// malformed body is permanent: dead-letter without retrying
		return w.deadLetter(ctx, m, fmt.Errorf("unmarshal envelope: %w", err))
	}
	if err := env.Validate(); err != nil {
		return w.deadLetter(ctx, m, err)
	}

	var res delivery.Result
	var err error
	for attempt := 1; attempt <= w.MaxRetryAttempts; attempt++ {
		res, err = w.Delivery.Process(ctx, env, time.Now().UTC())
		if err == nil {
			break
		}
		logger.Log.Warn("delivery attempt failed",
			zap.String("topic", w.Topic),
			zap.String("event_id", env.EventID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt == w.MaxRetryAttempts {
			break
		}
		metrics.RetriesTotal.WithLabelValues(w.Topic).Inc()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.RetryBackoff):
		}
	}
	if err != nil {
		return w.deadLetter(ctx, m, err)
	}

	outcome := "delivered"
	if !res.Created && res.NewRows() == 0 {
		outcome = "duplicate"
	}
	metrics.EventsConsumedTotal.WithLabelValues(w.Topic, outcome).Inc()

	if res.NewRows() > 0 {
		for _, entry := range res.Inserted {
			kind := "employee"
			if entry.RecipientRole != "" {
				kind = "role"
			}
			metrics.FanoutRowsTotal.WithLabelValues(kind).Inc()
		}
		w.Unread.Invalidate(ctx, res.Recipients...)
		w.mirrorDeliveries(ctx, res)
	}

	logger.Log.Info("event processed",
		zap.String("topic", w.Topic),
		zap.String("event_id", env.EventID),
		zap.String("event_type", env.EventType),
		zap.Int("new_rows", res.NewRows()),
		zap.String("outcome", outcome))
	return nil
}

// deadLetter republishes the body unchanged to <topic>.dlq. Only a failed
// publish keeps the offset uncommitted.
func (w *DeliveryConsumer) deadLetter(ctx context.Context, m kafka.Message, cause error) error {
	if err := w.DLQ.Publish(ctx, w.DLQTopic, m.Key, m.Value); err != nil {
		return fmt.Errorf("dead-letter publish: %w (cause: %v)", err, cause)
	}
	metrics.EventsConsumedTotal.WithLabelValues(w.Topic, "dead_lettered").Inc()
	logger.Log.Error("message dead-lettered",
		zap.String("topic", w.Topic),
		zap.String("dlq", w.DLQTopic),
		zap.Error(cause))
	return nil
}

// mirrorDeliveries appends the fresh rows to the ClickHouse report sink.
// Best-effort, outside the delivery transaction.
func (w *DeliveryConsumer) mirrorDeliveries(ctx context.Context, res delivery.Result) {
	if w.Reports == nil {
		return
	}
	rows := make([]model.DeliveryReport, 0, len(res.Inserted))
	for _, entry := range res.Inserted {
		rows = append(rows, model.DeliveryReport{
			InboxID:             entry.ID,
			EventID:             res.Event.EventID,
			Source:              res.Event.Source,
			EventType:           res.Event.EventType,
			RecipientEmployeeID: entry.RecipientEmployeeID,
			RecipientRole:       entry.RecipientRole,
			DeliveredAt:         entry.DeliveredAt,
		})
	}
	if err := w.Reports.InsertBatch(ctx, rows); err != nil {
		logger.Log.Warn("clickhouse delivery mirror failed",
			zap.String("topic", w.Topic), zap.Error(err))
	}
}

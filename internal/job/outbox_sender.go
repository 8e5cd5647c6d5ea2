package job

import (
	"context"
	"time"

	"ignitia/internal/infrastructure/mq"
	"ignitia/internal/model"
	"ignitia/pkg/logger"
	"ignitia/pkg/metrics"
)

// OutboxStore is the slice of the outbox repository the relay needs.
type OutboxStore interface {
	GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	MarkSent(ctx context.Context, id int64) error
	RecordFailure(ctx context.Context, msg *model.OutboxMessage, maxRetries int) (bool, error)
}

// OutboxSender relays pending outbox messages to the publisher.
type OutboxSender struct {
	*loop
	store      OutboxStore
	publisher  mq.Publisher
	maxRetries int
	batchSize  int
}

func NewOutboxSender(store OutboxStore, publisher mq.Publisher, maxRetries, batchSize int, m *metrics.JobMetrics) *OutboxSender {
	return &OutboxSender{
		loop:       newLoop("outbox_sender", 200*time.Millisecond, m),
		store:      store,
		publisher:  publisher,
		maxRetries: maxRetries,
		batchSize:  batchSize,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.run(ctx, func(ctx context.Context) error {
		_, err := s.RunOnce(ctx)
		return err
	})
}

// RunOnce relays one batch and returns how many messages were delivered.
func (s *OutboxSender) RunOnce(ctx context.Context) (int, error) {
	messages, err := s.store.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, msg := range messages {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if s.send(ctx, msg) {
			sent++
		}
	}
	return sent, nil
}

func (s *OutboxSender) send(ctx context.Context, msg *model.OutboxMessage) bool {
	log := logger.Component(ctx, "outbox_sender")

	err := s.publisher.Publish(ctx, mq.Message{
		Topic:     msg.Topic,
		Key:       msg.MessageKey,
		EventType: msg.EventType,
		Value:     msg.Payload,
	})
	if err == nil {
		if err := s.store.MarkSent(ctx, msg.ID); err != nil {
			log.Error().Err(err).Int64("id", msg.ID).Msg("mark message sent")
			return false
		}
		log.Debug().Int64("id", msg.ID).Str("topic", msg.Topic).Str("key", msg.MessageKey).Msg("message sent")
		return true
	}

	log.Warn().Err(err).Int64("id", msg.ID).Int("retry_count", msg.RetryCount).Msg("publish failed")
	parked, err := s.store.RecordFailure(ctx, msg, s.maxRetries)
	if err != nil {
		log.Error().Err(err).Int64("id", msg.ID).Msg("record publish failure")
		return false
	}
	if parked {
		log.Error().Int64("id", msg.ID).Str("event_type", msg.EventType).Msg("message exceeded max retries, marked failed")
	}
	return false
}

package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/metrics"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/model"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/repository"
	"github.com/kipp7/landslide-monitoring-v2-sub006/pkg/kafka"
)

type Repository interface {
	UpdateAsSent(ctx context.Context, ext repository.RepoExtension, messageID uuid.UUID) error
	SelectUnsentBatch(ctx context.Context, ext repository.RepoExtension, batchSize int) ([]model.OutboxMessage, error)
}

type Config struct {
	Name         string
	PollInterval time.Duration
	BatchSize    int
}

// Publisher drains the command event outbox. Rows are published one at a time in outbox order,
// keyed by device id, so events of one device keep their relative order on the topic.
type Publisher struct {
	l          *zap.Logger
	cfg        Config
	producer   kafka.Producer
	outboxRepo Repository
	wake       chan struct{}
}

func NewPublisher(l *zap.Logger, cfg Config, producer kafka.Producer, outboxRepo Repository) *Publisher {
	return &Publisher{
		l:          l,
		cfg:        cfg,
		producer:   producer,
		outboxRepo: outboxRepo,
		wake:       make(chan struct{}, 1),
	}
}

// Wake asks for a drain without waiting for the next poll. It never blocks.
func (p *Publisher) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Publisher) Run(ctx context.Context) error {
	p.l.Info("Outbox publisher started", zap.String("name", p.cfg.Name), zap.Duration("poll_interval", p.cfg.PollInterval))

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.l.Info("Outbox publisher stopped")

			return nil
		case <-ticker.C:
		case <-p.wake:
		}

		if _, err := p.Drain(ctx); err != nil && ctx.Err() == nil {
			p.l.Error("Failed to drain outbox", zap.Error(err))
		}
	}
}

// Drain publishes unsent rows until none are left or a row fails. A failed row stops the drain so
// that later rows cannot overtake it; it is retried on the next poll.
func (p *Publisher) Drain(ctx context.Context) (int, error) {
	sent := 0

	for {
		messages, err := p.outboxRepo.SelectUnsentBatch(ctx, nil, p.cfg.BatchSize)
		if err != nil {
			return sent, fmt.Errorf("failed to select unsent messages: %w", err)
		}

		for _, msg := range messages {
			partition, offset, err := p.sendAndMark(ctx, msg)
			if err != nil {
				metrics.OutboxFailedTotal.Inc()

				return sent, err
			}

			sent++
			metrics.OutboxPublishedTotal.Inc()

			p.l.Info("Message sent",
				zap.String("message_id", msg.ID.String()),
				zap.String("key", msg.Key),
				zap.Int32("partition", partition),
				zap.Int64("offset", offset),
			)
		}

		if len(messages) < p.cfg.BatchSize {
			return sent, nil
		}
	}
}

func (p *Publisher) sendAndMark(ctx context.Context, message model.OutboxMessage) (partition int32, offset int64, err error) {
	partition, offset, err = p.producer.PushMessage(ctx, []byte(message.Key), message.Payload, message.Topic)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to push message %s: %w", message.ID, err)
	}

	if err := p.outboxRepo.UpdateAsSent(ctx, nil, message.ID); err != nil {
		return 0, 0, fmt.Errorf("failed to update message %s as sent: %w", message.ID, err)
	}

	return partition, offset, nil
}

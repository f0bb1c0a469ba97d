package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

const (
	defaultBatchSize    = 100
	defaultBatchWait    = 500 * time.Millisecond
	defaultRetryBackoff = 5 * time.Second
)

type BalanceStrategy string

const (
	RangeBalanceStrategy      BalanceStrategy = "range"
	RoundrobinBalanceStrategy BalanceStrategy = "roundrobin"
	StickyBalanceStrategy     BalanceStrategy = "sticky"
)

// MessageHandler processes a single message. A nil return means the message is done with, either
// applied or deliberately skipped. A non-nil return aborts the batch before anything is committed.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error
}

type MessageHandlerFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

func (f MessageHandlerFunc) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	return f(ctx, msg)
}

// BatchObserver is told about every finished batch. err is nil when the batch was committed.
type BatchObserver func(topic string, partition int32, size int, err error)

type ConsumerGroupRunner interface {
	Run(ctx context.Context) error
	Shutdown() error
}

type consumerOptions struct {
	clientID          string
	strategy          BalanceStrategy
	batchSize         int
	batchWait         time.Duration
	retryBackoff      time.Duration
	sessionTimeout    time.Duration
	heartbeatInterval time.Duration
	initialOffset     int64
	observer          BatchObserver
}

type ConsumerOption func(*consumerOptions)

func WithConsumerClientID(id string) ConsumerOption {
	return func(o *consumerOptions) { o.clientID = id }
}

func WithBalancerConsumer(s BalanceStrategy) ConsumerOption {
	return func(o *consumerOptions) { o.strategy = s }
}

func WithBatch(size int, wait time.Duration) ConsumerOption {
	return func(o *consumerOptions) {
		if size > 0 {
			o.batchSize = size
		}
		if wait > 0 {
			o.batchWait = wait
		}
	}
}

func WithRetryBackoff(d time.Duration) ConsumerOption {
	return func(o *consumerOptions) {
		if d > 0 {
			o.retryBackoff = d
		}
	}
}

func WithSession(timeout, heartbeat time.Duration) ConsumerOption {
	return func(o *consumerOptions) {
		o.sessionTimeout = timeout
		o.heartbeatInterval = heartbeat
	}
}

// WithInitialOffset sets where a group with no committed offset starts. Defaults to sarama.OffsetNewest.
func WithInitialOffset(offset int64) ConsumerOption {
	return func(o *consumerOptions) { o.initialOffset = offset }
}

func WithBatchObserver(fn BatchObserver) ConsumerOption {
	return func(o *consumerOptions) { o.observer = fn }
}

type BatchConsumer struct {
	log     *zap.Logger
	group   sarama.ConsumerGroup
	topics  []string
	handler *batchHandler
	backoff time.Duration
}

func NewBatchConsumer(
	log *zap.Logger,
	brokers []string,
	groupID string,
	topics []string,
	handler MessageHandler,
	opts ...ConsumerOption,
) (*BatchConsumer, error) {
	o := defaultConsumerOptions()
	for _, opt := range opts {
		opt(&o)
	}

	cfg := sarama.NewConfig()
	if o.clientID != "" {
		cfg.ClientID = o.clientID
	}

	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Offsets.AutoCommit.Enable = false
	cfg.Consumer.Offsets.Initial = o.initialOffset
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{balanceStrategy(o.strategy)}

	if o.sessionTimeout > 0 {
		cfg.Consumer.Group.Session.Timeout = o.sessionTimeout
	}

	if o.heartbeatInterval > 0 {
		cfg.Consumer.Group.Heartbeat.Interval = o.heartbeatInterval
	}

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group %s: %w", groupID, err)
	}

	return newBatchConsumer(log, group, topics, handler, o), nil
}

func newBatchConsumer(log *zap.Logger, group sarama.ConsumerGroup, topics []string, handler MessageHandler, o consumerOptions) *BatchConsumer {
	return &BatchConsumer{
		log:    log,
		group:  group,
		topics: topics,
		handler: &batchHandler{
			log:       log,
			handler:   handler,
			batchSize: o.batchSize,
			batchWait: o.batchWait,
			observer:  o.observer,
		},
		backoff: o.retryBackoff,
	}
}

func defaultConsumerOptions() consumerOptions {
	return consumerOptions{
		strategy:      RangeBalanceStrategy,
		batchSize:     defaultBatchSize,
		batchWait:     defaultBatchWait,
		retryBackoff:  defaultRetryBackoff,
		initialOffset: sarama.OffsetNewest,
	}
}

// Run joins the group and keeps consuming until ctx is cancelled or the group is closed.
// A failed batch ends the session; Run waits for the backoff and rejoins, resuming from the last commit.
func (c *BatchConsumer) Run(ctx context.Context) error {
	go c.drainErrors()

	c.log.Info("Consumer group started", zap.Strings("topics", c.topics))

	for {
		err := c.group.Consume(ctx, c.topics, c.handler)
		if errors.Is(err, sarama.ErrClosedConsumerGroup) {
			c.log.Info("Consumer group closed")
			return nil
		}

		if ctx.Err() != nil {
			c.log.Info("Context canceled, stopping consumer group")
			return nil
		}

		if err != nil {
			c.log.Error("Consumer group session failed", zap.Error(err))
		}

		if err != nil || c.handler.takeFailure() {
			c.log.Warn("Rejoining consumer group after backoff", zap.Duration("backoff", c.backoff))

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
		}
	}
}

func (c *BatchConsumer) Shutdown() error {
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("failed to close consumer group: %w", err)
	}

	return nil
}

func (c *BatchConsumer) drainErrors() {
	for err := range c.group.Errors() {
		c.log.Error("Consumer group error", zap.Error(err))
	}
}

type batchHandler struct {
	log       *zap.Logger
	handler   MessageHandler
	batchSize int
	batchWait time.Duration
	observer  BatchObserver
	failed    atomic.Bool
}

func (h *batchHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.log.Info("Consumer group session started",
		zap.String("member_id", sess.MemberID()),
		zap.Int32("generation_id", sess.GenerationID()),
		zap.Any("claims", sess.Claims()),
	)

	return nil
}

func (h *batchHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	h.log.Info("Consumer group session ended", zap.String("member_id", sess.MemberID()))

	return nil
}

func (h *batchHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		batch, open := h.collect(sess.Context(), claim.Messages())

		if len(batch) > 0 {
			if err := h.process(sess, batch); err != nil {
				h.failed.Store(true)
				h.observe(claim.Topic(), claim.Partition(), len(batch), err)

				return err
			}

			h.observe(claim.Topic(), claim.Partition(), len(batch), nil)
		}

		if !open {
			return nil
		}
	}
}

// collect blocks for the first message, then gathers more until the batch is full or batchWait elapses.
func (h *batchHandler) collect(ctx context.Context, messages <-chan *sarama.ConsumerMessage) ([]*sarama.ConsumerMessage, bool) {
	var batch []*sarama.ConsumerMessage

	select {
	case <-ctx.Done():
		return nil, false
	case msg, ok := <-messages:
		if !ok {
			return nil, false
		}

		batch = append(batch, msg)
	}

	timer := time.NewTimer(h.batchWait)
	defer timer.Stop()

	for len(batch) < h.batchSize {
		select {
		case <-ctx.Done():
			return batch, false
		case msg, ok := <-messages:
			if !ok {
				return batch, false
			}

			batch = append(batch, msg)
		case <-timer.C:
			return batch, true
		}
	}

	return batch, true
}

// process handles the batch in order and commits once at the end. Offsets of a failed batch are
// never marked, so the group resumes from the previous commit.
func (h *batchHandler) process(sess sarama.ConsumerGroupSession, batch []*sarama.ConsumerMessage) error {
	ctx := sess.Context()

	var last *sarama.ConsumerMessage

	for _, msg := range batch {
		if ctx.Err() != nil {
			break
		}

		if err := h.handler.HandleMessage(ctx, msg); err != nil {
			return fmt.Errorf("failed to handle %s/%d@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
		}

		last = msg
	}

	if last == nil {
		return nil
	}

	sess.MarkMessage(last, "")
	sess.Commit()

	h.log.Debug("Batch committed",
		zap.String("topic", last.Topic),
		zap.Int32("partition", last.Partition),
		zap.Int64("offset", last.Offset),
		zap.Int("size", len(batch)),
	)

	return nil
}

func (h *batchHandler) takeFailure() bool {
	return h.failed.Swap(false)
}

func (h *batchHandler) observe(topic string, partition int32, size int, err error) {
	if h.observer != nil {
		h.observer(topic, partition, size, err)
	}
}

func balanceStrategy(s BalanceStrategy) sarama.BalanceStrategy {
	switch s {
	case RoundrobinBalanceStrategy:
		return sarama.NewBalanceStrategyRoundRobin()
	case StickyBalanceStrategy:
		return sarama.NewBalanceStrategySticky()
	default:
		return sarama.NewBalanceStrategyRange()
	}
}

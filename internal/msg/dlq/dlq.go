package dlq

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/contract"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/metrics"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/model"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/repository"
)

type Repository interface {
	InsertIfAbsent(ctx context.Context, ext repository.RepoExtension, m *model.TelemetryDlqMessage) (bool, error)
}

type EnvelopeValidator interface {
	Validate(payload []byte) contract.Result[model.TelemetryDlqEnvelope]
}

// Recorder archives dead-lettered telemetry. Rows are keyed by the broker position they were
// read from, so a redelivered message is recorded once.
type Recorder struct {
	l         *zap.Logger
	validator EnvelopeValidator
	repo      Repository
}

func NewRecorder(l *zap.Logger, validator EnvelopeValidator, repo Repository) *Recorder {
	return &Recorder{
		l:         l,
		validator: validator,
		repo:      repo,
	}
}

func (r *Recorder) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	res := r.validator.Validate(msg.Value)
	if !res.Valid {
		metrics.CountMessage(msg.Topic, metrics.OutcomeSkippedInvalid)
		r.l.Warn("Telemetry DLQ schema invalid, skipped",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Int("size", len(msg.Value)),
			zap.Strings("errors", res.Errors),
		)

		return nil
	}

	row := Row(msg, res.Value)

	inserted, err := r.repo.InsertIfAbsent(ctx, nil, row)
	if err != nil {
		metrics.CountMessage(msg.Topic, metrics.OutcomeFailed)

		return fmt.Errorf("failed to record dlq message %s/%d@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
	}

	if !inserted {
		metrics.CountMessage(msg.Topic, metrics.OutcomeDuplicate)

		return nil
	}

	metrics.CountMessage(msg.Topic, metrics.OutcomeProcessed)
	r.l.Info("Telemetry DLQ message recorded",
		zap.String("reason_code", row.ReasonCode),
		zap.Stringp("device_id", row.DeviceID),
		zap.Time("received_ts", row.ReceivedTS),
		zap.Int("raw_payload_size", len(row.RawPayload)),
	)

	return nil
}

// Row maps an envelope and the position it was read from to an archive row. Absent optional
// fields stay nil and are stored as NULL.
func Row(msg *sarama.ConsumerMessage, env *model.TelemetryDlqEnvelope) *model.TelemetryDlqMessage {
	var key *string
	if msg.Key != nil {
		k := string(msg.Key)
		key = &k
	}

	return &model.TelemetryDlqMessage{
		KafkaTopic:     msg.Topic,
		KafkaPartition: msg.Partition,
		KafkaOffset:    msg.Offset,
		KafkaKey:       key,
		ReceivedTS:     env.ReceivedTS.Time,
		DeviceID:       env.DeviceID,
		ReasonCode:     env.ReasonCode,
		ReasonDetail:   env.ReasonDetail,
		RawPayload:     env.RawPayload,
	}
}

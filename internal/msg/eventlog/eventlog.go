package eventlog

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/contract"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/lifecycle"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/metrics"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/model"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/repository"
)

type Repository interface {
	InsertIfAbsent(ctx context.Context, ext repository.RepoExtension, rec *model.DeviceCommandEventRecord) (bool, error)
}

type EventValidator interface {
	Validate(payload []byte) contract.Result[model.DeviceCommandEvent]
}

// Recorder keeps an audit copy of every valid command lifecycle event.
type Recorder struct {
	l         *zap.Logger
	validator EventValidator
	repo      Repository
}

func NewRecorder(l *zap.Logger, validator EventValidator, repo Repository) *Recorder {
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
		r.l.Warn("Command event schema invalid, skipped",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Strings("errors", res.Errors),
		)

		return nil
	}

	ev := res.Value

	if want, ok := lifecycle.StatusOf(ev.EventType); ok && want != ev.Status {
		r.l.Warn("Command event status does not match its type",
			zap.String("event_id", ev.EventID.String()),
			zap.String("event_type", string(ev.EventType)),
			zap.String("status", string(ev.Status)),
		)
	}

	rec, err := Record(ev)
	if err != nil {
		metrics.CountMessage(msg.Topic, metrics.OutcomeSkippedInvalid)
		r.l.Warn("Failed to encode command event result, skipped", zap.String("event_id", ev.EventID.String()), zap.Error(err))

		return nil
	}

	inserted, err := r.repo.InsertIfAbsent(ctx, nil, rec)
	if err != nil {
		metrics.CountMessage(msg.Topic, metrics.OutcomeFailed)

		return fmt.Errorf("failed to record command event %s: %w", ev.EventID, err)
	}

	if !inserted {
		metrics.CountMessage(msg.Topic, metrics.OutcomeDuplicate)

		return nil
	}

	metrics.CountMessage(msg.Topic, metrics.OutcomeProcessed)
	r.l.Debug("Command event recorded",
		zap.String("event_id", ev.EventID.String()),
		zap.String("event_type", string(ev.EventType)),
		zap.String("command_id", ev.CommandID),
	)

	return nil
}

func Record(ev *model.DeviceCommandEvent) (*model.DeviceCommandEventRecord, error) {
	rec := &model.DeviceCommandEventRecord{
		EventID:   ev.EventID,
		EventType: ev.EventType,
		CommandID: ev.CommandID,
		DeviceID:  ev.DeviceID,
		Status:    ev.Status,
		CreatedAt: ev.CreatedTS.Time,
	}

	if ev.Detail != "" {
		detail := ev.Detail
		rec.Detail = &detail
	}

	rec.Result = []byte(`{}`)

	if ev.Result != nil {
		result, err := json.Marshal(ev.Result)
		if err != nil {
			return nil, err
		}

		rec.Result = result
	}

	return rec, nil
}

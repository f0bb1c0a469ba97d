package notifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/contract"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/metrics"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/model"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/repository"
)

type Repository interface {
	InsertIfAbsent(ctx context.Context, ext repository.RepoExtension, n *model.DeviceCommandNotification) (bool, error)
}

type EventValidator interface {
	Validate(payload []byte) contract.Result[model.DeviceCommandEvent]
}

// Handler turns COMMAND_TIMEOUT and COMMAND_FAILED events into pending notifications. Other event
// types are consumed and ignored.
type Handler struct {
	l          *zap.Logger
	validator  EventValidator
	repo       Repository
	notifyType string
}

func NewHandler(l *zap.Logger, validator EventValidator, repo Repository, notifyType string) *Handler {
	return &Handler{
		l:          l,
		validator:  validator,
		repo:       repo,
		notifyType: notifyType,
	}
}

func (h *Handler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	res := h.validator.Validate(msg.Value)
	if !res.Valid {
		metrics.CountMessage(msg.Topic, metrics.OutcomeSkippedInvalid)
		h.l.Warn("Command event schema invalid, skipped",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Strings("errors", res.Errors),
		)

		return nil
	}

	ev := res.Value

	if !ev.Terminal() {
		metrics.CountMessage(msg.Topic, metrics.OutcomeIgnored)

		return nil
	}

	n := Build(ev, h.notifyType)

	inserted, err := h.repo.InsertIfAbsent(ctx, nil, n)
	if err != nil {
		metrics.CountMessage(msg.Topic, metrics.OutcomeFailed)

		return fmt.Errorf("failed to store notification for event %s: %w", ev.EventID, err)
	}

	if !inserted {
		metrics.CountMessage(msg.Topic, metrics.OutcomeDuplicate)
		h.l.Debug("Notification already exists", zap.String("event_id", ev.EventID.String()))

		return nil
	}

	metrics.CountMessage(msg.Topic, metrics.OutcomeProcessed)
	h.l.Info("Notification created",
		zap.String("event_id", ev.EventID.String()),
		zap.String("event_type", string(ev.EventType)),
		zap.String("command_id", ev.CommandID),
	)

	return nil
}

// Build renders the notification for a terminal event.
func Build(ev *model.DeviceCommandEvent, notifyType string) *model.DeviceCommandNotification {
	prefix := "Command failed"
	if ev.EventType == model.CommandEventTimeout {
		prefix = "Command timeout"
	}

	var b strings.Builder

	b.WriteString(prefix + "\n")
	b.WriteString("deviceId=" + ev.DeviceID + "\n")
	b.WriteString("commandId=" + ev.CommandID + "\n")
	b.WriteString("status=" + string(ev.Status) + "\n")

	if ev.Detail != "" {
		b.WriteString("detail=" + ev.Detail + "\n")
	}

	return &model.DeviceCommandNotification{
		EventID:    ev.EventID,
		NotifyType: notifyType,
		Status:     model.NotificationStatusPending,
		Title:      prefix + ": " + ev.CommandID,
		Content:    b.String(),
	}
}

package repository

import (
	"context"
	"fmt"

	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/model"
)

type TelemetryDlqRepository struct {
	db DB
}

func NewTelemetryDlqRepository(db DB) *TelemetryDlqRepository {
	return &TelemetryDlqRepository{db: db}
}

// InsertIfAbsent appends the message unless its broker position was recorded before.
func (r *TelemetryDlqRepository) InsertIfAbsent(ctx context.Context, ext RepoExtension, m *model.TelemetryDlqMessage) (bool, error) {
	if ext == nil {
		ext = r.db
	}

	const query = `
		INSERT INTO telemetry_dlq_messages (
			kafka_topic, kafka_partition, kafka_offset, kafka_key,
			received_ts, device_id, reason_code, reason_detail, raw_payload
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (kafka_topic, kafka_partition, kafka_offset) DO NOTHING;
	`

	tag, err := ext.Exec(ctx, query,
		m.KafkaTopic,
		m.KafkaPartition,
		m.KafkaOffset,
		m.KafkaKey,
		m.ReceivedTS,
		m.DeviceID,
		m.ReasonCode,
		m.ReasonDetail,
		m.RawPayload,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert dlq message: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/model"
)

type OutboxRepository struct {
	db DB
}

func NewOutboxRepository(db DB) *OutboxRepository {
	return &OutboxRepository{
		db: db,
	}
}

func (r *OutboxRepository) InsertMessage(ctx context.Context, ext RepoExtension, message model.OutboxMessage) error {
	if ext == nil {
		ext = r.db
	}

	const query = `
		INSERT INTO device_command_event_outbox (event_id, topic, message_key, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING;
	`

	_, err := ext.Exec(ctx, query, message.ID, message.Topic, message.Key, message.Payload)
	if err != nil {
		return err
	}

	return nil
}

func (r *OutboxRepository) UpdateAsSent(ctx context.Context, ext RepoExtension, messageID uuid.UUID) error {
	if ext == nil {
		ext = r.db
	}

	const query = `
		UPDATE device_command_event_outbox
		SET sent = true, sent_at = NOW()
		WHERE event_id = $1;
	`

	_, err := ext.Exec(ctx, query, messageID)
	if err != nil {
		return err
	}

	return nil
}

// SelectUnsentBatch returns unsent rows in insertion order.
func (r *OutboxRepository) SelectUnsentBatch(ctx context.Context, ext RepoExtension, batchSize int) ([]model.OutboxMessage, error) {
	if ext == nil {
		ext = r.db
	}

	var messages []model.OutboxMessage

	const query = `
		SELECT event_id, topic, message_key, payload, created_at, sent, sent_at
		FROM device_command_event_outbox
		WHERE sent = false
		ORDER BY created_at, event_id
		LIMIT $1;
	`

	rows, err := ext.Query(ctx, query, batchSize)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var message model.OutboxMessage
		if err := rows.Scan(
			&message.ID,
			&message.Topic,
			&message.Key,
			&message.Payload,
			&message.CreatedAt,
			&message.Sent,
			&message.SentAt,
		); err != nil {
			return nil, err
		}

		messages = append(messages, message)
	}

	return messages, rows.Err()
}

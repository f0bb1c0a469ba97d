package repository

import (
	"context"
	"fmt"

	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/model"
)

type CommandEventRepository struct {
	db DB
}

func NewCommandEventRepository(db DB) *CommandEventRepository {
	return &CommandEventRepository{db: db}
}

func (r *CommandEventRepository) InsertIfAbsent(ctx context.Context, ext RepoExtension, rec *model.DeviceCommandEventRecord) (bool, error) {
	if ext == nil {
		ext = r.db
	}

	const query = `
		INSERT INTO device_command_events (
			event_id, event_type, command_id, device_id, status, detail, result, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING;
	`

	tag, err := ext.Exec(ctx, query,
		rec.EventID,
		rec.EventType,
		rec.CommandID,
		rec.DeviceID,
		rec.Status,
		rec.Detail,
		rec.Result,
		rec.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert command event: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/model"
)

type NotificationRepository struct {
	db DB
}

func NewNotificationRepository(db DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// InsertIfAbsent stores the notification unless one already exists for the same event and
// channel. It reports whether a row was inserted.
func (r *NotificationRepository) InsertIfAbsent(ctx context.Context, ext RepoExtension, n *model.DeviceCommandNotification) (bool, error) {
	if ext == nil {
		ext = r.db
	}

	const query = `
		INSERT INTO device_command_notifications (event_id, notify_type, status, title, content)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id, notify_type) DO NOTHING;
	`

	tag, err := ext.Exec(ctx, query, n.EventID, n.NotifyType, n.Status, n.Title, n.Content)
	if err != nil {
		return false, fmt.Errorf("failed to insert notification: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

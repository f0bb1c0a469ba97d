package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
)

// DeviceCommandNotification is unique per (EventID, NotifyType).
type DeviceCommandNotification struct {
	NotificationID int64              `db:"notification_id"`
	EventID        uuid.UUID          `db:"event_id"`
	NotifyType     string             `db:"notify_type"`
	Status         NotificationStatus `db:"status"`
	Title          string             `db:"title"`
	Content        string             `db:"content"`
	CreatedAt      time.Time          `db:"created_at"`
	SentAt         *time.Time         `db:"sent_at"`
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// OutboxMessage is a command lifecycle event waiting to be published. ID is the event id.
type OutboxMessage struct {
	ID        uuid.UUID  `db:"event_id"`
	Topic     string     `db:"topic"`
	Key       string     `db:"message_key"`
	Payload   []byte     `db:"payload"`
	CreatedAt time.Time  `db:"created_at"`
	Sent      bool       `db:"sent"`
	SentAt    *time.Time `db:"sent_at"`
}

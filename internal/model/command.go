package model

import (
	"time"
)

type CommandStatus string

const (
	CommandStatusQueued   CommandStatus = "queued"
	CommandStatusSent     CommandStatus = "sent"
	CommandStatusAcked    CommandStatus = "acked"
	CommandStatusFailed   CommandStatus = "failed"
	CommandStatusTimeout  CommandStatus = "timeout"
	CommandStatusCanceled CommandStatus = "canceled"
)

// DeviceCommand is owned by the dispatcher. Only the sent -> timeout edge is written here.
type DeviceCommand struct {
	CommandID    string        `db:"command_id"`
	DeviceID     string        `db:"device_id"`
	Status       CommandStatus `db:"status"`
	SentAt       *time.Time    `db:"sent_at"`
	ErrorMessage *string       `db:"error_message"`
	UpdatedAt    time.Time     `db:"updated_at"`
}

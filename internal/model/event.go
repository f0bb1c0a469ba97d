package model

import (
	"time"

	"github.com/google/uuid"
)

const CommandEventSchemaVersion = 1

type CommandEventType string

const (
	CommandEventSent    CommandEventType = "COMMAND_SENT"
	CommandEventAcked   CommandEventType = "COMMAND_ACKED"
	CommandEventFailed  CommandEventType = "COMMAND_FAILED"
	CommandEventTimeout CommandEventType = "COMMAND_TIMEOUT"
)

// DeviceCommandEvent is the lifecycle envelope on the command events topic. EventID is the
// idempotency key for every side effect derived from the event.
type DeviceCommandEvent struct {
	SchemaVersion int              `json:"schema_version"`
	EventID       uuid.UUID        `json:"event_id"`
	EventType     CommandEventType `json:"event_type"`
	CreatedTS     Timestamp        `json:"created_ts"`
	CommandID     string           `json:"command_id"`
	DeviceID      string           `json:"device_id"`
	Status        CommandStatus    `json:"status"`
	Detail        string           `json:"detail,omitempty"`
	Result        map[string]any   `json:"result"`
}

// Terminal reports whether the event describes a failed or timed out command.
func (e *DeviceCommandEvent) Terminal() bool {
	return e.EventType == CommandEventFailed || e.EventType == CommandEventTimeout
}

// DeviceCommandEventRecord is the audit row in device_command_events.
type DeviceCommandEventRecord struct {
	EventID    uuid.UUID        `db:"event_id"`
	EventType  CommandEventType `db:"event_type"`
	CommandID  string           `db:"command_id"`
	DeviceID   string           `db:"device_id"`
	Status     CommandStatus    `db:"status"`
	Detail     *string          `db:"detail"`
	Result     []byte           `db:"result"`
	CreatedAt  time.Time        `db:"created_at"`
	RecordedAt time.Time        `db:"recorded_at"`
}

package model

import (
	"time"
)

const TelemetryDlqSchemaVersion = 1

// TelemetryDlqEnvelope is the error report published to the telemetry dead-letter topic.
type TelemetryDlqEnvelope struct {
	SchemaVersion int       `json:"schema_version"`
	ReasonCode    string    `json:"reason_code"`
	ReasonDetail  *string   `json:"reason_detail,omitempty"`
	ReceivedTS    Timestamp `json:"received_ts"`
	DeviceID      *string   `json:"device_id,omitempty"`
	RawPayload    string    `json:"raw_payload"`
}

// TelemetryDlqMessage is append-only and keyed by the broker position it was read from.
type TelemetryDlqMessage struct {
	ID             int64     `db:"id"`
	KafkaTopic     string    `db:"kafka_topic"`
	KafkaPartition int32     `db:"kafka_partition"`
	KafkaOffset    int64     `db:"kafka_offset"`
	KafkaKey       *string   `db:"kafka_key"`
	ReceivedTS     time.Time `db:"received_ts"`
	DeviceID       *string   `db:"device_id"`
	ReasonCode     string    `db:"reason_code"`
	ReasonDetail   *string   `db:"reason_detail"`
	RawPayload     string    `db:"raw_payload"`
	CreatedAt      time.Time `db:"created_at"`
}

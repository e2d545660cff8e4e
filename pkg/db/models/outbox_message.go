package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxMessage is an append-only record of a business fact awaiting
// publication. Rows are never deleted; published_at marks delivery.
type OutboxMessage struct {
	ID            int64           `gorm:"column:id;primaryKey;autoIncrement"`
	EventID       uuid.UUID       `gorm:"column:event_id;type:uuid;not null;uniqueIndex:ux_outbox_event_id"`
	EventType     string          `gorm:"column:event_type;not null"`
	CorrelationID string          `gorm:"column:correlation_id;not null"`
	Source        string          `gorm:"column:source;not null"`
	Payload       json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	OccurredAt    time.Time       `gorm:"column:occurred_at;not null"`
	PublishedAt   *time.Time      `gorm:"column:published_at"`
	Attempts      int             `gorm:"column:attempts;not null;default:0"`
	LastError     *string         `gorm:"column:last_error"`
}

func (OutboxMessage) TableName() string {
	return "outbox_messages"
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// InboxMessage records that a consumer has durably applied the side effects
// of an event. A row exists only if the business mutation committed with it.
type InboxMessage struct {
	ID          int64      `gorm:"column:id;primaryKey;autoIncrement"`
	EventID     uuid.UUID  `gorm:"column:event_id;type:uuid;not null;uniqueIndex:ux_inbox_event_consumer"`
	EventType   string     `gorm:"column:event_type;not null"`
	Consumer    string     `gorm:"column:consumer;not null;uniqueIndex:ux_inbox_event_consumer"`
	ReceivedAt  time.Time  `gorm:"column:received_at;not null"`
	ProcessedAt *time.Time `gorm:"column:processed_at"`
	Error       *string    `gorm:"column:error"`
}

func (InboxMessage) TableName() string {
	return "inbox_messages"
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationLog records every outbound customer notification. Delivery
// is simulated; the row is the audit trail.
type NotificationLog struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	PaymentID   uuid.UUID `gorm:"column:payment_id;type:uuid;index:ix_notification_payment_id;not null"`
	EventType   string    `gorm:"column:event_type;not null"`
	Channel     string    `gorm:"column:channel;not null"`
	Destination string    `gorm:"column:destination;not null"`
	Message     string    `gorm:"column:message;not null"`
	SentAt      time.Time `gorm:"column:sent_at;not null"`
}

func (NotificationLog) TableName() string {
	return "notification_logs"
}

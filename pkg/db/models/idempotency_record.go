package models

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyRecord pins an Idempotency-Key to the payment it created and
// the hash of the request body that created it. The unique index on the
// key is the durable half of the idempotency guard.
type IdempotencyRecord struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Key         string    `gorm:"column:key;uniqueIndex:ux_idempotency_key;not null"`
	RequestHash string    `gorm:"column:request_hash;not null"`
	PaymentID   uuid.UUID `gorm:"column:payment_id;type:uuid;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

func (IdempotencyRecord) TableName() string {
	return "idempotency_records"
}

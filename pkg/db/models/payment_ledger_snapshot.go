package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentLedgerSnapshot tracks, per payment, whether a posting and a
// reversal have already been applied. It is the ledger's idempotency
// guard: a posting only happens when IsPosted is still false, a reversal
// only when IsPosted is true and IsReversed is still false.
type PaymentLedgerSnapshot struct {
	ID         int64           `gorm:"column:id;primaryKey;autoIncrement"`
	PaymentID  uuid.UUID       `gorm:"column:payment_id;type:uuid;uniqueIndex:ux_snapshot_payment_id;not null"`
	Amount     decimal.Decimal `gorm:"column:amount;type:numeric(18,2);not null"`
	Currency   string          `gorm:"column:currency;not null"`
	IsPosted   bool            `gorm:"column:is_posted;not null"`
	IsReversed bool            `gorm:"column:is_reversed;not null"`
	PostedAt   *time.Time      `gorm:"column:posted_at"`
	ReversedAt *time.Time      `gorm:"column:reversed_at"`
	CreatedAt  time.Time       `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;not null"`
}

func (PaymentLedgerSnapshot) TableName() string {
	return "payment_ledger_snapshots"
}

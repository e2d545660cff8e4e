package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ledgerpay-backend/pkg/enums"
)

// LedgerEntry is one leg of a double-entry posting. Entries are append
// only; a reversal adds inverse legs rather than mutating the originals.
type LedgerEntry struct {
	ID        int64                 `gorm:"column:id;primaryKey;autoIncrement"`
	PaymentID uuid.UUID             `gorm:"column:payment_id;type:uuid;index:ix_ledger_payment_id;not null"`
	Account   string                `gorm:"column:account;not null"`
	EntryType enums.LedgerEntryType `gorm:"column:entry_type;not null"`
	Operation enums.LedgerOperation `gorm:"column:operation;not null"`
	Amount    decimal.Decimal       `gorm:"column:amount;type:numeric(18,2);not null"`
	Currency  string                `gorm:"column:currency;not null"`
	CreatedAt time.Time             `gorm:"column:created_at;not null"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

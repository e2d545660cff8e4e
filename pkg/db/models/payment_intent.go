package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ledgerpay-backend/pkg/enums"
)

// PaymentIntent is the payments service's view of a payment lifecycle.
// State moves only through the transition methods below; an illegal
// transition is a no-op so that replayed events cannot corrupt state.
type PaymentIntent struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Amount        decimal.Decimal     `gorm:"column:amount;type:numeric(18,2);not null"`
	Currency      string              `gorm:"column:currency;not null"`
	PayerID       string              `gorm:"column:payer_id;not null"`
	MerchantID    string              `gorm:"column:merchant_id;not null"`
	Status        enums.PaymentStatus `gorm:"column:status;not null"`
	CorrelationID string              `gorm:"column:correlation_id;not null"`
	LastReason    *string             `gorm:"column:last_reason"`
	CreatedAt     time.Time           `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;not null"`
}

func (PaymentIntent) TableName() string {
	return "payment_intents"
}

// NewPaymentIntent creates a payment in the PendingRisk state.
func NewPaymentIntent(amount decimal.Decimal, currency, payerID, merchantID, correlationID string) *PaymentIntent {
	now := time.Now().UTC()
	return &PaymentIntent{
		ID:            uuid.New(),
		Amount:        amount,
		Currency:      strings.ToUpper(currency),
		PayerID:       payerID,
		MerchantID:    merchantID,
		Status:        enums.PaymentStatusPendingRisk,
		CorrelationID: correlationID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// MarkApproved moves PendingRisk to Approved. Returns false when the
// transition does not apply.
func (p *PaymentIntent) MarkApproved(reason string) bool {
	if p.Status != enums.PaymentStatusPendingRisk {
		return false
	}
	p.Status = enums.PaymentStatusApproved
	p.setReason(reason)
	return true
}

// MarkRejected moves PendingRisk to Rejected.
func (p *PaymentIntent) MarkRejected(reason string) bool {
	if p.Status != enums.PaymentStatusPendingRisk {
		return false
	}
	p.Status = enums.PaymentStatusRejected
	p.setReason(reason)
	return true
}

// MarkPosted moves Approved (or ReversalRequested, when the ledger
// confirmation raced a reversal request) to Posted.
func (p *PaymentIntent) MarkPosted() bool {
	if p.Status != enums.PaymentStatusApproved && p.Status != enums.PaymentStatusReversalRequested {
		return false
	}
	p.Status = enums.PaymentStatusPosted
	p.touch()
	return true
}

// RequestReversal moves Posted to ReversalRequested.
func (p *PaymentIntent) RequestReversal(reason string) bool {
	if p.Status != enums.PaymentStatusPosted {
		return false
	}
	p.Status = enums.PaymentStatusReversalRequested
	p.setReason(reason)
	return true
}

// MarkReversed moves ReversalRequested or Posted to Reversed.
func (p *PaymentIntent) MarkReversed(reason string) bool {
	if p.Status != enums.PaymentStatusReversalRequested && p.Status != enums.PaymentStatusPosted {
		return false
	}
	p.Status = enums.PaymentStatusReversed
	p.setReason(reason)
	return true
}

func (p *PaymentIntent) setReason(reason string) {
	r := reason
	p.LastReason = &r
	p.touch()
}

func (p *PaymentIntent) touch() {
	p.UpdatedAt = time.Now().UTC()
}

package messaging

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ledgerpay-backend/pkg/enums"
)

// PaymentCreated announces a new payment awaiting risk review.
type PaymentCreated struct {
	PaymentID  uuid.UUID       `json:"paymentId"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	PayerID    string          `json:"payerId"`
	MerchantID string          `json:"merchantId"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// PaymentApproved carries a positive risk verdict.
type PaymentApproved struct {
	PaymentID      uuid.UUID       `json:"paymentId"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Score          int             `json:"score"`
	DecisionReason string          `json:"decisionReason"`
	ApprovedAt     time.Time       `json:"approvedAt"`
}

// PaymentRejected carries a negative risk verdict.
type PaymentRejected struct {
	PaymentID      uuid.UUID       `json:"paymentId"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Score          int             `json:"score"`
	DecisionReason string          `json:"decisionReason"`
	RejectedAt     time.Time       `json:"rejectedAt"`
}

// PaymentReversed asks the ledger to undo a posted payment. The payment
// itself reaches Reversed only after the ledger confirms.
type PaymentReversed struct {
	PaymentID  uuid.UUID       `json:"paymentId"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Reason     string          `json:"reason"`
	ReversedAt time.Time       `json:"reversedAt"`
}

// LedgerPosted confirms double-entry rows were written. Operation says
// whether they post the payment or reverse an earlier posting.
type LedgerPosted struct {
	PaymentID uuid.UUID             `json:"paymentId"`
	Operation enums.LedgerOperation `json:"operation"`
	PostedAt  time.Time             `json:"postedAt"`
}

package payments

import (
	"github.com/shopspring/decimal"
)

// CreatePaymentInput is the validated request body for a new payment.
type CreatePaymentInput struct {
	Amount     decimal.Decimal `json:"amount" validate:"required"`
	Currency   string          `json:"currency" validate:"required,len=3,alpha"`
	PayerID    string          `json:"payerId" validate:"required"`
	MerchantID string          `json:"merchantId" validate:"required"`
}

// ReversalInput carries the optional reason for a reversal request.
type ReversalInput struct {
	Reason string `json:"reason" validate:"max=500"`
}

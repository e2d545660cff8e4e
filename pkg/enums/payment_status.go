package enums

// PaymentStatus is the payment intent lifecycle state.
type PaymentStatus string

const (
	PaymentStatusPendingRisk       PaymentStatus = "PendingRisk"
	PaymentStatusApproved          PaymentStatus = "Approved"
	PaymentStatusRejected          PaymentStatus = "Rejected"
	PaymentStatusPosted            PaymentStatus = "Posted"
	PaymentStatusReversalRequested PaymentStatus = "ReversalRequested"
	PaymentStatusReversed          PaymentStatus = "Reversed"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPendingRisk,
		PaymentStatusApproved,
		PaymentStatusRejected,
		PaymentStatusPosted,
		PaymentStatusReversalRequested,
		PaymentStatusReversed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusRejected || s == PaymentStatusReversed
}

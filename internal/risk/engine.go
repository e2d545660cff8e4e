package risk

import (
	"hash/fnv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Scoring rules. Payments above the amount ceiling are rejected outright,
// as are payments whose deterministic score falls below the floor.
var amountCeiling = decimal.NewFromInt(20000)

const scoreFloor = 25

// Score derives a stable pseudo-score from the payment id. The same
// payment always scores the same, so replayed events reach the same
// verdict.
func Score(paymentID uuid.UUID) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(paymentID.String())))
	return int(h.Sum32() % 100)
}

// Verdict is the outcome of evaluating one payment.
type Verdict struct {
	Score    int
	Approved bool
	Reason   string
}

// Evaluate applies the scoring rules to a payment.
func Evaluate(paymentID uuid.UUID, amount decimal.Decimal) Verdict {
	score := Score(paymentID)
	if amount.GreaterThan(amountCeiling) {
		return Verdict{Score: score, Approved: false, Reason: "amount exceeds ceiling"}
	}
	if score < scoreFloor {
		return Verdict{Score: score, Approved: false, Reason: "risk score below threshold"}
	}
	return Verdict{Score: score, Approved: true, Reason: "risk score acceptable"}
}

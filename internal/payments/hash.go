package payments

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// RequestHash fingerprints the request body for idempotency comparison.
// Fields are serialized in a fixed order so equivalent requests always
// hash the same regardless of JSON key ordering.
func RequestHash(input CreatePaymentInput) string {
	canonical := fmt.Sprintf(
		"amount=%s|currency=%s|payerId=%s|merchantId=%s",
		input.Amount.String(),
		strings.ToUpper(input.Currency),
		input.PayerID,
		input.MerchantID,
	)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/ledgerpay-backend/pkg/db/models"
	"github.com/angelmondragon/ledgerpay-backend/pkg/enums"
	apperrors "github.com/angelmondragon/ledgerpay-backend/pkg/errors"
)

// balanceEpsilon absorbs float noise when snapshot sums and entry sums
// are compared.
var balanceEpsilon = decimal.NewFromFloat(0.0001)

// ReconciliationReport compares what payments say happened with what the
// ledger actually recorded.
type ReconciliationReport struct {
	PaymentsNetAmount decimal.Decimal `json:"paymentsNetAmount"`
	LedgerNetAmount   decimal.Decimal `json:"ledgerNetAmount"`
	Difference        decimal.Decimal `json:"difference"`
	IsBalanced        bool            `json:"isBalanced"`
	PostedCount       int64           `json:"postedCount"`
	ReversedCount     int64           `json:"reversedCount"`
	GeneratedAt       time.Time       `json:"generatedAt"`
}

// Reconciler builds reconciliation reports over the ledger database.
type Reconciler struct {
	db *gorm.DB
}

func NewReconciler(db *gorm.DB) *Reconciler {
	return &Reconciler{db: db}
}

// Report computes the snapshot-side net (posted minus reversed) and the
// entry-side net (customer cash debits minus credits) and compares them.
func (r *Reconciler) Report(ctx context.Context) (*ReconciliationReport, error) {
	var snapshots []models.PaymentLedgerSnapshot
	if err := r.db.WithContext(ctx).Find(&snapshots).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "loading snapshots")
	}

	paymentsNet := decimal.Zero
	var postedCount, reversedCount int64
	for _, s := range snapshots {
		if !s.IsPosted {
			continue
		}
		postedCount++
		if s.IsReversed {
			reversedCount++
			continue
		}
		paymentsNet = paymentsNet.Add(s.Amount)
	}

	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("account = ?", enums.AccountCustomerCash).
		Find(&entries).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "loading ledger entries")
	}

	ledgerNet := decimal.Zero
	for _, e := range entries {
		switch e.EntryType {
		case enums.LedgerEntryTypeDebit:
			ledgerNet = ledgerNet.Add(e.Amount)
		case enums.LedgerEntryTypeCredit:
			ledgerNet = ledgerNet.Sub(e.Amount)
		}
	}

	difference := paymentsNet.Sub(ledgerNet)
	return &ReconciliationReport{
		PaymentsNetAmount: paymentsNet,
		LedgerNetAmount:   ledgerNet,
		Difference:        difference,
		IsBalanced:        difference.Abs().LessThan(balanceEpsilon),
		PostedCount:       postedCount,
		ReversedCount:     reversedCount,
		GeneratedAt:       time.Now().UTC(),
	}, nil
}

package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/ledgerpay-backend/pkg/db/models"
	"github.com/angelmondragon/ledgerpay-backend/pkg/enums"
	apperrors "github.com/angelmondragon/ledgerpay-backend/pkg/errors"
)

// Service exposes read access to the ledger for the HTTP surface.
type Service interface {
	EntriesForPayment(ctx context.Context, paymentID uuid.UUID) ([]models.LedgerEntry, error)
	SnapshotForPayment(ctx context.Context, paymentID uuid.UUID) (*models.PaymentLedgerSnapshot, error)
}

type service struct {
	db *gorm.DB
}

// NewService wires the ledger read service.
func NewService(db *gorm.DB) Service {
	return &service{db: db}
}

func (s *service) EntriesForPayment(ctx context.Context, paymentID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := s.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "loading ledger entries")
	}
	if len(entries) == 0 {
		return nil, apperrors.New(apperrors.CodeNotFound, "no ledger entries for payment")
	}
	return entries, nil
}

func (s *service) SnapshotForPayment(ctx context.Context, paymentID uuid.UUID) (*models.PaymentLedgerSnapshot, error) {
	var snapshot models.PaymentLedgerSnapshot
	err := s.db.WithContext(ctx).First(&snapshot, "payment_id = ?", paymentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "payment has no ledger snapshot")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "loading ledger snapshot")
	}
	return &snapshot, nil
}

// post writes the double-entry legs for an approved payment and flips
// the snapshot to posted. Returns false when the payment was already
// posted.
func post(tx *gorm.DB, paymentID uuid.UUID, amount decimal.Decimal, currency string) (bool, error) {
	var snapshot models.PaymentLedgerSnapshot
	err := tx.First(&snapshot, "payment_id = ?", paymentID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		now := time.Now().UTC()
		snapshot = models.PaymentLedgerSnapshot{
			PaymentID: paymentID,
			Amount:    amount,
			Currency:  currency,
			CreatedAt: now,
			UpdatedAt: now,
		}
	case err != nil:
		return false, err
	}
	if snapshot.IsPosted {
		return false, nil
	}

	now := time.Now().UTC()
	legs := []models.LedgerEntry{
		{
			PaymentID: paymentID,
			Account:   enums.AccountCustomerCash,
			EntryType: enums.LedgerEntryTypeDebit,
			Operation: enums.LedgerOperationPost,
			Amount:    amount,
			Currency:  currency,
			CreatedAt: now,
		},
		{
			PaymentID: paymentID,
			Account:   enums.AccountMerchantSettlement,
			EntryType: enums.LedgerEntryTypeCredit,
			Operation: enums.LedgerOperationPost,
			Amount:    amount,
			Currency:  currency,
			CreatedAt: now,
		},
	}
	if err := tx.Create(&legs).Error; err != nil {
		return false, err
	}

	snapshot.IsPosted = true
	snapshot.PostedAt = &now
	snapshot.UpdatedAt = now
	if err := tx.Save(&snapshot).Error; err != nil {
		return false, err
	}
	return true, nil
}

// reverse writes the inverse legs for a posted payment. Returns false
// when there is nothing to reverse or it was already reversed.
func reverse(tx *gorm.DB, paymentID uuid.UUID) (*models.PaymentLedgerSnapshot, bool, error) {
	var snapshot models.PaymentLedgerSnapshot
	err := tx.First(&snapshot, "payment_id = ?", paymentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !snapshot.IsPosted || snapshot.IsReversed {
		return &snapshot, false, nil
	}

	now := time.Now().UTC()
	legs := []models.LedgerEntry{
		{
			PaymentID: paymentID,
			Account:   enums.AccountCustomerCash,
			EntryType: enums.LedgerEntryTypeCredit,
			Operation: enums.LedgerOperationReversal,
			Amount:    snapshot.Amount,
			Currency:  snapshot.Currency,
			CreatedAt: now,
		},
		{
			PaymentID: paymentID,
			Account:   enums.AccountMerchantSettlement,
			EntryType: enums.LedgerEntryTypeDebit,
			Operation: enums.LedgerOperationReversal,
			Amount:    snapshot.Amount,
			Currency:  snapshot.Currency,
			CreatedAt: now,
		},
	}
	if err := tx.Create(&legs).Error; err != nil {
		return nil, false, err
	}

	snapshot.IsReversed = true
	snapshot.ReversedAt = &now
	snapshot.UpdatedAt = now
	if err := tx.Save(&snapshot).Error; err != nil {
		return nil, false, err
	}
	return &snapshot, true, nil
}

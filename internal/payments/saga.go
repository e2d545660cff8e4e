package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/ledgerpay-backend/pkg/db/models"
	"github.com/angelmondragon/ledgerpay-backend/pkg/enums"
	"github.com/angelmondragon/ledgerpay-backend/pkg/logger"
	"github.com/angelmondragon/ledgerpay-backend/pkg/messaging"
)

// Saga advances payment state from the verdicts and confirmations other
// services publish. Illegal transitions are silent no-ops so replays and
// out-of-order deliveries cannot corrupt a payment.
type Saga struct {
	repo Repository
	logg *logger.Logger
}

func NewSaga(repo Repository, logg *logger.Logger) *Saga {
	return &Saga{repo: repo, logg: logg}
}

// Handlers returns the event table for the payments consumer.
func (s *Saga) Handlers() map[string]messaging.Handler {
	return map[string]messaging.Handler{
		messaging.EventPaymentApproved: s.onApproved,
		messaging.EventPaymentRejected: s.onRejected,
		messaging.EventLedgerPosted:    s.onLedgerPosted,
	}
}

func (s *Saga) onApproved(ctx context.Context, tx *gorm.DB, env messaging.EventEnvelope) error {
	var payload messaging.PaymentApproved
	if err := env.DecodePayload(&payload); err != nil {
		return err
	}
	return s.transition(ctx, tx, env, payload.PaymentID, func(p *models.PaymentIntent) bool {
		return p.MarkApproved(payload.DecisionReason)
	})
}

func (s *Saga) onRejected(ctx context.Context, tx *gorm.DB, env messaging.EventEnvelope) error {
	var payload messaging.PaymentRejected
	if err := env.DecodePayload(&payload); err != nil {
		return err
	}
	return s.transition(ctx, tx, env, payload.PaymentID, func(p *models.PaymentIntent) bool {
		return p.MarkRejected(payload.DecisionReason)
	})
}

// onLedgerPosted folds both ledger confirmations. Operation Post settles
// the payment; Operation Reversal completes a requested reversal.
func (s *Saga) onLedgerPosted(ctx context.Context, tx *gorm.DB, env messaging.EventEnvelope) error {
	var payload messaging.LedgerPosted
	if err := env.DecodePayload(&payload); err != nil {
		return err
	}
	if payload.Operation == enums.LedgerOperationReversal {
		return s.transition(ctx, tx, env, payload.PaymentID, func(p *models.PaymentIntent) bool {
			return p.MarkReversed("ledger reversal posted")
		})
	}
	return s.transition(ctx, tx, env, payload.PaymentID, func(p *models.PaymentIntent) bool {
		return p.MarkPosted()
	})
}

func (s *Saga) transition(ctx context.Context, tx *gorm.DB, env messaging.EventEnvelope, paymentID uuid.UUID, apply func(*models.PaymentIntent) bool) error {
	if paymentID == uuid.Nil {
		return fmt.Errorf("missing payment id in %s", env.EventType)
	}

	repo := s.repo.WithTx(tx)
	payment, err := repo.GetByID(ctx, paymentID)
	if err == ErrNotFound {
		// The payment row may not have committed yet on this replica;
		// fail so the retry queue delivers the event again later.
		return fmt.Errorf("payment %s not found for %s", paymentID, env.EventType)
	}
	if err != nil {
		return err
	}

	if !apply(payment) {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"payment_id": paymentID.String(),
			"status":     string(payment.Status),
			"event_type": env.EventType,
		}), "transition not applicable, skipping")
		return nil
	}

	if err := repo.Update(ctx, payment); err != nil {
		return err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"payment_id": paymentID.String(),
		"status":     string(payment.Status),
	}), "payment state advanced")
	return nil
}

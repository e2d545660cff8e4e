package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/ledgerpay-backend/pkg/enums"
	"github.com/angelmondragon/ledgerpay-backend/pkg/logger"
	"github.com/angelmondragon/ledgerpay-backend/pkg/messaging"
	"github.com/angelmondragon/ledgerpay-backend/pkg/outbox"
)

const eventSource = "ledger-api"

// Handler posts approved payments to the ledger and reverses them on
// request. The per-payment snapshot makes both operations idempotent.
type Handler struct {
	emitter outbox.Emitter
	logg    *logger.Logger
}

func NewHandler(emitter outbox.Emitter, logg *logger.Logger) *Handler {
	return &Handler{emitter: emitter, logg: logg}
}

// Handlers returns the event table for the ledger consumer.
func (h *Handler) Handlers() map[string]messaging.Handler {
	return map[string]messaging.Handler{
		messaging.EventPaymentApproved: h.onApproved,
		messaging.EventPaymentReversed: h.onReversed,
	}
}

func (h *Handler) onApproved(ctx context.Context, tx *gorm.DB, env messaging.EventEnvelope) error {
	var payload messaging.PaymentApproved
	if err := env.DecodePayload(&payload); err != nil {
		return err
	}
	if payload.PaymentID == uuid.Nil {
		return errors.New("missing payment id")
	}

	applied, err := post(tx, payload.PaymentID, payload.Amount, payload.Currency)
	if err != nil {
		return err
	}
	if !applied {
		h.logg.Debug(h.logg.WithField(ctx, "payment_id", payload.PaymentID.String()), "payment already posted")
		return nil
	}

	postedEnv, err := messaging.NewEnvelope(messaging.EventLedgerPosted, env.CorrelationID, eventSource, messaging.LedgerPosted{
		PaymentID: payload.PaymentID,
		Operation: enums.LedgerOperationPost,
		PostedAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := h.emitter.Emit(ctx, tx, postedEnv); err != nil {
		return err
	}

	h.logg.Info(h.logg.WithFields(ctx, map[string]any{
		"payment_id": payload.PaymentID.String(),
		"amount":     payload.Amount.String(),
	}), "payment posted to ledger")
	return nil
}

func (h *Handler) onReversed(ctx context.Context, tx *gorm.DB, env messaging.EventEnvelope) error {
	var payload messaging.PaymentReversed
	if err := env.DecodePayload(&payload); err != nil {
		return err
	}
	if payload.PaymentID == uuid.Nil {
		return errors.New("missing payment id")
	}

	snapshot, applied, err := reverse(tx, payload.PaymentID)
	if err != nil {
		return err
	}
	if snapshot == nil {
		// The posting may still be in flight; retry until it lands.
		return errors.New("no ledger snapshot for reversal")
	}
	if !applied {
		h.logg.Debug(h.logg.WithField(ctx, "payment_id", payload.PaymentID.String()), "reversal already applied or not posted")
		return nil
	}

	reversedEnv, err := messaging.NewEnvelope(messaging.EventLedgerPosted, env.CorrelationID, eventSource, messaging.LedgerPosted{
		PaymentID: payload.PaymentID,
		Operation: enums.LedgerOperationReversal,
		PostedAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := h.emitter.Emit(ctx, tx, reversedEnv); err != nil {
		return err
	}

	h.logg.Info(h.logg.WithField(ctx, "payment_id", payload.PaymentID.String()), "payment reversed in ledger")
	return nil
}

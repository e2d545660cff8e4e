package risk

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/ledgerpay-backend/pkg/db"
	"github.com/angelmondragon/ledgerpay-backend/pkg/db/models"
	"github.com/angelmondragon/ledgerpay-backend/pkg/logger"
	"github.com/angelmondragon/ledgerpay-backend/pkg/messaging"
	"github.com/angelmondragon/ledgerpay-backend/pkg/outbox"
)

const eventSource = "risk-worker"

// Handler assesses created payments and emits the verdict. The unique
// index on payment_id makes replays benign: the assessment and its
// outbound event are written at most once.
type Handler struct {
	emitter outbox.Emitter
	logg    *logger.Logger
}

func NewHandler(emitter outbox.Emitter, logg *logger.Logger) *Handler {
	return &Handler{emitter: emitter, logg: logg}
}

// Handlers returns the event table for the risk consumer.
func (h *Handler) Handlers() map[string]messaging.Handler {
	return map[string]messaging.Handler{
		messaging.EventPaymentCreated: h.onPaymentCreated,
	}
}

func (h *Handler) onPaymentCreated(ctx context.Context, tx *gorm.DB, env messaging.EventEnvelope) error {
	var payload messaging.PaymentCreated
	if err := env.DecodePayload(&payload); err != nil {
		return err
	}
	if payload.PaymentID == uuid.Nil {
		return errors.New("missing payment id")
	}

	var existing models.RiskAssessment
	err := tx.First(&existing, "payment_id = ?", payload.PaymentID).Error
	if err == nil {
		h.logg.Debug(h.logg.WithField(ctx, "payment_id", payload.PaymentID.String()), "payment already assessed")
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	verdict := Evaluate(payload.PaymentID, payload.Amount)
	assessment := models.RiskAssessment{
		PaymentID:  payload.PaymentID,
		Score:      verdict.Score,
		Approved:   verdict.Approved,
		Reason:     verdict.Reason,
		AssessedAt: time.Now().UTC(),
	}
	if err := tx.Create(&assessment).Error; err != nil {
		if db.IsUniqueViolation(err, "ux_risk_payment_id") {
			// A concurrent delivery assessed it first.
			return nil
		}
		return err
	}

	verdictEnv, err := h.verdictEnvelope(env.CorrelationID, payload, verdict)
	if err != nil {
		return err
	}
	if err := h.emitter.Emit(ctx, tx, verdictEnv); err != nil {
		return err
	}

	h.logg.Info(h.logg.WithFields(ctx, map[string]any{
		"payment_id": payload.PaymentID.String(),
		"score":      verdict.Score,
		"approved":   verdict.Approved,
	}), "payment assessed")
	return nil
}

func (h *Handler) verdictEnvelope(correlationID string, payload messaging.PaymentCreated, verdict Verdict) (messaging.EventEnvelope, error) {
	if verdict.Approved {
		return messaging.NewEnvelope(messaging.EventPaymentApproved, correlationID, eventSource, messaging.PaymentApproved{
			PaymentID:      payload.PaymentID,
			Amount:         payload.Amount,
			Currency:       payload.Currency,
			Score:          verdict.Score,
			DecisionReason: verdict.Reason,
			ApprovedAt:     time.Now().UTC(),
		})
	}
	return messaging.NewEnvelope(messaging.EventPaymentRejected, correlationID, eventSource, messaging.PaymentRejected{
		PaymentID:      payload.PaymentID,
		Amount:         payload.Amount,
		Currency:       payload.Currency,
		Score:          verdict.Score,
		DecisionReason: verdict.Reason,
		RejectedAt:     time.Now().UTC(),
	})
}

package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/ledgerpay-backend/pkg/db/models"
	"github.com/angelmondragon/ledgerpay-backend/pkg/enums"
	"github.com/angelmondragon/ledgerpay-backend/pkg/logger"
	"github.com/angelmondragon/ledgerpay-backend/pkg/messaging"
)

const channelWebhook = "webhook"

// Handler turns terminal payment outcomes into customer notifications.
// Delivery is simulated; every notification leaves an audit row.
type Handler struct {
	logg *logger.Logger
}

func NewHandler(logg *logger.Logger) *Handler {
	return &Handler{logg: logg}
}

// Handlers returns the event table for the notifications consumer.
func (h *Handler) Handlers() map[string]messaging.Handler {
	return map[string]messaging.Handler{
		messaging.EventPaymentRejected: h.onRejected,
		messaging.EventLedgerPosted:    h.onLedgerPosted,
	}
}

func (h *Handler) onRejected(ctx context.Context, tx *gorm.DB, env messaging.EventEnvelope) error {
	var payload messaging.PaymentRejected
	if err := env.DecodePayload(&payload); err != nil {
		return err
	}
	message := fmt.Sprintf("Your payment was declined: %s", payload.DecisionReason)
	return h.record(ctx, tx, env.EventType, payload.PaymentID, message)
}

func (h *Handler) onLedgerPosted(ctx context.Context, tx *gorm.DB, env messaging.EventEnvelope) error {
	var payload messaging.LedgerPosted
	if err := env.DecodePayload(&payload); err != nil {
		return err
	}
	message := "Your payment was completed"
	if payload.Operation == enums.LedgerOperationReversal {
		message = "Your payment was refunded"
	}
	return h.record(ctx, tx, env.EventType, payload.PaymentID, message)
}

func (h *Handler) record(ctx context.Context, tx *gorm.DB, eventType string, paymentID uuid.UUID, message string) error {
	if paymentID == uuid.Nil {
		return errors.New("missing payment id")
	}
	row := models.NotificationLog{
		PaymentID:   paymentID,
		EventType:   eventType,
		Channel:     channelWebhook,
		Destination: fmt.Sprintf("https://hooks.example.com/payments/%s", paymentID),
		Message:     message,
		SentAt:      time.Now().UTC(),
	}
	if err := tx.Create(&row).Error; err != nil {
		return err
	}
	h.logg.Info(h.logg.WithFields(ctx, map[string]any{
		"payment_id": paymentID.String(),
		"event_type": eventType,
	}), "notification recorded")
	return nil
}

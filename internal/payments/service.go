package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/ledgerpay-backend/pkg/db"
	"github.com/angelmondragon/ledgerpay-backend/pkg/db/models"
	apperrors "github.com/angelmondragon/ledgerpay-backend/pkg/errors"
	"github.com/angelmondragon/ledgerpay-backend/pkg/logger"
	"github.com/angelmondragon/ledgerpay-backend/pkg/messaging"
	"github.com/angelmondragon/ledgerpay-backend/pkg/outbox"
	"github.com/angelmondragon/ledgerpay-backend/pkg/redis"
)

const eventSource = "payments-api"

// Service defines the payment lifecycle operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, idempotencyKey string, input CreatePaymentInput) (*models.PaymentIntent, bool, error)
	Get(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	RequestReversal(ctx context.Context, id uuid.UUID, input ReversalInput) (*models.PaymentIntent, error)
}

type service struct {
	client  *db.Client
	repo    Repository
	emitter outbox.Emitter
	cache   *idempotencyCache
	logg    *logger.Logger
}

// NewService wires the payments service.
func NewService(
	client *db.Client,
	repo Repository,
	emitter outbox.Emitter,
	store redis.IdempotencyStore,
	logg *logger.Logger,
	cacheTTL time.Duration,
) Service {
	return &service{
		client:  client,
		repo:    repo,
		emitter: emitter,
		cache:   newIdempotencyCache(store, logg, cacheTTL),
		logg:    logg,
	}
}

// Create registers a payment exactly once per idempotency key. The bool
// result reports whether a new payment was created on this call.
func (s *service) Create(ctx context.Context, idempotencyKey string, input CreatePaymentInput) (*models.PaymentIntent, bool, error) {
	if idempotencyKey == "" {
		return nil, false, apperrors.New(apperrors.CodeValidation, "Idempotency-Key header is required")
	}
	if !input.Amount.IsPositive() {
		return nil, false, apperrors.New(apperrors.CodeValidation, "amount must be positive")
	}

	requestHash := RequestHash(input)

	// Fast path: Redis remembers recent keys. A hit whose payment row
	// is gone counts as a miss and the table decides instead.
	if cached := s.cache.Lookup(ctx, idempotencyKey); cached != nil {
		payment, created, err := s.replay(ctx, idempotencyKey, requestHash, cached.RequestHash, cached.PaymentID)
		if err != ErrNotFound {
			return payment, created, err
		}
		s.logg.Warn(s.logg.WithField(ctx, "payment_id", cached.PaymentID.String()),
			"idempotency cache entry references a missing payment")
	}

	// Durable path: the idempotency table is the source of truth.
	record, err := s.repo.GetIdempotencyRecord(ctx, idempotencyKey)
	if err != nil && err != ErrNotFound {
		return nil, false, apperrors.Wrap(apperrors.CodeInternal, err, "loading idempotency record")
	}
	if record != nil {
		s.cache.Store(ctx, idempotencyKey, record.RequestHash, record.PaymentID)
		payment, created, err := s.replay(ctx, idempotencyKey, requestHash, record.RequestHash, record.PaymentID)
		if err == ErrNotFound {
			return nil, false, apperrors.Wrap(apperrors.CodeInternal, err, "idempotency record references a missing payment")
		}
		return payment, created, err
	}

	payment := models.NewPaymentIntent(
		input.Amount,
		input.Currency,
		input.PayerID,
		input.MerchantID,
		correlationID(ctx),
	)

	txErr := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, payment); err != nil {
			return err
		}
		if err := repo.CreateIdempotencyRecord(ctx, &models.IdempotencyRecord{
			Key:         idempotencyKey,
			RequestHash: requestHash,
			PaymentID:   payment.ID,
			CreatedAt:   time.Now().UTC(),
		}); err != nil {
			return err
		}
		env, err := messaging.NewEnvelope(messaging.EventPaymentCreated, payment.CorrelationID, eventSource, messaging.PaymentCreated{
			PaymentID:  payment.ID,
			Amount:     payment.Amount,
			Currency:   payment.Currency,
			PayerID:    payment.PayerID,
			MerchantID: payment.MerchantID,
			CreatedAt:  payment.CreatedAt,
		})
		if err != nil {
			return err
		}
		return s.emitter.Emit(ctx, tx, env)
	})
	if txErr != nil {
		if db.IsUniqueViolation(txErr, "ux_idempotency_key") {
			// A concurrent request with the same key won the race.
			record, err := s.repo.GetIdempotencyRecord(ctx, idempotencyKey)
			if err != nil {
				return nil, false, apperrors.Wrap(apperrors.CodeInternal, err, "resolving concurrent idempotent request")
			}
			payment, created, err := s.replay(ctx, idempotencyKey, requestHash, record.RequestHash, record.PaymentID)
			if err == ErrNotFound {
				return nil, false, apperrors.Wrap(apperrors.CodeInternal, err, "resolving concurrent idempotent request")
			}
			return payment, created, err
		}
		return nil, false, apperrors.Wrap(apperrors.CodeInternal, txErr, "creating payment")
	}

	s.cache.Store(ctx, idempotencyKey, requestHash, payment.ID)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"payment_id": payment.ID.String(),
		"amount":     payment.Amount.String(),
	}), "payment created")
	return payment, true, nil
}

// replay resolves a repeated idempotency key: same request gets the
// original payment back, a different body under the same key conflicts.
// A missing payment row surfaces as ErrNotFound so the caller can decide
// whether the source was stale.
func (s *service) replay(ctx context.Context, key, requestHash, recordedHash string, paymentID uuid.UUID) (*models.PaymentIntent, bool, error) {
	payment, err := s.repo.GetByID(ctx, paymentID)
	if err == ErrNotFound {
		return nil, false, err
	}
	if err != nil {
		return nil, false, apperrors.Wrap(apperrors.CodeInternal, err, "loading payment for idempotent replay")
	}
	if requestHash != recordedHash {
		return nil, false, apperrors.New(apperrors.CodeIdempotency, "Idempotency-Key already used with a different request body")
	}
	s.logg.Info(s.logg.WithField(ctx, "payment_id", paymentID.String()), "idempotent replay")
	return payment, false, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	payment, err := s.repo.GetByID(ctx, id)
	if err == ErrNotFound {
		return nil, apperrors.New(apperrors.CodeNotFound, "payment not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "loading payment")
	}
	return payment, nil
}

// RequestReversal moves a posted payment to ReversalRequested and asks
// the ledger to undo it.
func (s *service) RequestReversal(ctx context.Context, id uuid.UUID, input ReversalInput) (*models.PaymentIntent, error) {
	payment, err := s.repo.GetByID(ctx, id)
	if err == ErrNotFound {
		return nil, apperrors.New(apperrors.CodeNotFound, "payment not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "loading payment")
	}

	reason := input.Reason
	if reason == "" {
		reason = "reversal requested"
	}
	if !payment.RequestReversal(reason) {
		return nil, apperrors.New(apperrors.CodeStateConflict, "payment must be in Posted status").
			WithDetails(map[string]string{"status": string(payment.Status)})
	}

	txErr := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Update(ctx, payment); err != nil {
			return err
		}
		env, err := messaging.NewEnvelope(messaging.EventPaymentReversed, payment.CorrelationID, eventSource, messaging.PaymentReversed{
			PaymentID:  payment.ID,
			Amount:     payment.Amount,
			Currency:   payment.Currency,
			Reason:     reason,
			ReversedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		return s.emitter.Emit(ctx, tx, env)
	})
	if txErr != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, txErr, "requesting reversal")
	}

	s.logg.Info(s.logg.WithField(ctx, "payment_id", payment.ID.String()), "reversal requested")
	return payment, nil
}

func correlationID(ctx context.Context) string {
	if v, ok := ctx.Value(correlationKey{}).(string); ok && v != "" {
		return v
	}
	return uuid.NewString()
}

type correlationKey struct{}

// WithCorrelationID stamps the request's correlation id into the context
// so emitted events carry it downstream.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

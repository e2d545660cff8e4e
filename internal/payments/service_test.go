package payments

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/ledgerpay-backend/pkg/db"
	"github.com/angelmondragon/ledgerpay-backend/pkg/db/models"
	"github.com/angelmondragon/ledgerpay-backend/pkg/enums"
	apperrors "github.com/angelmondragon/ledgerpay-backend/pkg/errors"
	"github.com/angelmondragon/ledgerpay-backend/pkg/logger"
	"github.com/angelmondragon/ledgerpay-backend/pkg/messaging"
	"github.com/angelmondragon/ledgerpay-backend/pkg/outbox"
)

type fakeIdemStore struct {
	data map[string]string
}

func newFakeIdemStore() *fakeIdemStore {
	return &fakeIdemStore{data: map[string]string{}}
}

func (f *fakeIdemStore) Get(ctx context.Context, key string) (string, error) {
	v, ok := f.data[key]
	if !ok {
		return "", fmt.Errorf("key missing")
	}
	return v, nil
}

func (f *fakeIdemStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	f.data[key] = fmt.Sprint(value)
	return nil
}

func (f *fakeIdemStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = fmt.Sprint(value)
	return true, nil
}

func (f *fakeIdemStore) IdempotencyKey(scope, id string) string {
	return "lp:idem:" + scope + ":" + id
}

func (f *fakeIdemStore) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

type fixture struct {
	client *db.Client
	repo   Repository
	svc    Service
	saga   *Saga
	cache  *fakeIdemStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&models.PaymentIntent{},
		&models.IdempotencyRecord{},
		&models.OutboxMessage{},
	))

	client := db.NewFromConn(conn)
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	repo := NewRepository(conn)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	cache := newFakeIdemStore()

	return &fixture{
		client: client,
		repo:   repo,
		svc:    NewService(client, repo, emitter, cache, logg, time.Hour),
		saga:   NewSaga(repo, logg),
		cache:  cache,
	}
}

func validInput() CreatePaymentInput {
	return CreatePaymentInput{
		Amount:     decimal.NewFromFloat(50),
		Currency:   "USD",
		PayerID:    "payer-1",
		MerchantID: "merchant-1",
	}
}

func (f *fixture) outboxRows(t *testing.T, eventType string) []models.OutboxMessage {
	t.Helper()
	var rows []models.OutboxMessage
	require.NoError(t, f.client.DB().Where("event_type = ?", eventType).Find(&rows).Error)
	return rows
}

func TestCreatePayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	payment, isNew, err := f.svc.Create(ctx, "key-1", validInput())
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, enums.PaymentStatusPendingRisk, payment.Status)
	assert.Equal(t, "USD", payment.Currency)

	rows := f.outboxRows(t, messaging.EventPaymentCreated)
	require.Len(t, rows, 1)
	assert.Equal(t, payment.CorrelationID, rows[0].CorrelationID)
}

func TestCreatePaymentIdempotentReplay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, isNew, err := f.svc.Create(ctx, "key-1", validInput())
	require.NoError(t, err)
	require.True(t, isNew)

	second, isNew, err := f.svc.Create(ctx, "key-1", validInput())
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, first.ID, second.ID)

	// Replay must not create a second payment or a second event.
	assert.Len(t, f.outboxRows(t, messaging.EventPaymentCreated), 1)
	var count int64
	require.NoError(t, f.client.DB().Model(&models.PaymentIntent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCreatePaymentReplaySurvivesCacheLoss(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, _, err := f.svc.Create(ctx, "key-1", validInput())
	require.NoError(t, err)

	// Redis flushed; the durable table still guards the key.
	f.cache.data = map[string]string{}

	second, isNew, err := f.svc.Create(ctx, "key-1", validInput())
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, first.ID, second.ID)
}

func TestCreatePaymentIgnoresStaleCacheEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	input := validInput()

	// Leftover cache entry pointing at a payment row that no longer
	// exists. The durable path must take over and create fresh.
	f.cache.data[f.cache.IdempotencyKey(cacheScope, "key-1")] =
		fmt.Sprintf("%s|%s", RequestHash(input), uuid.New())

	payment, isNew, err := f.svc.Create(ctx, "key-1", input)
	require.NoError(t, err)
	assert.True(t, isNew)
	require.NotNil(t, payment)
	assert.Len(t, f.outboxRows(t, messaging.EventPaymentCreated), 1)
}

func TestCreatePaymentKeyReuseWithDifferentBodyConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, _, err := f.svc.Create(ctx, "key-1", validInput())
	require.NoError(t, err)

	other := validInput()
	other.Amount = decimal.NewFromFloat(99)
	_, _, err = f.svc.Create(ctx, "key-1", other)
	require.Error(t, err)
	appErr := apperrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeIdempotency, appErr.Code())
}

func TestCreatePaymentRequiresKeyAndPositiveAmount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, _, err := f.svc.Create(ctx, "", validInput())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.As(err).Code())

	bad := validInput()
	bad.Amount = decimal.NewFromFloat(-5)
	_, _, err = f.svc.Create(ctx, "key-1", bad)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.As(err).Code())
}

func TestGetPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	payment, _, err := f.svc.Create(ctx, "key-1", validInput())
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, got.ID)

	_, err = f.svc.Get(ctx, uuid.New())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.As(err).Code())
}

func TestRequestReversal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	payment, _, err := f.svc.Create(ctx, "key-1", validInput())
	require.NoError(t, err)

	// Not yet posted: reversal is a state conflict.
	_, err = f.svc.RequestReversal(ctx, payment.ID, ReversalInput{Reason: "dispute"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeStateConflict, apperrors.As(err).Code())

	advanceToPosted(t, f, payment.ID)

	reversed, err := f.svc.RequestReversal(ctx, payment.ID, ReversalInput{Reason: "dispute"})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusReversalRequested, reversed.Status)
	assert.Len(t, f.outboxRows(t, messaging.EventPaymentReversed), 1)
}

func TestSagaAdvancesLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	payment, _, err := f.svc.Create(ctx, "key-1", validInput())
	require.NoError(t, err)

	applySagaEvent(t, f, messaging.EventPaymentApproved, messaging.PaymentApproved{
		PaymentID: payment.ID, Score: 80, DecisionReason: "score 80",
	})
	current, err := f.repo.GetByID(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusApproved, current.Status)

	applySagaEvent(t, f, messaging.EventLedgerPosted, messaging.LedgerPosted{
		PaymentID: payment.ID, Operation: enums.LedgerOperationPost,
	})
	current, err = f.repo.GetByID(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPosted, current.Status)

	applySagaEvent(t, f, messaging.EventLedgerPosted, messaging.LedgerPosted{
		PaymentID: payment.ID, Operation: enums.LedgerOperationReversal,
	})
	current, err = f.repo.GetByID(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusReversed, current.Status)
}

func TestSagaReplayedVerdictIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	payment, _, err := f.svc.Create(ctx, "key-1", validInput())
	require.NoError(t, err)

	approve := messaging.PaymentApproved{PaymentID: payment.ID, Score: 80, DecisionReason: "score 80"}
	applySagaEvent(t, f, messaging.EventPaymentApproved, approve)
	applySagaEvent(t, f, messaging.EventPaymentApproved, approve)

	// A late rejection after approval must not flip the state.
	applySagaEvent(t, f, messaging.EventPaymentRejected, messaging.PaymentRejected{
		PaymentID: payment.ID, Score: 10, DecisionReason: "late verdict",
	})

	current, err := f.repo.GetByID(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusApproved, current.Status)
}

func TestSagaUnknownPaymentFailsForRetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	env, err := messaging.NewEnvelope(messaging.EventPaymentApproved, "corr-1", "risk-worker", messaging.PaymentApproved{
		PaymentID: uuid.New(), Score: 80, DecisionReason: "ok",
	})
	require.NoError(t, err)

	handler := f.saga.Handlers()[messaging.EventPaymentApproved]
	err = f.client.WithTx(ctx, func(tx *gorm.DB) error {
		return handler(ctx, tx, env)
	})
	require.Error(t, err)
}

func TestRequestHashIsDeterministicAndSensitive(t *testing.T) {
	a := validInput()
	b := validInput()
	assert.Equal(t, RequestHash(a), RequestHash(b))

	b.Currency = "usd"
	assert.Equal(t, RequestHash(a), RequestHash(b), "currency casing should not change the hash")

	b.Amount = decimal.NewFromFloat(50.01)
	assert.NotEqual(t, RequestHash(a), RequestHash(b))
}

func applySagaEvent(t *testing.T, f *fixture, eventType string, payload any) {
	t.Helper()
	ctx := context.Background()
	env, err := messaging.NewEnvelope(eventType, "corr-1", "test", payload)
	require.NoError(t, err)
	handler, ok := f.saga.Handlers()[eventType]
	require.True(t, ok, "no handler for %s", eventType)
	require.NoError(t, f.client.WithTx(ctx, func(tx *gorm.DB) error {
		return handler(ctx, tx, env)
	}))
}

func advanceToPosted(t *testing.T, f *fixture, paymentID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	payment, err := f.repo.GetByID(ctx, paymentID)
	require.NoError(t, err)
	require.True(t, payment.MarkApproved("test"))
	require.True(t, payment.MarkPosted())
	require.NoError(t, f.repo.Update(ctx, payment))
}


package risk

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/ledgerpay-backend/pkg/db"
	"github.com/angelmondragon/ledgerpay-backend/pkg/db/models"
	"github.com/angelmondragon/ledgerpay-backend/pkg/logger"
	"github.com/angelmondragon/ledgerpay-backend/pkg/messaging"
	"github.com/angelmondragon/ledgerpay-backend/pkg/outbox"
)

func TestScoreIsDeterministic(t *testing.T) {
	id := uuid.New()
	first := Score(id)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Score(id))
	}
	assert.GreaterOrEqual(t, first, 0)
	assert.Less(t, first, 100)
}

func TestEvaluateRejectsLargeAmounts(t *testing.T) {
	// Regardless of score, amounts over the ceiling are rejected.
	for i := 0; i < 20; i++ {
		verdict := Evaluate(uuid.New(), decimal.NewFromInt(20001))
		assert.False(t, verdict.Approved)
		assert.Equal(t, "amount exceeds ceiling", verdict.Reason)
	}

	// The ceiling itself is still allowed when the score passes.
	atCeiling := Evaluate(highScoreID(t), decimal.NewFromInt(20000))
	assert.True(t, atCeiling.Approved)
}

func TestEvaluateRejectsLowScores(t *testing.T) {
	id := lowScoreID(t)
	verdict := Evaluate(id, decimal.NewFromInt(100))
	assert.False(t, verdict.Approved)
	assert.Equal(t, "risk score below threshold", verdict.Reason)
}

// highScoreID searches for an id scoring at or above the floor.
func highScoreID(t *testing.T) uuid.UUID {
	t.Helper()
	for i := 0; i < 1000; i++ {
		id := uuid.New()
		if Score(id) >= scoreFloor {
			return id
		}
	}
	t.Fatal("no high-scoring id found")
	return uuid.Nil
}

func lowScoreID(t *testing.T) uuid.UUID {
	t.Helper()
	for i := 0; i < 10000; i++ {
		id := uuid.New()
		if Score(id) < scoreFloor {
			return id
		}
	}
	t.Fatal("no low-scoring id found")
	return uuid.Nil
}

type handlerFixture struct {
	client  *db.Client
	handler *Handler
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.RiskAssessment{}, &models.OutboxMessage{}))

	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	return &handlerFixture{
		client:  db.NewFromConn(conn),
		handler: NewHandler(emitter, logg),
	}
}

func (f *handlerFixture) deliver(t *testing.T, payload messaging.PaymentCreated) error {
	t.Helper()
	ctx := context.Background()
	env, err := messaging.NewEnvelope(messaging.EventPaymentCreated, "corr-1", "payments-api", payload)
	require.NoError(t, err)
	handler := f.handler.Handlers()[messaging.EventPaymentCreated]
	return f.client.WithTx(ctx, func(tx *gorm.DB) error {
		return handler(ctx, tx, env)
	})
}

func (f *handlerFixture) outboxRows(t *testing.T) []models.OutboxMessage {
	t.Helper()
	var rows []models.OutboxMessage
	require.NoError(t, f.client.DB().Find(&rows).Error)
	return rows
}

func TestHandlerAssessesAndEmitsVerdict(t *testing.T) {
	f := newHandlerFixture(t)
	paymentID := highScoreID(t)

	require.NoError(t, f.deliver(t, messaging.PaymentCreated{
		PaymentID: paymentID,
		Amount:    decimal.NewFromInt(100),
		Currency:  "USD",
	}))

	var assessment models.RiskAssessment
	require.NoError(t, f.client.DB().First(&assessment, "payment_id = ?", paymentID).Error)
	assert.True(t, assessment.Approved)
	assert.Equal(t, Score(paymentID), assessment.Score)

	rows := f.outboxRows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, messaging.EventPaymentApproved, rows[0].EventType)
	assert.Equal(t, "corr-1", rows[0].CorrelationID)
}

func TestHandlerEmitsRejection(t *testing.T) {
	f := newHandlerFixture(t)
	paymentID := uuid.New()

	require.NoError(t, f.deliver(t, messaging.PaymentCreated{
		PaymentID: paymentID,
		Amount:    decimal.NewFromInt(50000),
		Currency:  "USD",
	}))

	rows := f.outboxRows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, messaging.EventPaymentRejected, rows[0].EventType)

	var assessment models.RiskAssessment
	require.NoError(t, f.client.DB().First(&assessment, "payment_id = ?", paymentID).Error)
	assert.False(t, assessment.Approved)
}

func TestHandlerReplayDoesNotDoubleAssess(t *testing.T) {
	f := newHandlerFixture(t)
	payload := messaging.PaymentCreated{
		PaymentID: highScoreID(t),
		Amount:    decimal.NewFromInt(100),
		Currency:  "USD",
	}

	require.NoError(t, f.deliver(t, payload))
	require.NoError(t, f.deliver(t, payload))

	var count int64
	require.NoError(t, f.client.DB().Model(&models.RiskAssessment{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Len(t, f.outboxRows(t), 1, "replay must not emit a second verdict")
}

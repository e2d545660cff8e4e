package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/ledgerpay-backend/api/controllers"
	ledgersvc "github.com/angelmondragon/ledgerpay-backend/internal/ledger"
	paymentsvc "github.com/angelmondragon/ledgerpay-backend/internal/payments"
	"github.com/angelmondragon/ledgerpay-backend/pkg/config"
	"github.com/angelmondragon/ledgerpay-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/ledgerpay-backend/pkg/errors"
	"github.com/angelmondragon/ledgerpay-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubPaymentService struct{}

func (stubPaymentService) Create(ctx context.Context, key string, input paymentsvc.CreatePaymentInput) (*models.PaymentIntent, bool, error) {
	return nil, false, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func (stubPaymentService) Get(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
}

func (stubPaymentService) RequestReversal(ctx context.Context, id uuid.UUID, input paymentsvc.ReversalInput) (*models.PaymentIntent, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
}

func testConfig() *config.Config {
	return &config.Config{App: config.AppConfig{Env: "test"}}
}

func newTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
}

func TestPaymentsRouter(t *testing.T) {
	deps := map[string]controllers.Pinger{"database": stubPinger{}}
	registry := prometheus.NewRegistry()
	router := NewPaymentsRouter(testConfig(), newTestLogger(), deps, registry, stubPaymentService{})

	t.Run("health live", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("health ready", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("metrics exposed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 from metrics endpoint, got %d", rec.Code)
		}
	})

	t.Run("create without idempotency key", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/payments", strings.NewReader(`{}`))
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 without Idempotency-Key, got %d", rec.Code)
		}
	})

	t.Run("unknown payment", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/payments/"+uuid.NewString(), nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestLedgerRouter(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.LedgerEntry{}, &models.PaymentLedgerSnapshot{}))

	deps := map[string]controllers.Pinger{"database": stubPinger{}}
	router := NewLedgerRouter(testConfig(), newTestLogger(), deps, prometheus.NewRegistry(), ledgersvc.NewService(conn), ledgersvc.NewReconciler(conn))

	t.Run("reconciliation", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reconciliation", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("payment entries not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ledger/payment/"+uuid.NewString(), nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 for unledgered payment, got %d", rec.Code)
		}
	})
}

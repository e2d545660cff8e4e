package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/ledgerpay-backend/api/controllers"
	"github.com/angelmondragon/ledgerpay-backend/api/middleware"
	ledgersvc "github.com/angelmondragon/ledgerpay-backend/internal/ledger"
	paymentsvc "github.com/angelmondragon/ledgerpay-backend/internal/payments"
	"github.com/angelmondragon/ledgerpay-backend/pkg/config"
	"github.com/angelmondragon/ledgerpay-backend/pkg/logger"
)

// NewPaymentsRouter mounts the payments service HTTP surface.
func NewPaymentsRouter(
	cfg *config.Config,
	logg *logger.Logger,
	deps map[string]controllers.Pinger,
	gatherer prometheus.Gatherer,
	paymentService paymentsvc.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.CorrelationID(logg),
		middleware.Logging(logg),
	)

	mountOperational(r, cfg, logg, deps, gatherer)

	r.Route("/api/payments", func(r chi.Router) {
		r.Post("/", controllers.CreatePayment(paymentService, logg))
		r.Get("/{paymentId}", controllers.GetPayment(paymentService, logg))
		r.Post("/{paymentId}/reverse", controllers.RequestPaymentReversal(paymentService, logg))
	})

	return r
}

// NewLedgerRouter mounts the ledger service HTTP surface.
func NewLedgerRouter(
	cfg *config.Config,
	logg *logger.Logger,
	deps map[string]controllers.Pinger,
	gatherer prometheus.Gatherer,
	ledgerService ledgersvc.Service,
	reconciler *ledgersvc.Reconciler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.CorrelationID(logg),
		middleware.Logging(logg),
	)

	mountOperational(r, cfg, logg, deps, gatherer)

	r.Route("/api/ledger", func(r chi.Router) {
		r.Get("/payment/{paymentId}", controllers.PaymentLedgerEntries(ledgerService, logg))
	})
	r.Get("/api/reconciliation", controllers.Reconciliation(reconciler, logg))

	return r
}

// NewWorkerRouter mounts only the operational endpoints. Background
// workers expose health and metrics but no business routes.
func NewWorkerRouter(
	cfg *config.Config,
	logg *logger.Logger,
	deps map[string]controllers.Pinger,
	gatherer prometheus.Gatherer,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	mountOperational(r, cfg, logg, deps, gatherer)

	return r
}

func mountOperational(r chi.Router, cfg *config.Config, logg *logger.Logger, deps map[string]controllers.Pinger, gatherer prometheus.Gatherer) {
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
}

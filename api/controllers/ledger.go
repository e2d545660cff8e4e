package controllers

import (
	"net/http"

	"github.com/angelmondragon/ledgerpay-backend/api/responses"
	ledgersvc "github.com/angelmondragon/ledgerpay-backend/internal/ledger"
	pkgerrors "github.com/angelmondragon/ledgerpay-backend/pkg/errors"
	"github.com/angelmondragon/ledgerpay-backend/pkg/logger"
)

// PaymentLedgerEntries returns the double-entry rows for one payment.
func PaymentLedgerEntries(svc ledgersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		id, err := paymentIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := svc.EntriesForPayment(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, entries)
	}
}

// Reconciliation compares payment state against ledger balances.
func Reconciliation(rec *ledgersvc.Reconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rec == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciler unavailable"))
			return
		}

		report, err := rec.Report(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, report)
	}
}

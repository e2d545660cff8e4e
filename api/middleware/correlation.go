package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/ledgerpay-backend/internal/payments"
	"github.com/angelmondragon/ledgerpay-backend/pkg/logger"
)

const correlationIDHeader = "X-Correlation-Id"

// CorrelationID propagates the caller's correlation id, minting one when
// the header is absent. Events emitted while serving the request carry it.
func CorrelationID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			corrID := r.Header.Get(correlationIDHeader)
			if corrID == "" {
				corrID = uuid.NewString()
			}

			w.Header().Set(correlationIDHeader, corrID)

			ctx := payments.WithCorrelationID(r.Context(), corrID)
			if logg != nil {
				ctx = logg.WithCorrelationID(ctx, corrID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

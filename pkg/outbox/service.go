package outbox

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/ledgerpay-backend/pkg/db/models"
	"github.com/angelmondragon/ledgerpay-backend/pkg/logger"
	"github.com/angelmondragon/ledgerpay-backend/pkg/messaging"
)

// Service writes events to the outbox table. Emit must run in the same
// transaction as the business mutation that caused the event, so either
// both commit or neither does.
type Service struct {
	repo *Repository
	logg *logger.Logger
}

// Emitter is the surface handed to domain services.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, env messaging.EventEnvelope) error
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Emit stores the envelope as a pending outbox row.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, env messaging.EventEnvelope) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	row := models.OutboxMessage{
		EventID:       env.EventID,
		EventType:     env.EventType,
		CorrelationID: env.CorrelationID,
		Source:        env.Source,
		Payload:       env.Payload,
		OccurredAt:    env.OccurredAt,
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return err
	}

	if s.logg != nil {
		fields := map[string]any{
			"event_id":   env.EventID.String(),
			"event_type": env.EventType,
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event queued")
	}
	return nil
}

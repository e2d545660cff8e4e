package inbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/ledgerpay-backend/pkg/db"
	"github.com/angelmondragon/ledgerpay-backend/pkg/db/models"
)

// Store is the dedup ledger behind effectively-once consumption. A row
// per (event, consumer) pair; the unique index arbitrates races.
type Store struct {
	client *db.Client
}

func NewStore(client *db.Client) *Store {
	return &Store{client: client}
}

// Seen reports whether the consumer has already recorded the event.
func (s *Store) Seen(ctx context.Context, eventID uuid.UUID, consumer string) (bool, error) {
	var count int64
	err := s.client.DB().WithContext(ctx).
		Model(&models.InboxMessage{}).
		Where("event_id = ? AND consumer = ?", eventID, consumer).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking inbox: %w", err)
	}
	return count > 0, nil
}

// MarkProcessed inserts the inbox row inside the caller's transaction so
// the dedup record commits atomically with the handler's mutations.
func (s *Store) MarkProcessed(tx *gorm.DB, eventID uuid.UUID, consumer, eventType string) error {
	now := time.Now().UTC()
	row := models.InboxMessage{
		EventID:     eventID,
		Consumer:    consumer,
		EventType:   eventType,
		ReceivedAt:  now,
		ProcessedAt: &now,
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("recording inbox row: %w", err)
	}
	return nil
}

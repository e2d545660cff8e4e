package outbox

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/ledgerpay-backend/pkg/db/models"
)

const maxStoredErrorLen = 400

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, row models.OutboxMessage) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(&row).Error
}

// FetchUnpublished returns the oldest pending rows first so publish order
// follows occurrence order.
func (r *Repository) FetchUnpublished(limit int) ([]models.OutboxMessage, error) {
	var rows []models.OutboxMessage
	err := r.db.Where("published_at IS NULL").
		Order("occurred_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkPublished stamps the row as delivered and clears any error left by
// earlier failed attempts. Rows are never deleted.
func (r *Repository) MarkPublished(id int64) error {
	return r.db.Model(&models.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"published_at": time.Now().UTC(),
			"last_error":   nil,
		}).Error
}

// MarkFailed records the failure and bumps the attempt counter. There is
// no attempt cap; stuck rows surface through metrics.
func (r *Repository) MarkFailed(id int64, cause error) error {
	msg := cause.Error()
	if len(msg) > maxStoredErrorLen {
		msg = msg[:maxStoredErrorLen]
	}
	return r.db.Model(&models.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error": msg,
			"attempts":   gorm.Expr("attempts + 1"),
		}).Error
}

// CountPending returns the number of rows awaiting publication.
func (r *Repository) CountPending() (int64, error) {
	var count int64
	err := r.db.Model(&models.OutboxMessage{}).
		Where("published_at IS NULL").
		Count(&count).Error
	return count, err
}

// OldestPendingAge returns how long the oldest unpublished row has been
// waiting, or zero when nothing is pending.
func (r *Repository) OldestPendingAge() (time.Duration, error) {
	var row models.OutboxMessage
	err := r.db.Where("published_at IS NULL").
		Order("occurred_at ASC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return time.Since(row.OccurredAt), nil
}

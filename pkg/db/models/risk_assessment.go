package models

import (
	"time"

	"github.com/google/uuid"
)

// RiskAssessment is the per-payment risk verdict. The unique index on
// payment_id makes a replayed payment.created event a benign duplicate.
type RiskAssessment struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	PaymentID  uuid.UUID `gorm:"column:payment_id;type:uuid;uniqueIndex:ux_risk_payment_id;not null"`
	Score      int       `gorm:"column:score;not null"`
	Approved   bool      `gorm:"column:approved;not null"`
	Reason     string    `gorm:"column:reason;not null"`
	AssessedAt time.Time `gorm:"column:assessed_at;not null"`
}

func (RiskAssessment) TableName() string {
	return "risk_assessments"
}

package db_models

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEvent is the audit trail of inbound Moniq notifications, one row
// per delivery whatever its outcome.
type WebhookEvent struct {
	ID           string  `gorm:"size:32;primaryKey"`
	OrderID      *uint64 `gorm:"index"`
	HasSignature bool
	Outcome      string `gorm:"size:64;index"`
	HTTPStatus   int
	Error        string         `gorm:"type:text"`
	Payload      datatypes.JSON `gorm:"type:jsonb"`
	ReceivedAt   time.Time      `gorm:"index"`
}

func (WebhookEvent) TableName() string { return "moniq_webhook_events" }

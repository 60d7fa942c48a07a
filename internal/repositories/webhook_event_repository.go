package repositories

import (
	"context"

	"gorm.io/gorm"
	"moniqgw/internal/models/db_models"
)

type WebhookEventRepository interface {
	Record(ctx context.Context, event *db_models.WebhookEvent) error
	ListByOrder(ctx context.Context, orderID uint64, limit int) ([]db_models.WebhookEvent, error)
}

type webhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

func (w *webhookEventRepository) Record(ctx context.Context, event *db_models.WebhookEvent) error {
	return w.db.WithContext(ctx).Create(event).Error
}

func (w *webhookEventRepository) ListByOrder(ctx context.Context, orderID uint64, limit int) ([]db_models.WebhookEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var events []db_models.WebhookEvent
	err := w.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("received_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

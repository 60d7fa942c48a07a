package repositories

import (
	"context"

	"gorm.io/gorm"
	"moniqgw/internal/models/db_models"
)

type CartRepository interface {
	EmptyCart(ctx context.Context, sessionID string) error
}

type cartRepository struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepository{db: db}
}

func (c *cartRepository) EmptyCart(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return c.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&db_models.CartItem{}).Error
}

package db_models

import "time"

type Product struct {
	ID    uint64 `gorm:"primaryKey;autoIncrement"`
	Name  string `gorm:"size:512"`
	Stock *int
}

type CartItem struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"size:128;index;not null"`
	ProductID uint64
	Quantity  int
	CreatedAt time.Time
}

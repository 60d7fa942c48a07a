// Package testutil provides an in-memory database for package tests.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"moniqgw/internal/models/db_models"
)

// NewDB opens a private in-memory sqlite database with the gateway schema.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(db_models.Models()...))
	return db
}

var orderSeq atomic.Int64

// SeedOrder inserts a pending order with one item and returns it.
func SeedOrder(t *testing.T, db *gorm.DB, mutate ...func(o *db_models.Order)) *db_models.Order {
	t.Helper()

	order := &db_models.Order{
		Number:           "1001",
		Key:              fmt.Sprintf("wc_order_%d", orderSeq.Add(1)),
		Status:           db_models.OrderStatusPending,
		Currency:         "NGN",
		Total:            decimal.RequireFromString("100.00"),
		BillingFirstName: "Ada",
		BillingLastName:  "Obi",
		BillingEmail:     "ada@example.com",
		BillingPhone:     "+2348000000000",
		PaymentMethod:    "moniq",
		Items: []db_models.OrderItem{
			{Name: "Widget", Quantity: 2, Subtotal: decimal.RequireFromString("100.00")},
		},
	}
	for _, m := range mutate {
		m(order)
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

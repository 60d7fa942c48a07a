package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"moniqgw/internal/models/db_models"
	"moniqgw/pkg/utils"
)

type TransactionRepository interface {
	Insert(ctx context.Context, txn *db_models.Transaction) error
	UpdateStatus(ctx context.Context, orderID uint64, status db_models.TransactionStatus, providerStatus string, raw []byte) error
	FindLatestByOrder(ctx context.Context, orderID uint64) (*db_models.Transaction, error)
	FindByReference(ctx context.Context, ref string) (*db_models.Transaction, error)
}

type transactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

// Insert fails with ErrDuplicateTransaction when the provider reference is
// already recorded.
func (r *transactionRepository) Insert(ctx context.Context, txn *db_models.Transaction) error {
	if txn.Status == "" {
		txn.Status = db_models.TxnStatusPending
	}
	if txn.TransactionID == "" {
		txn.TransactionID = txn.ProviderTransactionRef
	}

	err := r.db.WithContext(ctx).Create(txn).Error
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", utils.ErrDuplicateTransaction, txn.ProviderTransactionRef)
	}
	return fmt.Errorf("%w: insert transaction: %v", utils.ErrDatabaseError, err)
}

// UpdateStatus touches the most recent record of the order. An order with
// no record is not an error.
func (r *transactionRepository) UpdateStatus(ctx context.Context, orderID uint64, status db_models.TransactionStatus, providerStatus string, raw []byte) error {
	txn, err := r.FindLatestByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if txn == nil {
		return nil
	}

	updates := map[string]interface{}{
		"status":          status,
		"provider_status": providerStatus,
		"updated_at":      time.Now().UTC(),
	}
	if len(raw) > 0 {
		updates["raw_payload"] = datatypes.JSON(raw)
	}

	if err := r.db.WithContext(ctx).Model(&db_models.Transaction{}).
		Where("id = ?", txn.ID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("%w: update transaction: %v", utils.ErrDatabaseError, err)
	}
	return nil
}

func (r *transactionRepository) FindLatestByOrder(ctx context.Context, orderID uint64) (*db_models.Transaction, error) {
	var txn db_models.Transaction
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		First(&txn).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	return &txn, nil
}

func (r *transactionRepository) FindByReference(ctx context.Context, ref string) (*db_models.Transaction, error) {
	var txn db_models.Transaction
	err := r.db.WithContext(ctx).First(&txn, "provider_transaction_ref = ?", ref).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	return &txn, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

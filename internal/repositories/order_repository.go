package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"moniqgw/internal/models/db_models"
	"moniqgw/pkg/utils"
)

// OrderRepository is the gateway's view of the commerce platform's order
// store. Status changes go through its transition methods only.
type OrderRepository interface {
	FindByID(ctx context.Context, id uint64) (*db_models.Order, error)
	// FindByMoniqRefs matches any of the non-empty identifiers.
	FindByMoniqRefs(ctx context.Context, moniqOrderID string, transactionRefs ...string) (*db_models.Order, error)

	// AwaitPayment stores the Moniq references and moves the order to
	// pending in one locked step. Closed orders get ErrOrderAlreadyFinal.
	AwaitPayment(ctx context.Context, orderID uint64, moniqOrderID, transactionRef, note string) error
	MarkCheckoutInitiated(ctx context.Context, orderID uint64, at time.Time) error
	AddNote(ctx context.Context, orderID uint64, note string) error

	// CompletePayment and FailPayment refuse with ErrOrderAlreadyFinal once
	// the order is final for the gateway.
	CompletePayment(ctx context.Context, orderID uint64, transactionRef string, status db_models.OrderStatus, notes ...string) error
	FailPayment(ctx context.Context, orderID uint64, note string) error

	ReduceStockLevels(ctx context.Context, orderID uint64) error
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) FindByID(ctx context.Context, id uint64) (*db_models.Order, error) {
	var order db_models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Fees").
		First(&order, "id = ?", id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	return &order, nil
}

func (r *orderRepository) FindByMoniqRefs(ctx context.Context, moniqOrderID string, transactionRefs ...string) (*db_models.Order, error) {
	var conds []clause.Expression
	if moniqOrderID != "" {
		conds = append(conds, clause.Eq{Column: clause.Column{Name: "moniq_order_id"}, Value: moniqOrderID})
	}
	for _, ref := range transactionRefs {
		if ref != "" {
			conds = append(conds, clause.Eq{Column: clause.Column{Name: "moniq_transaction_id"}, Value: ref})
		}
	}
	// Never run an unconstrained lookup.
	if len(conds) == 0 {
		return nil, utils.ErrOrderNotFound
	}

	var order db_models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Where{Exprs: []clause.Expression{clause.Or(conds...)}}).
		Order("id ASC").
		First(&order).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	return &order, nil
}

func (r *orderRepository) AwaitPayment(ctx context.Context, orderID uint64, moniqOrderID, transactionRef, note string) error {
	return r.withLockedOrder(ctx, orderID, func(tx *gorm.DB, order *db_models.Order) error {
		if order.IsClosedForCheckout() {
			return utils.ErrOrderAlreadyFinal
		}
		if err := tx.Model(order).Updates(map[string]interface{}{
			"status":               db_models.OrderStatusPending,
			"moniq_order_id":       moniqOrderID,
			"moniq_transaction_id": transactionRef,
		}).Error; err != nil {
			return err
		}
		return addNotes(tx, orderID, note)
	})
}

func (r *orderRepository) MarkCheckoutInitiated(ctx context.Context, orderID uint64, at time.Time) error {
	return r.update(ctx, orderID, map[string]interface{}{"checkout_initiated_at": at.UTC()})
}

func (r *orderRepository) update(ctx context.Context, orderID uint64, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&db_models.Order{}).Where("id = ?", orderID).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", utils.ErrDatabaseError, res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) AddNote(ctx context.Context, orderID uint64, note string) error {
	return r.db.WithContext(ctx).Create(&db_models.OrderNote{OrderID: orderID, Content: note}).Error
}

func (r *orderRepository) CompletePayment(ctx context.Context, orderID uint64, transactionRef string, status db_models.OrderStatus, notes ...string) error {
	return r.withLockedOrder(ctx, orderID, func(tx *gorm.DB, order *db_models.Order) error {
		if order.IsFinalForGateway() {
			return utils.ErrOrderAlreadyFinal
		}
		now := time.Now().UTC()
		if err := tx.Model(order).Updates(map[string]interface{}{
			"paid_at":        now,
			"transaction_id": transactionRef,
			"status":         status,
		}).Error; err != nil {
			return err
		}
		return addNotes(tx, orderID, notes...)
	})
}

func (r *orderRepository) FailPayment(ctx context.Context, orderID uint64, note string) error {
	return r.withLockedOrder(ctx, orderID, func(tx *gorm.DB, order *db_models.Order) error {
		if order.IsFinalForGateway() {
			return utils.ErrOrderAlreadyFinal
		}
		if err := tx.Model(order).Update("status", db_models.OrderStatusFailed).Error; err != nil {
			return err
		}
		return addNotes(tx, orderID, note)
	})
}

// ReduceStockLevels runs at most once per order.
func (r *orderRepository) ReduceStockLevels(ctx context.Context, orderID uint64) error {
	return r.withLockedOrder(ctx, orderID, func(tx *gorm.DB, order *db_models.Order) error {
		if order.StockReduced {
			return nil
		}

		var items []db_models.OrderItem
		if err := tx.Where("order_id = ?", orderID).Find(&items).Error; err != nil {
			return err
		}
		for _, item := range items {
			if item.ProductID == nil || item.Quantity <= 0 {
				continue
			}
			if err := tx.Model(&db_models.Product{}).
				Where("id = ? AND stock IS NOT NULL", *item.ProductID).
				Update("stock", gorm.Expr("stock - ?", item.Quantity)).Error; err != nil {
				return err
			}
		}
		return tx.Model(order).Update("stock_reduced", true).Error
	})
}

// withLockedOrder serialises concurrent transitions of the same order.
func (r *orderRepository) withLockedOrder(ctx context.Context, orderID uint64, fn func(tx *gorm.DB, order *db_models.Order) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order db_models.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, "id = ?", orderID).Error; err != nil {
			return err
		}
		return fn(tx, &order)
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return utils.ErrOrderNotFound
	case errors.Is(err, utils.ErrOrderAlreadyFinal):
		return err
	default:
		return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
}

func addNotes(tx *gorm.DB, orderID uint64, notes ...string) error {
	for _, n := range notes {
		if n == "" {
			continue
		}
		if err := tx.Create(&db_models.OrderNote{OrderID: orderID, Content: n}).Error; err != nil {
			return err
		}
	}
	return nil
}

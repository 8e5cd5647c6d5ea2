package repository

import (
	"context"
	"errors"
	"time"

	"ignitia/internal/model"

	"gorm.io/gorm"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderStatusInvalid = errors.New("order status transition not allowed")
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts the order together with its line items.
func (r *OrderRepository) Create(ctx context.Context, tx *gorm.DB, order *model.MerchOrder) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(order).Error
}

func (r *OrderRepository) GetByOrderNo(ctx context.Context, orderNo string) (*model.MerchOrder, error) {
	var order model.MerchOrder
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("order_no = ?", orderNo).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// UpdateStatus moves the order from fromStatus to toStatus only if it is
// still in fromStatus. Zero affected rows means another writer won.
func (r *OrderRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, orderNo string, fromStatus, toStatus, reason string) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrOrderStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}
	switch toStatus {
	case model.OrderStatusCompleted:
		now := time.Now()
		updates["completed_at"] = &now
	case model.OrderStatusCancelled:
		updates["cancel_reason"] = reason
	}

	result := tx.WithContext(ctx).
		Model(&model.MerchOrder{}).
		Where("order_no = ? AND status = ?", orderNo, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrOrderStatusInvalid
	}

	return nil
}

func (r *OrderRepository) GetExpiredOrders(ctx context.Context, now time.Time, limit int) ([]*model.MerchOrder, error) {
	var orders []*model.MerchOrder
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("status = ? AND expires_at < ?", model.OrderStatusPending, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *OrderRepository) ListByUserID(ctx context.Context, userID string, page, pageSize int) ([]*model.MerchOrder, int64, error) {
	var orders []*model.MerchOrder
	var total int64

	query := r.db.WithContext(ctx).Model(&model.MerchOrder{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error

	return orders, total, err
}

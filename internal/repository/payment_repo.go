package repository

import (
	"context"
	"errors"
	"time"

	"ignitia/internal/model"

	"gorm.io/gorm"
)

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentStatusInvalid = errors.New("payment status transition not allowed")
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, tx *gorm.DB, payment *model.PaymentTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(payment).Error
}

func (r *PaymentRepository) GetByGatewayTransactionID(ctx context.Context, gatewayTransactionID string) (*model.PaymentTransaction, error) {
	var payment model.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("gateway_transaction_id = ?", gatewayTransactionID).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

// UpdateStatus is a compare-and-set on the payment status. Extra columns in
// fields are written in the same statement.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, paymentNo, fromStatus, toStatus string, fields map[string]interface{}) error {
	if !model.CanPaymentTransitionTo(fromStatus, toStatus) {
		return ErrPaymentStatusInvalid
	}
	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{"status": toStatus}
	for k, v := range fields {
		updates[k] = v
	}
	if toStatus == model.PaymentStatusCompleted {
		now := time.Now()
		updates["completed_at"] = &now
	}

	result := tx.WithContext(ctx).
		Model(&model.PaymentTransaction{}).
		Where("payment_no = ? AND status = ?", paymentNo, fromStatus).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPaymentStatusInvalid
	}
	return nil
}

func (r *PaymentRepository) ListByUserID(ctx context.Context, userID string, limit int) ([]*model.PaymentTransaction, error) {
	var payments []*model.PaymentTransaction
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&payments).Error
	return payments, err
}

// GetStalePending returns pending payments created before the cutoff.
func (r *PaymentRepository) GetStalePending(ctx context.Context, before time.Time, limit int) ([]*model.PaymentTransaction, error) {
	var payments []*model.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.PaymentStatusPending, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

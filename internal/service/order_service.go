package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ignitia/internal/config"
	"ignitia/internal/infrastructure/lock"
	"ignitia/internal/model"
	"ignitia/internal/repository"
	"ignitia/pkg/apperr"
	"ignitia/pkg/idgen"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	CancelReasonUser                = "cancelled by user"
	CancelReasonExpired             = "expired"
	CancelReasonInsufficientBalance = "insufficient balance"
	CancelReasonCheckoutFailed      = "checkout failed"
)

const (
	EventOrderCompleted = "order.completed"
	EventOrderCancelled = "order.cancelled"
)

type OrderService struct {
	db         *gorm.DB
	cfg        *config.Config
	orderRepo  *repository.OrderRepository
	outboxRepo *repository.OutboxRepository
	catalog    *CatalogService
	wallet     *WalletService
	locker     lock.Locker
}

func NewOrderService(db *gorm.DB, cfg *config.Config, orderRepo *repository.OrderRepository, outboxRepo *repository.OutboxRepository,
	catalog *CatalogService, wallet *WalletService, locker lock.Locker) *OrderService {
	return &OrderService{
		db:         db,
		cfg:        cfg,
		orderRepo:  orderRepo,
		outboxRepo: outboxRepo,
		catalog:    catalog,
		wallet:     wallet,
		locker:     locker,
	}
}

type CheckoutResult struct {
	Order       *model.MerchOrder        `json:"order"`
	Transaction *model.WalletTransaction `json:"transaction"`
}

// CreateOrder reserves stock and persists a pending order priced at current
// catalog prices. When any line cannot be reserved no order is created.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, lines []model.StockLine) (*model.MerchOrder, error) {
	if userID == "" {
		return nil, apperr.New(apperr.CodeValidation, "user id is required")
	}
	if err := validateLines(lines); err != nil {
		return nil, err
	}

	orderNo := idgen.OrderID()
	order := &model.MerchOrder{
		OrderNo:   orderNo,
		UserID:    userID,
		Status:    model.OrderStatusPending,
		ExpiresAt: time.Now().Add(s.cfg.Business.OrderTimeout()),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reserved, err := s.catalog.reserve(ctx, tx, lines)
		if err != nil {
			return err
		}
		for _, l := range repository.MergeLines(lines) {
			item := reserved[l.ItemID]
			line := &model.MerchOrderItem{
				OrderNo:   orderNo,
				ItemID:    item.ID,
				Name:      item.Name,
				Quantity:  l.Quantity,
				UnitPrice: item.UnitPrice,
			}
			order.Items = append(order.Items, line)
			order.TotalPrice += line.Subtotal()
		}
		return s.orderRepo.Create(ctx, tx, order)
	})
	if err != nil {
		return nil, translate(err, "create order")
	}

	zerolog.Ctx(ctx).Info().
		Str("component", "order").
		Str("order_no", orderNo).
		Int64("total", order.TotalPrice).
		Msg("order created")
	return order, nil
}

// Checkout pays a pending order from the wallet. Any failure after the order
// is locked cancels it and restores its stock before the error is returned,
// also when the caller's context is what failed.
func (s *OrderService) Checkout(ctx context.Context, orderNo, userID string) (*CheckoutResult, error) {
	order, err := s.ownedOrder(ctx, orderNo, userID)
	if err != nil {
		return nil, err
	}
	if order.Status != model.OrderStatusPending {
		return nil, apperr.Newf(apperr.CodeInvalidState, "order %s is %s", orderNo, order.Status)
	}

	unlocker, err := s.locker.Obtain(ctx, lock.OrderLockKey(orderNo), userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeConflict, err, "order is being processed, retry later")
	}
	defer s.unlock(ctx, unlocker)

	// the order may have been settled while we waited for the lock
	order, err = s.orderRepo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, translate(err, "get order")
	}
	if order.Status != model.OrderStatusPending {
		return nil, apperr.Newf(apperr.CodeInvalidState, "order %s is %s", orderNo, order.Status)
	}

	payCtx := ctx
	if timeout := s.cfg.Business.CheckoutTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		payCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	txn, err := s.pay(payCtx, order)
	if err != nil {
		reason := CancelReasonCheckoutFailed
		if apperr.Is(err, apperr.CodeInsufficientBalance) {
			reason = CancelReasonInsufficientBalance
		}
		// compensation must outlive a cancelled or timed out request
		if _, cerr := s.cancel(context.WithoutCancel(ctx), order, reason); cerr != nil {
			zerolog.Ctx(ctx).Error().Err(cerr).
				Str("component", "order").
				Str("order_no", orderNo).
				Msg("checkout compensation failed")
		}
		return nil, err
	}

	now := time.Now()
	order.Status = model.OrderStatusCompleted
	order.CompletedAt = &now
	zerolog.Ctx(ctx).Info().
		Str("component", "order").
		Str("order_no", orderNo).
		Str("transaction_no", txn.TransactionNo).
		Msg("order completed")
	return &CheckoutResult{Order: order, Transaction: txn}, nil
}

func (s *OrderService) pay(ctx context.Context, order *model.MerchOrder) (*model.WalletTransaction, error) {
	var txn *model.WalletTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		txn, err = s.wallet.apply(ctx, tx, model.LedgerEntry{
			UserID:      order.UserID,
			Type:        model.TransactionTypeDebit,
			Amount:      order.TotalPrice,
			Description: PurchaseDescription(order.Items),
			Reference:   order.OrderNo,
		})
		if err != nil {
			return err
		}
		if err := s.orderRepo.UpdateStatus(ctx, tx, order.OrderNo, model.OrderStatusPending, model.OrderStatusCompleted, ""); err != nil {
			return err
		}
		return s.outboxRepo.Enqueue(ctx, tx, s.cfg.Kafka.Topic.Order, EventOrderCompleted, order.OrderNo, map[string]interface{}{
			"order_id":       order.OrderNo,
			"user_id":        order.UserID,
			"total_price":    order.TotalPrice,
			"status":         model.OrderStatusCompleted,
			"transaction_id": txn.TransactionNo,
		})
	})
	if err != nil {
		return nil, translate(err, "checkout")
	}
	return txn, nil
}

// cancel moves a pending order to cancelled and restores its stock in one
// transaction. It reports false when the order had already left pending, in
// which case nothing is restored.
func (s *OrderService) cancel(ctx context.Context, order *model.MerchOrder, reason string) (bool, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.UpdateStatus(ctx, tx, order.OrderNo, model.OrderStatusPending, model.OrderStatusCancelled, reason); err != nil {
			return err
		}
		if err := s.catalog.restore(ctx, tx, order.StockLines()); err != nil {
			return err
		}
		return s.outboxRepo.Enqueue(ctx, tx, s.cfg.Kafka.Topic.Order, EventOrderCancelled, order.OrderNo, map[string]interface{}{
			"order_id": order.OrderNo,
			"user_id":  order.UserID,
			"status":   model.OrderStatusCancelled,
			"reason":   reason,
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrOrderStatusInvalid) {
			return false, nil
		}
		return false, translate(err, "cancel order")
	}
	order.Status = model.OrderStatusCancelled
	order.CancelReason = reason
	return true, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderNo, userID string) (*model.MerchOrder, error) {
	return s.ownedOrder(ctx, orderNo, userID)
}

func (s *OrderService) ListOrders(ctx context.Context, userID string, page, pageSize int) ([]*model.MerchOrder, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	orders, total, err := s.orderRepo.ListByUserID(ctx, userID, page, pageSize)
	if err != nil {
		return nil, 0, translate(err, "list orders")
	}
	return orders, total, nil
}

// CancelOrder releases a pending order at the owner's request.
func (s *OrderService) CancelOrder(ctx context.Context, orderNo, userID string) (*model.MerchOrder, error) {
	order, err := s.ownedOrder(ctx, orderNo, userID)
	if err != nil {
		return nil, err
	}
	if order.Status != model.OrderStatusPending {
		return nil, apperr.Newf(apperr.CodeInvalidState, "order %s is %s", orderNo, order.Status)
	}

	unlocker, err := s.locker.Obtain(ctx, lock.OrderLockKey(orderNo), userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeConflict, err, "order is being processed, retry later")
	}
	defer s.unlock(ctx, unlocker)

	cancelled, err := s.cancel(ctx, order, CancelReasonUser)
	if err != nil {
		return nil, err
	}
	if !cancelled {
		return nil, apperr.Newf(apperr.CodeInvalidState, "order %s is no longer pending", orderNo)
	}
	return order, nil
}

// ExpireOrders cancels pending orders past their expiry and returns how many
// were cancelled. Orders currently locked by a checkout are left for the next
// run.
func (s *OrderService) ExpireOrders(ctx context.Context, limit int) (int, error) {
	orders, err := s.orderRepo.GetExpiredOrders(ctx, time.Now(), limit)
	if err != nil {
		return 0, translate(err, "list expired orders")
	}

	logger := zerolog.Ctx(ctx).With().Str("component", "order").Logger()
	expired := 0
	for _, order := range orders {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		unlocker, err := s.locker.Obtain(ctx, lock.OrderLockKey(order.OrderNo), "expiry")
		if err != nil {
			logger.Debug().Err(err).Str("order_no", order.OrderNo).Msg("order busy, skipping expiry")
			continue
		}
		cancelled, err := s.cancel(ctx, order, CancelReasonExpired)
		s.unlock(ctx, unlocker)
		if err != nil {
			logger.Warn().Err(err).Str("order_no", order.OrderNo).Msg("expire order failed")
			continue
		}
		if cancelled {
			expired++
		}
	}
	return expired, nil
}

func (s *OrderService) ownedOrder(ctx context.Context, orderNo, userID string) (*model.MerchOrder, error) {
	order, err := s.orderRepo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, translate(err, "get order")
	}
	if order.UserID != userID {
		return nil, apperr.New(apperr.CodeForbidden, "order belongs to another user")
	}
	return order, nil
}

func (s *OrderService) unlock(ctx context.Context, unlocker lock.Unlocker) {
	if err := unlocker.Unlock(context.WithoutCancel(ctx)); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("component", "order").Msg("release order lock")
	}
}

// PurchaseDescription renders the ledger description of an order payment,
// e.g. "Purchase: Ignitia Cap x2, Ignitia Hoodie x1".
func PurchaseDescription(items []*model.MerchOrderItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%s x%d", item.Name, item.Quantity))
	}
	return "Purchase: " + strings.Join(parts, ", ")
}

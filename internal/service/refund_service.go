package service

import (
	"context"
	"time"

	"ignitia/internal/config"
	"ignitia/internal/infrastructure/lock"
	"ignitia/internal/model"
	"ignitia/internal/repository"
	"ignitia/pkg/apperr"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const EventPaymentRefunded = "payment.refunded"

// RefundService reverses completed wallet top-ups.
type RefundService struct {
	db          *gorm.DB
	cfg         *config.Config
	paymentRepo *repository.PaymentRepository
	outboxRepo  *repository.OutboxRepository
	wallet      *WalletService
	locker      lock.Locker
}

func NewRefundService(db *gorm.DB, cfg *config.Config, paymentRepo *repository.PaymentRepository, outboxRepo *repository.OutboxRepository,
	wallet *WalletService, locker lock.Locker) *RefundService {
	return &RefundService{
		db:          db,
		cfg:         cfg,
		paymentRepo: paymentRepo,
		outboxRepo:  outboxRepo,
		wallet:      wallet,
		locker:      locker,
	}
}

type RefundResult struct {
	Payment         *model.PaymentTransaction `json:"payment"`
	Transaction     *model.WalletTransaction  `json:"transaction,omitempty"`
	AlreadyRefunded bool                      `json:"already_refunded"`
}

func RefundDescription(payment *model.PaymentTransaction) string {
	return "Refund: " + payment.PaymentNo
}

// RefundPayment moves a completed top-up to refunded and takes the credited
// amount back out of the wallet. Refunding twice is a no-op.
func (s *RefundService) RefundPayment(ctx context.Context, gatewayTransactionID, reason string) (*RefundResult, error) {
	payment, err := s.paymentRepo.GetByGatewayTransactionID(ctx, gatewayTransactionID)
	if err != nil {
		return nil, translate(err, "get payment")
	}
	if payment.Status == model.PaymentStatusRefunded {
		return &RefundResult{Payment: payment, AlreadyRefunded: true}, nil
	}
	if payment.Status != model.PaymentStatusCompleted {
		return nil, apperr.Newf(apperr.CodeInvalidState, "payment %s is %s", gatewayTransactionID, payment.Status)
	}

	unlocker, err := s.locker.Obtain(ctx, lock.PaymentLockKey(gatewayTransactionID), "refund")
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeConflict, err, "payment is being processed, retry later")
	}
	defer func() {
		if err := unlocker.Unlock(context.WithoutCancel(ctx)); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("component", "refund").Msg("release payment lock")
		}
	}()

	payment, err = s.paymentRepo.GetByGatewayTransactionID(ctx, gatewayTransactionID)
	if err != nil {
		return nil, translate(err, "get payment")
	}
	if payment.Status == model.PaymentStatusRefunded {
		return &RefundResult{Payment: payment, AlreadyRefunded: true}, nil
	}
	if payment.Status != model.PaymentStatusCompleted {
		return nil, apperr.Newf(apperr.CodeInvalidState, "payment %s is %s", gatewayTransactionID, payment.Status)
	}

	var txn *model.WalletTransaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		txn, err = s.wallet.apply(ctx, tx, model.LedgerEntry{
			UserID:      payment.UserID,
			Type:        model.TransactionTypeDebit,
			Amount:      payment.Amount,
			Description: RefundDescription(payment),
			Reference:   payment.PaymentNo,
		})
		if err != nil {
			return err
		}
		fields := map[string]interface{}{"failure_reason": reason}
		if err := s.paymentRepo.UpdateStatus(ctx, tx, payment.PaymentNo, model.PaymentStatusCompleted, model.PaymentStatusRefunded, fields); err != nil {
			return err
		}
		return s.outboxRepo.Enqueue(ctx, tx, s.cfg.Kafka.Topic.Payment, EventPaymentRefunded, payment.PaymentNo, map[string]interface{}{
			"payment_id":     payment.PaymentNo,
			"user_id":        payment.UserID,
			"amount":         payment.Amount,
			"reason":         reason,
			"transaction_id": txn.TransactionNo,
			"refunded_at":    time.Now().Format(time.RFC3339),
		})
	})
	if err != nil {
		return nil, translate(err, "refund payment")
	}

	zerolog.Ctx(ctx).Info().
		Str("component", "refund").
		Str("payment_no", payment.PaymentNo).
		Int64("amount", payment.Amount).
		Msg("top-up refunded")

	payment.Status = model.PaymentStatusRefunded
	payment.FailureReason = reason
	return &RefundResult{Payment: payment, Transaction: txn}, nil
}

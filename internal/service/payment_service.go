package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ignitia/internal/config"
	"ignitia/internal/infrastructure/gateway"
	"ignitia/internal/infrastructure/lock"
	"ignitia/internal/model"
	"ignitia/internal/repository"
	"ignitia/pkg/apperr"
	"ignitia/pkg/idgen"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	EventPaymentCompleted = "payment.completed"
	EventPaymentFailed    = "payment.failed"

	FailureReasonExpired = "expired"
)

type PaymentService struct {
	db          *gorm.DB
	cfg         *config.Config
	paymentRepo *repository.PaymentRepository
	outboxRepo  *repository.OutboxRepository
	wallet      *WalletService
	gateway     gateway.Gateway
	locker      lock.Locker
}

func NewPaymentService(db *gorm.DB, cfg *config.Config, paymentRepo *repository.PaymentRepository, outboxRepo *repository.OutboxRepository,
	wallet *WalletService, gw gateway.Gateway, locker lock.Locker) *PaymentService {
	return &PaymentService{
		db:          db,
		cfg:         cfg,
		paymentRepo: paymentRepo,
		outboxRepo:  outboxRepo,
		wallet:      wallet,
		gateway:     gw,
		locker:      locker,
	}
}

type InitiatePaymentRequest struct {
	Amount int64
	Method string
	UpiID  string
}

type VerifyPaymentRequest struct {
	GatewayOrderID       string
	GatewayTransactionID string
	Amount               int64
	Method               string
	UpiID                string
	Signature            string
}

type PaymentResult struct {
	Payment          *model.PaymentTransaction `json:"payment"`
	Transaction      *model.WalletTransaction  `json:"transaction,omitempty"`
	Balance          int64                     `json:"balance"`
	AlreadyProcessed bool                      `json:"already_processed"`
}

// TopUpDescription renders the ledger description of a verified top-up.
func TopUpDescription(payment *model.PaymentTransaction) string {
	if payment.Method == model.PaymentMethodUPI {
		upi := payment.UpiID
		if upi == "" {
			upi = "UPI"
		}
		return "UPI Payment: " + upi
	}
	return fmt.Sprintf("%s Payment: %s", strings.ToUpper(payment.Method[:1])+payment.Method[1:], payment.GatewayTransactionID)
}

// Initiate opens a pending top-up with the gateway.
func (s *PaymentService) Initiate(ctx context.Context, userID string, req InitiatePaymentRequest) (*model.PaymentTransaction, error) {
	if userID == "" {
		return nil, apperr.New(apperr.CodeValidation, "user id is required")
	}
	if err := checkAmount(req.Amount, s.cfg.Business.MaxAmount); err != nil {
		return nil, err
	}
	if req.Method == "" {
		req.Method = model.PaymentMethodUPI
	}
	if !model.IsValidPaymentMethod(req.Method) {
		return nil, apperr.Newf(apperr.CodeValidation, "unsupported payment method %q", req.Method)
	}

	started, err := s.gateway.Initiate(ctx, gateway.InitiateRequest{
		UserID:   userID,
		Amount:   req.Amount,
		Method:   req.Method,
		Currency: s.cfg.Gateway.Currency,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "initiate payment")
	}

	payment := &model.PaymentTransaction{
		PaymentNo:            idgen.PaymentNo(),
		UserID:               userID,
		Amount:               req.Amount,
		Currency:             s.cfg.Gateway.Currency,
		Method:               req.Method,
		UpiID:                req.UpiID,
		GatewayOrderID:       started.GatewayOrderID,
		GatewayTransactionID: started.GatewayTransactionID,
		Status:               model.PaymentStatusPending,
	}
	if err := s.paymentRepo.Create(ctx, nil, payment); err != nil {
		return nil, translate(err, "create payment")
	}
	return payment, nil
}

// Verify settles a pending top-up. The wallet is credited in the same
// transaction as the conditional pending -> completed move, so a payment is
// credited at most once however often it is verified.
func (s *PaymentService) Verify(ctx context.Context, userID string, req VerifyPaymentRequest) (*PaymentResult, error) {
	payment, err := s.ownedPayment(ctx, userID, req.GatewayTransactionID)
	if err != nil {
		return nil, err
	}
	if payment.GatewayOrderID != req.GatewayOrderID {
		return nil, apperr.New(apperr.CodeGatewayVerificationFailed, gateway.FailureMessage)
	}
	if done, result, err := s.settled(ctx, payment); done {
		return result, err
	}

	unlocker, err := s.locker.Obtain(ctx, lock.PaymentLockKey(payment.GatewayTransactionID), userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeConflict, err, "payment is being verified, retry later")
	}
	defer func() {
		if err := unlocker.Unlock(context.WithoutCancel(ctx)); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("component", "payment").Msg("release payment lock")
		}
	}()

	payment, err = s.paymentRepo.GetByGatewayTransactionID(ctx, req.GatewayTransactionID)
	if err != nil {
		return nil, translate(err, "get payment")
	}
	if done, result, err := s.settled(ctx, payment); done {
		return result, err
	}

	verification, err := s.gateway.Verify(ctx, gateway.VerifyRequest{
		GatewayOrderID:       req.GatewayOrderID,
		GatewayTransactionID: req.GatewayTransactionID,
		Amount:               req.Amount,
		Method:               req.Method,
		UpiID:                req.UpiID,
		Signature:            req.Signature,
		ExpectedAmount:       payment.Amount,
		ExpectedMethod:       payment.Method,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "verify payment")
	}
	raw, err := json.Marshal(verification)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "encode verification")
	}

	if !verification.Success {
		if err := s.fail(ctx, payment, verification.Error, raw); err != nil {
			return nil, err
		}
		return nil, apperr.New(apperr.CodeGatewayVerificationFailed, verification.Error)
	}

	if req.UpiID != "" && payment.UpiID == "" {
		payment.UpiID = req.UpiID
	}
	var txn *model.WalletTransaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		txn, err = s.wallet.apply(ctx, tx, model.LedgerEntry{
			UserID:      payment.UserID,
			Type:        model.TransactionTypeCredit,
			Amount:      payment.Amount,
			Description: TopUpDescription(payment),
			Reference:   payment.PaymentNo,
		})
		if err != nil {
			return err
		}
		err = s.paymentRepo.UpdateStatus(ctx, tx, payment.PaymentNo, model.PaymentStatusPending, model.PaymentStatusCompleted, map[string]interface{}{
			"upi_id":                payment.UpiID,
			"wallet_transaction_no": txn.TransactionNo,
			"gateway_payload":       datatypes.JSON(raw),
		})
		if err != nil {
			return err
		}
		return s.outboxRepo.Enqueue(ctx, tx, s.cfg.Kafka.Topic.Payment, EventPaymentCompleted, payment.PaymentNo, map[string]interface{}{
			"payment_id":             payment.PaymentNo,
			"user_id":                payment.UserID,
			"amount":                 payment.Amount,
			"method":                 payment.Method,
			"gateway_transaction_id": payment.GatewayTransactionID,
			"transaction_id":         txn.TransactionNo,
		})
	})
	if err != nil {
		return nil, translate(err, "complete payment")
	}

	zerolog.Ctx(ctx).Info().
		Str("component", "payment").
		Str("payment_no", payment.PaymentNo).
		Int64("amount", payment.Amount).
		Msg("top-up credited")

	payment, err = s.paymentRepo.GetByGatewayTransactionID(ctx, req.GatewayTransactionID)
	if err != nil {
		return nil, translate(err, "get payment")
	}
	balance, err := s.wallet.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &PaymentResult{Payment: payment, Transaction: txn, Balance: balance}, nil
}

// settled reports whether payment no longer needs verification, with the
// result to hand back in that case.
func (s *PaymentService) settled(ctx context.Context, payment *model.PaymentTransaction) (bool, *PaymentResult, error) {
	switch payment.Status {
	case model.PaymentStatusPending:
		return false, nil, nil
	case model.PaymentStatusCompleted:
		balance, err := s.wallet.GetBalance(ctx, payment.UserID)
		if err != nil {
			return true, nil, err
		}
		return true, &PaymentResult{Payment: payment, Balance: balance, AlreadyProcessed: true}, nil
	default:
		return true, nil, apperr.Newf(apperr.CodeInvalidState, "payment %s is %s", payment.GatewayTransactionID, payment.Status)
	}
}

func (s *PaymentService) fail(ctx context.Context, payment *model.PaymentTransaction, reason string, raw []byte) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fields := map[string]interface{}{"failure_reason": reason}
		if raw != nil {
			fields["gateway_payload"] = datatypes.JSON(raw)
		}
		if err := s.paymentRepo.UpdateStatus(ctx, tx, payment.PaymentNo, model.PaymentStatusPending, model.PaymentStatusFailed, fields); err != nil {
			return err
		}
		return s.outboxRepo.Enqueue(ctx, tx, s.cfg.Kafka.Topic.Payment, EventPaymentFailed, payment.PaymentNo, map[string]interface{}{
			"payment_id": payment.PaymentNo,
			"user_id":    payment.UserID,
			"amount":     payment.Amount,
			"reason":     reason,
		})
	})
	if err != nil {
		return translate(err, "fail payment")
	}
	return nil
}

func (s *PaymentService) GetStatus(ctx context.Context, userID, gatewayTransactionID string) (*model.PaymentTransaction, error) {
	return s.ownedPayment(ctx, userID, gatewayTransactionID)
}

func (s *PaymentService) ListPayments(ctx context.Context, userID string, limit int) ([]*model.PaymentTransaction, error) {
	payments, err := s.paymentRepo.ListByUserID(ctx, userID, limit)
	if err != nil {
		return nil, translate(err, "list payments")
	}
	return payments, nil
}

// ExpireStalePayments fails pending payments older than the payment timeout.
func (s *PaymentService) ExpireStalePayments(ctx context.Context, limit int) (int, error) {
	cutoff := time.Now().Add(-s.cfg.Business.PaymentTimeout())
	payments, err := s.paymentRepo.GetStalePending(ctx, cutoff, limit)
	if err != nil {
		return 0, translate(err, "list stale payments")
	}

	expired := 0
	for _, payment := range payments {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		err := s.fail(ctx, payment, FailureReasonExpired, nil)
		if err == nil {
			expired++
			continue
		}
		// verified concurrently, nothing to expire
		if apperr.Is(err, apperr.CodeInvalidState) {
			continue
		}
		return expired, err
	}
	return expired, nil
}

func (s *PaymentService) ownedPayment(ctx context.Context, userID, gatewayTransactionID string) (*model.PaymentTransaction, error) {
	if gatewayTransactionID == "" {
		return nil, apperr.New(apperr.CodeValidation, "transaction id is required")
	}
	payment, err := s.paymentRepo.GetByGatewayTransactionID(ctx, gatewayTransactionID)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, apperr.Newf(apperr.CodePaymentNotFound, "payment %s not found", gatewayTransactionID)
		}
		return nil, translate(err, "get payment")
	}
	if payment.UserID != userID {
		return nil, apperr.New(apperr.CodeForbidden, "payment belongs to another user")
	}
	return payment, nil
}

package service

import (
	"context"

	"ignitia/internal/model"
	"ignitia/pkg/apperr"

	"gorm.io/gorm"
)

const (
	AddFundsDescription  = "Added funds via wallet top-up"
	recentTransactions   = 20
	maxTransactionsLimit = 200
)

// LedgerStore is the persistence the wallet service needs. It is the only
// writer of wallet balances.
type LedgerStore interface {
	GetWallet(ctx context.Context, userID string) (*model.Wallet, error)
	GetBalance(ctx context.Context, userID string) (int64, error)
	AppendTransaction(ctx context.Context, tx *gorm.DB, entry model.LedgerEntry) (*model.WalletTransaction, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]*model.WalletTransaction, error)
	Reconcile(ctx context.Context, userID string) (balance, sum int64, err error)
	ListWallets(ctx context.Context, afterID int64, limit int) ([]*model.Wallet, error)
}

type WalletService struct {
	ledger    LedgerStore
	maxAmount int64
}

// NewWalletService caps every single ledger entry at maxAmount; zero or less
// leaves entries uncapped.
func NewWalletService(ledger LedgerStore, maxAmount int64) *WalletService {
	return &WalletService{ledger: ledger, maxAmount: maxAmount}
}

type WalletView struct {
	UserID       string                     `json:"user_id"`
	Balance      int64                      `json:"balance"`
	Transactions []*model.WalletTransaction `json:"transactions"`
}

// GetWallet returns the balance with the most recent transactions. A user's
// first call creates the wallet with its welcome bonus.
func (s *WalletService) GetWallet(ctx context.Context, userID string) (*WalletView, error) {
	wallet, err := s.ledger.GetWallet(ctx, userID)
	if err != nil {
		return nil, translate(err, "get wallet")
	}
	txns, err := s.ledger.ListTransactions(ctx, userID, recentTransactions)
	if err != nil {
		return nil, translate(err, "list transactions")
	}
	return &WalletView{UserID: wallet.UserID, Balance: wallet.Balance, Transactions: txns}, nil
}

func (s *WalletService) GetBalance(ctx context.Context, userID string) (int64, error) {
	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return 0, translate(err, "get balance")
	}
	return balance, nil
}

func (s *WalletService) ListTransactions(ctx context.Context, userID string, limit int) ([]*model.WalletTransaction, error) {
	if limit <= 0 || limit > maxTransactionsLimit {
		limit = maxTransactionsLimit
	}
	if _, err := s.ledger.GetWallet(ctx, userID); err != nil {
		return nil, translate(err, "get wallet")
	}
	txns, err := s.ledger.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, translate(err, "list transactions")
	}
	return txns, nil
}

func (s *WalletService) DebitForPurchase(ctx context.Context, userID string, amount int64, description string) (*model.WalletTransaction, error) {
	return s.write(ctx, model.LedgerEntry{UserID: userID, Type: model.TransactionTypeDebit, Amount: amount, Description: description})
}

func (s *WalletService) CreditFromTopUp(ctx context.Context, userID string, amount int64, description string) (*model.WalletTransaction, error) {
	return s.write(ctx, model.LedgerEntry{UserID: userID, Type: model.TransactionTypeCredit, Amount: amount, Description: description})
}

// AddFunds credits the wallet directly, without a gateway round trip.
func (s *WalletService) AddFunds(ctx context.Context, userID string, amount int64) (*model.WalletTransaction, error) {
	return s.CreditFromTopUp(ctx, userID, amount, AddFundsDescription)
}

// VerifyBalance checks that the stored balance equals the completed ledger
// sum and is not negative.
func (s *WalletService) VerifyBalance(ctx context.Context, userID string) error {
	balance, sum, err := s.ledger.Reconcile(ctx, userID)
	if err != nil {
		return translate(err, "reconcile wallet")
	}
	if balance != sum || balance < 0 {
		return apperr.Newf(apperr.CodeInternal, "wallet %s balance %d does not match ledger sum %d", userID, balance, sum).
			WithDetail("user_id", userID).
			WithDetail("balance", balance).
			WithDetail("ledger_sum", sum)
	}
	return nil
}

func (s *WalletService) write(ctx context.Context, entry model.LedgerEntry) (*model.WalletTransaction, error) {
	if err := s.validate(entry); err != nil {
		return nil, err
	}
	txn, err := s.ledger.AppendTransaction(ctx, nil, entry)
	if err != nil {
		return nil, translate(err, "append transaction")
	}
	return txn, nil
}

// apply appends entry inside the caller's transaction, so the balance change
// commits or rolls back with the orchestrator's own writes.
func (s *WalletService) apply(ctx context.Context, tx *gorm.DB, entry model.LedgerEntry) (*model.WalletTransaction, error) {
	if err := s.validate(entry); err != nil {
		return nil, err
	}
	txn, err := s.ledger.AppendTransaction(ctx, tx, entry)
	if err != nil {
		return nil, translate(err, "append transaction")
	}
	return txn, nil
}

func (s *WalletService) validate(entry model.LedgerEntry) error {
	if entry.UserID == "" {
		return apperr.New(apperr.CodeValidation, "user id is required")
	}
	return checkAmount(entry.Amount, s.maxAmount)
}

// checkAmount rejects non-positive amounts and, when limit is set, amounts
// above it.
func checkAmount(amount, limit int64) error {
	if amount <= 0 {
		return apperr.Newf(apperr.CodeInvalidAmount, "amount must be positive, got %d", amount)
	}
	if limit > 0 && amount > limit {
		return apperr.Newf(apperr.CodeInvalidAmount, "amount %d exceeds the maximum of %d", amount, limit)
	}
	return nil
}

// ListWallets pages through all wallets in id order, for auditing.
func (s *WalletService) ListWallets(ctx context.Context, afterID int64, limit int) ([]*model.Wallet, error) {
	wallets, err := s.ledger.ListWallets(ctx, afterID, limit)
	if err != nil {
		return nil, translate(err, "list wallets")
	}
	return wallets, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"math"

	"ignitia/internal/model"
	"ignitia/pkg/idgen"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOptimisticLock      = errors.New("wallet version conflict")
	ErrNonPositiveAmount   = errors.New("ledger amount must be positive")
	ErrAmountOverflow      = errors.New("ledger amount would overflow the wallet balance")
)

const optimisticRetries = 3

// LedgerRepository is the only writer of wallet balances. Every balance
// change is paired with a completed wallet_transaction row in the same
// database transaction.
type LedgerRepository struct {
	db           *gorm.DB
	welcomeBonus int64
}

func NewLedgerRepository(db *gorm.DB, welcomeBonus int64) *LedgerRepository {
	return &LedgerRepository{db: db, welcomeBonus: welcomeBonus}
}

func (r *LedgerRepository) getByUserID(ctx context.Context, tx *gorm.DB, userID string) (*model.Wallet, error) {
	var wallet model.Wallet
	err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

func (r *LedgerRepository) getByUserIDForUpdate(ctx context.Context, tx *gorm.DB, userID string) (*model.Wallet, error) {
	var wallet model.Wallet
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// ensureWallet inserts the wallet if it does not exist yet. The welcome bonus
// is recorded only by the insert that actually created the row, so racing
// first accesses credit it once.
func (r *LedgerRepository) ensureWallet(ctx context.Context, tx *gorm.DB, userID string) error {
	wallet := &model.Wallet{UserID: userID, Balance: r.welcomeBonus}
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(wallet)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 || r.welcomeBonus <= 0 {
		return nil
	}

	bonus := &model.WalletTransaction{
		TransactionNo: idgen.TransactionNo(),
		UserID:        userID,
		Type:          model.TransactionTypeCredit,
		Amount:        r.welcomeBonus,
		Description:   model.WelcomeBonusDescription,
		Status:        model.TransactionStatusCompleted,
		BalanceBefore: 0,
		BalanceAfter:  r.welcomeBonus,
	}
	return tx.WithContext(ctx).Create(bonus).Error
}

// GetWallet returns the user's wallet, creating it with the welcome bonus on
// first access.
func (r *LedgerRepository) GetWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	wallet, err := r.getByUserID(ctx, r.db, userID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, ErrWalletNotFound) {
		return nil, err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.ensureWallet(ctx, tx, userID)
	})
	if err != nil {
		return nil, err
	}
	return r.getByUserID(ctx, r.db, userID)
}

// GetBalance reads the current balance, creating the wallet if needed.
func (r *LedgerRepository) GetBalance(ctx context.Context, userID string) (int64, error) {
	wallet, err := r.GetWallet(ctx, userID)
	if err != nil {
		return 0, err
	}
	return wallet.Balance, nil
}

// AppendTransaction applies entry to the wallet and records it. With a nil tx
// it runs in its own transaction and retries version conflicts; otherwise it
// joins the caller's transaction.
func (r *LedgerRepository) AppendTransaction(ctx context.Context, tx *gorm.DB, entry model.LedgerEntry) (*model.WalletTransaction, error) {
	if entry.Amount <= 0 {
		return nil, ErrNonPositiveAmount
	}
	if entry.Type != model.TransactionTypeCredit && entry.Type != model.TransactionTypeDebit {
		return nil, fmt.Errorf("unknown transaction type %q", entry.Type)
	}

	if tx != nil {
		return r.append(ctx, tx, entry)
	}

	var (
		trans *model.WalletTransaction
		err   error
	)
	for attempt := 0; attempt < optimisticRetries; attempt++ {
		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var appendErr error
			trans, appendErr = r.append(ctx, tx, entry)
			return appendErr
		})
		if !errors.Is(err, ErrOptimisticLock) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return trans, nil
}

func (r *LedgerRepository) append(ctx context.Context, tx *gorm.DB, entry model.LedgerEntry) (*model.WalletTransaction, error) {
	wallet, err := r.getByUserIDForUpdate(ctx, tx, entry.UserID)
	if errors.Is(err, ErrWalletNotFound) {
		if err := r.ensureWallet(ctx, tx, entry.UserID); err != nil {
			return nil, err
		}
		wallet, err = r.getByUserIDForUpdate(ctx, tx, entry.UserID)
	}
	if err != nil {
		return nil, err
	}

	if entry.Type == model.TransactionTypeDebit && wallet.Balance < entry.Amount {
		return nil, ErrInsufficientBalance
	}
	if entry.Type == model.TransactionTypeCredit && wallet.Balance > math.MaxInt64-entry.Amount {
		return nil, ErrAmountOverflow
	}

	delta := entry.Signed()
	query := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("user_id = ? AND version = ?", entry.UserID, wallet.Version)
	if entry.Type == model.TransactionTypeDebit {
		query = query.Where("balance >= ?", entry.Amount)
	}
	result := query.Updates(map[string]interface{}{
		"balance": gorm.Expr("balance + ?", delta),
		"version": gorm.Expr("version + 1"),
	})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		current, err := r.getByUserID(ctx, tx, entry.UserID)
		if err != nil {
			return nil, err
		}
		if entry.Type == model.TransactionTypeDebit && current.Balance < entry.Amount {
			return nil, ErrInsufficientBalance
		}
		return nil, ErrOptimisticLock
	}

	trans := &model.WalletTransaction{
		TransactionNo: idgen.TransactionNo(),
		UserID:        entry.UserID,
		Type:          entry.Type,
		Amount:        entry.Amount,
		Description:   entry.Description,
		Status:        model.TransactionStatusCompleted,
		Reference:     entry.Reference,
		BalanceBefore: wallet.Balance,
		BalanceAfter:  wallet.Balance + delta,
	}
	if err := tx.WithContext(ctx).Create(trans).Error; err != nil {
		return nil, err
	}
	return trans, nil
}

// ListTransactions returns the newest limit entries of the user's ledger.
func (r *LedgerRepository) ListTransactions(ctx context.Context, userID string, limit int) ([]*model.WalletTransaction, error) {
	var transactions []*model.WalletTransaction
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&transactions).Error
	return transactions, err
}

// SumCompleted returns completed credits minus completed debits.
func (r *LedgerRepository) SumCompleted(ctx context.Context, userID string) (int64, error) {
	return r.sumCompleted(ctx, r.db, userID)
}

func (r *LedgerRepository) sumCompleted(ctx context.Context, tx *gorm.DB, userID string) (int64, error) {
	var sum int64
	err := tx.WithContext(ctx).
		Model(&model.WalletTransaction{}).
		Select("COALESCE(SUM(CASE WHEN type = ? THEN amount ELSE -amount END), 0)", model.TransactionTypeCredit).
		Where("user_id = ? AND status = ?", userID, model.TransactionStatusCompleted).
		Scan(&sum).Error
	return sum, err
}

// Reconcile reads the stored balance and the completed ledger sum in one
// transaction with the wallet row locked, so no append can land between the
// two reads. The wallet is created on first access like GetWallet.
func (r *LedgerRepository) Reconcile(ctx context.Context, userID string) (balance, sum int64, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallet, err := r.getByUserIDForUpdate(ctx, tx, userID)
		if errors.Is(err, ErrWalletNotFound) {
			if err := r.ensureWallet(ctx, tx, userID); err != nil {
				return err
			}
			wallet, err = r.getByUserIDForUpdate(ctx, tx, userID)
		}
		if err != nil {
			return err
		}
		balance = wallet.Balance
		sum, err = r.sumCompleted(ctx, tx, userID)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return balance, sum, nil
}

// ListWallets pages through wallets by primary key.
func (r *LedgerRepository) ListWallets(ctx context.Context, afterID int64, limit int) ([]*model.Wallet, error) {
	var wallets []*model.Wallet
	err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&wallets).Error
	return wallets, err
}

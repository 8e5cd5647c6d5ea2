package model

import (
	"time"
)

const (
	TransactionTypeCredit = "credit"
	TransactionTypeDebit  = "debit"
)

const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// WelcomeBonusDescription marks the one-time credit a wallet is born with.
const WelcomeBonusDescription = "Welcome bonus - Default wallet balance"

// Wallet holds a user's spendable balance in whole currency units.
// Balance only changes together with an appended WalletTransaction.
type Wallet struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID    string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"user_id"`
	Balance   int64     `gorm:"not null;default:0" json:"balance"`
	Version   int       `gorm:"not null;default:0" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string {
	return "wallet"
}

// WalletTransaction is an append-only ledger row. Completed credits minus
// completed debits for a user always equal the wallet balance.
type WalletTransaction struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	TransactionNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"id"`
	UserID        string    `gorm:"type:varchar(64);index:idx_wallet_txn_user_created;not null" json:"user_id"`
	Type          string    `gorm:"type:varchar(16);not null" json:"type"`
	Amount        int64     `gorm:"not null" json:"amount"`
	Description   string    `gorm:"type:varchar(256)" json:"description"`
	Status        string    `gorm:"type:varchar(16);not null" json:"status"`
	Reference     string    `gorm:"type:varchar(64);index" json:"reference,omitempty"`
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index:idx_wallet_txn_user_created" json:"timestamp"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transaction"
}

// LedgerEntry is a request to move money on one wallet.
type LedgerEntry struct {
	UserID      string
	Type        string
	Amount      int64
	Description string
	Reference   string
}

// Signed returns the balance delta of the entry.
func (e LedgerEntry) Signed() int64 {
	if e.Type == TransactionTypeDebit {
		return -e.Amount
	}
	return e.Amount
}

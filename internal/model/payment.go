package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	PaymentMethodUPI        = "upi"
	PaymentMethodCard       = "card"
	PaymentMethodNetbanking = "netbanking"
)

// IsValidPaymentMethod reports whether m is accepted by the gateway.
func IsValidPaymentMethod(m string) bool {
	switch m {
	case PaymentMethodUPI, PaymentMethodCard, PaymentMethodNetbanking:
		return true
	}
	return false
}

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

var ValidPaymentTransitions = map[string][]string{
	PaymentStatusPending:   {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusCompleted: {PaymentStatusRefunded},
}

func CanPaymentTransitionTo(currentStatus, targetStatus string) bool {
	for _, s := range ValidPaymentTransitions[currentStatus] {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// PaymentTransaction tracks a wallet top-up through the external gateway.
// The wallet is credited exactly when the row moves pending -> completed.
type PaymentTransaction struct {
	ID                   int64          `gorm:"primaryKey;autoIncrement" json:"-"`
	PaymentNo            string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"id"`
	UserID               string         `gorm:"type:varchar(64);index;not null" json:"user_id"`
	Amount               int64          `gorm:"not null" json:"amount"`
	Currency             string         `gorm:"type:varchar(8);not null" json:"currency"`
	Method               string         `gorm:"type:varchar(16);not null" json:"method"`
	UpiID                string         `gorm:"type:varchar(128)" json:"upi_id,omitempty"`
	GatewayOrderID       string         `gorm:"type:varchar(64);index;not null" json:"gateway_order_id"`
	GatewayTransactionID string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"gateway_transaction_id"`
	Status               string         `gorm:"type:varchar(16);index;not null" json:"status"`
	FailureReason        string         `gorm:"type:varchar(256)" json:"failure_reason,omitempty"`
	WalletTransactionNo  string         `gorm:"type:varchar(64)" json:"wallet_transaction_id,omitempty"`
	GatewayPayload       datatypes.JSON `json:"gateway_payload,omitempty"`
	CompletedAt          *time.Time     `json:"completed_at,omitempty"`
	CreatedAt            time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt            time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PaymentTransaction) TableName() string {
	return "payment_transaction"
}

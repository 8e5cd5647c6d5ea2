package model

import (
	"time"
)

// MerchItem is a catalog entry. Stock never drops below zero.
type MerchItem struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name        string    `gorm:"type:varchar(128);not null" json:"name"`
	Description string    `gorm:"type:varchar(512)" json:"description,omitempty"`
	UnitPrice   int64     `gorm:"not null" json:"unit_price"`
	Stock       int64     `gorm:"not null;default:0" json:"stock_quantity"`
	Size        string    `gorm:"type:varchar(16)" json:"size,omitempty"`
	ImageURL    string    `gorm:"type:varchar(256)" json:"image_url,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"-"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"-"`
}

func (MerchItem) TableName() string {
	return "merch_item"
}

// StockLine is a quantity of one catalog item, as requested or reserved.
type StockLine struct {
	ItemID   string `json:"item_id"`
	Quantity int64  `json:"quantity"`
}

const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

// ValidOrderTransitions lists the allowed moves of the order state machine.
// Completed and cancelled are terminal.
var ValidOrderTransitions = map[string][]string{
	OrderStatusPending: {OrderStatusCompleted, OrderStatusCancelled},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowed, exists := ValidOrderTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == targetStatus {
			return true
		}
	}
	return false
}

type MerchOrder struct {
	ID           int64             `gorm:"primaryKey;autoIncrement" json:"-"`
	OrderNo      string            `gorm:"type:varchar(64);uniqueIndex;not null" json:"id"`
	UserID       string            `gorm:"type:varchar(64);index;not null" json:"user_id"`
	TotalPrice   int64             `gorm:"not null" json:"total_price"`
	Status       string            `gorm:"type:varchar(16);index;not null" json:"status"`
	CancelReason string            `gorm:"type:varchar(128)" json:"cancel_reason,omitempty"`
	ExpiresAt    time.Time         `gorm:"index;not null" json:"expires_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	CreatedAt    time.Time         `gorm:"autoCreateTime;index" json:"ordered_at"`
	UpdatedAt    time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
	Items        []*MerchOrderItem `gorm:"foreignKey:OrderNo;references:OrderNo" json:"items"`
}

func (MerchOrder) TableName() string {
	return "merch_order"
}

// StockLines returns the quantities the order holds in reservation.
func (o *MerchOrder) StockLines() []StockLine {
	lines := make([]StockLine, 0, len(o.Items))
	for _, item := range o.Items {
		lines = append(lines, StockLine{ItemID: item.ItemID, Quantity: item.Quantity})
	}
	return lines
}

type MerchOrderItem struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"-"`
	OrderNo   string `gorm:"type:varchar(64);index;not null" json:"-"`
	ItemID    string `gorm:"type:varchar(64);not null" json:"item_id"`
	Name      string `gorm:"type:varchar(128);not null" json:"name"`
	Quantity  int64  `gorm:"not null" json:"quantity"`
	UnitPrice int64  `gorm:"not null" json:"unit_price"`
}

func (MerchOrderItem) TableName() string {
	return "merch_order_item"
}

func (i *MerchOrderItem) Subtotal() int64 {
	return i.Quantity * i.UnitPrice
}

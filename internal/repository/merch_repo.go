package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"ignitia/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrItemNotFound = errors.New("merch item not found")
	ErrOutOfStock   = errors.New("insufficient stock")
)

// StockError names the item that made a reservation fail.
type StockError struct {
	ItemID string
	Err    error
}

func (e *StockError) Error() string {
	return fmt.Sprintf("item %s: %v", e.ItemID, e.Err)
}

func (e *StockError) Unwrap() error {
	return e.Err
}

type MerchRepository struct {
	db *gorm.DB
}

func NewMerchRepository(db *gorm.DB) *MerchRepository {
	return &MerchRepository{db: db}
}

func (r *MerchRepository) List(ctx context.Context) ([]*model.MerchItem, error) {
	var items []*model.MerchItem
	err := r.db.WithContext(ctx).Order("id ASC").Find(&items).Error
	return items, err
}

func (r *MerchRepository) GetByID(ctx context.Context, id string) (*model.MerchItem, error) {
	var item model.MerchItem
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

// MergeLines folds duplicate item ids together and orders lines by item id,
// which is also the row locking order.
func MergeLines(lines []model.StockLine) []model.StockLine {
	totals := make(map[string]int64, len(lines))
	for _, l := range lines {
		totals[l.ItemID] += l.Quantity
	}
	merged := make([]model.StockLine, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, model.StockLine{ItemID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ItemID < merged[j].ItemID })
	return merged
}

// Reserve decrements stock for every line or for none. All lines are checked
// against locked rows before the first decrement is issued; the conditional
// update is the final guard against overselling. Returns the reserved items
// keyed by id with the prices they were reserved at.
func (r *MerchRepository) Reserve(ctx context.Context, tx *gorm.DB, lines []model.StockLine) (map[string]*model.MerchItem, error) {
	if tx == nil {
		var reserved map[string]*model.MerchItem
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			reserved, err = r.reserve(ctx, tx, lines)
			return err
		})
		return reserved, err
	}
	return r.reserve(ctx, tx, lines)
}

func (r *MerchRepository) reserve(ctx context.Context, tx *gorm.DB, lines []model.StockLine) (map[string]*model.MerchItem, error) {
	lines = MergeLines(lines)
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ItemID)
	}

	var items []*model.MerchItem
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*model.MerchItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	for _, l := range lines {
		item, ok := byID[l.ItemID]
		if !ok {
			return nil, &StockError{ItemID: l.ItemID, Err: ErrItemNotFound}
		}
		if item.Stock < l.Quantity {
			return nil, &StockError{ItemID: l.ItemID, Err: ErrOutOfStock}
		}
	}

	for _, l := range lines {
		result := tx.WithContext(ctx).
			Model(&model.MerchItem{}).
			Where("id = ? AND stock >= ?", l.ItemID, l.Quantity).
			UpdateColumn("stock", gorm.Expr("stock - ?", l.Quantity))
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, &StockError{ItemID: l.ItemID, Err: ErrOutOfStock}
		}
		byID[l.ItemID].Stock -= l.Quantity
	}
	return byID, nil
}

// Restore returns reserved quantities to stock.
func (r *MerchRepository) Restore(ctx context.Context, tx *gorm.DB, lines []model.StockLine) error {
	if tx == nil {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return r.restore(ctx, tx, lines)
		})
	}
	return r.restore(ctx, tx, lines)
}

func (r *MerchRepository) restore(ctx context.Context, tx *gorm.DB, lines []model.StockLine) error {
	for _, l := range MergeLines(lines) {
		result := tx.WithContext(ctx).
			Model(&model.MerchItem{}).
			Where("id = ?", l.ItemID).
			UpdateColumn("stock", gorm.Expr("stock + ?", l.Quantity))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return &StockError{ItemID: l.ItemID, Err: ErrItemNotFound}
		}
	}
	return nil
}

package service

import (
	"context"

	"ignitia/internal/model"
	"ignitia/internal/repository"
	"ignitia/pkg/apperr"

	"gorm.io/gorm"
)

// CatalogService is the only mutator of merchandise stock.
type CatalogService struct {
	merchRepo *repository.MerchRepository
}

func NewCatalogService(merchRepo *repository.MerchRepository) *CatalogService {
	return &CatalogService{merchRepo: merchRepo}
}

func (s *CatalogService) GetCatalog(ctx context.Context) ([]*model.MerchItem, error) {
	items, err := s.merchRepo.List(ctx)
	if err != nil {
		return nil, translate(err, "list catalog")
	}
	return items, nil
}

func (s *CatalogService) GetItem(ctx context.Context, itemID string) (*model.MerchItem, error) {
	item, err := s.merchRepo.GetByID(ctx, itemID)
	if err != nil {
		return nil, translate(err, "get item")
	}
	return item, nil
}

// ReserveStock decrements stock for every line or for none.
func (s *CatalogService) ReserveStock(ctx context.Context, lines []model.StockLine) (map[string]*model.MerchItem, error) {
	return s.reserve(ctx, nil, lines)
}

// RestoreStock returns quantities to stock.
func (s *CatalogService) RestoreStock(ctx context.Context, lines []model.StockLine) error {
	return s.restore(ctx, nil, lines)
}

func (s *CatalogService) reserve(ctx context.Context, tx *gorm.DB, lines []model.StockLine) (map[string]*model.MerchItem, error) {
	if err := validateLines(lines); err != nil {
		return nil, err
	}
	reserved, err := s.merchRepo.Reserve(ctx, tx, lines)
	if err != nil {
		return nil, translate(err, "reserve stock")
	}
	return reserved, nil
}

func (s *CatalogService) restore(ctx context.Context, tx *gorm.DB, lines []model.StockLine) error {
	if err := validateLines(lines); err != nil {
		return err
	}
	if err := s.merchRepo.Restore(ctx, tx, lines); err != nil {
		return translate(err, "restore stock")
	}
	return nil
}

func validateLines(lines []model.StockLine) error {
	if len(lines) == 0 {
		return apperr.New(apperr.CodeValidation, "at least one item is required")
	}
	for _, l := range lines {
		if l.ItemID == "" {
			return apperr.New(apperr.CodeValidation, "item id is required")
		}
		if l.Quantity <= 0 {
			return apperr.Newf(apperr.CodeValidation, "quantity for item %s must be positive", l.ItemID).
				WithDetail("item_id", l.ItemID)
		}
	}
	return nil
}

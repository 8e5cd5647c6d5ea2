package database

import (
	"context"
	"fmt"

	"ignitia/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultMerch is the festival catalog loaded at first start.
var DefaultMerch = []model.MerchItem{
	{ID: "1", Name: "Official Ignitia Tee", Description: "Premium cotton t-shirt with the Ignitia festival logo", UnitPrice: 299, Stock: 100, Size: "M"},
	{ID: "2", Name: "Ignitia Hoodie", Description: "Warm fleece hoodie for the festival nights", UnitPrice: 649, Stock: 50, Size: "L"},
	{ID: "3", Name: "Ignitia Cap", Description: "Embroidered cap", UnitPrice: 199, Stock: 75},
}

// DefaultEvents is the event lineup loaded at first start.
var DefaultEvents = []model.Event{
	{ID: "beat-the-market", Name: "Beat the Market", Date: "2026-04-28T10:00", Location: "Trading Arena", Category: "entrepreneurial", Fee: 150,
		Description: "A high-stakes stock trading simulation challenge."},
	{ID: "trade-quest", Name: "Trade Quest", Date: "2026-04-29T14:00", Location: "Trading Arena", Category: "entrepreneurial", Fee: 150,
		Description: "An algorithmic trading competition where your bot battles others in a virtual market."},
	{ID: "3", Name: "Innovate & Create Tech Summit", Date: "2026-04-30T10:00", Location: "Main Auditorium", Category: "entrepreneurial", Fee: 200,
		Description: "A summit for technology and design ideas that shape the future."},
	{ID: "4", Name: "Gourmet Bites Food & Wine Festival", Date: "2026-05-01T12:00", Location: "Food Court", Category: "miscellaneous", Fee: 100,
		Description: "World-class cuisine from around the campus."},
	{ID: "5", Name: "Synthwave Summer Fest", Date: "2026-05-02T18:00", Location: "Open Air Theatre", Category: "technical", Fee: 250,
		Description: "Electronic music night featuring student artists."},
}

// Seed inserts the default catalog and events. Existing rows are left
// untouched so restarts never reset stock or attendee counters.
func Seed(ctx context.Context, db *gorm.DB) error {
	items := make([]model.MerchItem, len(DefaultMerch))
	copy(items, DefaultMerch)
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&items).Error; err != nil {
		return fmt.Errorf("seed merch: %w", err)
	}

	events := make([]model.Event, len(DefaultEvents))
	copy(events, DefaultEvents)
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&events).Error; err != nil {
		return fmt.Errorf("seed events: %w", err)
	}
	return nil
}

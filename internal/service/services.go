package service

import (
	"ignitia/internal/config"
	"ignitia/internal/infrastructure/gateway"
	"ignitia/internal/infrastructure/lock"
	"ignitia/internal/repository"

	"gorm.io/gorm"
)

// Services wires every service over one database handle.
type Services struct {
	Wallet       *WalletService
	Catalog      *CatalogService
	Order        *OrderService
	Registration *RegistrationService
	Payment      *PaymentService
	Refund       *RefundService
}

func NewServices(db *gorm.DB, cfg *config.Config, locker lock.Locker, gw gateway.Gateway) *Services {
	return NewServicesWithLedger(db, cfg, repository.NewLedgerRepository(db, cfg.Business.WelcomeBonus), locker, gw)
}

// NewServicesWithLedger lets the ledger store be substituted.
func NewServicesWithLedger(db *gorm.DB, cfg *config.Config, ledger LedgerStore, locker lock.Locker, gw gateway.Gateway) *Services {
	outboxRepo := repository.NewOutboxRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	wallet := NewWalletService(ledger, cfg.Business.MaxAmount)
	catalog := NewCatalogService(repository.NewMerchRepository(db))

	return &Services{
		Wallet:       wallet,
		Catalog:      catalog,
		Order:        NewOrderService(db, cfg, repository.NewOrderRepository(db), outboxRepo, catalog, wallet, locker),
		Registration: NewRegistrationService(db, cfg, repository.NewEventRepository(db), outboxRepo, wallet, locker),
		Payment:      NewPaymentService(db, cfg, paymentRepo, outboxRepo, wallet, gw, locker),
		Refund:       NewRefundService(db, cfg, paymentRepo, outboxRepo, wallet, locker),
	}
}

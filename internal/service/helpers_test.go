package service

import (
	"context"
	"testing"
	"time"

	"ignitia/internal/config"
	"ignitia/internal/infrastructure/database"
	"ignitia/internal/infrastructure/gateway"
	"ignitia/internal/infrastructure/lock"
	"ignitia/internal/model"
	"ignitia/internal/repository"
	"ignitia/pkg/apperr"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testWelcomeBonus = 2000
	testMaxAmount    = 1000000
)

func newTestConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{Topic: config.KafkaTopicConfig{
			Wallet:       "ignitia.wallet",
			Order:        "ignitia.order",
			Registration: "ignitia.registration",
			Payment:      "ignitia.payment",
		}},
		Gateway: config.GatewayConfig{Secret: "test_secret", Currency: "INR"},
		Business: config.BusinessConfig{
			WelcomeBonus:          testWelcomeBonus,
			MaxAmount:             testMaxAmount,
			OrderTimeoutMinutes:   15,
			PaymentTimeoutMinutes: 30,
			MaxRetryCount:         3,
			CheckoutTimeoutSecs:   5,
			JobBatchSize:          50,
		},
	}
}

type testEnv struct {
	db  *gorm.DB
	cfg *config.Config
	gw  *gateway.Simulator
	svc *Services
}

// newTestDB opens an isolated in-memory database with the default catalog.
// The service pool has a single connection; a second pool keeps the shared
// in-memory database alive when a cancelled transaction discards that
// connection.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          "file:svc_" + uuid.NewString() + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
		LogLevel:     "silent",
	}
	db, err := database.Open(cfg)
	require.NoError(t, err)
	keepalive, err := database.Open(cfg)
	require.NoError(t, err)
	require.NoError(t, database.Ping(context.Background(), keepalive))
	require.NoError(t, database.Seed(context.Background(), db))
	t.Cleanup(func() {
		_ = database.Close(db)
		_ = database.Close(keepalive)
	})
	return db
}

// newTestLocker waits up to five seconds for a held key.
func newTestLocker() *lock.LocalLocker {
	return lock.NewLocalLocker(10*time.Millisecond, 500)
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWith(t, nil, newTestLocker())
}

// newTestEnvWith builds the services over a fresh database. A nil ledger
// selects the real ledger repository, a nil locker the in-process one.
func newTestEnvWith(t *testing.T, ledger LedgerStore, locker lock.Locker) *testEnv {
	t.Helper()
	db := newTestDB(t)
	cfg := newTestConfig()
	if ledger == nil {
		ledger = repository.NewLedgerRepository(db, cfg.Business.WelcomeBonus)
	}
	if locker == nil {
		locker = newTestLocker()
	}
	gw := gateway.NewSimulator(cfg.Gateway.Secret, false, model.PaymentMethodUPI, model.PaymentMethodCard, model.PaymentMethodNetbanking)
	return &testEnv{
		db:  db,
		cfg: cfg,
		gw:  gw,
		svc: NewServicesWithLedger(db, cfg, ledger, locker, gw),
	}
}

func (e *testEnv) stock(t *testing.T, itemID string) int64 {
	t.Helper()
	item, err := e.svc.Catalog.GetItem(context.Background(), itemID)
	require.NoError(t, err)
	return item.Stock
}

func (e *testEnv) balance(t *testing.T, userID string) int64 {
	t.Helper()
	b, err := e.svc.Wallet.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

// spend brings userID's balance down to target.
func (e *testEnv) spend(t *testing.T, userID string, target int64) {
	t.Helper()
	current := e.balance(t, userID)
	require.GreaterOrEqual(t, current, target)
	if current == target {
		return
	}
	_, err := e.svc.Wallet.DebitForPurchase(context.Background(), userID, current-target, "setup")
	require.NoError(t, err)
}

func (e *testEnv) outboxEvents(t *testing.T, eventType string) []*model.OutboxMessage {
	t.Helper()
	var msgs []*model.OutboxMessage
	require.NoError(t, e.db.Where("event_type = ?", eventType).Order("id ASC").Find(&msgs).Error)
	return msgs
}

func (e *testEnv) countTransactions(t *testing.T, userID, txType string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&model.WalletTransaction{}).
		Where("user_id = ? AND type = ?", userID, txType).
		Count(&n).Error)
	return n
}

func assertCode(t *testing.T, err error, code apperr.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperr.CodeOf(err), "error: %v", err)
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) GetWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	args := m.Called(ctx, userID)
	wallet, _ := args.Get(0).(*model.Wallet)
	return wallet, args.Error(1)
}

func (m *mockLedger) GetBalance(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockLedger) AppendTransaction(ctx context.Context, tx *gorm.DB, entry model.LedgerEntry) (*model.WalletTransaction, error) {
	args := m.Called(ctx, tx, entry)
	txn, _ := args.Get(0).(*model.WalletTransaction)
	return txn, args.Error(1)
}

func (m *mockLedger) ListTransactions(ctx context.Context, userID string, limit int) ([]*model.WalletTransaction, error) {
	args := m.Called(ctx, userID, limit)
	txns, _ := args.Get(0).([]*model.WalletTransaction)
	return txns, args.Error(1)
}

func (m *mockLedger) Reconcile(ctx context.Context, userID string) (int64, int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}

func (m *mockLedger) ListWallets(ctx context.Context, afterID int64, limit int) ([]*model.Wallet, error) {
	args := m.Called(ctx, afterID, limit)
	wallets, _ := args.Get(0).([]*model.Wallet)
	return wallets, args.Error(1)
}

type busyLocker struct{}

func (busyLocker) Obtain(context.Context, string, string) (lock.Unlocker, error) {
	return nil, lock.ErrLockFailed
}

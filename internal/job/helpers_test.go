package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ignitia/internal/config"
	"ignitia/internal/infrastructure/database"
	"ignitia/internal/infrastructure/gateway"
	"ignitia/internal/infrastructure/lock"
	"ignitia/internal/infrastructure/mq"
	"ignitia/internal/model"
	"ignitia/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          "file:job_" + uuid.NewString() + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.Seed(context.Background(), db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func newTestServices(t *testing.T, db *gorm.DB) (*config.Config, *service.Services) {
	t.Helper()
	cfg := &config.Config{
		Kafka: config.KafkaConfig{Topic: config.KafkaTopicConfig{
			Wallet:       "ignitia.wallet",
			Order:        "ignitia.order",
			Registration: "ignitia.registration",
			Payment:      "ignitia.payment",
		}},
		Gateway: config.GatewayConfig{Currency: "INR"},
		Business: config.BusinessConfig{
			WelcomeBonus:          2000,
			MaxAmount:             1000000,
			OrderTimeoutMinutes:   15,
			PaymentTimeoutMinutes: 30,
			MaxRetryCount:         3,
			CheckoutTimeoutSecs:   5,
			JobBatchSize:          50,
		},
	}
	gw := gateway.NewSimulator("", false, model.PaymentMethodUPI, model.PaymentMethodCard)
	return cfg, service.NewServices(db, cfg, lock.NewLocalLocker(10*time.Millisecond, 500), gw)
}

// recordingPublisher keeps every published message and fails while failing
// is set.
type recordingPublisher struct {
	mu       sync.Mutex
	failing  bool
	messages []mq.Message
}

func (p *recordingPublisher) Publish(_ context.Context, msg mq.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing {
		return errors.New("broker unavailable")
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []mq.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]mq.Message(nil), p.messages...)
}

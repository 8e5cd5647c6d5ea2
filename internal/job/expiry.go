package job

import (
	"context"
	"time"

	"ignitia/pkg/logger"
	"ignitia/pkg/metrics"
)

type OrderExpirer interface {
	ExpireOrders(ctx context.Context, limit int) (int, error)
}

type PaymentExpirer interface {
	ExpireStalePayments(ctx context.Context, limit int) (int, error)
}

// OrderExpiryJob cancels pending orders past their expiry and returns their
// stock to the catalog.
type OrderExpiryJob struct {
	*loop
	orders    OrderExpirer
	batchSize int
}

func NewOrderExpiryJob(orders OrderExpirer, batchSize int, m *metrics.JobMetrics) *OrderExpiryJob {
	return &OrderExpiryJob{
		loop:      newLoop("order_expiry", 10*time.Second, m),
		orders:    orders,
		batchSize: batchSize,
	}
}

func (j *OrderExpiryJob) Start(ctx context.Context) {
	j.run(ctx, j.RunOnce)
}

func (j *OrderExpiryJob) RunOnce(ctx context.Context) error {
	n, err := j.orders.ExpireOrders(ctx, j.batchSize)
	if n > 0 {
		logger.Component(ctx, j.name).Info().Int("count", n).Msg("expired orders cancelled")
	}
	return err
}

// PaymentExpiryJob fails pending top-ups the client never verified.
type PaymentExpiryJob struct {
	*loop
	payments  PaymentExpirer
	batchSize int
}

func NewPaymentExpiryJob(payments PaymentExpirer, batchSize int, m *metrics.JobMetrics) *PaymentExpiryJob {
	return &PaymentExpiryJob{
		loop:      newLoop("payment_expiry", 30*time.Second, m),
		payments:  payments,
		batchSize: batchSize,
	}
}

func (j *PaymentExpiryJob) Start(ctx context.Context) {
	j.run(ctx, j.RunOnce)
}

func (j *PaymentExpiryJob) RunOnce(ctx context.Context) error {
	n, err := j.payments.ExpireStalePayments(ctx, j.batchSize)
	if n > 0 {
		logger.Component(ctx, j.name).Info().Int("count", n).Msg("stale payments failed")
	}
	return err
}

package job

import (
	"context"
	"time"

	"ignitia/internal/model"
	"ignitia/pkg/apperr"
	"ignitia/pkg/logger"
	"ignitia/pkg/metrics"

	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const EventBalanceMismatch = "wallet.balance_mismatch"

type WalletAuditor interface {
	ListWallets(ctx context.Context, afterID int64, limit int) ([]*model.Wallet, error)
	VerifyBalance(ctx context.Context, userID string) error
}

type AlertSink interface {
	Enqueue(ctx context.Context, tx *gorm.DB, topic, eventType, key string, payload any) error
}

// LedgerAuditJob walks every wallet and checks that its balance equals the
// sum of its completed ledger rows. Each mismatch is raised as an alert on
// the wallet topic.
type LedgerAuditJob struct {
	*loop
	wallets   WalletAuditor
	alerts    AlertSink
	topic     string
	batchSize int
}

func NewLedgerAuditJob(wallets WalletAuditor, alerts AlertSink, topic string, interval time.Duration, batchSize int, m *metrics.JobMetrics) *LedgerAuditJob {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &LedgerAuditJob{
		loop:      newLoop("ledger_audit", interval, m),
		wallets:   wallets,
		alerts:    alerts,
		topic:     topic,
		batchSize: batchSize,
	}
}

func (j *LedgerAuditJob) Start(ctx context.Context) {
	j.run(ctx, j.RunOnce)
}

// RunOnce audits all wallets. The returned error combines every mismatch
// found; a storage failure aborts the pass.
func (j *LedgerAuditJob) RunOnce(ctx context.Context) error {
	log := logger.Component(ctx, j.name)

	var (
		mismatches error
		afterID    int64
		checked    int
	)
	for {
		wallets, err := j.wallets.ListWallets(ctx, afterID, j.batchSize)
		if err != nil {
			return multierr.Append(mismatches, err)
		}
		if len(wallets) == 0 {
			break
		}
		for _, w := range wallets {
			afterID = w.ID
			checked++
			err := j.wallets.VerifyBalance(ctx, w.UserID)
			if err == nil {
				continue
			}
			if !apperr.Is(err, apperr.CodeInternal) {
				return multierr.Append(mismatches, err)
			}
			mismatches = multierr.Append(mismatches, err)
			log.Error().Err(err).Str("user_id", w.UserID).Msg("wallet balance does not match ledger")
			if alertErr := j.alerts.Enqueue(ctx, nil, j.topic, EventBalanceMismatch, w.UserID, apperr.As(err).Details()); alertErr != nil {
				mismatches = multierr.Append(mismatches, alertErr)
			}
		}
		if len(wallets) < j.batchSize {
			break
		}
	}

	log.Debug().Int("checked", checked).Int("mismatches", len(multierr.Errors(mismatches))).Msg("ledger audit finished")
	return mismatches
}

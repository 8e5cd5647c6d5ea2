package job

import (
	"context"
	"sync"
	"time"

	"ignitia/pkg/logger"
	"ignitia/pkg/metrics"
)

// loop runs a job body on a fixed interval until its context is cancelled or
// Stop is called.
type loop struct {
	name     string
	interval time.Duration
	metrics  *metrics.JobMetrics
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newLoop(name string, interval time.Duration, m *metrics.JobMetrics) *loop {
	return &loop{
		name:     name,
		interval: interval,
		metrics:  m,
		stopCh:   make(chan struct{}),
	}
}

func (l *loop) run(ctx context.Context, body func(context.Context) error) {
	log := logger.Component(ctx, l.name)
	log.Info().Dur("interval", l.interval).Msg("job started")

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("context cancelled, job exiting")
			return
		case <-l.stopCh:
			log.Info().Msg("job stopped")
			return
		case <-ticker.C:
			started := time.Now()
			err := body(ctx)
			l.metrics.Observe(l.name, time.Since(started), err)
			if err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("job run failed")
			}
		}
	}
}

// Stop ends the loop. It is safe to call more than once.
func (l *loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

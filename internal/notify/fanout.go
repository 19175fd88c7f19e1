package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/example/lifelink/internal/donor/domain"
)

var (
	alertsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "donor_alerts_sent_total",
		Help: "Total number of donor alerts handed to the dispatcher.",
	})
	alertsFailTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "donor_alerts_fail_total",
		Help: "Total number of donor alert dispatch failures.",
	})
)

// FanoutConfig tunes the fan-out pass.
type FanoutConfig struct {
	Timeout     time.Duration
	Concurrency int
}

// Fanout attempts one dispatch per donor as independent concurrent tasks.
// There is no ordering guarantee and no rollback: a failure for one donor is
// logged and does not affect the others. Returns the number of successful
// dispatches.
func Fanout(ctx context.Context, dispatcher domain.Dispatcher, logger *zap.Logger, donors []domain.Donor, alert domain.Alert, cfg FanoutConfig) int {
	if dispatcher == nil || len(donors) == 0 {
		return 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sem := make(chan struct{}, cfg.Concurrency)
	var wg sync.WaitGroup
	var sent int64

	for _, donor := range donors {
		donor := donor
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			sendCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
			if err := dispatcher.Send(sendCtx, donor, alert); err != nil {
				alertsFailTotal.Inc()
				logger.Warn("alert dispatch failed",
					zap.String("donor_id", donor.ID.String()),
					zap.Error(err))
				return
			}
			alertsSentTotal.Inc()
			atomic.AddInt64(&sent, 1)
		}()
	}
	wg.Wait()
	return int(atomic.LoadInt64(&sent))
}

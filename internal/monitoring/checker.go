package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Checker periodically evaluates alert thresholds against the collector.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
}

// NewChecker builds a background checker. A non-positive interval falls
// back to five minutes.
func NewChecker(collector *Collector, alerter *Alerter, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Checker{collector: collector, alerter: alerter, interval: interval}
}

// Run blocks until ctx is cancelled, checking thresholds on each tick.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker", zap.Duration("interval", c.interval))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			alerts := c.alerter.Evaluate(c.collector.Collect())
			if len(alerts) > 0 {
				c.alerter.Report(alerts)
			}
		}
	}
}

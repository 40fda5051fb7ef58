package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/greenshelf/ecoscore/internal/config"
)

// Checker watches scoring health in the background: on every sweep it
// snapshots the lookback window, evaluates the snapshot against the alert
// thresholds, and pushes whatever trips to the webhook.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int
	log       *zap.Logger
}

// NewChecker resolves interval and lookback up front; zero values get the
// operational defaults of five minutes and a day.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	lookback := cfg.LookbackWindowHours
	if lookback <= 0 {
		lookback = 24
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		lookback:  lookback,
		log:       zap.L().Named("monitoring"),
	}
}

// Run blocks until ctx is cancelled. The first sweep happens immediately so
// a fresh deployment surfaces a failed validation gate or a spike of
// degraded results without waiting out a full interval.
func (c *Checker) Run(ctx context.Context) {
	c.log.Info("scoring health checks started",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	if ctx.Err() == nil {
		c.sweep(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			c.log.Info("scoring health checks stopped")
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

// sweep is one collect-evaluate-notify cycle.
func (c *Checker) sweep(ctx context.Context) {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		c.log.Error("health snapshot failed", zap.Error(err))
		return
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		c.log.Debug("scoring healthy",
			zap.Int("results", snap.ResultsTotal),
			zap.Float64("degraded_rate", snap.DegradedRate),
			zap.Float64("agreement_rate", snap.AgreementRate),
			zap.Bool("gate_passed", snap.GatePassed),
		)
		return
	}

	for _, a := range alerts {
		c.log.Warn("scoring health alert",
			zap.String("type", string(a.Type)),
			zap.String("severity", a.Severity),
			zap.String("message", a.Message),
		)
	}
	sent := c.alerter.SendAlerts(ctx, alerts)
	c.log.Info("sweep complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
}

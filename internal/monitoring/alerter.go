package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/greenshelf/ecoscore/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertDegradedRate  AlertType = "degraded_rate"
	AlertAgreementRate AlertType = "agreement_rate"
	AlertGateFailed    AlertType = "validation_gate_failed"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// Rate checks are skipped below the configured minimum sample size so a
// quiet period cannot trip them on a handful of requests.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Check degraded-response rate.
	if snap.ResultsTotal >= a.cfg.MinSampleSize && snap.DegradedRate > a.cfg.DegradedRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertDegradedRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Degraded rate %.1f%% exceeds threshold %.1f%% (%d degraded / %d scored in last %dh)",
				snap.DegradedRate*100, a.cfg.DegradedRateThreshold*100,
				snap.Degraded, snap.ResultsTotal, snap.LookbackHours,
			),
			Details: map[string]any{
				"degraded_rate": snap.DegradedRate,
				"threshold":     a.cfg.DegradedRateThreshold,
				"degraded":      snap.Degraded,
				"total":         snap.ResultsTotal,
			},
			Timestamp: now,
		})
	}

	// Check estimator agreement rate.
	if snap.Compared() >= a.cfg.MinSampleSize && snap.AgreementRate < a.cfg.AgreementRateFloor {
		alerts = append(alerts, Alert{
			Type:     AlertAgreementRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Estimator agreement %.1f%% below floor %.1f%% (%d compared in last %dh)",
				snap.AgreementRate*100, a.cfg.AgreementRateFloor*100,
				snap.Compared(), snap.LookbackHours,
			),
			Details: map[string]any{
				"agreement_rate":   snap.AgreementRate,
				"floor":            a.cfg.AgreementRateFloor,
				"compared":         snap.Compared(),
				"avg_disagreement": snap.AvgDisagreement,
			},
			Timestamp: now,
		})
	}

	// Check the latest validation gate.
	if snap.ModelVersion != "" && !snap.GatePassed {
		alerts = append(alerts, Alert{
			Type:     AlertGateFailed,
			Severity: "high",
			Message: fmt.Sprintf(
				"Latest validation report for model %s failed its publish gate",
				snap.ModelVersion,
			),
			Details: map[string]any{
				"model_version": snap.ModelVersion,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

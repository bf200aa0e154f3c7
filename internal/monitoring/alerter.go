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

	"github.com/sells-group/trust-router/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertMetricDrop  AlertType = "metric_drop"
	AlertMetricFloor AlertType = "metric_floor"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter turns drift findings into alerts and sends them via webhook.
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

// Evaluate returns one alert per drift finding in snap.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	if snap == nil || !snap.Drift {
		return nil
	}
	now := time.Now().UTC()
	alerts := make([]Alert, 0, len(snap.Findings))
	for _, f := range snap.Findings {
		typ, sev := AlertMetricDrop, "high"
		if f.Reason == "below floor" {
			typ, sev = AlertMetricFloor, "critical"
		}
		alerts = append(alerts, Alert{
			Type:     typ,
			Severity: sev,
			Message: fmt.Sprintf("Validation %s %s (current %.3f, baseline %.3f, threshold %.3f) over %s",
				f.Metric, f.Reason, f.Current, f.Baseline, f.Threshold, snap.Current.Window),
			Details: map[string]any{
				"metric":           f.Metric,
				"current":          f.Current,
				"baseline":         f.Baseline,
				"threshold":        f.Threshold,
				"current_samples":  snap.Current.Samples,
				"baseline_samples": snap.Baseline.Samples,
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

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/trust-router/internal/config"
	"github.com/sells-group/trust-router/internal/model"
	"github.com/sells-group/trust-router/internal/report"
)

// withConfig installs c as the global config for the test.
func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Store:      config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "trust.db")},
		Metrics:    config.MetricsConfig{FlushIntervalSecs: 1, BatchSize: 10, MaxPending: 100},
		Monitoring: config.MonitoringConfig{LookbackWindowHours: 24, BaselineWindowHours: 168},
		Log:        config.LogConfig{Level: "info", Format: "json"},
	}
}

const validPolicy = `
policy:
  version: "2026-10-01"
  routing:
    low_threshold: 0.3
    high_threshold: 0.75
`

func TestLoadPolicy_Default(t *testing.T) {
	withConfig(t, testConfig(t))

	h, err := loadPolicy()
	require.NoError(t, err)
	assert.Equal(t, "builtin-1", h.Current().Version)
}

func TestLoadPolicy_File(t *testing.T) {
	c := testConfig(t)
	c.Policy.Path = filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(c.Policy.Path, []byte(validPolicy), 0o600))
	withConfig(t, c)

	h, err := loadPolicy()
	require.NoError(t, err)
	assert.Equal(t, "2026-10-01", h.Current().Version)
	assert.InDelta(t, 0.3, h.Current().Routing.LowThreshold, 1e-9)
}

func TestValidatePolicy(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(good, []byte(validPolicy), 0o600))
	require.NoError(t, os.WriteFile(bad, []byte("policy:\n  routing:\n    low_threshold: 0.9\n    high_threshold: 0.2\n"), 0o600))

	var out bytes.Buffer
	require.NoError(t, validatePolicy(good, &out))
	assert.Contains(t, out.String(), "ok (version 2026-10-01)")

	require.Error(t, validatePolicy(bad, &out))
}

func TestInitApp_MetricsMode(t *testing.T) {
	withConfig(t, testConfig(t))
	ctx := context.Background()

	env, err := initApp(ctx, "metrics")
	require.NoError(t, err)
	defer env.Close()

	assert.Nil(t, env.Pipeline)
	require.NotNil(t, env.Tracker)

	snap, err := env.Collector().Collect(ctx, env.Policies.Current())
	require.NoError(t, err)
	assert.Zero(t, snap.Current.Samples)
	assert.False(t, snap.Drift)
}

func TestInitApp_AnalyzeModeNeedsKey(t *testing.T) {
	withConfig(t, testConfig(t))

	_, err := initApp(context.Background(), "analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key or openai.key is required")
}

func TestInitApp_AnalyzeMode(t *testing.T) {
	c := testConfig(t)
	c.Anthropic.Key = "sk-test"
	withConfig(t, c)

	env, err := initApp(context.Background(), "analyze")
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Pipeline)
	assert.NotNil(t, env.Breakers)
}

func TestLabeler_RecordsObservation(t *testing.T) {
	withConfig(t, testConfig(t))
	ctx := context.Background()

	env, err := initApp(ctx, "metrics")
	require.NoError(t, err)
	defer env.Close()

	rec := &model.AuditRecord{
		ID:       "audit-1",
		EntityID: "ACME",
		ValidationReport: model.ValidationReport{
			ClaimID:         "claim-1",
			OverallPassed:   true,
			ConfidenceScore: 0.9,
		},
		StartedAt:   time.Now().UTC(),
		CompletedAt: time.Now().UTC(),
	}
	require.NoError(t, env.Store.SaveAudit(ctx, rec))

	var out bytes.Buffer
	err = applyLabels(ctx, newLabeler(env), []report.Label{{AuditID: "audit-1", Outcome: model.OutcomeValid}}, &out)
	require.NoError(t, err)

	now := time.Now().UTC()
	obs, err := env.Store.ListObservations(ctx, model.Window{Start: now.Add(-time.Hour), End: now.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, "claim-1", obs[0].ClaimID)
	assert.Equal(t, model.OutcomeValid, obs[0].Outcome)
}

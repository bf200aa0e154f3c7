package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/trust-router/internal/config"
	"github.com/sells-group/trust-router/internal/metrics"
	"github.com/sells-group/trust-router/internal/model"
	"github.com/sells-group/trust-router/internal/monitoring"
	"github.com/sells-group/trust-router/internal/pipeline"
	"github.com/sells-group/trust-router/internal/policy"
	"github.com/sells-group/trust-router/internal/store"
)

type fakeAnalyzer struct {
	lastReq  pipeline.Request
	err      error
	labelErr error
	labels   map[string]model.Outcome
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.Result{
		AuditID:  "audit-1",
		Plan:     model.FastTrack("m1"),
		Adjusted: model.AdjustedPrediction{AdjustmentFactor: 0.9, ShouldDisplay: true},
	}, nil
}

func (f *fakeAnalyzer) Label(_ context.Context, id string, outcome model.Outcome) error {
	if f.labelErr != nil {
		return f.labelErr
	}
	if f.labels == nil {
		f.labels = map[string]model.Outcome{}
	}
	f.labels[id] = outcome
	return nil
}

type fakeAudits struct {
	recs       []model.AuditRecord
	lastFilter store.AuditFilter
}

func (f *fakeAudits) GetAudit(_ context.Context, id string) (*model.AuditRecord, error) {
	for i := range f.recs {
		if f.recs[i].ID == id {
			return &f.recs[i], nil
		}
	}
	return nil, eris.Wrapf(store.ErrNotFound, "fake: audit %s", id)
}

func (f *fakeAudits) ListAudits(_ context.Context, filter store.AuditFilter) ([]model.AuditRecord, error) {
	f.lastFilter = filter
	return f.recs, nil
}

type fakeCalc struct {
	m   metrics.ValidationMetrics
	err error
}

func (f fakeCalc) Calculate(_ context.Context, w model.Window, _ int) (metrics.ValidationMetrics, error) {
	m := f.m
	m.Window = w
	return m, f.err
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type testEnv struct {
	analyzer *fakeAnalyzer
	audits   *fakeAudits
	handler  http.Handler
}

func newTestEnv(t *testing.T, calc monitoring.Calculator, srv config.ServerConfig) *testEnv {
	t.Helper()
	holder, err := policy.NewHolder(policy.Default())
	require.NoError(t, err)
	env := &testEnv{
		analyzer: &fakeAnalyzer{},
		audits: &fakeAudits{recs: []model.AuditRecord{{
			ID:            "audit-1",
			EntityID:      "ACME",
			PolicyVersion: "builtin-1",
			StartedAt:     time.Now().UTC(),
			CompletedAt:   time.Now().UTC(),
		}}},
	}
	env.handler = NewRouter(Deps{
		Analyzer:  env.analyzer,
		Audits:    env.audits,
		Collector: monitoring.NewCollector(calc, time.Hour, 24*time.Hour),
		Policies:  holder,
		Health:    fakePinger{},
	}, srv)
	return env
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, fakeCalc{}, config.ServerConfig{})

	rr := do(env.handler, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode(t, rr)["status"])
	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))
}

func TestHealth_StoreDown(t *testing.T) {
	holder, err := policy.NewHolder(policy.Default())
	require.NoError(t, err)
	h := NewRouter(Deps{Policies: holder, Health: fakePinger{err: errors.New("connection refused")}}, config.ServerConfig{})

	rr := do(h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRequestID_Propagated(t *testing.T) {
	env := newTestEnv(t, fakeCalc{}, config.ServerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	assert.Equal(t, "req-42", rr.Header().Get(RequestIDHeader))
}

func TestAnalyze(t *testing.T) {
	env := newTestEnv(t, fakeCalc{}, config.ServerConfig{})

	rr := do(env.handler, http.MethodPost, "/v1/analyze",
		`{"input_ref":"10-K","text":"Revenue increased 25%.","meta":{"entity_id":"ACME","high_stakes":true}}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	body := decode(t, rr)
	assert.Equal(t, "audit-1", body["audit_id"])
	assert.Equal(t, "ACME", env.analyzer.lastReq.Meta.EntityID)
	assert.True(t, env.analyzer.lastReq.Meta.HighStakes)
}

func TestAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"malformed body", `{"text":`, nil, http.StatusBadRequest},
		{"unknown field", `{"txt":"x"}`, nil, http.StatusBadRequest},
		{"invalid input", `{"text":""}`, eris.Wrap(model.ErrInvalidInput, "pipeline: section text is required"), http.StatusBadRequest},
		{"models down", `{"text":"x"}`, eris.Wrap(model.ErrModelUnavailable, "ensemble: all 3 models failed"), http.StatusServiceUnavailable},
		{"timeout", `{"text":"x"}`, eris.Wrap(context.DeadlineExceeded, "ensemble: run cancelled"), http.StatusGatewayTimeout},
		{"internal", `{"text":"x"}`, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, fakeCalc{}, config.ServerConfig{})
			env.analyzer.err = tt.err

			rr := do(env.handler, http.MethodPost, "/v1/analyze", tt.body)
			assert.Equal(t, tt.status, rr.Code)
			assert.NotEmpty(t, decode(t, rr)["error"])
		})
	}
}

func TestAnalyze_InternalErrorHidden(t *testing.T) {
	env := newTestEnv(t, fakeCalc{}, config.ServerConfig{})
	env.analyzer.err = errors.New("password=hunter2")

	rr := do(env.handler, http.MethodPost, "/v1/analyze", `{"text":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "hunter2")
}

func TestGetAudit(t *testing.T) {
	env := newTestEnv(t, fakeCalc{}, config.ServerConfig{})

	rr := do(env.handler, http.MethodGet, "/v1/audits/audit-1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ACME", decode(t, rr)["entity_id"])

	rr = do(env.handler, http.MethodGet, "/v1/audits/missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListAudits(t *testing.T) {
	env := newTestEnv(t, fakeCalc{}, config.ServerConfig{})

	rr := do(env.handler, http.MethodGet, "/v1/audits?entity_id=ACME&since=2026-01-01T00:00:00Z&limit=5000", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, decode(t, rr)["count"])
	assert.Equal(t, "ACME", env.audits.lastFilter.EntityID)
	assert.Equal(t, 2026, env.audits.lastFilter.Since.Year())
	assert.Equal(t, maxListLimit, env.audits.lastFilter.Limit)
}

func TestListAudits_BadQuery(t *testing.T) {
	env := newTestEnv(t, fakeCalc{}, config.ServerConfig{})

	for _, q := range []string{"since=yesterday", "until=soon", "limit=0", "limit=ten"} {
		rr := do(env.handler, http.MethodGet, "/v1/audits?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestLabel(t *testing.T) {
	env := newTestEnv(t, fakeCalc{}, config.ServerConfig{})

	rr := do(env.handler, http.MethodPost, "/v1/audits/audit-1/label", `{"outcome":"invalid"}`)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	assert.Equal(t, model.OutcomeInvalid, env.analyzer.labels["audit-1"])
}

func TestLabel_Rejected(t *testing.T) {
	env := newTestEnv(t, fakeCalc{}, config.ServerConfig{})

	for _, body := range []string{`{"outcome":"unknown"}`, `{"outcome":"maybe"}`, `not json`} {
		rr := do(env.handler, http.MethodPost, "/v1/audits/audit-1/label", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
	}

	env.analyzer.labelErr = eris.Wrap(store.ErrNotFound, "pipeline: label missing")
	rr := do(env.handler, http.MethodPost, "/v1/audits/missing/label", `{"outcome":"valid"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t, fakeCalc{m: metrics.ValidationMetrics{Samples: 50, Accuracy: 0.9, Calibration: 0.85}}, config.ServerConfig{})

	rr := do(env.handler, http.MethodGet, "/v1/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var snap monitoring.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, 50, snap.Current.Samples)
	assert.False(t, snap.Drift)
	assert.True(t, snap.Baseline.Window.End.Equal(snap.Current.Window.Start))
}

func TestMetrics_CalculatorError(t *testing.T) {
	env := newTestEnv(t, fakeCalc{err: errors.New("db down")}, config.ServerConfig{})

	rr := do(env.handler, http.MethodGet, "/v1/metrics", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestPolicy(t *testing.T) {
	env := newTestEnv(t, fakeCalc{}, config.ServerConfig{})

	rr := do(env.handler, http.MethodGet, "/v1/policy", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/yaml", rr.Header().Get("Content-Type"))

	p, err := policy.Parse(rr.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "builtin-1", p.Version)
}

func TestReport(t *testing.T) {
	env := newTestEnv(t, fakeCalc{m: metrics.ValidationMetrics{Samples: 40, Accuracy: 0.8}}, config.ServerConfig{})

	rr := do(env.handler, http.MethodGet, "/v1/report.xlsx", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "trust-report.xlsx")

	f, err := xlsx.OpenBinary(rr.Body.Bytes())
	require.NoError(t, err)
	assert.Contains(t, f.Sheet, "Metrics")
	assert.Contains(t, f.Sheet, "Audit")
	assert.False(t, env.audits.lastFilter.Since.IsZero())
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, fakeCalc{}, config.ServerConfig{RateLimitRPS: 0.001, RateLimitBurst: 1})

	first := do(env.handler, http.MethodGet, "/v1/policy", "")
	assert.Equal(t, http.StatusOK, first.Code)

	second := do(env.handler, http.MethodGet, "/v1/policy", "")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))

	// Health sits outside the limited group.
	assert.Equal(t, http.StatusOK, do(env.handler, http.MethodGet, "/health", "").Code)
}

func TestCORS_Preflight(t *testing.T) {
	env := newTestEnv(t, fakeCalc{}, config.ServerConfig{AllowedOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/v1/analyze", bytes.NewReader(nil))
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)

	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestPrometheusEndpoint(t *testing.T) {
	env := newTestEnv(t, fakeCalc{}, config.ServerConfig{})

	rr := do(env.handler, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trust-router/internal/metrics"
	"github.com/sells-group/trust-router/internal/model"
	"github.com/sells-group/trust-router/internal/pipeline"
	"github.com/sells-group/trust-router/internal/policy"
	"github.com/sells-group/trust-router/internal/report"
	"github.com/sells-group/trust-router/internal/store"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
	maxBodyBytes     = 1 << 20
)

type handlers struct {
	deps Deps
	log  *zap.Logger
}

type labelRequest struct {
	Outcome string `json:"outcome"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if h.deps.Health != nil {
		if err := h.deps.Health.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) analyze(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.deps.Analyzer.Analyze(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) getAudit(w http.ResponseWriter, r *http.Request) {
	rec, err := h.deps.Audits.GetAudit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handlers) listAudits(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := h.deps.Audits.ListAudits(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if recs == nil {
		recs = []model.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"audits": recs, "count": len(recs)})
}

func (h *handlers) label(w http.ResponseWriter, r *http.Request) {
	var req labelRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	outcome, err := model.ParseOutcome(req.Outcome)
	if err != nil || outcome == model.OutcomeUnknown {
		writeError(w, http.StatusBadRequest, "outcome must be valid or invalid")
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.deps.Analyzer.Label(r.Context(), id, outcome); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"audit_id": id, "outcome": outcome.String()})
}

func (h *handlers) getMetrics(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.Collector.Collect(r.Context(), h.deps.Policies.Current())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// getPolicy returns the active policy as YAML in the policy file format.
func (h *handlers) getPolicy(w http.ResponseWriter, r *http.Request) {
	out, err := policy.Marshal(h.deps.Policies.Current())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// exportReport exports the current drift snapshot and the current window's
// audit records as a workbook.
func (h *handlers) exportReport(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.Collector.Collect(r.Context(), h.deps.Policies.Current())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	current, _ := h.deps.Collector.Windows()
	audits, err := h.deps.Audits.ListAudits(r.Context(), store.AuditFilter{
		Since: current.Start,
		Until: current.End,
		Limit: maxListLimit,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="trust-report.xlsx"`)
	err = report.Write(w, report.Report{
		Metrics:  []metrics.ValidationMetrics{snap.Current, snap.Baseline},
		Findings: snap.Findings,
		Audits:   audits,
	})
	if err != nil {
		h.log.Error("api: write report", zap.Error(err))
	}
}

// fail maps err onto a status code and writes it.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		h.log.Error("api: request failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
		writeError(w, status, http.StatusText(status))
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case eris.Is(err, model.ErrInvalidInput), eris.Is(err, model.ErrMalformedClaim):
		return http.StatusBadRequest
	case eris.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case eris.Is(err, model.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case eris.Is(err, model.ErrModelTimeout), eris.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func parseAuditFilter(r *http.Request) (store.AuditFilter, error) {
	q := r.URL.Query()
	f := store.AuditFilter{EntityID: q.Get("entity_id"), Limit: defaultListLimit}
	var err error
	if s := q.Get("since"); s != "" {
		if f.Since, err = time.Parse(time.RFC3339, s); err != nil {
			return f, eris.New("since must be RFC3339")
		}
	}
	if s := q.Get("until"); s != "" {
		if f.Until, err = time.Parse(time.RFC3339, s); err != nil {
			return f, eris.New("until must be RFC3339")
		}
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return f, eris.New("limit must be a positive integer")
		}
		f.Limit = min(n, maxListLimit)
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

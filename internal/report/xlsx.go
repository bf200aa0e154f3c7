// Package report exports validation metrics and audit records as XLSX
// workbooks and reads label sheets back in.
package report

import (
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/trust-router/internal/metrics"
	"github.com/sells-group/trust-router/internal/model"
)

// Sheet names written by Write.
const (
	SheetMetrics = "Metrics"
	SheetDrift   = "Drift"
	SheetAudit   = "Audit"
)

var (
	metricsHeader = []string{"window_start", "window_end", "samples", "unlabeled", "accuracy", "precision", "recall", "f1", "calibration", "brier"}
	driftHeader   = []string{"metric", "reason", "current", "baseline", "threshold"}
	auditHeader   = []string{
		"id", "claim_id", "entity_id", "input_ref", "policy_version", "plan", "models",
		"complexity", "claim", "agreement", "aggregate_confidence", "overall_passed",
		"fact_confidence", "fact_severity", "risk_category", "risk_level", "risk_score",
		"blended_confidence", "reliability", "adjustment_factor", "should_display",
		"disclaimers", "completed_at",
	}
)

// Report is the content of one export.
type Report struct {
	Metrics  []metrics.ValidationMetrics
	Findings []metrics.DriftFinding
	Audits   []model.AuditRecord
}

// Build lays r out as a workbook with one sheet per section.
func Build(r Report) (*xlsx.File, error) {
	f := xlsx.NewFile()

	sheet, err := addSheet(f, SheetMetrics, metricsHeader)
	if err != nil {
		return nil, err
	}
	for _, m := range r.Metrics {
		row := sheet.AddRow()
		addTime(row, m.Window.Start)
		addTime(row, m.Window.End)
		row.AddCell().SetInt(m.Samples)
		row.AddCell().SetInt(m.Unlabeled)
		for _, v := range []float64{m.Accuracy, m.Precision, m.Recall, m.F1, m.Calibration, m.Brier} {
			row.AddCell().SetFloat(v)
		}
	}

	sheet, err = addSheet(f, SheetDrift, driftHeader)
	if err != nil {
		return nil, err
	}
	for _, d := range r.Findings {
		row := sheet.AddRow()
		row.AddCell().SetString(d.Metric)
		row.AddCell().SetString(d.Reason)
		row.AddCell().SetFloat(d.Current)
		row.AddCell().SetFloat(d.Baseline)
		row.AddCell().SetFloat(d.Threshold)
	}

	sheet, err = addSheet(f, SheetAudit, auditHeader)
	if err != nil {
		return nil, err
	}
	for _, a := range r.Audits {
		row := sheet.AddRow()
		for _, s := range []string{
			a.ID, a.ValidationReport.ClaimID, a.EntityID, a.InputRef, a.PolicyVersion,
			a.ExecutionPlan.Kind.String(), strings.Join(a.ExecutionPlan.Models, ";"),
		} {
			row.AddCell().SetString(s)
		}
		row.AddCell().SetFloat(a.Complexity.Value)
		row.AddCell().SetString(a.Merged.Claim)
		row.AddCell().SetFloat(a.Merged.AgreementScore)
		row.AddCell().SetFloat(a.Merged.AggregateConfidence)
		row.AddCell().SetBool(a.ValidationReport.OverallPassed)
		row.AddCell().SetFloat(a.ValidationReport.ConfidenceScore)
		row.AddCell().SetString(a.ValidationReport.RiskLevel.String())
		row.AddCell().SetString(a.RiskAssessment.Category.String())
		row.AddCell().SetString(a.RiskAssessment.Level.String())
		row.AddCell().SetFloat(a.RiskAssessment.Score)
		row.AddCell().SetFloat(a.ConfidenceScore.Blended)
		row.AddCell().SetString(a.ConfidenceScore.Reliability.String())
		row.AddCell().SetFloat(a.AdjustedPrediction.AdjustmentFactor)
		row.AddCell().SetBool(a.AdjustedPrediction.ShouldDisplay)
		row.AddCell().SetString(strings.Join(a.AdjustedPrediction.Disclaimers, " | "))
		addTime(row, a.CompletedAt)
	}

	return f, nil
}

// Write builds r and writes the workbook to w.
func Write(w io.Writer, r Report) error {
	f, err := Build(r)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "xlsx: write workbook")
}

// Save builds r and writes the workbook to path.
func Save(path string, r Report) error {
	f, err := Build(r)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "xlsx: save %s", path)
}

func addSheet(f *xlsx.File, name string, header []string) (*xlsx.Sheet, error) {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: add sheet %s", name)
	}
	row := sheet.AddRow()
	for _, h := range header {
		row.AddCell().SetString(h)
	}
	return sheet, nil
}

func addTime(row *xlsx.Row, t time.Time) {
	if t.IsZero() {
		row.AddCell().SetString("")
		return
	}
	row.AddCell().SetString(t.UTC().Format(time.RFC3339))
}

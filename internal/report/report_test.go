package report

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/trust-router/internal/metrics"
	"github.com/sells-group/trust-router/internal/model"
)

func createTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Labels")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "labels.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func sheetRows(t *testing.T, f *xlsx.File, name string) [][]string {
	t.Helper()
	sheet, ok := f.Sheet[name]
	require.True(t, ok, "sheet %s", name)
	var out [][]string
	for _, r := range sheet.Rows {
		out = append(out, rowToStrings(r))
	}
	return out
}

func sampleReport() Report {
	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	w := model.Window{Start: start, End: start.Add(24 * time.Hour)}
	return Report{
		Metrics: []metrics.ValidationMetrics{
			{Window: w, Samples: 40, Unlabeled: 3, Accuracy: 0.9, Precision: 0.8, Recall: 0.75, F1: 0.774, Calibration: 0.88, Brier: 0.09},
		},
		Findings: []metrics.DriftFinding{
			{Metric: metrics.MetricF1, Reason: "dropped", Current: 0.7, Baseline: 0.85, Threshold: 0.05},
		},
		Audits: []model.AuditRecord{
			{
				ID:               "a-1",
				EntityID:         "ACME",
				ExecutionPlan:    model.Hybrid("fast", "deep"),
				Merged:           model.MergedPrediction{Claim: "Revenue grew 25%", AgreementScore: 1},
				ValidationReport: model.ValidationReport{ClaimID: "c-1", OverallPassed: true, RiskLevel: model.SeverityLow},
				RiskAssessment:   model.RiskAssessment{Category: model.RiskFinancial, Level: model.RiskLow, Score: 0.3},
				ConfidenceScore:  model.ConfidenceScore{Blended: 0.85, Reliability: model.Reliable},
				AdjustedPrediction: model.AdjustedPrediction{
					AdjustmentFactor: 0.9,
					ShouldDisplay:    true,
					Disclaimers:      []string{"forward-looking", "thin history"},
				},
				CompletedAt: start.Add(time.Hour),
			},
		},
	}
}

func TestBuild_Sheets(t *testing.T) {
	f, err := Build(sampleReport())
	require.NoError(t, err)

	m := sheetRows(t, f, SheetMetrics)
	require.Len(t, m, 2)
	assert.Equal(t, metricsHeader, m[0])
	assert.Equal(t, "2026-04-01T00:00:00Z", m[1][0])
	assert.Equal(t, "40", m[1][2])

	d := sheetRows(t, f, SheetDrift)
	require.Len(t, d, 2)
	assert.Equal(t, []string{"f1", "dropped"}, d[1][:2])

	a := sheetRows(t, f, SheetAudit)
	require.Len(t, a, 2)
	assert.Equal(t, auditHeader, a[0])
	require.Len(t, a[1], len(auditHeader))
	assert.Equal(t, "a-1", a[1][0])
	assert.Equal(t, "c-1", a[1][1])
	assert.Equal(t, "hybrid", a[1][5])
	assert.Equal(t, "fast;deep", a[1][6])
	assert.Equal(t, "forward-looking | thin history", a[1][21])
}

func TestBuild_Empty(t *testing.T) {
	f, err := Build(Report{})
	require.NoError(t, err)
	assert.Len(t, f.Sheets, 3)
	assert.Len(t, sheetRows(t, f, SheetAudit), 1, "header only")
}

func TestWriteAndSave(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport()))
	assert.NotZero(t, buf.Len())

	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, Save(path, sampleReport()))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Sheets, 3)
}

func TestReadLabels(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		{"audit_id", "outcome"},
		{"a-1", "valid"},
		{"", ""},
		{" a-2 ", "INVALID"},
	})

	labels, err := ReadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, []Label{
		{AuditID: "a-1", Outcome: model.OutcomeValid},
		{AuditID: "a-2", Outcome: model.OutcomeInvalid},
	}, labels)
}

func TestReadLabels_NoHeader(t *testing.T) {
	path := createTestXLSX(t, [][]string{{"a-1", "invalid"}})

	labels, err := ReadLabels(path)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Equal(t, model.OutcomeInvalid, labels[0].Outcome)
}

func TestReadLabels_BadOutcome(t *testing.T) {
	path := createTestXLSX(t, [][]string{{"a-1", "maybe"}})

	_, err := ReadLabels(path)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrInvalidInput))
	assert.Contains(t, err.Error(), "row 1")
}

func TestReadLabels_MissingFile(t *testing.T) {
	_, err := ReadLabels(filepath.Join(t.TempDir(), "nope.xlsx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xlsx: open file")
}

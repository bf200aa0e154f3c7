package report

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/trust-router/internal/model"
)

// Label is one row of a label sheet: an audit record and its ground truth.
type Label struct {
	AuditID string
	Outcome model.Outcome
}

// ReadLabels reads the first sheet of an XLSX file with columns
// audit_id and outcome. A header row is detected and skipped; blank rows
// are ignored.
func ReadLabels(path string) ([]Label, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}

	var out []Label
	for i, row := range f.Sheets[0].Rows {
		cells := rowToStrings(row)
		if len(cells) < 2 || strings.TrimSpace(cells[0]) == "" {
			continue
		}
		id := strings.TrimSpace(cells[0])
		if i == 0 && strings.EqualFold(id, "audit_id") {
			continue
		}
		outcome, err := model.ParseOutcome(strings.ToLower(strings.TrimSpace(cells[1])))
		if err != nil {
			return nil, eris.Wrapf(err, "xlsx: row %d", i+1)
		}
		out = append(out, Label{AuditID: id, Outcome: outcome})
	}
	return out, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

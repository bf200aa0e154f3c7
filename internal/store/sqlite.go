package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/trust-router/internal/model"
)

// Timestamps are stored as fixed-width UTC text so range predicates compare
// correctly as strings.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS audit_records (
	id             TEXT PRIMARY KEY,
	entity_id      TEXT NOT NULL,
	input_ref      TEXT NOT NULL DEFAULT '',
	policy_version TEXT NOT NULL DEFAULT '',
	plan           TEXT NOT NULL,
	should_display INTEGER NOT NULL,
	record         TEXT NOT NULL,
	started_at     TEXT NOT NULL,
	completed_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS observations (
	id             TEXT PRIMARY KEY,
	claim_id       TEXT NOT NULL,
	overall_passed INTEGER NOT NULL,
	confidence     REAL NOT NULL,
	risk_level     TEXT NOT NULL,
	outcome        TEXT NOT NULL,
	recorded_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_records_entity_id ON audit_records(entity_id);
CREATE INDEX IF NOT EXISTS idx_audit_records_completed_at ON audit_records(completed_at);
CREATE INDEX IF NOT EXISTS idx_observations_recorded_at ON observations(recorded_at);
CREATE INDEX IF NOT EXISTS idx_observations_claim_id ON observations(claim_id);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveAudit(ctx context.Context, rec *model.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	recJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal audit record")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_records (id, entity_id, input_ref, policy_version, plan, should_display, record, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.EntityID, rec.InputRef, rec.PolicyVersion, rec.ExecutionPlan.Kind.String(),
		rec.AdjustedPrediction.ShouldDisplay, string(recJSON),
		formatTime(rec.StartedAt), formatTime(rec.CompletedAt),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert audit record %s", rec.ID)
	}
	return nil
}

func (s *SQLiteStore) GetAudit(ctx context.Context, id string) (*model.AuditRecord, error) {
	var recJSON string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM audit_records WHERE id = ?`, id).Scan(&recJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: audit record %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get audit record %s", id)
	}
	return decodeAudit([]byte(recJSON))
}

func (s *SQLiteStore) ListAudits(ctx context.Context, filter AuditFilter) ([]model.AuditRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, filter.EntityID)
	}
	if !filter.Since.IsZero() {
		where = append(where, "completed_at >= ?")
		args = append(args, formatTime(filter.Since))
	}
	if !filter.Until.IsZero() {
		where = append(where, "completed_at < ?")
		args = append(args, formatTime(filter.Until))
	}

	query := `SELECT record FROM audit_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY completed_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audit records")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.AuditRecord
	for rows.Next() {
		var recJSON string
		if err := rows.Scan(&recJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit record")
		}
		rec, err := decodeAudit([]byte(recJSON))
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate audit records")
}

func (s *SQLiteStore) AppendObservations(ctx context.Context, obs []model.Observation) error {
	if len(obs) == 0 {
		return nil
	}
	obs = prepare(obs, func() string { return uuid.New().String() })

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin observations")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO observations (id, claim_id, overall_passed, confidence, risk_level, outcome, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare observation insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, o := range obs {
		if _, err := stmt.ExecContext(ctx,
			o.ID, o.ClaimID, o.OverallPassed, o.Confidence, o.RiskLevel.String(), o.Outcome.String(), formatTime(o.RecordedAt),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert observation %s", o.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit observations")
}

func (s *SQLiteStore) ListObservations(ctx context.Context, w model.Window) ([]model.Observation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, claim_id, overall_passed, confidence, risk_level, outcome, recorded_at
		 FROM observations WHERE recorded_at >= ? AND recorded_at < ?
		 ORDER BY recorded_at, id`,
		formatTime(w.Start), formatTime(w.End),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list observations %s", w)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate observations")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanObservation(row scannable) (*model.Observation, error) {
	var (
		o                    model.Observation
		risk, outcome, stamp string
	)
	if err := row.Scan(&o.ID, &o.ClaimID, &o.OverallPassed, &o.Confidence, &risk, &outcome, &stamp); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan observation")
	}
	if err := parseObservationEnums(&o, risk, outcome); err != nil {
		return nil, eris.Wrapf(err, "sqlite: observation %s", o.ID)
	}
	t, err := time.Parse(sqliteTimeLayout, stamp)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse recorded_at for %s", o.ID)
	}
	o.RecordedAt = t
	return &o, nil
}

func decodeAudit(b []byte) (*model.AuditRecord, error) {
	var rec model.AuditRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal audit record")
	}
	return &rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

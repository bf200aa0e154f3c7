package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/trust-router/internal/db"
	"github.com/sells-group/trust-router/internal/model"
)

var observationColumns = []string{"id", "claim_id", "overall_passed", "confidence", "risk_level", "outcome", "recorded_at"}

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects to url and returns a Store backed by a pgx pool.
func NewPostgres(ctx context.Context, url string, cfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, url, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS audit_records (
	id             TEXT PRIMARY KEY,
	entity_id      TEXT NOT NULL,
	input_ref      TEXT NOT NULL DEFAULT '',
	policy_version TEXT NOT NULL DEFAULT '',
	plan           TEXT NOT NULL,
	should_display BOOLEAN NOT NULL,
	record         JSONB NOT NULL,
	started_at     TIMESTAMPTZ NOT NULL,
	completed_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS observations (
	id             TEXT PRIMARY KEY,
	claim_id       TEXT NOT NULL,
	overall_passed BOOLEAN NOT NULL,
	confidence     DOUBLE PRECISION NOT NULL,
	risk_level     TEXT NOT NULL,
	outcome        TEXT NOT NULL,
	recorded_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_records_entity_id ON audit_records(entity_id);
CREATE INDEX IF NOT EXISTS idx_audit_records_completed_at ON audit_records(completed_at);
CREATE INDEX IF NOT EXISTS idx_observations_recorded_at ON observations(recorded_at);
CREATE INDEX IF NOT EXISTS idx_observations_claim_id ON observations(claim_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveAudit(ctx context.Context, rec *model.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	recJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal audit record")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_records (id, entity_id, input_ref, policy_version, plan, should_display, record, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.EntityID, rec.InputRef, rec.PolicyVersion, rec.ExecutionPlan.Kind.String(),
		rec.AdjustedPrediction.ShouldDisplay, recJSON, rec.StartedAt.UTC(), rec.CompletedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert audit record %s", rec.ID)
	}
	return nil
}

func (s *PostgresStore) GetAudit(ctx context.Context, id string) (*model.AuditRecord, error) {
	var recJSON []byte
	err := s.pool.QueryRow(ctx, `SELECT record FROM audit_records WHERE id = $1`, id).Scan(&recJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: audit record %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get audit record %s", id)
	}
	return decodeAudit(recJSON)
}

func (s *PostgresStore) ListAudits(ctx context.Context, filter AuditFilter) ([]model.AuditRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.EntityID != "" {
		args = append(args, filter.EntityID)
		where = append(where, fmt.Sprintf("entity_id = $%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since.UTC())
		where = append(where, fmt.Sprintf("completed_at >= $%d", len(args)))
	}
	if !filter.Until.IsZero() {
		args = append(args, filter.Until.UTC())
		where = append(where, fmt.Sprintf("completed_at < $%d", len(args)))
	}

	query := `SELECT record FROM audit_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY completed_at DESC, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audit records")
	}
	defer rows.Close()

	var out []model.AuditRecord
	for rows.Next() {
		var recJSON []byte
		if err := rows.Scan(&recJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit record")
		}
		rec, err := decodeAudit(recJSON)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate audit records")
}

// AppendObservations writes the batch with COPY.
func (s *PostgresStore) AppendObservations(ctx context.Context, obs []model.Observation) error {
	if len(obs) == 0 {
		return nil
	}
	obs = prepare(obs, func() string { return uuid.New().String() })

	rows := make([][]any, len(obs))
	for i, o := range obs {
		rows[i] = []any{o.ID, o.ClaimID, o.OverallPassed, o.Confidence, o.RiskLevel.String(), o.Outcome.String(), o.RecordedAt}
	}
	if _, err := db.CopyFrom(ctx, s.pool, "observations", observationColumns, rows); err != nil {
		return eris.Wrap(err, "postgres: append observations")
	}
	return nil
}

func (s *PostgresStore) ListObservations(ctx context.Context, w model.Window) ([]model.Observation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, claim_id, overall_passed, confidence, risk_level, outcome, recorded_at
		 FROM observations WHERE recorded_at >= $1 AND recorded_at < $2
		 ORDER BY recorded_at, id`,
		w.Start.UTC(), w.End.UTC(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list observations %s", w)
	}
	defer rows.Close()

	var out []model.Observation
	for rows.Next() {
		var (
			o             model.Observation
			risk, outcome string
			recordedAt    time.Time
		)
		if err := rows.Scan(&o.ID, &o.ClaimID, &o.OverallPassed, &o.Confidence, &risk, &outcome, &recordedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan observation")
		}
		if err := parseObservationEnums(&o, risk, outcome); err != nil {
			return nil, eris.Wrapf(err, "postgres: observation %s", o.ID)
		}
		o.RecordedAt = recordedAt.UTC()
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate observations")
}

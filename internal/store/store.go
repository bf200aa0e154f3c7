// Package store persists audit records and metric observations.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/trust-router/internal/db"
	"github.com/sells-group/trust-router/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// Store is the audit sink and observation log. Both tables are append-only:
// audit records are written once and labels arrive as new observations.
type Store interface {
	// Audit records
	SaveAudit(ctx context.Context, rec *model.AuditRecord) error
	GetAudit(ctx context.Context, id string) (*model.AuditRecord, error)
	ListAudits(ctx context.Context, filter AuditFilter) ([]model.AuditRecord, error)

	// Observations
	AppendObservations(ctx context.Context, obs []model.Observation) error
	ListObservations(ctx context.Context, w model.Window) ([]model.Observation, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// AuditFilter narrows ListAudits. Zero fields are ignored.
type AuditFilter struct {
	EntityID string
	Since    time.Time
	Until    time.Time
	Limit    int
}

// Options selects and configures a Store implementation.
type Options struct {
	Driver      string
	DatabaseURL string
	Pool        db.PoolConfig
}

// Open returns the Store named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", "sqlite":
		return NewSQLite(opts.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, opts.DatabaseURL, opts.Pool)
	default:
		return nil, eris.Errorf("store: unknown driver %q", opts.Driver)
	}
}

// prepare assigns IDs and timestamps to observations missing them.
func prepare(obs []model.Observation, newID func() string) []model.Observation {
	out := make([]model.Observation, len(obs))
	now := time.Now().UTC()
	for i, o := range obs {
		if o.ID == "" {
			o.ID = newID()
		}
		if o.RecordedAt.IsZero() {
			o.RecordedAt = now
		}
		o.RecordedAt = o.RecordedAt.UTC()
		out[i] = o
	}
	return out
}

func parseObservationEnums(o *model.Observation, risk, outcome string) error {
	sev, err := model.ParseSeverity(risk)
	if err != nil {
		return err
	}
	out, err := model.ParseOutcome(outcome)
	if err != nil {
		return err
	}
	o.RiskLevel = sev
	o.Outcome = out
	return nil
}

package statussink

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/edgeorch/orchestrator/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// TransitionRecord is one row of the persisted transition history.
type TransitionRecord struct {
	ID         int64
	Component  string
	FromState  string
	ToState    string
	Reason     string
	OccurredAt time.Time
}

// OverallChangeRecord is one row of the persisted fleet-health history.
type OverallChangeRecord struct {
	ID         int64
	Overall    string
	OccurredAt time.Time
}

// HistorySink persists every transition and overall-health change to a
// sqlite database: embedded golang-migrate migrations, a WAL-mode DSN,
// and a thin CRUD surface.
type HistorySink struct {
	db   *sql.DB
	path string
}

// NewHistorySink opens (creating if needed) the sqlite database at path,
// enables WAL mode, and applies embedded migrations.
func NewHistorySink(ctx context.Context, path string) (*HistorySink, error) {
	if path == "" {
		return nil, fmt.Errorf("statussink: database path is required")
	}
	h := &HistorySink{path: path}
	if err := h.init(ctx); err != nil {
		return nil, err
	}
	if err := h.migrate(); err != nil {
		_ = h.db.Close()
		return nil, err
	}
	return h, nil
}

func (h *HistorySink) init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", h.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("statussink: open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("statussink: ping database: %w", err)
	}

	h.db = db
	return nil
}

func (h *HistorySink) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("statussink: migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(h.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("statussink: migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("statussink: migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("statussink: run migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (h *HistorySink) Close() error {
	if h.db == nil {
		return nil
	}
	return h.db.Close()
}

// OnTransition appends a transition row. Failures are swallowed:
// observability must never break the scheduler.
func (h *HistorySink) OnTransition(componentName string, from, to engine.State, reason string) {
	_, _ = h.db.ExecContext(context.Background(),
		`INSERT INTO transitions (component, from_state, to_state, reason) VALUES (?, ?, ?, ?)`,
		componentName, string(from), string(to), reason,
	)
}

func (h *HistorySink) OnOverallChange(overall engine.Overall) {
	_, _ = h.db.ExecContext(context.Background(),
		`INSERT INTO overall_changes (overall) VALUES (?)`,
		string(overall),
	)
}

// ListTransitions returns the most recent transitions for component, newest
// first. Pass an empty component to list across every component.
func (h *HistorySink) ListTransitions(ctx context.Context, component string, limit int) ([]TransitionRecord, error) {
	query := `
		SELECT id, component, from_state, to_state, reason, occurred_at
		FROM transitions
		WHERE (? = '' OR component = ?)
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?
	`
	rows, err := h.db.QueryContext(ctx, query, component, component, limit)
	if err != nil {
		return nil, fmt.Errorf("statussink: list transitions: %w", err)
	}
	defer rows.Close()

	var out []TransitionRecord
	for rows.Next() {
		var r TransitionRecord
		if err := rows.Scan(&r.ID, &r.Component, &r.FromState, &r.ToState, &r.Reason, &r.OccurredAt); err != nil {
			return nil, fmt.Errorf("statussink: scan transition: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListOverallChanges returns the most recent fleet-health changes, newest
// first.
func (h *HistorySink) ListOverallChanges(ctx context.Context, limit int) ([]OverallChangeRecord, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, overall, occurred_at FROM overall_changes ORDER BY occurred_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("statussink: list overall changes: %w", err)
	}
	defer rows.Close()

	var out []OverallChangeRecord
	for rows.Next() {
		var r OverallChangeRecord
		if err := rows.Scan(&r.ID, &r.Overall, &r.OccurredAt); err != nil {
			return nil, fmt.Errorf("statussink: scan overall change: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

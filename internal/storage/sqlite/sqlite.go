package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"clientpulse/internal/domain"
	"clientpulse/internal/signals"
)

func InitDB(path string) (*sql.DB, error) {
	// _txlock=immediate takes the write lock at BEGIN, so a read inside
	// Update cannot go stale before its write lands.
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS signal_events (
		id              TEXT PRIMARY KEY,
		client_email    TEXT NOT NULL,
		category        TEXT NOT NULL,
		risk_flags      TEXT NOT NULL DEFAULT '',
		recorded_at     DATETIME NOT NULL,
		seq             INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_signal_events_client ON signal_events(client_email, seq);

	CREATE TABLE IF NOT EXISTS client_health (
		client_email          TEXT PRIMARY KEY,
		health_status         TEXT NOT NULL,
		churn_probability     REAL NOT NULL DEFAULT 0,
		expansion_probability REAL NOT NULL DEFAULT 0,
		margin_risk_score     REAL NOT NULL DEFAULT 0,
		active_flags          TEXT NOT NULL DEFAULT '',
		last_category         TEXT NOT NULL DEFAULT '',
		event_count           INTEGER NOT NULL DEFAULT 0,
		rationale             TEXT NOT NULL DEFAULT '',
		updated_at            DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_client_health_status ON client_health(health_status);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Repository stores signal windows and health records in sqlite. It satisfies
// signals.Repository.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *Repository) LoadHistory(ctx context.Context, email string) (domain.SignalHistory, error) {
	return loadHistory(ctx, r.db, email)
}

func loadHistory(ctx context.Context, q querier, email string) (domain.SignalHistory, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, category, risk_flags, recorded_at
		 FROM signal_events WHERE client_email = ? ORDER BY seq`,
		email,
	)
	if err != nil {
		return domain.SignalHistory{}, err
	}
	defer rows.Close()

	history := domain.SignalHistory{ClientEmail: email}
	for rows.Next() {
		var (
			id, category, flags string
			at                  time.Time
		)
		if err := rows.Scan(&id, &category, &flags, &at); err != nil {
			return domain.SignalHistory{}, err
		}
		cat, err := domain.ParseCategory(category)
		if err != nil {
			return domain.SignalHistory{}, fmt.Errorf("event %s: %w", id, err)
		}
		history.RiskFlagEvents = append(history.RiskFlagEvents, domain.RiskFlagEvent{ID: id, Flags: domain.SplitFlags(flags), At: at})
		history.ClassificationEvents = append(history.ClassificationEvents, domain.ClassificationEvent{ID: id, Category: cat, At: at})
	}
	return history, rows.Err()
}

// Update loads the client's window and record, hands them to fn, then
// replaces the window and upserts the record, all in one transaction.
func (r *Repository) Update(ctx context.Context, email string, fn signals.UpdateFunc) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	history, err := loadHistory(ctx, tx, email)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	var previous *domain.HealthRecord
	rec, err := getHealthRecord(ctx, tx, email)
	switch {
	case err == nil:
		previous = &rec
	case !errors.Is(err, signals.ErrNotFound):
		return fmt.Errorf("load health record: %w", err)
	}

	next, record, err := fn(history, previous)
	if err != nil {
		return err
	}
	if err := saveSnapshot(ctx, tx, next, record); err != nil {
		return err
	}
	return tx.Commit()
}

func saveSnapshot(ctx context.Context, tx *sql.Tx, history domain.SignalHistory, record domain.HealthRecord) error {
	if len(history.RiskFlagEvents) != len(history.ClassificationEvents) {
		return fmt.Errorf("history sequences out of step: %d risk events, %d classification events",
			len(history.RiskFlagEvents), len(history.ClassificationEvents))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM signal_events WHERE client_email = ?`, history.ClientEmail); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO signal_events (id, client_email, category, risk_flags, recorded_at, seq)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, ev := range history.ClassificationEvents {
		flags := history.RiskFlagEvents[i]
		if _, err := stmt.ExecContext(ctx,
			ev.ID, history.ClientEmail, string(ev.Category), domain.JoinFlags(flags.Flags), ev.At, i,
		); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO client_health
		 (client_email, health_status, churn_probability, expansion_probability, margin_risk_score,
		  active_flags, last_category, event_count, rationale, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(client_email) DO UPDATE SET
		   health_status = excluded.health_status,
		   churn_probability = excluded.churn_probability,
		   expansion_probability = excluded.expansion_probability,
		   margin_risk_score = excluded.margin_risk_score,
		   active_flags = excluded.active_flags,
		   last_category = excluded.last_category,
		   event_count = excluded.event_count,
		   rationale = excluded.rationale,
		   updated_at = excluded.updated_at`,
		record.ClientEmail, string(record.Status), record.ChurnProbability, record.ExpansionProbability,
		record.MarginRiskScore, domain.JoinFlags(record.ActiveFlags), string(record.LastCategory),
		record.EventCount, record.Rationale, record.UpdatedAt,
	)
	return err
}

const healthColumns = `client_email, health_status, churn_probability, expansion_probability, margin_risk_score,
	active_flags, last_category, event_count, rationale, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanHealthRecord(s scanner) (domain.HealthRecord, error) {
	var (
		rec           domain.HealthRecord
		status, flags string
		category      string
	)
	err := s.Scan(
		&rec.ClientEmail, &status, &rec.ChurnProbability, &rec.ExpansionProbability, &rec.MarginRiskScore,
		&flags, &category, &rec.EventCount, &rec.Rationale, &rec.UpdatedAt,
	)
	if err != nil {
		return rec, err
	}
	rec.Status = domain.HealthStatus(status)
	if !rec.Status.Valid() {
		return rec, fmt.Errorf("client %s: unknown health status %q", rec.ClientEmail, status)
	}
	rec.ActiveFlags = domain.SplitFlags(flags)
	rec.LastCategory = domain.Category(category)
	return rec, nil
}

func (r *Repository) GetHealthRecord(ctx context.Context, email string) (domain.HealthRecord, error) {
	return getHealthRecord(ctx, r.db, email)
}

func getHealthRecord(ctx context.Context, q querier, email string) (domain.HealthRecord, error) {
	row := q.QueryRowContext(ctx, `SELECT `+healthColumns+` FROM client_health WHERE client_email = ?`, email)
	rec, err := scanHealthRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.HealthRecord{}, signals.ErrNotFound
	}
	return rec, err
}

func (r *Repository) ListHealthRecords(ctx context.Context) ([]domain.HealthRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+healthColumns+` FROM client_health ORDER BY client_email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.HealthRecord
	for rows.Next() {
		rec, err := scanHealthRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

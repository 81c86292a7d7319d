package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tridentsec/trident-analytics/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS refresh_cycles (
	cycle_id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	completed_at TEXT NOT NULL,
	outcome TEXT NOT NULL,
	degraded TEXT,
	performance_source TEXT NOT NULL,
	alert_count INTEGER NOT NULL,
	tp INTEGER NOT NULL,
	fp INTEGER NOT NULL,
	total_with_feedback INTEGER NOT NULL,
	accuracy REAL NOT NULL,
	precision_pct REAL NOT NULL,
	recall REAL NOT NULL,
	f1_score REAL NOT NULL,
	fp_rate REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cycles_completed ON refresh_cycles(completed_at);
`

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const defaultQueryLimit = 50

// Entry is one recorded refresh cycle.
type Entry struct {
	CycleID           string                       `json:"cycle_id"`
	StartedAt         time.Time                    `json:"started_at"`
	CompletedAt       time.Time                    `json:"completed_at"`
	Outcome           string                       `json:"outcome"`
	Degraded          []models.Source              `json:"degraded_sources,omitempty"`
	PerformanceSource models.PerformanceSource     `json:"model_performance_source"`
	AlertCount        int                          `json:"alert_count"`
	Classification    models.ClassificationSummary `json:"classification"`
}

// EntryFromSnapshot condenses a snapshot into a history row.
func EntryFromSnapshot(s *models.AnalyticsSnapshot) Entry {
	return Entry{
		CycleID:           s.CycleID,
		StartedAt:         s.StartedAt,
		CompletedAt:       s.CompletedAt,
		Outcome:           s.Outcome(),
		Degraded:          s.Degraded,
		PerformanceSource: s.PerformanceSource,
		AlertCount:        s.AlertCount,
		Classification:    s.Classification,
	}
}

// QueryOpts filters history queries.
type QueryOpts struct {
	Since time.Time
	Limit int
}

// Store persists refresh cycle summaries in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore opens (or creates) the SQLite history database.
func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("setting WAL mode: %w (also: close: %v)", err, cerr)
		}
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("creating schema: %w (also: close: %v)", err, cerr)
		}
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Record stores a cycle. Recording the same cycle id twice is a no-op.
func (s *Store) Record(ctx context.Context, e Entry) error {
	c := e.Classification
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO refresh_cycles
		(cycle_id, started_at, completed_at, outcome, degraded, performance_source, alert_count,
		 tp, fp, total_with_feedback, accuracy, precision_pct, recall, f1_score, fp_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.CycleID, e.StartedAt.UTC().Format(timeLayout), e.CompletedAt.UTC().Format(timeLayout),
		e.Outcome, joinSources(e.Degraded), string(e.PerformanceSource), e.AlertCount,
		c.TP, c.FP, c.TotalWithFeedback, c.Accuracy, c.Precision, c.Recall, c.F1Score, c.FPRate,
	)
	if err != nil {
		return fmt.Errorf("recording cycle %s: %w", e.CycleID, err)
	}
	return nil
}

// Query returns recorded cycles, newest first.
func (s *Store) Query(ctx context.Context, opts QueryOpts) ([]Entry, error) {
	query := `SELECT cycle_id, started_at, completed_at, outcome, degraded, performance_source, alert_count,
		tp, fp, total_with_feedback, accuracy, precision_pct, recall, f1_score, fp_rate
		FROM refresh_cycles WHERE 1=1`
	var args []any

	if !opts.Since.IsZero() {
		query += " AND completed_at >= ?"
		args = append(args, opts.Since.UTC().Format(timeLayout))
	}

	query += " ORDER BY completed_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e                  Entry
			started, completed string
			degraded           sql.NullString
			perfSource         string
		)
		c := &e.Classification
		if err := rows.Scan(&e.CycleID, &started, &completed, &e.Outcome, &degraded, &perfSource, &e.AlertCount,
			&c.TP, &c.FP, &c.TotalWithFeedback, &c.Accuracy, &c.Precision, &c.Recall, &c.F1Score, &c.FPRate); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		e.StartedAt, _ = time.Parse(timeLayout, started)
		e.CompletedAt, _ = time.Parse(timeLayout, completed)
		e.Degraded = splitSources(degraded.String)
		e.PerformanceSource = models.PerformanceSource(perfSource)
		c.Total = e.AlertCount
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes cycles completed before the cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM refresh_cycles WHERE completed_at < ?", before.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Debug("pruned history", slog.Int64("rows", n))
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func joinSources(sources []models.Source) string {
	parts := make([]string, 0, len(sources))
	for _, src := range sources {
		parts = append(parts, string(src))
	}
	return strings.Join(parts, ",")
}

func splitSources(v string) []models.Source {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]models.Source, 0, len(parts))
	for _, p := range parts {
		out = append(out, models.Source(p))
	}
	return out
}

// Package storage persists analysis results in a SQLite-backed TTL cache.
// One record per normalized keyword; refreshing overwrites. Expiry is
// enforced at read time, not by a background sweeper.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kalambet/hypewatch/internal/deepseek"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding cached analyses.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used
// by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "hypewatch.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection, for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Analyses ---

// Save upserts the analysis for its keyword; last writer wins.
func (s *Store) Save(ctx context.Context, a *Analysis) error {
	judgments, err := json.Marshal(a.SourceJudgments)
	if err != nil {
		return fmt.Errorf("encoding judgments: %w", err)
	}
	ev, err := json.Marshal(a.Evidence)
	if err != nil {
		return fmt.Errorf("encoding evidence: %w", err)
	}
	terms, err := json.Marshal(emptySlice(a.ExpandedTerms))
	if err != nil {
		return fmt.Errorf("encoding expanded terms: %w", err)
	}
	errsJSON, err := json.Marshal(emptySlice(a.Errors))
	if err != nil {
		return fmt.Errorf("encoding errors: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analyses (id, keyword, created_at, expires_at, phase, confidence, reasoning, source_judgments, evidence, expansion_applied, expanded_terms, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(keyword) DO UPDATE SET
			id = excluded.id,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			phase = excluded.phase,
			confidence = excluded.confidence,
			reasoning = excluded.reasoning,
			source_judgments = excluded.source_judgments,
			evidence = excluded.evidence,
			expansion_applied = excluded.expansion_applied,
			expanded_terms = excluded.expanded_terms,
			errors = excluded.errors`,
		a.ID, a.Keyword, a.CreatedAt.UTC().Format(time.RFC3339), a.ExpiresAt.UTC().Format(time.RFC3339),
		string(a.Phase), a.Confidence, a.Reasoning, string(judgments), string(ev),
		boolToInt(a.ExpansionApplied), string(terms), string(errsJSON),
	)
	return err
}

// GetLive returns the cached analysis for a keyword if it has not expired.
// An expired or absent record yields ErrNotFound.
func (s *Store) GetLive(ctx context.Context, keyword string, now time.Time) (*Analysis, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, keyword, created_at, expires_at, phase, confidence, reasoning, source_judgments, evidence, expansion_applied, expanded_terms, errors
		FROM analyses WHERE keyword = ? AND expires_at > ?`,
		keyword, now.UTC().Format(time.RFC3339),
	)
	return scanAnalysis(row)
}

// ListRecent returns the newest analyses, live or expired, most recent
// first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Analysis, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, keyword, created_at, expires_at, phase, confidence, reasoning, source_judgments, evidence, expansion_applied, expanded_terms, errors
		FROM analyses ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var analyses []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, *a)
	}
	return analyses, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (*Analysis, error) {
	var a Analysis
	var createdAt, expiresAt, phase, judgments, ev, terms, errsJSON string
	var expansionApplied int
	err := row.Scan(&a.ID, &a.Keyword, &createdAt, &expiresAt, &phase, &a.Confidence, &a.Reasoning,
		&judgments, &ev, &expansionApplied, &terms, &errsJSON)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.Phase = deepseek.Phase(phase)
	a.ExpansionApplied = expansionApplied != 0

	if a.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if a.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt); err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	if err := json.Unmarshal([]byte(judgments), &a.SourceJudgments); err != nil {
		return nil, fmt.Errorf("decoding judgments: %w", err)
	}
	if err := json.Unmarshal([]byte(ev), &a.Evidence); err != nil {
		return nil, fmt.Errorf("decoding evidence: %w", err)
	}
	if err := json.Unmarshal([]byte(terms), &a.ExpandedTerms); err != nil {
		return nil, fmt.Errorf("decoding expanded terms: %w", err)
	}
	if err := json.Unmarshal([]byte(errsJSON), &a.Errors); err != nil {
		return nil, fmt.Errorf("decoding errors: %w", err)
	}

	return &a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

package speechlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/flashy-voice/internal/config"
	_ "modernc.org/sqlite"
)

// Attempt is one recognition attempt: a transcript, what it parsed to and
// whether the judge counted it as the expected answer.
type Attempt struct {
	ID         int64
	SessionID  string
	Transcript string
	Parsed     *int
	Expected   *int
	Matched    bool
	Partial    bool
	CreatedAt  time.Time
}

// Stats summarises the log.
type Stats struct {
	Attempts int
	Parsed   int
	Matched  int
	Partial  int
	Sessions int
}

// Store is a SQLite-backed log of recognition attempts. In ephemeral mode it
// keeps nothing and every operation is a no-op. In session mode attempts
// live only as long as their judge session: EndSession deletes them and
// Open clears whatever a previous run left behind.
type Store struct {
	db    *sql.DB
	cfg   config.SpeechLogConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the speech log according to config.
func Open(ctx context.Context, cfg config.SpeechLogConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	if cfg.RetentionMode == "session" {
		if err := s.clear(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("clear session log: %w", err)
		}
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("speech log vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("speech log prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS attempts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    transcript TEXT NOT NULL,
    parsed INTEGER,
    expected INTEGER,
    matched INTEGER NOT NULL DEFAULT 0,
    partial INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_attempts_session_created ON attempts(session_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

func (s *Store) disabled() bool {
	return s == nil || s.cfg.RetentionMode == "ephemeral" || s.db == nil
}

func (s *Store) clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM attempts; DELETE FROM sessions;`)
	return err
}

// EndSession is called when a judge session is dropped. Only session
// retention deletes anything.
func (s *Store) EndSession(ctx context.Context, sessionID string) error {
	if s.disabled() || s.cfg.RetentionMode != "session" {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM attempts WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete attempts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return tx.Commit()
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends an attempt, creating the session row on first use.
func (s *Store) Record(ctx context.Context, a Attempt) error {
	if s.disabled() {
		return nil
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.clock()
	}
	created := a.CreatedAt.UTC().UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions(session_id, created_at) VALUES(?, ?) ON CONFLICT(session_id) DO NOTHING`,
		a.SessionID, created); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO attempts(session_id, transcript, parsed, expected, matched, partial, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		a.SessionID, a.Transcript, nullInt(a.Parsed), nullInt(a.Expected), a.Matched, a.Partial, created); err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return tx.Commit()
}

const attemptColumns = `id, session_id, transcript, parsed, expected, matched, partial, created_at`

// ListSession returns up to limit attempts for a session, oldest first.
func (s *Store) ListSession(ctx context.Context, sessionID string, limit int) ([]Attempt, error) {
	if s.disabled() {
		return nil, nil
	}
	return s.query(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE session_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`,
		sessionID, normalizeLimit(limit))
}

// ListUnparsed returns the most recent final attempts that carried no number.
func (s *Store) ListUnparsed(ctx context.Context, limit int) ([]Attempt, error) {
	if s.disabled() {
		return nil, nil
	}
	return s.query(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE parsed IS NULL AND partial = 0 ORDER BY id DESC LIMIT ?`,
		normalizeLimit(limit))
}

// ListMismatches returns final attempts whose number did not match the
// expected answer.
func (s *Store) ListMismatches(ctx context.Context, limit int) ([]Attempt, error) {
	if s.disabled() {
		return nil, nil
	}
	return s.query(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE parsed IS NOT NULL AND expected IS NOT NULL AND matched = 0 AND partial = 0
		 ORDER BY id DESC LIMIT ?`,
		normalizeLimit(limit))
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var (
			a                Attempt
			parsed, expected sql.NullInt64
			created          int64
		)
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Transcript, &parsed, &expected, &a.Matched, &a.Partial, &created); err != nil {
			return nil, err
		}
		a.Parsed = fromNull(parsed)
		a.Expected = fromNull(expected)
		a.CreatedAt = time.Unix(0, created).UTC()
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// Stats counts attempts and sessions currently retained.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if s.disabled() {
		return st, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN parsed IS NOT NULL THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(matched), 0),
		COALESCE(SUM(partial), 0),
		(SELECT COUNT(*) FROM sessions)
		FROM attempts`)
	if err := row.Scan(&st.Attempts, &st.Parsed, &st.Matched, &st.Partial, &st.Sessions); err != nil {
		return st, err
	}
	return st, nil
}

// Prune applies configured retention (called on startup and can be scheduled).
func (s *Store) Prune(ctx context.Context) (err error) {
	if s.disabled() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour).UTC().UnixNano()
		if _, err = tx.ExecContext(ctx, `DELETE FROM attempts WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id IN (
			SELECT session_id FROM sessions ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxSessions)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

type exportLine struct {
	Timestamp  string `json:"timestamp"`
	Transcript string `json:"transcript"`
	Parsed     *int   `json:"parsed"`
	Expected   *int   `json:"expected"`
	Matched    bool   `json:"matched"`
}

// ExportJSONL writes every retained attempt as one JSON object per line,
// oldest first, and returns the number of lines written.
func (s *Store) ExportJSONL(ctx context.Context, w io.Writer) (int, error) {
	if s.disabled() {
		return 0, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT transcript, parsed, expected, matched, created_at FROM attempts ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	enc := json.NewEncoder(w)
	n := 0
	for rows.Next() {
		var (
			line             exportLine
			parsed, expected sql.NullInt64
			created          int64
		)
		if err := rows.Scan(&line.Transcript, &parsed, &expected, &line.Matched, &created); err != nil {
			return n, err
		}
		line.Timestamp = time.Unix(0, created).UTC().Format(time.RFC3339Nano)
		line.Parsed = fromNull(parsed)
		line.Expected = fromNull(expected)
		if err := enc.Encode(line); err != nil {
			return n, fmt.Errorf("write export: %w", err)
		}
		n++
	}
	return n, rows.Err()
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func fromNull(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

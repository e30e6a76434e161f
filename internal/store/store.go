package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"github.com/valpere/codetran/internal"
	"github.com/valpere/codetran/internal/progress"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single writer; concurrent unit workers would otherwise hit SQLITE_BUSY
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS units (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		source_lang TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		mode TEXT NOT NULL DEFAULT 'single',
		status TEXT NOT NULL,
		attempts INTEGER DEFAULT 0,
		last_diagnostic TEXT,
		artifact_path TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- attempts keeps every chunk (or whole-unit) translation attempt
	CREATE TABLE IF NOT EXISTS attempts (
		id TEXT PRIMARY KEY,
		unit_id TEXT NOT NULL,
		chunk_id INTEGER NOT NULL,
		number INTEGER NOT NULL,
		status TEXT NOT NULL,
		code TEXT,
		confidence REAL,
		warnings TEXT,
		dependencies TEXT,
		reason TEXT,
		transient BOOLEAN DEFAULT FALSE,
		latency_ms INTEGER,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (unit_id) REFERENCES units(id)
	);

	-- progress holds the serialized chunk progress record of a unit
	CREATE TABLE IF NOT EXISTS progress (
		unit_id TEXT PRIMARY KEY,
		record_json TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS translation_memory (
		id TEXT PRIMARY KEY,
		source_text TEXT NOT NULL,
		source_lang TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		final_text TEXT NOT NULL,
		service_used TEXT,
		usage_count INTEGER DEFAULT 1,
		invalidated BOOLEAN DEFAULT FALSE,
		last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(source_text, source_lang, target_lang)
	);

	CREATE INDEX IF NOT EXISTS idx_memory_lookup ON translation_memory(source_text, source_lang, target_lang);
	CREATE INDEX IF NOT EXISTS idx_attempts_unit ON attempts(unit_id, chunk_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// UnitRecord is the last known outcome of a unit.
type UnitRecord struct {
	ID             string
	Path           string
	SourceLang     string
	TargetLang     string
	Mode           string
	Status         string
	Attempts       int
	LastDiagnostic string
	ArtifactPath   string
	UpdatedAt      time.Time
}

// SaveUnit inserts or replaces the unit row.
func (s *Store) SaveUnit(ctx context.Context, u UnitRecord) error {
	if u.Mode == "" {
		u.Mode = "single"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO units (id, path, source_lang, target_lang, mode, status, attempts, last_diagnostic, artifact_path, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			path = excluded.path, source_lang = excluded.source_lang, target_lang = excluded.target_lang,
			mode = excluded.mode, status = excluded.status, attempts = excluded.attempts,
			last_diagnostic = excluded.last_diagnostic, artifact_path = excluded.artifact_path,
			updated_at = excluded.updated_at`,
		u.ID, u.Path, u.SourceLang, u.TargetLang, u.Mode, u.Status, u.Attempts, u.LastDiagnostic, u.ArtifactPath, time.Now())
	return err
}

func (s *Store) GetUnit(ctx context.Context, id string) (*UnitRecord, error) {
	var u UnitRecord
	var diag, artifact sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, path, source_lang, target_lang, mode, status, attempts, last_diagnostic, artifact_path, updated_at FROM units WHERE id = ?`,
		id).Scan(&u.ID, &u.Path, &u.SourceLang, &u.TargetLang, &u.Mode, &u.Status, &u.Attempts, &diag, &artifact, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("unit %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	u.LastDiagnostic = diag.String
	u.ArtifactPath = artifact.String
	return &u, nil
}

// ListUnits returns all units, most recently updated first.
func (s *Store) ListUnits(ctx context.Context) ([]UnitRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, source_lang, target_lang, mode, status, attempts, last_diagnostic, artifact_path, updated_at FROM units ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UnitRecord
	for rows.Next() {
		var u UnitRecord
		var diag, artifact sql.NullString
		if err := rows.Scan(&u.ID, &u.Path, &u.SourceLang, &u.TargetLang, &u.Mode, &u.Status, &u.Attempts, &diag, &artifact, &u.UpdatedAt); err != nil {
			return nil, err
		}
		u.LastDiagnostic = diag.String
		u.ArtifactPath = artifact.String
		out = append(out, u)
	}
	return out, rows.Err()
}

// SaveAttempt appends an attempt for a unit and returns its id.
func (s *Store) SaveAttempt(ctx context.Context, unitID string, a internal.Attempt) (string, error) {
	warnings, err := json.Marshal(a.Warnings)
	if err != nil {
		return "", fmt.Errorf("failed to marshal warnings: %w", err)
	}
	deps, err := json.Marshal(a.Dependencies)
	if err != nil {
		return "", fmt.Errorf("failed to marshal dependencies: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO attempts (id, unit_id, chunk_id, number, status, code, confidence, warnings, dependencies, reason, transient, latency_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, unitID, a.ChunkID, a.Number, string(a.Status), a.Code, a.Confidence, string(warnings), string(deps), a.Reason, a.Transient, a.Latency.Milliseconds())
	return id, err
}

// ListAttempts returns a unit's attempts in insertion order. Rowids only
// grow, so the last attempt per chunk is the most recent across sessions.
func (s *Store) ListAttempts(ctx context.Context, unitID string) ([]internal.Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, number, status, code, confidence, warnings, dependencies, reason, transient, latency_ms
		 FROM attempts WHERE unit_id = ? ORDER BY rowid`, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Attempt
	for rows.Next() {
		var a internal.Attempt
		var status string
		var code, reason, warnings, deps sql.NullString
		var latency int64
		if err := rows.Scan(&a.ChunkID, &a.Number, &status, &code, &a.Confidence, &warnings, &deps, &reason, &a.Transient, &latency); err != nil {
			return nil, err
		}
		a.Status = internal.Status(status)
		a.Code = code.String
		a.Reason = reason.String
		a.Latency = time.Duration(latency) * time.Millisecond
		if warnings.Valid {
			_ = json.Unmarshal([]byte(warnings.String), &a.Warnings)
		}
		if deps.Valid {
			_ = json.Unmarshal([]byte(deps.String), &a.Dependencies)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveProgress implements progress.Persister.
func (s *Store) SaveProgress(ctx context.Context, rec progress.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO progress (unit_id, record_json, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(unit_id) DO UPDATE SET record_json = excluded.record_json, updated_at = excluded.updated_at`,
		rec.UnitID, string(data), time.Now())
	return err
}

// LoadProgress returns the persisted record of a unit.
func (s *Store) LoadProgress(ctx context.Context, unitID string) (progress.Record, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT record_json FROM progress WHERE unit_id = ?`, unitID).Scan(&data)
	if err == sql.ErrNoRows {
		return progress.Record{}, false, nil
	}
	if err != nil {
		return progress.Record{}, false, err
	}
	var rec progress.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return progress.Record{}, false, fmt.Errorf("corrupt progress record for %s: %w", unitID, err)
	}
	return rec, true, nil
}

// ListProgress returns all persisted records ordered by unit id.
func (s *Store) ListProgress(ctx context.Context) ([]progress.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record_json FROM progress ORDER BY unit_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []progress.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var rec progress.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("corrupt progress record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteProgress removes a unit's progress and attempt history. An empty
// unitID clears everything.
func (s *Store) DeleteProgress(ctx context.Context, unitID string) (int64, error) {
	if unitID == "" {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM attempts`); err != nil {
			return 0, err
		}
		res, err := s.db.ExecContext(ctx, `DELETE FROM progress`)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM attempts WHERE unit_id = ?`, unitID); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM progress WHERE unit_id = ?`, unitID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) GetCachedTranslation(ctx context.Context, sourceText, sourceLang, targetLang string) (string, bool, error) {
	var finalText string
	var invalidated bool

	err := s.db.QueryRowContext(ctx,
		`SELECT final_text, invalidated FROM translation_memory WHERE source_text = ? AND source_lang = ? AND target_lang = ?`,
		normalizeText(sourceText), sourceLang, targetLang).Scan(&finalText, &invalidated)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if invalidated {
		return "", false, nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE translation_memory SET usage_count = usage_count + 1, last_used = ? WHERE source_text = ? AND source_lang = ? AND target_lang = ?`,
		time.Now(), normalizeText(sourceText), sourceLang, targetLang)

	return finalText, true, err
}

// SaveToMemory stores a validated translation keyed by its normalized source.
func (s *Store) SaveToMemory(ctx context.Context, sourceText, sourceLang, targetLang, finalText, serviceUsed string) error {
	id := "mem_" + uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO translation_memory (id, source_text, source_lang, target_lang, final_text, service_used, usage_count, invalidated, last_used, created_at) VALUES (?, ?, ?, ?, ?, ?, 1, FALSE, ?, ?)`,
		id, normalizeText(sourceText), sourceLang, targetLang, finalText, serviceUsed, time.Now(), time.Now())
	return err
}

// MemoryEntry is a row from the translation_memory table.
type MemoryEntry struct {
	ID          string
	SourceText  string
	SourceLang  string
	TargetLang  string
	FinalText   string
	ServiceUsed string
	UsageCount  int
	Invalidated bool
	LastUsed    time.Time
}

// CacheStats summarises translation memory usage.
type CacheStats struct {
	TotalEntries   int
	ActiveEntries  int
	InvalidEntries int
	TotalUsage     int
}

func (s *Store) InvalidateMemory(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE translation_memory SET invalidated = TRUE WHERE id = ?`, id)
	return err
}

// DeleteMemory permanently removes a translation memory entry by ID.
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM translation_memory WHERE id = ?`, id)
	return err
}

// ClearMemory removes all translation memory entries.
func (s *Store) ClearMemory(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM translation_memory`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListMemory returns all translation memory entries ordered by most recently used.
func (s *Store) ListMemory(ctx context.Context) ([]MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_text, source_lang, target_lang, final_text, service_used, usage_count, invalidated, last_used FROM translation_memory ORDER BY last_used DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []MemoryEntry
	for rows.Next() {
		var e MemoryEntry
		var service sql.NullString
		if err := rows.Scan(&e.ID, &e.SourceText, &e.SourceLang, &e.TargetLang, &e.FinalText, &service, &e.UsageCount, &e.Invalidated, &e.LastUsed); err != nil {
			return nil, err
		}
		e.ServiceUsed = service.String
		results = append(results, e)
	}

	return results, rows.Err()
}

// Stats returns summary statistics for the translation memory.
func (s *Store) Stats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN NOT invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(usage_count), 0)
		FROM translation_memory`).Scan(
		&stats.TotalEntries,
		&stats.ActiveEntries,
		&stats.InvalidEntries,
		&stats.TotalUsage,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeText trims whitespace and applies Unicode NFC normalization
// for consistent cache key comparison.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

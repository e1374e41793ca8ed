// Package sqlite is a single-file record store on modernc.org/sqlite. It
// implements the same contract as the PostgreSQL store and is used for local
// runs and tests.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/google/uuid"
	"github.com/jonathan/talent-search/internal/db/sqlite/migrations"
	"github.com/jonathan/talent-search/internal/lifecycle"
	"github.com/jonathan/talent-search/internal/types"
)

// timeLayout sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a SQLite-backed record store.
type Store struct {
	db   *sql.DB
	path string
}

var _ lifecycle.Store = (*Store)(nil)

// Open opens (creating if needed) the database file at path and applies
// pending migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Ping checks the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, formatTime(time.Now()),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}

	return nil
}

// CreateSearch inserts a new search. CreatedAt and UpdatedAt are set on search.
func (s *Store) CreateSearch(ctx context.Context, search *types.Search) error {
	criteria, err := json.Marshal(search.Criteria)
	if err != nil {
		return fmt.Errorf("marshalling criteria: %w", err)
	}
	weights, err := marshalWeights(search.Weights)
	if err != nil {
		return fmt.Errorf("marshalling weights: %w", err)
	}
	dimensions, err := marshalDimensions(search.Dimensions)
	if err != nil {
		return fmt.Errorf("marshalling dimensions: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO searches (id, name, job_description, contact_name, contact_email, comments,
			status, weights, dimensions, criteria, result_url, automation_run_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		search.ID.String(), search.Name, search.JobDescription, search.ContactName, search.ContactEmail,
		search.Comments, string(search.Status), weights, dimensions, string(criteria),
		search.ResultURL, search.AutomationRunID, formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to create search: %w", err)
	}
	search.CreatedAt = now
	search.UpdatedAt = now
	return nil
}

// AddAttachment records an uploaded attachment.
func (s *Store) AddAttachment(ctx context.Context, a *types.Attachment) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (id, search_id, file_name, mime_type, file_size, storage_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.SearchID.String(), a.FileName, a.MimeType, a.FileSize, a.StorageKey, formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to add attachment: %w", err)
	}
	a.CreatedAt = now
	return nil
}

// AppendEvent appends an audit event.
func (s *Store) AppendEvent(ctx context.Context, ev types.Event) error {
	return appendEvent(ctx, s.db, ev)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func appendEvent(ctx context.Context, db execer, ev types.Event) error {
	created := ev.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	var payload *string
	if len(ev.Payload) > 0 {
		p := string(ev.Payload)
		payload = &p
	}
	_, err := db.ExecContext(ctx,
		"INSERT INTO events (id, search_id, type, payload, created_at) VALUES (?, ?, ?, ?, ?)",
		ev.ID.String(), ev.SearchID.String(), string(ev.Type), payload, formatTime(created),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

const searchColumns = `id, name, job_description, contact_name, contact_email, comments, status,
	weights, dimensions, criteria, result_url, automation_run_id, created_at, updated_at`

// GetSearch returns the search or nil, nil when it does not exist.
func (s *Store) GetSearch(ctx context.Context, id uuid.UUID) (*types.Search, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+searchColumns+" FROM searches WHERE id = ?", id.String())
	search, err := scanSearch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get search: %w", err)
	}
	return search, nil
}

// GetSearchDetail returns the search with its attachments and events in
// creation order, or nil, nil when it does not exist.
func (s *Store) GetSearchDetail(ctx context.Context, id uuid.UUID) (*types.SearchDetail, error) {
	search, err := s.GetSearch(ctx, id)
	if err != nil || search == nil {
		return nil, err
	}
	detail := &types.SearchDetail{Search: *search, Attachments: []types.Attachment{}, Events: []types.Event{}}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, search_id, file_name, mime_type, file_size, storage_key, created_at
		FROM attachments WHERE search_id = ? ORDER BY created_at, rowid`, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	for rows.Next() {
		var a types.Attachment
		var aid, sid, created string
		if err := rows.Scan(&aid, &sid, &a.FileName, &a.MimeType, &a.FileSize, &a.StorageKey, &created); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		if a.ID, err = uuid.Parse(aid); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("invalid attachment id: %w", err)
		}
		a.SearchID = id
		if a.CreatedAt, err = parseTime(created); err != nil {
			_ = rows.Close()
			return nil, err
		}
		detail.Attachments = append(detail.Attachments, a)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	_ = rows.Close()

	rows, err = s.db.QueryContext(ctx, `
		SELECT id, type, payload, created_at
		FROM events WHERE search_id = ? ORDER BY created_at, rowid`, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ev types.Event
		var eid, evType, created string
		var payload sql.NullString
		if err := rows.Scan(&eid, &evType, &payload, &created); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if ev.ID, err = uuid.Parse(eid); err != nil {
			return nil, fmt.Errorf("invalid event id: %w", err)
		}
		ev.SearchID = id
		ev.Type = types.EventType(evType)
		if payload.Valid {
			ev.Payload = json.RawMessage(payload.String)
		}
		if ev.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		detail.Events = append(detail.Events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return detail, nil
}

// TransitionWithEvent applies upd only while the stored status equals from,
// and appends ev in the same transaction.
func (s *Store) TransitionWithEvent(ctx context.Context, id uuid.UUID, from types.Status, upd lifecycle.Update, ev types.Event) error {
	weights, err := marshalWeights(upd.Weights)
	if err != nil {
		return fmt.Errorf("marshalling weights: %w", err)
	}
	dimensions, err := marshalDimensions(upd.Dimensions)
	if err != nil {
		return fmt.Errorf("marshalling dimensions: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE searches SET
			status = ?,
			weights = COALESCE(?, weights),
			dimensions = COALESCE(?, dimensions),
			result_url = COALESCE(?, result_url),
			automation_run_id = COALESCE(?, automation_run_id),
			updated_at = ?
		WHERE id = ? AND status = ?`,
		string(upd.Status), weights, dimensions, upd.ResultURL, upd.AutomationRunID,
		formatTime(time.Now()), id.String(), string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update search status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update search status: %w", err)
	}
	if n == 0 {
		return lifecycle.ErrStaleStatus
	}

	if err := appendEvent(ctx, tx, ev); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transition: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSearch(row rowScanner) (*types.Search, error) {
	var (
		search                     types.Search
		id, status, criteria       string
		created, updated           string
		weights, dimensions        sql.NullString
		resultURL, automationRunID sql.NullString
	)
	if err := row.Scan(&id, &search.Name, &search.JobDescription, &search.ContactName, &search.ContactEmail,
		&search.Comments, &status, &weights, &dimensions, &criteria, &resultURL, &automationRunID,
		&created, &updated); err != nil {
		return nil, err
	}

	var err error
	if search.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid search id %q: %w", id, err)
	}
	if search.Status, err = types.ParseStatus(status); err != nil {
		return nil, err
	}
	if weights.Valid {
		if err := json.Unmarshal([]byte(weights.String), &search.Weights); err != nil {
			return nil, fmt.Errorf("invalid weights: %w", err)
		}
	}
	if dimensions.Valid {
		if err := json.Unmarshal([]byte(dimensions.String), &search.Dimensions); err != nil {
			return nil, fmt.Errorf("invalid dimensions: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(criteria), &search.Criteria); err != nil {
		return nil, fmt.Errorf("invalid criteria: %w", err)
	}
	if resultURL.Valid {
		search.ResultURL = &resultURL.String
	}
	if automationRunID.Valid {
		search.AutomationRunID = &automationRunID.String
	}
	if search.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if search.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &search, nil
}

// marshalWeights and marshalDimensions return nil for nil input so
// COALESCE keeps the stored value.
func marshalWeights(w map[string]float64) (*string, error) {
	if w == nil {
		return nil, nil
	}
	return marshalString(w)
}

func marshalDimensions(d []types.Dimension) (*string, error) {
	if d == nil {
		return nil, nil
	}
	return marshalString(d)
}

func marshalString(v any) (*string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

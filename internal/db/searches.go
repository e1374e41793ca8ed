package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/talent-search/internal/lifecycle"
	"github.com/jonathan/talent-search/internal/types"
)

const searchColumns = `id, name, job_description, contact_name, contact_email, comments, status::text,
	weights, dimensions, criteria, result_url, automation_run_id, created_at, updated_at`

// CreateSearch inserts a new search. CreatedAt and UpdatedAt are set on search.
func (db *DB) CreateSearch(ctx context.Context, search *types.Search) error {
	criteria, err := json.Marshal(search.Criteria)
	if err != nil {
		return fmt.Errorf("failed to marshal criteria: %w", err)
	}
	weights, err := jsonOrNil(search.Weights == nil, search.Weights)
	if err != nil {
		return fmt.Errorf("failed to marshal weights: %w", err)
	}
	dimensions, err := jsonOrNil(search.Dimensions == nil, search.Dimensions)
	if err != nil {
		return fmt.Errorf("failed to marshal dimensions: %w", err)
	}

	err = db.pool.QueryRow(ctx,
		`INSERT INTO searches (id, name, job_description, contact_name, contact_email, comments,
			status, weights, dimensions, criteria, result_url, automation_run_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::text::search_status, $8, $9, $10, $11, $12)
		 RETURNING created_at, updated_at`,
		search.ID, search.Name, search.JobDescription, search.ContactName, search.ContactEmail,
		search.Comments, string(search.Status), weights, dimensions, criteria,
		search.ResultURL, search.AutomationRunID,
	).Scan(&search.CreatedAt, &search.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create search: %w", err)
	}
	return nil
}

// GetSearch returns the search or nil, nil when it does not exist.
func (db *DB) GetSearch(ctx context.Context, id uuid.UUID) (*types.Search, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+searchColumns+` FROM searches WHERE id = $1`, id)
	search, err := scanSearch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get search: %w", err)
	}
	return search, nil
}

// GetSearchDetail returns the search with its attachments and events in
// creation order, or nil, nil when it does not exist.
func (db *DB) GetSearchDetail(ctx context.Context, id uuid.UUID) (*types.SearchDetail, error) {
	search, err := db.GetSearch(ctx, id)
	if err != nil || search == nil {
		return nil, err
	}

	attachments, err := db.ListAttachments(ctx, id)
	if err != nil {
		return nil, err
	}
	events, err := db.ListEvents(ctx, id)
	if err != nil {
		return nil, err
	}
	return &types.SearchDetail{Search: *search, Attachments: attachments, Events: events}, nil
}

// AddAttachment records an uploaded attachment.
func (db *DB) AddAttachment(ctx context.Context, a *types.Attachment) error {
	err := db.pool.QueryRow(ctx,
		`INSERT INTO attachments (id, search_id, file_name, mime_type, file_size, storage_key)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		a.ID, a.SearchID, a.FileName, a.MimeType, a.FileSize, a.StorageKey,
	).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add attachment: %w", err)
	}
	return nil
}

// ListAttachments returns a search's attachments in upload order.
func (db *DB) ListAttachments(ctx context.Context, searchID uuid.UUID) ([]types.Attachment, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, search_id, file_name, mime_type, file_size, storage_key, created_at
		 FROM attachments WHERE search_id = $1 ORDER BY created_at, id`, searchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	out := []types.Attachment{}
	for rows.Next() {
		var a types.Attachment
		if err := rows.Scan(&a.ID, &a.SearchID, &a.FileName, &a.MimeType, &a.FileSize, &a.StorageKey, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AppendEvent appends an audit event.
func (db *DB) AppendEvent(ctx context.Context, ev types.Event) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO events (id, search_id, type, payload) VALUES ($1, $2, $3, $4)`,
		ev.ID, ev.SearchID, string(ev.Type), payloadOrNil(ev.Payload),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// ListEvents returns a search's events in the order they were appended.
func (db *DB) ListEvents(ctx context.Context, searchID uuid.UUID) ([]types.Event, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, search_id, type, payload, created_at
		 FROM events WHERE search_id = $1 ORDER BY created_at, id`, searchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	out := []types.Event{}
	for rows.Next() {
		var ev types.Event
		var evType string
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.SearchID, &evType, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Type = types.EventType(evType)
		if payload != nil {
			ev.Payload = json.RawMessage(payload)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// TransitionWithEvent applies upd only while the stored status equals from,
// and appends ev in the same transaction. It returns lifecycle.ErrStaleStatus
// when another writer changed the status first.
func (db *DB) TransitionWithEvent(ctx context.Context, id uuid.UUID, from types.Status, upd lifecycle.Update, ev types.Event) error {
	weights, err := jsonOrNil(upd.Weights == nil, upd.Weights)
	if err != nil {
		return fmt.Errorf("failed to marshal weights: %w", err)
	}
	dimensions, err := jsonOrNil(upd.Dimensions == nil, upd.Dimensions)
	if err != nil {
		return fmt.Errorf("failed to marshal dimensions: %w", err)
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE searches SET
			status = $3::text::search_status,
			weights = COALESCE($4, weights),
			dimensions = COALESCE($5, dimensions),
			result_url = COALESCE($6, result_url),
			automation_run_id = COALESCE($7, automation_run_id),
			updated_at = NOW()
		 WHERE id = $1 AND status = $2::text::search_status`,
		id, string(from), string(upd.Status), weights, dimensions, upd.ResultURL, upd.AutomationRunID,
	)
	if err != nil {
		return fmt.Errorf("failed to update search status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return lifecycle.ErrStaleStatus
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO events (id, search_id, type, payload) VALUES ($1, $2, $3, $4)`,
		ev.ID, ev.SearchID, string(ev.Type), payloadOrNil(ev.Payload),
	); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transition: %w", err)
	}
	return nil
}

func scanSearch(row pgx.Row) (*types.Search, error) {
	var (
		search                        types.Search
		status                        string
		weights, dimensions, criteria []byte
	)
	if err := row.Scan(&search.ID, &search.Name, &search.JobDescription, &search.ContactName,
		&search.ContactEmail, &search.Comments, &status, &weights, &dimensions, &criteria,
		&search.ResultURL, &search.AutomationRunID, &search.CreatedAt, &search.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if search.Status, err = types.ParseStatus(status); err != nil {
		return nil, err
	}
	if weights != nil {
		if err := json.Unmarshal(weights, &search.Weights); err != nil {
			return nil, fmt.Errorf("invalid weights: %w", err)
		}
	}
	if dimensions != nil {
		if err := json.Unmarshal(dimensions, &search.Dimensions); err != nil {
			return nil, fmt.Errorf("invalid dimensions: %w", err)
		}
	}
	if criteria != nil {
		if err := json.Unmarshal(criteria, &search.Criteria); err != nil {
			return nil, fmt.Errorf("invalid criteria: %w", err)
		}
	}
	return &search, nil
}

// jsonOrNil marshals v, or returns nil so COALESCE keeps the stored value.
func jsonOrNil(isNil bool, v any) ([]byte, error) {
	if isNil {
		return nil, nil
	}
	return json.Marshal(v)
}

func payloadOrNil(p json.RawMessage) []byte {
	if len(p) == 0 {
		return nil
	}
	return p
}

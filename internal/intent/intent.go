// Package intent keeps a staged log of edits that touch both the source and
// the destination, so a half-applied edit can be found and reconciled.
package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/pgdb"
)

type Status string

const (
	StatusPending           Status = "pending"
	StatusApplied           Status = "applied"
	StatusSourceFailed      Status = "source_failed"
	StatusDestinationFailed Status = "destination_failed"
)

var ErrIntentNotFound = errors.New("edit intent not found")

type Intent struct {
	ID        uuid.UUID      `json:"id"`
	SourceDB  string         `json:"source_db"`
	Table     string         `json:"table_name"`
	RowKey    string         `json:"row_key"`
	Payload   map[string]any `json:"payload"`
	Status    Status         `json:"status"`
	Error     *string        `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Begin records a pending edit before anything is written.
func Begin(ctx context.Context, q pgdb.Querier, sourceDB, table, rowKey string, payload map[string]any) (uuid.UUID, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal edit payload: %w", err)
	}
	id := uuid.New()
	if _, err := q.Exec(ctx, `
INSERT INTO edit_intents (id, source_db, table_name, row_key, payload, status)
VALUES ($1, $2, $3, $4, $5, $6)
`, id, sourceDB, table, rowKey, body, string(StatusPending)); err != nil {
		return uuid.Nil, fmt.Errorf("insert edit intent: %w", err)
	}
	return id, nil
}

// Finish moves an intent to its final status. cause is stored for failures.
func Finish(ctx context.Context, q pgdb.Querier, id uuid.UUID, status Status, cause error) error {
	var msg *string
	if cause != nil {
		s := cause.Error()
		msg = &s
	}
	tag, err := q.Exec(ctx, `
UPDATE edit_intents
SET status = $2, error = $3, updated_at = now()
WHERE id = $1
`, id, string(status), msg)
	if err != nil {
		return fmt.Errorf("update edit intent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIntentNotFound
	}
	return nil
}

// Open lists intents that never reached applied, oldest first.
func Open(ctx context.Context, q pgdb.Querier, limit int) ([]Intent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.Query(ctx, `
SELECT id, source_db, table_name, row_key, payload, status, error, created_at, updated_at
FROM edit_intents
WHERE status <> $1
ORDER BY created_at
LIMIT $2
`, string(StatusApplied), limit)
	if err != nil {
		return nil, fmt.Errorf("list edit intents: %w", err)
	}
	defer rows.Close()

	out := []Intent{}
	for rows.Next() {
		var it Intent
		var body []byte
		var status string
		if err := rows.Scan(&it.ID, &it.SourceDB, &it.Table, &it.RowKey, &body, &status, &it.Error, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		it.Status = Status(status)
		if len(body) > 0 {
			if err := json.Unmarshal(body, &it.Payload); err != nil {
				return nil, fmt.Errorf("decode edit payload %s: %w", it.ID, err)
			}
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Package audit records what the migrator did to the destination.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/pgdb"
)

type Logger interface {
	Error(msg string, args ...any)
}

const (
	ActionTransfer      = "transfer"
	ActionUpdate        = "update"
	ActionEdit          = "edit"
	ActionDelete        = "delete"
	ActionResetSequence = "reset_sequence"
	ActionResetAll      = "reset_all_sequences"
	ActionClearMapping  = "clear_mapping"
	ActionServerStarted = "server_started"
)

type Event struct {
	Action   string
	SourceDB string
	Table    string
	OldKey   string
	NewKey   string
	Payload  map[string]any
}

// LogEvent stores event and returns its id. Failures are logged and returned;
// callers decide whether they matter.
func LogEvent(ctx context.Context, q pgdb.Querier, logger Logger, event Event) (uuid.UUID, error) {
	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal audit payload: %w", err)
	}

	id := uuid.New()
	if _, err := q.Exec(ctx, `
INSERT INTO transfer_audit_events (id, action, source_db, table_name, old_key, new_key, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, id, event.Action, event.SourceDB, event.Table, event.OldKey, event.NewKey, body); err != nil {
		if logger != nil {
			logger.Error("audit log failed", "action", event.Action, "error", err)
		}
		return uuid.Nil, fmt.Errorf("insert audit event: %w", err)
	}
	return id, nil
}

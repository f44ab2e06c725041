package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQuerier struct {
	sql  string
	args []any
	err  error
}

func (r *recordingQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql, r.args = sql, args
	return pgconn.NewCommandTag("INSERT 0 1"), r.err
}

func (r *recordingQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (r *recordingQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

type errorLogger struct{ msgs []string }

func (l *errorLogger) Error(msg string, _ ...any) { l.msgs = append(l.msgs, msg) }

func TestLogEventInsertsRow(t *testing.T) {
	q := &recordingQuerier{}
	id, err := LogEvent(context.Background(), q, nil, Event{
		Action:   ActionTransfer,
		SourceDB: "THIERNO",
		Table:    "CLIENT",
		OldKey:   "7",
		NewKey:   "1",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Contains(t, q.sql, "INSERT INTO transfer_audit_events")
	require.Len(t, q.args, 7)
	assert.Equal(t, id, q.args[0])
	assert.Equal(t, []byte("{}"), q.args[6])
}

func TestLogEventReportsFailure(t *testing.T) {
	q := &recordingQuerier{err: errors.New("relation does not exist")}
	logger := &errorLogger{}
	_, err := LogEvent(context.Background(), q, logger, Event{Action: ActionDelete})
	assert.Error(t, err)
	assert.Equal(t, []string{"audit log failed"}, logger.msgs)
}

package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	args []any
	err  error
}

func (r *recordingExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), r.err
}

func TestAuditLoggerRecordsSystemActionAsNullActor(t *testing.T) {
	db := &recordingExecer{}
	logger := NewAuditLogger(db)

	require.NoError(t, logger.Record(context.Background(), AuditLog{
		Action:   "post",
		Entity:   EntityJournalEntry,
		EntityID: "9",
	}))
	require.Len(t, db.args, 6)
	assert.Nil(t, db.args[0].(*int64))
	assert.Equal(t, []byte(`{}`), db.args[4])
	assert.Nil(t, db.args[5].(*time.Time))

	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, logger.Record(context.Background(), AuditLog{
		ActorID:  4,
		Action:   "create",
		Entity:   EntityAccount,
		EntityID: "12",
		Meta:     map[string]any{"code": "1110"},
		At:       at,
	}))
	assert.Equal(t, int64(4), *db.args[0].(*int64))
	assert.JSONEq(t, `{"code":"1110"}`, string(db.args[4].([]byte)))
	assert.Equal(t, at, *db.args[5].(*time.Time))
}

func TestAuditLoggerRejectsIncompleteEntries(t *testing.T) {
	db := &recordingExecer{}
	require.Error(t, NewAuditLogger(db).Record(context.Background(), AuditLog{Action: "post"}))
	assert.Nil(t, db.args)

	var nilLogger *AuditLogger
	require.Error(t, nilLogger.Record(context.Background(), AuditLog{Action: "a", Entity: "b", EntityID: "c"}))

	db.err = errors.New("conn reset")
	require.EqualError(t, NewAuditLogger(db).Record(context.Background(), AuditLog{Action: "a", Entity: "b", EntityID: "c"}), "conn reset")
}

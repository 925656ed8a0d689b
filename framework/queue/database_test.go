package queue_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/cubex/framework/container"
	"github.com/km-arc/cubex/framework/database"
	"github.com/km-arc/cubex/framework/queue"
)

const (
	insertSQL  = "INSERT INTO queue_items (queue_name, data, locked) VALUES ($1, $2, 0)"
	claimSQL   = "UPDATE queue_items SET locked = 1, locked_by = $1 WHERE locked = 0 AND id = (SELECT id FROM (SELECT id FROM queue_items WHERE queue_name = $2 AND locked = 0 ORDER BY id LIMIT 1) AS claim)"
	fetchSQL   = "SELECT id, queue_name, data FROM queue_items WHERE locked_by = $1"
	deleteSQL  = "DELETE FROM queue_items WHERE id = $1"
	releaseSQL = "UPDATE queue_items SET locked = 0, locked_by = NULL WHERE id = $1"
)

// tokenArg captures the claim token on first use and then requires the
// same value.
type tokenArg struct{ value string }

func (a *tokenArg) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	if a.value == "" {
		a.value = s
		return true
	}
	return s == a.value
}

func newDatabaseQueue(t *testing.T, values map[string]any) (*container.Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m := container.NewManager(nil)
	m.Registry().Provide("database.sql", func() any { return database.NewConnection() })
	m.Registry().Provide("queue.database", func() any { return queue.NewDatabase() })
	m.Bind(database.PoolService, database.NewPoolWithOpener(func(string, string) (*sqlx.DB, error) {
		return sqlx.NewDb(db, "postgres"), nil
	}))

	require.NoError(t, m.Register("db", container.NewServiceConfig("db", map[string]any{
		container.KeyProvider: "database.sql",
		"driver":              "postgres",
		"dsn":                 "postgres://localhost/app",
	})))
	cfg := map[string]any{container.KeyProvider: "queue.database"}
	for k, v := range values {
		cfg[k] = v
	}
	require.NoError(t, m.Register("jobs", container.NewServiceConfig("jobs", cfg)))
	return m, mock
}

func TestDatabase_PushPopAck(t *testing.T) {
	m, mock := newDatabaseQueue(t, nil)
	q, err := container.Resolve[queue.Queue](m, "jobs")
	require.NoError(t, err)
	ctx := context.Background()

	mock.ExpectExec(insertSQL).WithArgs("emails", []byte("hi")).WillReturnResult(sqlmock.NewResult(3, 1))
	require.NoError(t, q.Push(ctx, "emails", []byte("hi")))

	token := &tokenArg{}
	mock.ExpectExec(claimSQL).WithArgs(token, "emails").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(fetchSQL).WithArgs(token).
		WillReturnRows(sqlmock.NewRows([]string{"id", "queue_name", "data"}).AddRow(int64(3), "emails", []byte("hi")))
	mock.ExpectExec(deleteSQL).WithArgs(int64(3)).WillReturnResult(sqlmock.NewResult(0, 1))

	msg, err := q.Pop(ctx, "emails")
	require.NoError(t, err)
	assert.Equal(t, int64(3), msg.ID)
	assert.Equal(t, "emails", msg.Queue)
	assert.Equal(t, []byte("hi"), msg.Data)
	_, err = uuid.Parse(token.value)
	assert.NoError(t, err, "claims are tagged with a unique token")

	require.NoError(t, q.Ack(ctx, msg))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_Release(t *testing.T) {
	m, mock := newDatabaseQueue(t, nil)
	q := container.MustResolve[queue.Queue](m, "jobs")
	ctx := context.Background()

	mock.ExpectExec(claimSQL).WithArgs(sqlmock.AnyArg(), "emails").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(fetchSQL).WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "queue_name", "data"}).AddRow(int64(9), "emails", []byte("x")))
	mock.ExpectExec(releaseSQL).WithArgs(int64(9)).WillReturnResult(sqlmock.NewResult(0, 1))

	msg, err := q.Pop(ctx, "emails")
	require.NoError(t, err)
	require.NoError(t, q.Release(ctx, msg))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_PopEmpty(t *testing.T) {
	m, mock := newDatabaseQueue(t, nil)
	q := container.MustResolve[queue.Queue](m, "jobs")

	mock.ExpectExec(claimSQL).WithArgs(sqlmock.AnyArg(), "emails").WillReturnResult(sqlmock.NewResult(0, 0))
	_, err := q.Pop(context.Background(), "emails")
	assert.ErrorIs(t, err, queue.ErrEmpty)

	mock.ExpectExec(claimSQL).WithArgs(sqlmock.AnyArg(), "emails").WillReturnError(errors.New("deadlock detected"))
	_, err = q.Pop(context.Background(), "emails")
	assert.ErrorContains(t, err, "deadlock detected")

	mock.ExpectExec(claimSQL).WithArgs(sqlmock.AnyArg(), "emails").
		WillReturnResult(sqlmock.NewErrorResult(errors.New("rows affected unavailable")))
	_, err = q.Pop(context.Background(), "emails")
	assert.ErrorContains(t, err, "rows affected unavailable")
	assert.NotErrorIs(t, err, queue.ErrEmpty, "driver faults are not an empty queue")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_ClaimLosesRace(t *testing.T) {
	m, mock := newDatabaseQueue(t, nil)
	q := container.MustResolve[queue.Queue](m, "jobs")

	// The row picked by the subquery was locked by another consumer before
	// this UPDATE reached it, so the outer locked = 0 check matches nothing.
	mock.ExpectExec(claimSQL).WithArgs(sqlmock.AnyArg(), "emails").WillReturnResult(sqlmock.NewResult(0, 0))
	_, err := q.Pop(context.Background(), "emails")
	assert.ErrorIs(t, err, queue.ErrEmpty)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_CustomTable(t *testing.T) {
	m, mock := newDatabaseQueue(t, map[string]any{"table": "jobs_v2"})
	q := container.MustResolve[queue.Queue](m, "jobs")

	mock.ExpectExec("INSERT INTO jobs_v2 (queue_name, data, locked) VALUES ($1, $2, 0)").
		WithArgs("emails", []byte("hi")).WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, q.Push(context.Background(), "emails", []byte("hi")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_ForeignMessage(t *testing.T) {
	m, _ := newDatabaseQueue(t, nil)
	q := container.MustResolve[queue.Queue](m, "jobs")

	assert.ErrorIs(t, q.Ack(context.Background(), &queue.Message{ID: 1}), queue.ErrForeignMessage)
	assert.ErrorIs(t, q.Release(context.Background(), nil), queue.ErrForeignMessage)
}

func TestDatabase_ConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
		target error
	}{
		{"unknown connection", map[string]any{"connection": "missing"}, container.ErrServiceNotRegistered},
		{"unsafe table name", map[string]any{"table": "items; DROP TABLE users"}, container.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newDatabaseQueue(t, tt.values)
			_, err := m.Get("jobs")
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestDatabase_NotConfigured(t *testing.T) {
	q := queue.NewDatabase()
	assert.ErrorIs(t, q.Push(context.Background(), "x", nil), queue.ErrNotConfigured)
	_, err := q.Pop(context.Background(), "x")
	assert.ErrorIs(t, err, queue.ErrNotConfigured)
}

package database_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/cubex/framework/container"
	"github.com/km-arc/cubex/framework/database"
)

// mockPool returns a pool whose handles all share one sqlmock connection,
// reported to sqlx as driver.
func mockPool(t *testing.T, driver string) (*database.Pool, sqlmock.Sqlmock, *int) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	opened := 0
	pool := database.NewPoolWithOpener(func(_, _ string) (*sqlx.DB, error) {
		opened++
		return sqlx.NewDb(db, driver), nil
	})
	return pool, mock, &opened
}

func newManager(t *testing.T, pool *database.Pool) *container.Manager {
	t.Helper()
	m := container.NewManager(nil)
	m.Registry().Provide("database.sql", func() any { return database.NewConnection() })
	if pool != nil {
		m.Bind(database.PoolService, pool)
	}
	return m
}

func dbConfig(name, dsn string) *container.ServiceConfig {
	return container.NewServiceConfig(name, map[string]any{
		container.KeyProvider: "database.sql",
		"driver":              "postgres",
		"dsn":                 dsn,
		"max_open":            5,
	})
}

func TestConnection_OpensLazily(t *testing.T) {
	pool, mock, opened := mockPool(t, "postgres")
	m := newManager(t, pool)
	require.NoError(t, m.Register("db", dbConfig("db", "postgres://localhost/app")))

	conn, err := container.Resolve[*database.Connection](m, "db")
	require.NoError(t, err)
	assert.Zero(t, *opened, "resolving does not open the database")

	mock.ExpectExec(`UPDATE users SET name = \$1 WHERE id = \$2`).
		WithArgs("alice", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := conn.ExecContext(context.Background(), "UPDATE users SET name = ? WHERE id = ?", "alice", 1)
	require.NoError(t, err)
	n, _ := res.RowsAffected()
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, *opened)
	assert.Equal(t, "postgres", conn.Driver())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnection_SharesPoolByDSN(t *testing.T) {
	pool, _, opened := mockPool(t, "postgres")
	m := newManager(t, pool)
	require.NoError(t, m.Register("primary", dbConfig("primary", "postgres://localhost/app")))
	require.NoError(t, m.Register("reports", dbConfig("reports", "postgres://localhost/app")))
	require.NoError(t, m.Register("other", dbConfig("other", "postgres://localhost/other")))

	ctx := context.Background()
	handles := make([]*sqlx.DB, 0, 3)
	for _, name := range []string{"primary", "reports", "other"} {
		conn, err := container.Resolve[*database.Connection](m, name)
		require.NoError(t, err)
		db, err := conn.DB(ctx)
		require.NoError(t, err)
		handles = append(handles, db)
	}

	assert.Same(t, handles[0], handles[1])
	assert.Equal(t, 2, *opened)
	assert.Equal(t, 2, pool.Len())

	require.NoError(t, m.Close(ctx))
	assert.Equal(t, 2, pool.Len(), "a shared pool outlives the services")
	require.NoError(t, pool.Close())
	_, err := pool.Get("postgres", "x", nil)
	assert.ErrorIs(t, err, database.ErrPoolClosed)
}

func TestConnection_Queries(t *testing.T) {
	pool, mock, _ := mockPool(t, "postgres")
	m := newManager(t, pool)
	require.NoError(t, m.Register("db", dbConfig("db", "dsn")))
	conn := container.MustResolve[*database.Connection](m, "db")
	ctx := context.Background()

	type user struct {
		ID   int    `db:"id"`
		Name string `db:"name"`
	}

	mock.ExpectQuery(`SELECT id, name FROM users WHERE id = \$1`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(7, "bob"))
	var u user
	require.NoError(t, conn.GetContext(ctx, &u, "SELECT id, name FROM users WHERE id = ?", 7))
	assert.Equal(t, user{ID: 7, Name: "bob"}, u)

	mock.ExpectQuery(`SELECT id, name FROM users WHERE id = \$1`).
		WithArgs(8).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))
	err := conn.GetContext(ctx, &u, "SELECT id, name FROM users WHERE id = ?", 8)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	mock.ExpectQuery(`SELECT id, name FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "a").AddRow(2, "b"))
	var all []user
	require.NoError(t, conn.SelectContext(ctx, &all, "SELECT id, name FROM users"))
	assert.Len(t, all, 2)

	mock.ExpectExec(`DELETE FROM users`).WillReturnError(errors.New("permission denied"))
	_, err = conn.ExecContext(ctx, "DELETE FROM users")
	assert.ErrorContains(t, err, "permission denied")

	mock.ExpectBegin()
	mock.ExpectRollback()
	tx, err := conn.BeginTxx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnection_PingOnOpen(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	pool := database.NewPoolWithOpener(func(string, string) (*sqlx.DB, error) {
		return sqlx.NewDb(db, "postgres"), nil
	})

	m := newManager(t, pool)
	require.NoError(t, m.Register("db", dbConfig("db", "dsn").With("ping", true)))
	conn := container.MustResolve[*database.Connection](m, "db")

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	_, err = conn.DB(context.Background())
	assert.ErrorContains(t, err, "connection refused")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnection_ConfigRules(t *testing.T) {
	m := newManager(t, nil)
	require.NoError(t, m.Register("db", container.NewServiceConfig("db", map[string]any{
		container.KeyProvider: "database.sql",
		"driver":              "postgres",
	})))

	_, err := m.Get("db")
	assert.ErrorIs(t, err, container.ErrInvalidConfig)
}

func TestConnection_OwnPoolWithoutSharedPool(t *testing.T) {
	m := newManager(t, nil)
	require.NoError(t, m.Register("db", dbConfig("db", "dsn").With("driver", "nodriver")))
	conn := container.MustResolve[*database.Connection](m, "db")

	_, err := conn.DB(context.Background())
	assert.ErrorContains(t, err, "unknown driver")
	assert.NoError(t, conn.Close())
}

func TestConnection_NotConfigured(t *testing.T) {
	_, err := database.NewConnection().DB(context.Background())
	assert.ErrorIs(t, err, database.ErrNotConfigured)
}

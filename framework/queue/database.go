package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/km-arc/cubex/framework/container"
	"github.com/km-arc/cubex/framework/database"
	"github.com/km-arc/cubex/framework/validation"
)

// Database is a queue stored in a SQL table, using a database.sql service
// for its connection. A message is claimed with a single UPDATE that marks
// the oldest unlocked row with a token unique to the claim, so concurrent
// consumers never receive the same row.
//
//	[jobs]
//	service_provider = "queue.database"
//	connection = "db"
//	table = "queue_items"
//
// The table needs the columns id, queue_name, data, locked and locked_by.
type Database struct {
	manager *container.Manager
	conn    *database.Connection
	table   string
	logger  *zap.Logger

	insertSQL  string
	claimSQL   string
	fetchSQL   string
	deleteSQL  string
	releaseSQL string
}

// NewDatabase creates an unconfigured database queue.
func NewDatabase() *Database {
	return &Database{logger: zap.NewNop()}
}

// SetServiceManager implements container.ManagerAware.
func (q *Database) SetServiceManager(m *container.Manager) {
	q.manager = m
	q.logger = m.Logger().Named("queue.database")
}

// ConfigRules implements container.ConfigRules.
func (q *Database) ConfigRules() validation.Rules {
	return validation.Rules{
		"connection": "alpha_dash",
		"table":      `regex:^[A-Za-z_][A-Za-z0-9_]*$`,
	}
}

// Configure implements container.Service.
func (q *Database) Configure(cfg *container.ServiceConfig) error {
	if q.manager == nil {
		return ErrNotConfigured
	}
	name := cfg.String("connection", "db")
	conn, err := container.Resolve[*database.Connection](q.manager, name)
	if err != nil {
		return fmt.Errorf("queue: connection %q: %w", name, err)
	}
	q.conn = conn
	q.table = cfg.String("table", "queue_items")

	t := q.table
	q.insertSQL = "INSERT INTO " + t + " (queue_name, data, locked) VALUES (?, ?, 0)"
	// locked = 0 is checked again on the row being updated: a concurrent
	// claim of the same id then updates nothing.
	q.claimSQL = "UPDATE " + t + " SET locked = 1, locked_by = ? WHERE locked = 0 AND id = (" +
		"SELECT id FROM (SELECT id FROM " + t + " WHERE queue_name = ? AND locked = 0 ORDER BY id LIMIT 1) AS claim)"
	q.fetchSQL = "SELECT id, queue_name, data FROM " + t + " WHERE locked_by = ?"
	q.deleteSQL = "DELETE FROM " + t + " WHERE id = ?"
	q.releaseSQL = "UPDATE " + t + " SET locked = 0, locked_by = NULL WHERE id = ?"

	q.logger.Debug("database queue configured", zap.String("connection", name), zap.String("table", t))
	return nil
}

// Push implements Queue.
func (q *Database) Push(ctx context.Context, queue string, data []byte) error {
	if q.conn == nil {
		return ErrNotConfigured
	}
	if _, err := q.conn.ExecContext(ctx, q.insertSQL, queue, data); err != nil {
		return fmt.Errorf("queue: push %s: %w", queue, err)
	}
	return nil
}

type row struct {
	ID    int64  `db:"id"`
	Queue string `db:"queue_name"`
	Data  []byte `db:"data"`
}

// Pop implements Queue.
func (q *Database) Pop(ctx context.Context, queue string) (*Message, error) {
	if q.conn == nil {
		return nil, ErrNotConfigured
	}

	token := uuid.NewString()
	res, err := q.conn.ExecContext(ctx, q.claimSQL, token, queue)
	if err != nil {
		return nil, fmt.Errorf("queue: claim %s: %w", queue, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("queue: claim %s: %w", queue, err)
	}
	if n == 0 {
		return nil, ErrEmpty
	}

	var r row
	if err := q.conn.GetContext(ctx, &r, q.fetchSQL, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("queue: fetch %s: %w", queue, err)
	}
	return &Message{ID: r.ID, Queue: r.Queue, Data: r.Data, origin: q}, nil
}

// Ack implements Queue.
func (q *Database) Ack(ctx context.Context, msg *Message) error {
	return q.finish(ctx, msg, q.deleteSQL, "ack")
}

// Release implements Queue.
func (q *Database) Release(ctx context.Context, msg *Message) error {
	return q.finish(ctx, msg, q.releaseSQL, "release")
}

func (q *Database) finish(ctx context.Context, msg *Message, query, op string) error {
	if q.conn == nil {
		return ErrNotConfigured
	}
	if msg == nil || msg.origin != Queue(q) {
		return ErrForeignMessage
	}
	if _, err := q.conn.ExecContext(ctx, query, msg.ID); err != nil {
		return fmt.Errorf("queue: %s %d: %w", op, msg.ID, err)
	}
	return nil
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/km-arc/cubex/framework/container"
	"github.com/km-arc/cubex/framework/validation"
)

// PoolService is the service name connections look up their Pool under.
const PoolService = "database.pool"

// ErrNotConfigured is returned by connections used before Configure.
var ErrNotConfigured = errors.New("database connection not configured")

// Connection is a SQL database service. The handle is opened on first use,
// not in Configure, so registering a database never dials it.
//
//	[db]
//	service_provider = "database.sql"
//	driver = "postgres"
//	dsn = "postgres://app@localhost/app?sslmode=disable"
//	max_open = 20
type Connection struct {
	mu      sync.Mutex
	db      *sqlx.DB
	driver  string
	dsn     string
	pool    *Pool
	ownPool bool
	setup   func(*sqlx.DB)
	ping    bool
	logger  *zap.Logger
}

// NewConnection creates an unconfigured connection.
func NewConnection() *Connection {
	return &Connection{logger: zap.NewNop()}
}

// SetServiceManager implements container.ManagerAware. A Pool registered
// as PoolService is shared; otherwise the connection keeps its own.
func (c *Connection) SetServiceManager(m *container.Manager) {
	c.logger = m.Logger().Named("database")
	if m.Exists(PoolService) {
		if pool, err := container.Resolve[*Pool](m, PoolService); err == nil {
			c.pool = pool
		}
	}
}

// ConfigRules implements container.ConfigRules.
func (c *Connection) ConfigRules() validation.Rules {
	return validation.Rules{
		"driver":            "required|alpha_dash",
		"dsn":               "required",
		"max_open":          "integer|gte:0",
		"max_idle":          "integer|gte:0",
		"conn_max_lifetime": "duration",
		"ping":              "boolean",
	}
}

// Configure implements container.Service.
func (c *Connection) Configure(cfg *container.ServiceConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.driver = cfg.String("driver", "")
	c.dsn = cfg.String("dsn", "")
	c.ping = cfg.Bool("ping", false)
	if c.pool == nil {
		c.pool, c.ownPool = NewPool(), true
	}

	maxOpen := cfg.Int("max_open", 0)
	maxIdle := cfg.Int("max_idle", 2)
	lifetime := cfg.Duration("conn_max_lifetime", 0)
	c.setup = func(db *sqlx.DB) {
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxIdle)
		db.SetConnMaxLifetime(lifetime)
	}
	return nil
}

// DB returns the handle, opening it on first call.
func (c *Connection) DB(ctx context.Context) (*sqlx.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return c.db, nil
	}
	if c.pool == nil {
		return nil, ErrNotConfigured
	}

	db, err := c.pool.Get(c.driver, c.dsn, c.setup)
	if err != nil {
		c.logger.Error("database open failed", zap.String("driver", c.driver), zap.Error(err))
		return nil, fmt.Errorf("database: open %s: %w", c.driver, err)
	}
	if c.ping {
		if err := db.PingContext(ctx); err != nil {
			c.logger.Error("database ping failed", zap.String("driver", c.driver), zap.Error(err))
			return nil, fmt.Errorf("database: ping %s: %w", c.driver, err)
		}
	}
	c.db = db
	c.logger.Debug("database opened", zap.String("driver", c.driver))
	return db, nil
}

// Driver returns the configured driver name.
func (c *Connection) Driver() string { return c.driver }

// ExecContext runs a statement. ? placeholders are rebound for the driver.
func (c *Connection) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	db, err := c.DB(ctx)
	if err != nil {
		return nil, err
	}
	res, err := db.ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return nil, c.queryError(query, err)
	}
	return res, nil
}

// GetContext scans a single row into dest.
func (c *Connection) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	db, err := c.DB(ctx)
	if err != nil {
		return err
	}
	if err := db.GetContext(ctx, dest, db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return c.queryError(query, err)
	}
	return nil
}

// SelectContext scans every row into dest, a pointer to a slice.
func (c *Connection) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	db, err := c.DB(ctx)
	if err != nil {
		return err
	}
	if err := db.SelectContext(ctx, dest, db.Rebind(query), args...); err != nil {
		return c.queryError(query, err)
	}
	return nil
}

// BeginTxx starts a transaction.
func (c *Connection) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	db, err := c.DB(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		return nil, c.queryError("BEGIN", err)
	}
	return tx, nil
}

func (c *Connection) queryError(query string, err error) error {
	c.logger.Error("database query failed", zap.String("query", query), zap.Error(err))
	return fmt.Errorf("database: %w", err)
}

// Close closes the handle when the connection owns its pool. Shared pools
// are closed by whoever bound them.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.db = nil
	if c.ownPool && c.pool != nil {
		return c.pool.Close()
	}
	return nil
}

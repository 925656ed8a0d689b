package database

import (
	"errors"
	"sync"

	"github.com/jmoiron/sqlx"
)

// Opener opens a database handle. sqlx.Open is lazy: it validates the
// arguments without connecting.
type Opener func(driver, dsn string) (*sqlx.DB, error)

// Pool shares one *sqlx.DB per driver and DSN between connection services.
// Bind one Pool in the service manager under PoolService so every
// database.sql service uses it.
type Pool struct {
	mu     sync.Mutex
	open   Opener
	dbs    map[poolKey]*sqlx.DB
	closed bool
}

type poolKey struct{ driver, dsn string }

// ErrPoolClosed is returned by Get after Close.
var ErrPoolClosed = errors.New("database pool closed")

// NewPool creates a pool opening handles with sqlx.Open.
func NewPool() *Pool {
	return NewPoolWithOpener(sqlx.Open)
}

// NewPoolWithOpener creates a pool using open.
func NewPoolWithOpener(open Opener) *Pool {
	return &Pool{open: open, dbs: make(map[poolKey]*sqlx.DB)}
}

// Get returns the handle for driver and dsn, opening it on first use.
// setup runs once, on the newly opened handle.
func (p *Pool) Get(driver, dsn string, setup func(*sqlx.DB)) (*sqlx.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}

	key := poolKey{driver, dsn}
	if db, ok := p.dbs[key]; ok {
		return db, nil
	}
	db, err := p.open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if setup != nil {
		setup(db)
	}
	p.dbs[key] = db
	return db, nil
}

// Len returns the number of open handles.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.dbs)
}

// Close closes every handle. The pool cannot be used afterwards.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for key, db := range p.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(p.dbs, key)
	}
	p.closed = true
	return errors.Join(errs...)
}

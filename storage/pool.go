package storage

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ammarfaizi2/green-tea-bot/errors"
	"github.com/ammarfaizi2/green-tea-bot/pkg/retry"
)

// Conn is one pool slot holding a dedicated database session.
type Conn struct {
	idx uint32
	sc  *sql.Conn
}

// ExecContext runs a statement on this connection.
func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.sc.ExecContext(ctx, query, args...)
}

// QueryContext runs a query on this connection.
func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.sc.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query on this connection.
func (c *Conn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.sc.QueryRowContext(ctx, query, args...)
}

// Pool is a fixed-size stack of lazily-opened connections. Get pops a
// slot and opens its session on first use; Put pushes the slot back.
// When the stack is empty Get fails fast with ErrNoFreeConn so callers
// keep their own backpressure instead of queueing inside the pool.
type Pool struct {
	db       *sql.DB
	size     int
	logger   *slog.Logger
	retryCfg retry.Config
	open     func(ctx context.Context) (*sql.Conn, error)

	mu    sync.Mutex
	free  []uint32
	slots []*Conn

	stopping atomic.Bool
}

// PoolOption is a functional option for configuring the Pool.
type PoolOption func(*Pool) error

// WithLogger sets a custom structured logger for the pool.
func WithLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) error {
		if logger != nil {
			p.logger = logger
		}
		return nil
	}
}

// WithRetryConfig sets the retry policy used around connection dials.
func WithRetryConfig(cfg retry.Config) PoolOption {
	return func(p *Pool) error {
		p.retryCfg = cfg
		return nil
	}
}

// NewPool creates a connection pool for the given server. No
// connection is opened until the first Get.
func NewPool(cfg Config, opts ...PoolOption) (*Pool, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, errors.WrapInvalid(err, "Pool", "NewPool", "open database handle")
	}

	size := cfg.poolSize()
	db.SetMaxOpenConns(size)
	db.SetMaxIdleConns(size)
	db.SetConnMaxLifetime(0)

	p := &Pool{
		db:       db,
		size:     size,
		logger:   slog.Default(),
		retryCfg: retry.Quick(),
		free:     make([]uint32, size),
		slots:    make([]*Conn, size),
	}
	p.open = func(ctx context.Context) (*sql.Conn, error) {
		sc, err := db.Conn(ctx)
		if err != nil {
			return nil, err
		}
		if err := sc.PingContext(ctx); err != nil {
			_ = sc.Close()
			return nil, err
		}
		return sc, nil
	}
	for i := range p.free {
		p.free[i] = uint32(i)
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			_ = db.Close()
			return nil, errors.WrapInvalid(err, "Pool", "NewPool", "apply option")
		}
	}
	return p, nil
}

// DB exposes the underlying handle for schema migration and tests.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Size returns the number of connection slots.
func (p *Pool) Size() int {
	return p.size
}

// FreeConns returns the number of currently unclaimed slots.
func (p *Pool) FreeConns() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Get acquires a connection slot, opening its session if this is the
// slot's first use. Fails with ErrNoFreeConn when all slots are
// claimed and ErrShuttingDown once Close has begun.
func (p *Pool) Get(ctx context.Context) (*Conn, error) {
	if p.stopping.Load() {
		return nil, errors.Wrap(errors.ErrShuttingDown, "Pool", "Get", "acquire connection")
	}

	p.mu.Lock()
	if len(p.free) == 0 {
		p.mu.Unlock()
		return nil, errors.WrapTransient(errors.ErrNoFreeConn, "Pool", "Get", "acquire connection")
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	conn := p.slots[idx]
	p.mu.Unlock()

	if conn != nil {
		return conn, nil
	}

	sc, err := retry.DoWithResult(ctx, p.retryCfg, func() (*sql.Conn, error) {
		return p.open(ctx)
	})
	if err != nil {
		p.mu.Lock()
		p.free = append(p.free, idx)
		p.mu.Unlock()
		p.logger.Error("failed to open database connection",
			"slot", idx,
			"error", err)
		return nil, errors.WrapTransient(err, "Pool", "Get", "open connection")
	}

	conn = &Conn{idx: idx, sc: sc}
	p.mu.Lock()
	p.slots[idx] = conn
	p.mu.Unlock()
	return conn, nil
}

// Put returns a connection slot to the pool. Nil is ignored.
func (p *Pool) Put(conn *Conn) {
	if conn == nil {
		return
	}
	p.mu.Lock()
	p.free = append(p.free, conn.idx)
	p.mu.Unlock()
}

// Close marks the pool stopping, closes every opened session and
// releases the database handle. In-flight connections become invalid.
func (p *Pool) Close() error {
	if !p.stopping.CompareAndSwap(false, true) {
		return nil
	}

	p.mu.Lock()
	slots := p.slots
	p.slots = make([]*Conn, p.size)
	p.free = p.free[:0]
	p.mu.Unlock()

	for _, conn := range slots {
		if conn != nil && conn.sc != nil {
			if err := conn.sc.Close(); err != nil {
				p.logger.Debug("error closing connection", "slot", conn.idx, "error", err)
			}
		}
	}
	if err := p.db.Close(); err != nil {
		return errors.Wrap(err, "Pool", "Close", "close database handle")
	}
	return nil
}

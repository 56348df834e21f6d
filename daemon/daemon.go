// Package daemon assembles and runs the full ingestion process.
//
// A Daemon owns the storage pool, the Telegram client, the shared work
// queue and the ingest and scraper components, starting them in
// dependency order and tearing them down in reverse. Run blocks on the
// client event loop until the context is cancelled or the session
// closes, then drains: producers stop first, the queue joins its
// workers, and only then are the client and the pool closed.
package daemon

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ammarfaizi2/green-tea-bot/component"
	"github.com/ammarfaizi2/green-tea-bot/config"
	"github.com/ammarfaizi2/green-tea-bot/errors"
	"github.com/ammarfaizi2/green-tea-bot/health"
	"github.com/ammarfaizi2/green-tea-bot/ingest"
	"github.com/ammarfaizi2/green-tea-bot/metric"
	"github.com/ammarfaizi2/green-tea-bot/pkg/lockmap"
	"github.com/ammarfaizi2/green-tea-bot/scraper"
	"github.com/ammarfaizi2/green-tea-bot/storage"
	"github.com/ammarfaizi2/green-tea-bot/tdclient"
	"github.com/ammarfaizi2/green-tea-bot/workqueue"
)

// loopTimeout bounds one receive call of the client event loop.
const loopTimeout = time.Second

// appSystemName labels the aggregate health status of the process.
const appSystemName = "tgvisd"

// Daemon wires configuration, storage, the Telegram client and the
// work-dispatch components into one runnable process.
type Daemon struct {
	cfg        *config.SafeConfig
	transport  tdclient.Transport
	logger     *slog.Logger
	registry   *metric.MetricsRegistry
	monitor    *health.Monitor
	instanceID string

	pool     *storage.Pool
	client   *tdclient.Client
	queue    *workqueue.WorkQueue
	ingester *ingest.Ingester
	scraper  *scraper.Scraper
	metsrv   *metric.Server

	// migrate is swapped out by tests
	migrate func(ctx context.Context, db *sql.DB) error
}

// Option is a functional option for configuring the Daemon.
type Option func(*Daemon)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Daemon) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetricsRegistry replaces the daemon's metrics registry.
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(d *Daemon) {
		if registry != nil {
			d.registry = registry
		}
	}
}

// New validates cfg and prepares a daemon speaking through transport.
// Nothing is connected until Run.
func New(cfg *config.Config, transport tdclient.Transport, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Daemon", "New", "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, errors.WrapInvalid(errors.ErrNotConnected, "Daemon", "New", "nil transport")
	}

	d := &Daemon{
		cfg:        config.NewSafeConfig(cfg),
		transport:  transport,
		logger:     slog.Default(),
		registry:   metric.NewMetricsRegistry(),
		monitor:    health.NewMonitor(),
		instanceID: uuid.NewString(),
		migrate:    storage.Migrate,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("instance_id", d.instanceID)
	return d, nil
}

// InstanceID returns the identifier minted for this process.
func (d *Daemon) InstanceID() string {
	return d.instanceID
}

// Components returns the lifecycle components for health inspection.
func (d *Daemon) Components() []component.Discoverable {
	var out []component.Discoverable
	if d.ingester != nil {
		out = append(out, d.ingester)
	}
	if d.scraper != nil {
		out = append(out, d.scraper)
	}
	return out
}

// Health polls every running component and returns the aggregate
// status of the whole process. Served on the metrics listener under
// /health.
func (d *Daemon) Health() health.Status {
	d.monitor.Observe(d.Components()...)
	core := d.registry.CoreMetrics()
	for name, status := range d.monitor.GetAll() {
		core.RecordHealthStatus(name, status.Healthy)
	}
	return d.monitor.AggregateHealth(appSystemName)
}

// Run starts every collaborator in dependency order, drives the client
// event loop until ctx is cancelled or the session closes, then shuts
// everything down in reverse. A startup failure tears down whatever
// already started and is returned as-is.
func (d *Daemon) Run(ctx context.Context) error {
	cfg := d.cfg.Get()

	if err := d.startStorage(ctx, cfg); err != nil {
		return err
	}
	if err := d.startPipeline(ctx, cfg); err != nil {
		_ = d.pool.Close()
		return err
	}
	d.startMetricsServer(cfg)

	d.logger.Info("daemon running",
		"max_workers", cfg.Queue.MaxWorkers,
		"max_jobs", cfg.Queue.MaxJobs,
		"scraper_enabled", cfg.Scraper.Enabled)

	err := d.client.Run(ctx, loopTimeout)
	if err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Error("event loop failed", "error", err)
	}

	d.shutdown(time.Duration(cfg.Queue.StopTimeout) * time.Second)
	return nil
}

// startStorage opens the pool and applies the schema. A database that
// cannot be initialized refuses to start the daemon.
func (d *Daemon) startStorage(ctx context.Context, cfg *config.Config) error {
	pool, err := storage.NewPool(storage.Config{
		User:     cfg.MySQL.User,
		Password: cfg.MySQL.Password,
		Host:     cfg.MySQL.Host,
		Port:     cfg.MySQL.Port,
		Database: cfg.MySQL.Database,
		PoolSize: cfg.MySQL.PoolSize,
	}, storage.WithLogger(d.logger))
	if err != nil {
		return err
	}
	if err := d.migrate(ctx, pool.DB()); err != nil {
		_ = pool.Close()
		return errors.WrapFatal(err, "Daemon", "startStorage", "apply schema")
	}
	d.pool = pool
	return nil
}

// startPipeline brings up the client, queue, ingester and scraper.
func (d *Daemon) startPipeline(ctx context.Context, cfg *config.Config) error {
	callback := &tdclient.Callback{}
	client, err := tdclient.NewClient(d.transport,
		tdclient.WithLogger(d.logger),
		tdclient.WithCallback(callback),
		tdclient.WithMetrics(d.registry))
	if err != nil {
		return err
	}
	d.client = client

	queueOpts := []workqueue.Option{
		workqueue.WithLogger(d.logger),
		workqueue.WithMetricsRegistry(d.registry, "queue"),
	}
	if cfg.Queue.IdleBaseline > 0 {
		queueOpts = append(queueOpts, workqueue.WithIdleBaseline(cfg.Queue.IdleBaseline))
	}
	queue, err := workqueue.New(cfg.Queue.MaxWorkers, cfg.Queue.MaxJobs, queueOpts...)
	if err != nil {
		return err
	}
	if err := queue.Run(); err != nil {
		return err
	}
	d.queue = queue

	locks := lockmap.New[int64]()

	ingester := ingest.New(queue, d.pool, client, locks, ingest.WithLogger(d.logger))
	if err := ingester.Initialize(); err != nil {
		d.stopQueue(time.Duration(cfg.Queue.StopTimeout) * time.Second)
		return err
	}
	if err := ingester.Start(ctx); err != nil {
		d.stopQueue(time.Duration(cfg.Queue.StopTimeout) * time.Second)
		return err
	}
	d.ingester = ingester

	core := d.registry.CoreMetrics()
	callback.NewMessage = ingester.HandleNewMessage
	callback.AuthorizationState = func(update *tdclient.UpdateAuthorizationState) {
		core.RecordTelegramStatus(update.State == tdclient.AuthStateReady)
	}

	if cfg.Scraper.Enabled {
		var scrOpts []scraper.Option
		scrOpts = append(scrOpts, scraper.WithLogger(d.logger))
		if cfg.Scraper.SweepInterval > 0 {
			scrOpts = append(scrOpts,
				scraper.WithSweepInterval(time.Duration(cfg.Scraper.SweepInterval)*time.Second))
		}
		if cfg.Scraper.ChatListLimit > 0 {
			scrOpts = append(scrOpts, scraper.WithChatListLimit(cfg.Scraper.ChatListLimit))
		}
		if cfg.Scraper.HistoryLimit > 0 {
			scrOpts = append(scrOpts, scraper.WithHistoryLimit(cfg.Scraper.HistoryLimit))
		}
		scr := scraper.New(client, queue, d.pool, locks, scrOpts...)
		if err := scr.Initialize(); err != nil {
			d.stopQueue(time.Duration(cfg.Queue.StopTimeout) * time.Second)
			return err
		}
		if err := scr.Start(ctx); err != nil {
			d.stopQueue(time.Duration(cfg.Queue.StopTimeout) * time.Second)
			return err
		}
		d.scraper = scr
	}
	return nil
}

func (d *Daemon) startMetricsServer(cfg *config.Config) {
	if !cfg.Metrics.Enabled {
		return
	}
	d.metsrv = metric.NewServer(cfg.Metrics.ListenAddr, "/metrics", d.registry,
		metric.WithHealthSource(d.Health))
	go func() {
		if err := d.metsrv.Start(); err != nil {
			d.logger.Error("metrics server failed", "error", err)
		}
	}()
	d.logger.Info("metrics listener started", "address", d.metsrv.Address())
}

// shutdown stops producers first, joins the queue workers, then closes
// the client, the pool and the metrics listener.
func (d *Daemon) shutdown(stopTimeout time.Duration) {
	d.logger.Info("daemon shutting down")

	if d.scraper != nil {
		if err := d.scraper.Stop(stopTimeout); err != nil {
			d.logger.Error("scraper stop failed", "error", err)
		}
	}
	if d.ingester != nil {
		if err := d.ingester.Stop(stopTimeout); err != nil {
			d.logger.Error("ingester stop failed", "error", err)
		}
	}
	d.stopQueue(stopTimeout)

	if err := d.client.Close(); err != nil {
		d.logger.Error("client close failed", "error", err)
	}
	if err := d.pool.Close(); err != nil {
		d.logger.Error("storage pool close failed", "error", err)
	}

	if d.metsrv != nil {
		if err := d.metsrv.Stop(); err != nil {
			d.logger.Error("metrics server stop failed", "error", err)
		}
	}
	d.logger.Info("daemon stopped")
}

func (d *Daemon) stopQueue(stopTimeout time.Duration) {
	if d.queue == nil {
		return
	}
	if err := d.queue.Stop(stopTimeout); err != nil {
		d.logger.Error("work queue stop failed", "error", err)
	}
}

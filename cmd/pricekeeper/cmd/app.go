package cmd

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/solatis/pricekeeper/internal/buybox"
	"github.com/solatis/pricekeeper/internal/conflicts"
	"github.com/solatis/pricekeeper/internal/core/cache"
	"github.com/solatis/pricekeeper/internal/core/config"
	"github.com/solatis/pricekeeper/internal/core/db"
	"github.com/solatis/pricekeeper/internal/core/inventory"
	"github.com/solatis/pricekeeper/internal/core/metrics"
	"github.com/solatis/pricekeeper/internal/core/notify"
	"github.com/solatis/pricekeeper/internal/lifecycle"
	"github.com/solatis/pricekeeper/internal/pricing"
	"github.com/solatis/pricekeeper/internal/rules"
	"github.com/solatis/pricekeeper/internal/types"
	"go.uber.org/zap"
)

// app holds every wired component. Commands use the parts they need.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *sqlx.DB
	store    *db.Store
	recorder *metrics.Recorder
	resolver *pricing.Resolver
	pricing  *pricing.Service
	selector *buybox.Selector
	machine  *lifecycle.Machine
	sweeper  *lifecycle.Sweeper
	closers  []func() error
}

// openStore opens the database and verifies the schema is migrated.
func openStore(cfg *config.Config) (*sqlx.DB, *db.Store, error) {
	database, err := db.Open(cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	statuses, err := db.MigrateStatus(database)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to check migrations: %w", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			database.Close()
			return nil, nil, fmt.Errorf("migration %s not applied - run 'pricekeeper migrate up' first", s.ID)
		}
	}
	store, err := db.NewStore(database)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to load queries: %w", err)
	}
	return database, store, nil
}

// newApp wires store, lookup sources, engine, lifecycle and buybox.
// Redis and Kafka are optional: without them competitor prices come straight
// from the store and notifications go to the log.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	database, store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:      cfg,
		logger:   logger,
		db:       database,
		store:    store,
		recorder: metrics.New(),
		closers:  []func() error{database.Close},
	}

	sources := rules.Sources{
		Competitors:   store,
		Bundles:       store,
		SalesVelocity: store,
		Categories:    store,
	}
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewRedisClient(ctx, cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Warn("competitor price cache disabled", zap.Error(err))
		} else {
			sources.Competitors = cache.NewCompetitorPrices(store, rdb, cfg.Redis.TTL, logger.Named("cache"))
			a.closers = append(a.closers, rdb.Close)
		}
	}
	if cfg.Inventory.BaseURL != "" {
		inv, err := inventory.NewClient(cfg.Inventory.BaseURL, cfg.Inventory.Timeout)
		if err != nil {
			a.Close()
			return nil, err
		}
		sources.Inventory = inv
	}

	engine := rules.NewEngine(sources,
		rules.WithLogger(logger.Named("rules")),
		rules.WithObserver(a.recorder),
		rules.WithLookupTimeout(cfg.Engine.LookupTimeout))
	a.resolver = pricing.NewResolver(store, pricing.NewCompiledCache(cfg.Engine.CompiledCacheSize), logger.Named("resolver"))
	a.pricing = pricing.NewService(a.resolver, engine, pricing.WithLogger(logger.Named("pricing")))
	a.selector = buybox.NewSelector(store, logger.Named("buybox"))

	sinks := notify.Multi{notify.NewLogSink(logger.Named("notify"))}
	if len(cfg.Kafka.Brokers) > 0 {
		sink := notify.NewKafkaSink(notify.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		sinks = append(sinks, sink)
		a.closers = append(a.closers, sink.Close)
	}

	a.machine = lifecycle.NewMachine(store,
		lifecycle.WithGate(conflicts.NewGate(store, logger.Named("conflicts"))),
		lifecycle.WithNotifier(sinks),
		lifecycle.WithLogger(logger.Named("lifecycle")),
		lifecycle.OnChange(func(id types.RuleID) {
			a.resolver.Cache().Invalidate(id)
		}))
	a.sweeper = lifecycle.NewSweeper(a.machine, store, logger.Named("sweeper"))

	return a, nil
}

// Close releases connections in reverse order of acquisition.
func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

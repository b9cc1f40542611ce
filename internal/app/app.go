// Package app wires the fern components from configuration. Every command builds one App.
package app

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/pgstore"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/linker"
	"github.com/Ramsey-B/fern/pkg/lock"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/processor"
	"github.com/Ramsey-B/fern/pkg/resolver"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
)

const (
	depTracing  = "tracing"
	depPostgres = "postgres"
	depRedis    = "redis"
	depGraph    = "graph"
	depProducer = "kafka-producer"
	depConsumer = "kafka-consumer"
)

// App holds the wired components. Fields are set by Start.
type App struct {
	Config *config.Config
	Logger ectologger.Logger
	Health *health.Checker

	Store        store.Store
	Linker       *linker.Linker
	Consolidator *merging.Consolidator
	Batch        *processor.Batch
	Processor    *processor.Processor
	Related      *graph.QueryService

	startup  *startup.Startup
	db       database.DB
	redis    *redis.Client
	graph    *graph.Client
	producer *kafka.Producer
	consumer *kafka.Consumer
	tracer   *sdktrace.TracerProvider
}

// New creates an App. Nothing is connected until Start.
func New(cfg *config.Config, logger ectologger.Logger) *App {
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Health:  health.NewChecker(cfg.App.Version),
		startup: startup.NewStartup(logger, cfg.App.StartupMaxAttempts),
	}

	if cfg.Tracing.Enabled {
		a.startup.AddDependency(&startup.Dependency{Name: depTracing, StartFunc: a.startTracing, StopFunc: a.stopTracing})
	}
	if cfg.App.Store == config.StorePostgres {
		a.startup.AddDependency(&startup.Dependency{Name: depPostgres, StartFunc: a.startPostgres, StopFunc: a.stopPostgres})
	}
	if cfg.Lock.Backend == config.LockRedis {
		a.startup.AddDependency(&startup.Dependency{Name: depRedis, StartFunc: a.startRedis, StopFunc: a.stopRedis})
	}
	if cfg.Graph.Enabled {
		a.startup.AddDependency(&startup.Dependency{Name: depGraph, StartFunc: a.startGraph, StopFunc: a.stopGraph})
	}
	if cfg.Kafka.ProducerEnabled {
		a.startup.AddDependency(&startup.Dependency{Name: depProducer, StartFunc: a.startProducer, StopFunc: a.stopProducer})
	}
	return a
}

// Start connects the configured dependencies, retrying per app.startup_max_attempts, then
// wires the linking components over them
func (a *App) Start(ctx context.Context) error {
	if err := a.startup.Start(ctx); err != nil {
		return err
	}
	a.wire()
	return nil
}

// StartConsumer starts consuming entity bags from Kafka. Start must have succeeded.
func (a *App) StartConsumer(ctx context.Context) error {
	requires := []string{}
	if a.Config.App.Store == config.StorePostgres {
		requires = append(requires, depPostgres)
	}
	a.startup.AddDependency(&startup.Dependency{
		Name:     depConsumer,
		Requires: requires,
		StartFunc: func(ctx context.Context) error {
			a.consumer = kafka.NewConsumer(a.Config.Kafka.Consumer(), a.Logger, a.Processor.ProcessMessage)
			a.Health.AddCheck(depConsumer, func(context.Context) error {
				if !a.consumer.Health() {
					return fmt.Errorf("consumer is not running")
				}
				return nil
			})
			return a.consumer.Start(ctx)
		},
		StopFunc: func(context.Context) error {
			return a.consumer.Stop()
		},
	})
	return a.startup.Start(ctx)
}

// Stop releases everything Start and StartConsumer acquired, newest first
func (a *App) Stop(ctx context.Context) error {
	return a.startup.Stop(ctx)
}

func (a *App) wire() {
	cfg := a.Config

	if a.db != nil {
		pg := pgstore.New(a.db, a.Logger)
		a.Store = pg
		a.Health.AddCheck(depPostgres, pg.Ping)
	} else {
		a.Store = store.NewMemory()
	}

	var locker lock.Locker = lock.NewKeyed(cfg.Lock.Timeout())
	if a.redis != nil {
		locker = lock.NewRedis(a.redis, cfg.Lock.KeyPrefix, cfg.Lock.TTL(), cfg.Lock.Timeout(), a.Logger)
	}

	// a nil *kafka.Producer must not become a non-nil Publisher
	var publisher events.Publisher
	if a.producer != nil {
		publisher = a.producer
	}
	emitter := events.NewEmitter(publisher, a.Logger)

	scorer := matching.NewConfidenceScorer(cfg.Linking.Scoring())
	engine := merging.NewEngine(a.Store, scorer.Scorer(), cfg.Limits.Options(), a.Logger)

	deps := linker.Dependencies{
		Store:    a.Store,
		Resolver: resolver.NewResolver(a.Store, scorer, cfg.Linking.Resolver(), a.Logger),
		Engine:   engine,
		Locker:   locker,
		Emitter:  emitter,
	}
	a.Consolidator = merging.NewConsolidator(engine, locker, emitter, a.Logger)
	if a.graph != nil {
		projector := graph.NewCaseProjector(a.graph, a.Logger)
		deps.Projector = projector
		a.Consolidator.WithProjector(projector)
		a.Related = graph.NewQueryService(a.graph, a.Logger)
	}

	a.Linker = linker.New(deps, cfg.LinkerOptions(), a.Logger)
	a.Batch = processor.NewBatch(a.Logger, a.Linker, cfg.Processing.Workers)
	a.Processor = processor.NewProcessor(a.Logger, a.Linker)
}

func (a *App) startTracing(ctx context.Context) error {
	exporter, err := exporters.NewOTLPExporter(ctx, a.Config.Tracing.Exporter())
	if err != nil {
		return err
	}
	provider, err := tracing.Setup(ctx, a.Config.App.Name, a.Config.App.Version, exporter, a.Config.Tracing.SampleRatio)
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return err
	}
	a.tracer = provider
	return nil
}

func (a *App) stopTracing(ctx context.Context) error {
	return a.tracer.Shutdown(ctx)
}

func (a *App) startPostgres(ctx context.Context) error {
	db, err := database.Connect(ctx, a.Config.Database.Connection(), a.Logger)
	if err != nil {
		return err
	}
	if a.Config.Database.MigrateOnStart {
		migrations := database.NewMigrationService(a.Logger, a.Config.Database.Migration())
		if err := migrations.MigratePostgres(db, a.Config.Database.Name); err != nil {
			_ = db.Close()
			return err
		}
	}
	a.db = db
	return nil
}

func (a *App) stopPostgres(context.Context) error {
	return a.db.Close()
}

// DB returns the Postgres connection, nil with the memory store
func (a *App) DB() database.DB {
	return a.db
}

func (a *App) startRedis(ctx context.Context) error {
	rdb, err := lock.NewRedisClient(ctx, a.Config.Redis.Connection(), a.Logger)
	if err != nil {
		return err
	}
	a.redis = rdb
	a.Health.AddCheck(depRedis, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	return nil
}

func (a *App) stopRedis(context.Context) error {
	return a.redis.Close()
}

func (a *App) startGraph(ctx context.Context) error {
	client, err := graph.NewClient(a.Config.Graph.Connection(), a.Logger)
	if err != nil {
		return err
	}
	if err := client.VerifyConnectivity(ctx); err != nil {
		_ = client.Close(ctx)
		return err
	}
	a.graph = client
	a.Health.AddCheck(depGraph, client.VerifyConnectivity)
	return nil
}

func (a *App) stopGraph(ctx context.Context) error {
	return a.graph.Close(ctx)
}

func (a *App) startProducer(context.Context) error {
	a.producer = kafka.NewProducer(a.Config.Kafka.Producer(), a.Logger)
	return nil
}

func (a *App) stopProducer(context.Context) error {
	return a.producer.Close()
}

package main

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/vine/config"
	"github.com/Ramsey-B/vine/internal/repositories/catalog"
	"github.com/Ramsey-B/vine/internal/repositories/importjob"
	"github.com/Ramsey-B/vine/internal/repositories/importline"
	"github.com/Ramsey-B/vine/internal/repositories/mappingaudit"
	"github.com/Ramsey-B/vine/internal/repositories/productmapping"
	"github.com/Ramsey-B/vine/internal/repositories/reviewqueue"
	"github.com/Ramsey-B/vine/pkg/database"
	"github.com/Ramsey-B/vine/pkg/events"
	"github.com/Ramsey-B/vine/pkg/inject"
	"github.com/Ramsey-B/vine/pkg/kafka"
	"github.com/Ramsey-B/vine/pkg/matching"
	"github.com/Ramsey-B/vine/pkg/processor"
	"github.com/Ramsey-B/vine/pkg/redis"
	"github.com/Ramsey-B/vine/pkg/routes/imports"
	"github.com/Ramsey-B/vine/pkg/startup"
	"github.com/Ramsey-B/vine/pkg/tracing"
)

// app holds every started dependency of one vine process.
type app struct {
	cfg     *config.Config
	logger  ectologger.Logger
	startup *startup.Startup

	sqlDB    *sqlx.DB
	db       database.DB
	redis    *redis.Client
	producer *kafka.Producer

	shutdownTracing func(context.Context) error

	catalogRepo *catalog.Repository
	cache       *catalog.CachedCatalog
	jobs        *importjob.Repository
	lines       *importline.Repository
	mappings    *productmapping.Repository
	reviews     *reviewqueue.Repository
	audit       *mappingaudit.Repository

	matcher   *matching.Service
	processor *processor.Processor

	// containerID names the container handlers and commands resolve from.
	containerID string
}

type appOptions struct {
	// migrate runs pending migrations regardless of DB_MIGRATE_ON_START.
	migrate bool
	// skipMigrate never runs migrations.
	skipMigrate bool
}

func newApp(ctx context.Context, cfg *config.Config, logger ectologger.Logger, opts appOptions) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts),
	}

	a.startup.AddDependency(startup.Func{
		Name: "tracing",
		StartFunc: func(ctx context.Context) error {
			shutdown, err := tracing.Setup(ctx, cfg.Tracing())
			if err != nil {
				return err
			}
			a.shutdownTracing = shutdown
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			if a.shutdownTracing == nil {
				return nil
			}
			return a.shutdownTracing(ctx)
		},
	})

	a.startup.AddDependency(startup.Func{
		Name: "postgres",
		StartFunc: func(ctx context.Context) error {
			sqlDB, err := database.Connect(ctx, cfg.Database(), logger)
			if err != nil {
				return err
			}
			a.sqlDB = sqlDB
			a.db = database.NewDatabaseInstance(sqlDB, logger)
			return nil
		},
		StopFunc: func(context.Context) error {
			if a.sqlDB == nil {
				return nil
			}
			return a.sqlDB.Close()
		},
	})

	runMigrations := !opts.skipMigrate && (opts.migrate || cfg.DatabaseMigrateOnStart)
	if runMigrations {
		a.startup.AddDependency(startup.Func{
			Name:     "migrations",
			Requires: []string{"postgres"},
			StartFunc: func(context.Context) error {
				return database.NewMigrationService(logger, cfg.Migration()).MigratePostgres(a.sqlDB.DB, cfg.DatabaseName)
			},
		})
	}

	if cfg.RedisEnabled {
		a.startup.AddDependency(startup.Func{
			Name: "redis",
			StartFunc: func(ctx context.Context) error {
				client, err := redis.NewClient(ctx, cfg.Redis(), logger)
				if err != nil {
					return err
				}
				a.redis = client
				return nil
			},
			StopFunc: func(context.Context) error {
				if a.redis == nil {
					return nil
				}
				return a.redis.Close()
			},
		})
	}

	if cfg.KafkaEnabled {
		a.startup.AddDependency(startup.Func{
			Name: "kafka",
			StartFunc: func(context.Context) error {
				a.producer = kafka.NewProducer(cfg.Kafka(), logger)
				return nil
			},
			StopFunc: func(context.Context) error {
				if a.producer == nil {
					return nil
				}
				return a.producer.Close()
			},
		})
	}

	if err := a.startup.Start(ctx); err != nil {
		_ = a.startup.Stop(context.WithoutCancel(ctx))
		return nil, errors.Wrap(err, "failed to start dependencies")
	}

	if err := a.wire(); err != nil {
		_ = a.startup.Stop(context.WithoutCancel(ctx))
		return nil, err
	}
	if err := a.register(); err != nil {
		_ = a.startup.Stop(context.WithoutCancel(ctx))
		return nil, err
	}
	return a, nil
}

// wire builds repositories, the matcher and the processor on top of the
// started dependencies.
func (a *app) wire() error {
	a.catalogRepo = catalog.NewRepository(a.db, a.logger)
	a.jobs = importjob.NewRepository(a.db, a.logger)
	a.lines = importline.NewRepository(a.db, a.logger)
	a.mappings = productmapping.NewRepository(a.db, a.logger)
	a.reviews = reviewqueue.NewRepository(a.db, a.logger)
	a.audit = mappingaudit.NewRepository(a.db, a.logger)

	var source matching.Catalog = a.catalogRepo
	if a.redis != nil {
		a.cache = catalog.NewCachedCatalog(a.catalogRepo, a.redis, a.cfg.CatalogTTL, a.logger)
		source = a.cache
	}

	matchCfg, err := matchingConfig(a.cfg)
	if err != nil {
		return err
	}
	a.matcher = matching.NewService(a.logger, source, a.mappings, matchCfg)

	var opts []processor.Option
	if a.producer != nil {
		opts = append(opts, processor.WithEmitter(events.NewEmitter(a.producer, a.logger)))
	}
	if a.redis != nil {
		opts = append(opts, processor.WithRunLocker(redis.NewLocker(a.redis, "")))
	}

	a.processor = processor.NewProcessor(
		a.logger,
		processor.Stores{
			Jobs:     a.jobs,
			Lines:    a.lines,
			Mappings: a.mappings,
			Reviews:  a.reviews,
			Audit:    a.audit,
		},
		database.NewTransactor(a.db, nil),
		a.matcher,
		a.cfg.Processor(),
		opts...,
	)
	return nil
}

// register publishes the wired services in a container of their own.
func (a *app) register() error {
	a.containerID = a.cfg.AppName + "-" + uuid.NewString()
	container, err := inject.NewContainer(a.containerID, a.logger)
	if err != nil {
		return err
	}

	regs := []error{
		inject.Instance[ectologger.Logger](container, a.logger),
		inject.Instance[database.DB](container, a.db),
		inject.Instance[*catalog.Repository](container, a.catalogRepo),
		inject.Instance[*importjob.Repository](container, a.jobs),
		inject.Instance[*importline.Repository](container, a.lines),
		inject.Instance[*productmapping.Repository](container, a.mappings),
		inject.Instance[*reviewqueue.Repository](container, a.reviews),
		inject.Instance[*mappingaudit.Repository](container, a.audit),
		inject.Instance[*matching.Service](container, a.matcher),
		inject.Instance[*processor.Processor](container, a.processor),
		inject.Instance[imports.Runner](container, a.processor),
	}
	if a.cache != nil {
		regs = append(regs, inject.Instance[*catalog.CachedCatalog](container, a.cache))
	}
	for _, err := range regs {
		if err != nil {
			return err
		}
	}
	return nil
}

// scope returns ctx resolving from the app container.
func (a *app) scope(ctx context.Context) (context.Context, error) {
	return inject.WithContainer(ctx, a.containerID)
}

func (a *app) close(ctx context.Context) {
	if err := a.startup.Stop(ctx); err != nil {
		a.logger.WithError(err).Warn("Failed to stop dependencies cleanly")
	}
}

// matchingConfig applies the calibration file, when configured, over the
// defaults.
func matchingConfig(cfg *config.Config) (matching.Config, error) {
	matchCfg := matching.DefaultConfig()
	if cfg.CalibrationPath == "" {
		return matchCfg, nil
	}
	loaded, err := matching.LoadCalibration(cfg.CalibrationPath, matchCfg)
	if err != nil {
		return matching.Config{}, errors.Wrap(err, "failed to load calibration")
	}
	return loaded, nil
}

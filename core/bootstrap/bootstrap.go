// Package bootstrap runs the shared init pipeline: logger, then the
// configured database and its migrations.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"go.mongodb.org/mongo-driver/mongo"

	coreconfig "github.com/m3rciful/postbot/core/config"
	coredatabase "github.com/m3rciful/postbot/core/database"
	"github.com/m3rciful/postbot/core/logger"
)

const connectTimeout = 15 * time.Second

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config *coreconfig.Config

	LoggerInit      func(*coreconfig.Config) error
	ConnectPostgres func(coreconfig.PostgresConfig) (*sqlx.DB, error)
	Migrate         func(coreconfig.PostgresConfig) error
	ConnectMongo    func(context.Context, coreconfig.MongoConfig) (*mongo.Client, *mongo.Database, error)
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
// Exactly one of DB and Mongo is set, matching Storage.Driver.
type Result struct {
	Driver      string
	DB          *sqlx.DB
	MongoClient *mongo.Client
	Mongo       *mongo.Database
}

// Close releases the database handle.
func (r *Result) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	if r.DB != nil {
		return r.DB.Close()
	}
	if r.MongoClient != nil {
		return r.MongoClient.Disconnect(ctx)
	}
	return nil
}

// Run initializes the logger and connects to the configured storage driver,
// applying migrations for PostgreSQL.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	cfg := opts.Config

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	start := time.Now()
	res := &Result{Driver: cfg.Storage.Driver}
	switch cfg.Storage.Driver {
	case coreconfig.DriverPostgres:
		connect := opts.ConnectPostgres
		if connect == nil {
			connect = coredatabase.Connect
		}
		db, err := connect(cfg.Storage.Postgres)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
		}
		migrate := opts.Migrate
		if migrate == nil {
			migrate = coredatabase.RunMigrations
		}
		if err := migrate(cfg.Storage.Postgres); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
		}
		res.DB = db
	case coreconfig.DriverMongo:
		connect := opts.ConnectMongo
		if connect == nil {
			connect = coredatabase.ConnectMongo
		}
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		client, db, err := connect(ctx, cfg.Storage.Mongo)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
		}
		res.MongoClient, res.Mongo = client, db
	default:
		return nil, fmt.Errorf("bootstrap: unsupported storage driver %q", cfg.Storage.Driver)
	}

	logger.DB.Info("storage ready",
		slog.String("event", "bootstrap"),
		slog.String("driver", res.Driver),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return res, nil
}

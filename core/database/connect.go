package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	coreconfig "github.com/m3rciful/postbot/core/config"
	"github.com/m3rciful/postbot/core/logger"
)

const connectTimeout = 5 * time.Second

// logConnect writes the db.connect line for a store dial.
func logConnect(driver string, took time.Duration, err error, attrs ...slog.Attr) {
	attrs = append([]slog.Attr{
		slog.String("event", "db.connect"),
		slog.String("driver", driver),
		slog.Duration("duration", logger.RoundMS(took)),
	}, attrs...)
	if err != nil {
		logger.DB.LogAttrs(context.Background(), slog.LevelError, "db connect failed", append(attrs, logger.Err(err))...)
		return
	}
	logger.DB.LogAttrs(context.Background(), slog.LevelInfo, "db connected", attrs...)
}

// Connect opens the PostgreSQL pool sized by max_connections and checks
// that the server answers.
func Connect(cfg coreconfig.PostgresConfig) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, "postgres", PostgresDSN(cfg))
	where := []slog.Attr{slog.String("host", cfg.Host), slog.String("port", cfg.Port), slog.String("db", cfg.Name)}
	logConnect("postgres", time.Since(start), err, where...)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
		db.SetMaxIdleConns(cfg.MaxConnections)
	}
	return db, nil
}

// ConnectMongo dials MongoDB, pings the primary and returns the client with
// the configured database.
func ConnectMongo(ctx context.Context, cfg coreconfig.MongoConfig) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	start := time.Now()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI).SetServerSelectionTimeout(connectTimeout))
	if err == nil {
		if err = client.Ping(ctx, readpref.Primary()); err != nil {
			_ = client.Disconnect(context.WithoutCancel(ctx))
		}
	}
	logConnect("mongo", time.Since(start), err, slog.String("db", cfg.Database))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	return client, client.Database(cfg.Database), nil
}

// WaitForPostgres pings the server behind dsn every two seconds until it
// answers or ctx ends.
func WaitForPostgres(ctx context.Context, dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	tick := time.NewTicker(2 * time.Second)
	defer tick.Stop()
	for {
		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for database: %w", errors.Join(ctx.Err(), err))
		case <-tick.C:
		}
	}
}

package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	coreconfig "github.com/m3rciful/postbot/core/config"
)

func noLogger(*coreconfig.Config) error { return nil }

func TestRunMongo(t *testing.T) {
	cfg := &coreconfig.Config{}
	cfg.Storage.Driver = coreconfig.DriverMongo
	cfg.Storage.Mongo.Database = "postbot"
	var got coreconfig.MongoConfig
	res, err := Run(Options{
		Config:     cfg,
		LoggerInit: noLogger,
		ConnectMongo: func(_ context.Context, mc coreconfig.MongoConfig) (*mongo.Client, *mongo.Database, error) {
			got = mc
			return nil, nil, nil
		},
		ConnectPostgres: func(coreconfig.PostgresConfig) (*sqlx.DB, error) {
			t.Fatal("postgres must not be used")
			return nil, nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, coreconfig.DriverMongo, res.Driver)
	assert.Equal(t, "postbot", got.Database)
	assert.NoError(t, res.Close(context.Background()))
}

func TestRunPostgresConnectFailure(t *testing.T) {
	cfg := &coreconfig.Config{}
	cfg.Storage.Driver = coreconfig.DriverPostgres
	connectErr := errors.New("refused")
	_, err := Run(Options{
		Config:          cfg,
		LoggerInit:      noLogger,
		ConnectPostgres: func(coreconfig.PostgresConfig) (*sqlx.DB, error) { return nil, connectErr },
	})
	assert.ErrorIs(t, err, connectErr)
}

func TestRunErrors(t *testing.T) {
	_, err := Run(Options{})
	assert.Error(t, err)

	cfg := &coreconfig.Config{}
	cfg.Storage.Driver = "sqlite"
	_, err = Run(Options{Config: cfg, LoggerInit: noLogger})
	assert.ErrorContains(t, err, "unsupported storage driver")

	logErr := errors.New("bad level")
	_, err = Run(Options{Config: cfg, LoggerInit: func(*coreconfig.Config) error { return logErr }})
	assert.ErrorIs(t, err, logErr)
}

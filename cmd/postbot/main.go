// Command postbot runs the channel post composer bot.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/postbot/core/bootstrap"
	corecmd "github.com/m3rciful/postbot/core/cmd"
	coreconfig "github.com/m3rciful/postbot/core/config"
	"github.com/m3rciful/postbot/core/health"
	"github.com/m3rciful/postbot/core/logger"
	"github.com/m3rciful/postbot/core/metrics"
	coretelegram "github.com/m3rciful/postbot/core/telegram"
	tghelpers "github.com/m3rciful/postbot/core/telegram/helpers"
	"github.com/m3rciful/postbot/core/telegram/sender"
	"github.com/m3rciful/postbot/internal/admin"
	"github.com/m3rciful/postbot/internal/backup"
	"github.com/m3rciful/postbot/internal/bot"
	"github.com/m3rciful/postbot/internal/preview"
	"github.com/m3rciful/postbot/internal/store"
	mongostore "github.com/m3rciful/postbot/internal/store/mongo"
	pgstore "github.com/m3rciful/postbot/internal/store/postgres"
)

const indexTimeout = 30 * time.Second

func main() {
	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return coreconfig.Load(path)
		},
		Bootstrap: func(c corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			return newApp(c.CoreConfig())
		},
	})
	if err != nil {
		log.Printf("postbot: %v", err)
		os.Exit(1)
	}
}

// app ties the infrastructure to the bot handlers.
type app struct {
	cfg     *coreconfig.Config
	infra   *bootstrap.Result
	store   store.Store
	metrics *metrics.Metrics
	backups *backup.Manager
	bot     *bot.App
}

func newApp(cfg *coreconfig.Config) (*app, error) {
	infra, err := bootstrap.Run(bootstrap.Options{Config: cfg})
	if err != nil {
		return nil, err
	}
	st, err := openStore(infra)
	if err != nil {
		_ = infra.Close(context.Background())
		return nil, err
	}

	m := metrics.Default()
	a := &app{cfg: cfg, infra: infra, store: st, metrics: m}
	if coreconfig.Enabled(cfg.Features.Backup) {
		a.backups = backup.NewManager(st, backup.Options{
			Dir:           cfg.Backup.Dir,
			RetentionDays: cfg.Backup.RetentionDays,
			Metrics:       m,
		})
	}
	a.bot = bot.New(bot.Deps{
		Config:  cfg,
		Store:   st,
		Preview: preview.NewFetcher(nil, time.Duration(cfg.Preview.TimeoutSeconds)*time.Second),
		Admin:   admin.NewService(st, cfg, nil),
		Backups: a.backups,
		Metrics: m,
	})
	return a, nil
}

func openStore(infra *bootstrap.Result) (store.Store, error) {
	switch {
	case infra.Mongo != nil:
		st := mongostore.New(infra.MongoClient, infra.Mongo)
		ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
		defer cancel()
		if err := st.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		return st, nil
	case infra.DB != nil:
		return pgstore.New(infra.DB, "postgres"), nil
	}
	return nil, errors.New("no storage initialized")
}

func (a *app) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()
	routes, err := a.bot.Routes(reg)
	if err != nil {
		return coretelegram.RunOptions{}, err
	}
	return coretelegram.RunOptions{
		Config:            a.cfg,
		Registry:          reg,
		Middlewares:       coretelegram.DefaultMiddlewares(a.cfg, a.metrics, onLimited),
		Routes:            routes,
		DispatcherOptions: sender.Options{Metrics: a.metrics},
		OnStart:           a.bot.OnStart,
		OnStop: func(ctx context.Context, _ coretelegram.Runtime) error {
			return a.infra.Close(ctx)
		},
	}, nil
}

// Services runs the session sweeper, the backup schedule and the health
// server next to the bot.
func (a *app) Services() []corecmd.Service {
	svcs := []corecmd.Service{
		func(ctx context.Context) error {
			a.bot.Sessions().Run(ctx, time.Duration(a.cfg.Session.SweepSeconds)*time.Second)
			return nil
		},
	}
	if a.backups != nil {
		svcs = append(svcs, func(ctx context.Context) error {
			a.backups.Schedule(ctx, time.Duration(a.cfg.Backup.IntervalSeconds)*time.Second)
			return nil
		})
	}
	if a.cfg.HTTP.Listen != "" {
		srv := health.NewServer(a.cfg.HTTP.Listen, health.PingFunc(a.store.Ping), prometheus.DefaultGatherer)
		svcs = append(svcs, srv.Run)
	} else {
		logger.Info(context.Background(), logger.CompHTTP, "http.disabled", slog.String("reason", "no listen address"))
	}
	return svcs
}

func onLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Too many requests, slow down."})
	}
	return tghelpers.SendMD(c, "⏳ Too many requests. Please wait a moment.")
}

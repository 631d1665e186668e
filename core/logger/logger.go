// Package logger is the structured logging layer of postbot: slog with a
// line handler that writes through an asynchronous sink, per-component
// loggers, and context-carried update identifiers.
package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/postbot/core/buildinfo"
	coreconfig "github.com/m3rciful/postbot/core/config"
)

// Component names used with the context-first helpers.
const (
	CompApp      = "app"
	CompTG       = "tg"
	CompSession  = "session"
	CompCompose  = "compose"
	CompPublish  = "publish"
	CompRegistry = "registry"
	CompStore    = "store"
	CompAdmin    = "admin"
	CompBackup   = "backup"
	CompPreview  = "preview"
	CompHTTP     = "http"
)

var (
	// L is the base logger. Before InitLogger it writes warnings to stderr.
	L *slog.Logger

	DB       *slog.Logger // store connectivity
	MIG      *slog.Logger // schema migrations
	TG       *slog.Logger // Telegram transport
	TWire    *slog.Logger // Telegram wiring steps
	Session  *slog.Logger
	Publish  *slog.Logger
	Registry *slog.Logger
	Admin    *slog.Logger
	Backup   *slog.Logger
	HTTP     *slog.Logger
)

var (
	initOnce sync.Once
	level    slog.LevelVar
	debug    = newSampler(defaultDebugRatio)
	trace    bool

	stateMu sync.Mutex
	out     *sink
	closers []io.Closer
)

func init() {
	setBase(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
}

func setBase(l *slog.Logger) {
	L = l
	DB = Component("db")
	MIG = Component("db.migrate")
	TG = Component(CompTG)
	TWire = Component("tg.wire")
	Session = Component(CompSession)
	Publish = Component(CompPublish)
	Registry = Component(CompRegistry)
	Admin = Component(CompAdmin)
	Backup = Component(CompBackup)
	HTTP = Component(CompHTTP)
}

// InitLogger installs the configured logger as L and as the slog default.
// Only the first call has an effect.
func InitLogger(cfg *coreconfig.Config) error {
	var err error
	initOnce.Do(func() {
		var lc coreconfig.LoggingConfig
		if cfg != nil {
			lc = cfg.Logging
		}
		o := optionsFrom(lc)
		writers, cl, oerr := outputs(lc)
		if oerr != nil {
			err = oerr
			return
		}
		level.Set(o.level)
		debug.set(o.debug)
		trace = o.trace

		stateMu.Lock()
		out = newSink(64<<10, writers...)
		closers = cl
		stateMu.Unlock()

		setBase(slog.New(newHandler(out, &level, o.enc, o.order)))
		slog.SetDefault(L)
		logStartup(cfg, o)
	})
	return err
}

func logStartup(cfg *coreconfig.Config, o options) {
	attrs := []slog.Attr{
		slog.String("go_version", runtime.Version()),
		slog.String("build_version", buildinfo.Version),
		slog.String("build_commit", buildinfo.Commit),
		slog.String("cfg_profile", o.profile),
	}
	if cfg != nil {
		attrs = append(attrs,
			slog.String("storage", cfg.Storage.Driver),
			slog.String("mode", cfg.Telegram.RunMode),
		)
	}
	Info(context.Background(), CompApp, "startup", attrs...)
}

// Shutdown flushes the sink and closes file outputs. Later calls are no-ops.
func Shutdown() error {
	stateMu.Lock()
	defer stateMu.Unlock()
	var errs []error
	if out != nil {
		errs = append(errs, out.Close())
		out = nil
	}
	for _, c := range closers {
		errs = append(errs, c.Close())
	}
	closers = nil
	return errors.Join(errs...)
}

// Component returns L scoped to name; an empty name returns L.
func Component(name string) *slog.Logger {
	if L == nil {
		return nil
	}
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// LogEvent writes attrs under event. A nil logg falls back to the logger
// carried by ctx.
func LogEvent(ctx context.Context, logg *slog.Logger, lvl slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(orBackground(ctx), lvl, "", attrs...)
}

func emit(ctx context.Context, component string, lvl slog.Level, event string, attrs []slog.Attr) {
	LogEvent(ctx, Component(component), lvl, event, attrs...)
}

func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, component, slog.LevelDebug, event, attrs)
}

func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, component, slog.LevelInfo, event, attrs)
}

func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, component, slog.LevelWarn, event, attrs)
}

func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, component, slog.LevelError, event, attrs)
}

// UserAction writes an audit line for a user operation such as
// CONNECT_CHANNEL or PUBLISH_POST.
func UserAction(ctx context.Context, userID int64, action string, attrs ...slog.Attr) {
	attrs = append([]slog.Attr{slog.Int64("user_id", userID), slog.String("action", action)}, attrs...)
	Info(ctx, CompApp, "user.action", attrs...)
}

// ShouldSampleDebug reports whether a high-volume debug event should be
// written. TRACE=1 in the environment lets every event through.
func ShouldSampleDebug() bool {
	return trace || debug.allow()
}

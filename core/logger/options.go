package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	coreconfig "github.com/m3rciful/postbot/core/config"
)

// options is the logging section of the config resolved into handler
// settings.
type options struct {
	enc     encoding
	level   slog.Level
	order   []string
	debug   ratio
	profile string
	trace   bool
}

func optionsFrom(cfg coreconfig.LoggingConfig) options {
	o := options{
		enc:     encJSON,
		level:   parseLevel(cfg.Level),
		order:   parseOrder(cfg.KeysOrder),
		debug:   parseRatio(cfg.DebugSample),
		profile: strings.ToLower(strings.TrimSpace(cfg.Profile)),
		trace:   truthy(os.Getenv("TRACE")) || truthy(os.Getenv("LOG_TRACE")),
	}
	if o.profile == "" {
		o.profile = "prod"
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "kv", "text", "pretty":
		o.enc = encKV
	case "":
		if o.profile == "debug" || o.profile == "dev" {
			o.enc = encKV
		}
	}
	return o
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// parseOrder reads a comma-separated key list; empty or "default" selects
// keyOrder.
func parseOrder(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "default" {
		return keyOrder
	}
	var order []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			order = append(order, k)
		}
	}
	if len(order) == 0 {
		return keyOrder
	}
	return order
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// outputs returns stdout plus, when dir and bot_file are set, a rotating
// file. The closers belong to the file outputs.
func outputs(cfg coreconfig.LoggingConfig) ([]io.Writer, []io.Closer, error) {
	dir, file := strings.TrimSpace(cfg.Dir), strings.TrimSpace(cfg.BotFile)
	if dir == "" || file == "" {
		return []io.Writer{os.Stdout}, nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("logger: create %s: %w", dir, err)
	}
	rotating := &lumberjack.Logger{
		Filename:   filepath.Join(dir, file),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}
	return []io.Writer{os.Stdout, rotating}, []io.Closer{rotating}, nil
}

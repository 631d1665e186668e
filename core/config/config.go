package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig carries the bot token, the admin list and how updates
// arrive. LongPollTimeoutSeconds of zero keeps the runtime default.
type TelegramConfig struct {
	Token                  string  `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminIDs               []int64 `yaml:"admin_ids" envconfig:"ADMIN_IDS"`
	RunMode                string  `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	LongPollTimeoutSeconds int     `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig is read only in webhook run mode.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig configures core/logger. Profile "debug" or "dev" switches
// the default format to key=value.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file" envconfig:"LOG_FILE"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	Profile     string `yaml:"profile"`
}

// Run modes.
const (
	RunModeLongpoll = "longpoll"
	RunModeWebhook  = "webhook"
)

// Update kinds accepted by rate_limit.exclude_updates.
const (
	UpdateMessage     = "message"
	UpdateCallback    = "callback"
	UpdateInlineQuery = "inline_query"
)

var (
	runModes    = map[string]string{"": RunModeLongpoll, "polling": RunModeLongpoll, RunModeLongpoll: RunModeLongpoll, RunModeWebhook: RunModeWebhook}
	updateKinds = []string{UpdateMessage, UpdateCallback, UpdateInlineQuery}
)

const (
	// DriverMongo stores users and channels in MongoDB.
	DriverMongo = "mongo"
	// DriverPostgres stores users and channels in PostgreSQL.
	DriverPostgres = "postgres"
)

// RateLimitConfig allows each user Requests updates per WindowSeconds.
// Update kinds in ExcludeUpdates skip the limiter.
type RateLimitConfig struct {
	Requests       int      `yaml:"requests" envconfig:"RATE_LIMIT_REQUESTS"`
	WindowSeconds  int      `yaml:"window_seconds" envconfig:"RATE_LIMIT_WINDOW"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// MongoConfig points at the document store.
type MongoConfig struct {
	URI      string `yaml:"uri" envconfig:"MONGO_URI"`
	Database string `yaml:"database" envconfig:"DATABASE_NAME"`
}

// PostgresConfig is used by the postgres storage driver.
type PostgresConfig struct {
	Host     string `yaml:"host" envconfig:"PG_HOST"`
	Port     string `yaml:"port" envconfig:"PG_PORT"`
	User     string `yaml:"user" envconfig:"PG_USER"`
	Password string `yaml:"password" envconfig:"PG_PASSWORD"`
	Name     string `yaml:"name" envconfig:"PG_DATABASE"`
	SSLMode  string `yaml:"sslmode" envconfig:"PG_SSLMODE"`
	// MaxConnections caps the sqlx pool; zero leaves database/sql defaults.
	MaxConnections int `yaml:"max_connections" envconfig:"PG_MAX_CONNECTIONS"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Driver   string         `yaml:"driver" envconfig:"STORAGE_DRIVER"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// LimitsConfig caps per-user and per-post resources.
type LimitsConfig struct {
	MaxChannels int `yaml:"max_channels_per_user" envconfig:"MAX_CHANNELS_PER_USER"`
	MaxButtons  int `yaml:"max_buttons_per_post" envconfig:"MAX_BUTTONS_PER_POST"`
	MaxMedia    int `yaml:"max_media_per_post" envconfig:"MAX_MEDIA_PER_POST"`
}

// SessionConfig controls draft expiry. A negative TTLSeconds keeps sessions
// until they are cleared explicitly.
type SessionConfig struct {
	TTLSeconds   int `yaml:"ttl_seconds" envconfig:"CACHE_TTL"`
	SweepSeconds int `yaml:"sweep_seconds" envconfig:"SESSION_SWEEP_SECONDS"`
}

// FeaturesConfig toggles optional subsystems.
type FeaturesConfig struct {
	Analytics     *bool `yaml:"analytics" envconfig:"ENABLE_ANALYTICS"`
	Backup        *bool `yaml:"backup" envconfig:"ENABLE_BACKUP"`
	Notifications *bool `yaml:"notifications" envconfig:"ENABLE_NOTIFICATIONS"`
}

// BackupConfig describes scheduled backups.
type BackupConfig struct {
	Dir             string `yaml:"dir" envconfig:"BACKUP_DIR"`
	IntervalSeconds int    `yaml:"interval_seconds" envconfig:"BACKUP_INTERVAL"`
	RetentionDays   int    `yaml:"retention_days" envconfig:"BACKUP_RETENTION"`
}

// BroadcastConfig paces admin broadcasts.
type BroadcastConfig struct {
	BatchSize int     `yaml:"batch_size" envconfig:"BROADCAST_BATCH_SIZE"`
	PauseMS   int     `yaml:"pause_ms" envconfig:"BROADCAST_PAUSE_MS"`
	RPS       float64 `yaml:"rps" envconfig:"BROADCAST_RPS"`
}

// HTTPConfig configures the health and metrics listener.
type HTTPConfig struct {
	Listen string `yaml:"listen" envconfig:"HEALTH_LISTEN"`
}

// PreviewConfig bounds URL preview fetches.
type PreviewConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds" envconfig:"PREVIEW_TIMEOUT_SECONDS"`
}

// Config is the whole bot configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Limits    LimitsConfig    `yaml:"limits"`
	Session   SessionConfig   `yaml:"session"`
	Features  FeaturesConfig  `yaml:"features"`
	Backup    BackupConfig    `yaml:"backup"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	HTTP      HTTPConfig      `yaml:"http"`
	Preview   PreviewConfig   `yaml:"preview"`
}

// CoreConfig satisfies cmd.ConfigCarrier.
func (c *Config) CoreConfig() *Config { return c }

// Load reads an optional .env file, the YAML file at path and then
// environment variables, in that order of increasing precedence.
// A missing YAML file is tolerated so the bot can run from env alone.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: .env: %w", err)
	}
	cfg := new(Config)
	if err := readYAML(path, cfg); err != nil {
		return nil, err
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	if err := Normalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readYAML(path string, cfg *Config) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Normalize validates cfg in place and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("config: telegram.token (BOT_TOKEN) is empty")
	}
	if err := normalizeRunMode(cfg); err != nil {
		return err
	}
	if err := normalizeRateLimit(&cfg.RateLimit); err != nil {
		return err
	}
	if err := normalizeStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := normalizeLimits(&cfg.Limits); err != nil {
		return err
	}

	if cfg.Session.TTLSeconds == 0 {
		cfg.Session.TTLSeconds = 3600
	}
	if cfg.Session.SweepSeconds <= 0 {
		cfg.Session.SweepSeconds = 60
	}

	if cfg.Logging.MaxSizeMB <= 0 {
		cfg.Logging.MaxSizeMB = 10
	}
	if cfg.Logging.MaxBackups <= 0 {
		cfg.Logging.MaxBackups = 5
	}

	if strings.TrimSpace(cfg.Backup.Dir) == "" {
		cfg.Backup.Dir = "backups"
	}
	if cfg.Backup.IntervalSeconds <= 0 {
		cfg.Backup.IntervalSeconds = 86400
	}
	if cfg.Backup.RetentionDays <= 0 {
		cfg.Backup.RetentionDays = 7
	}

	if cfg.Broadcast.BatchSize <= 0 {
		cfg.Broadcast.BatchSize = 20
	}
	if cfg.Broadcast.PauseMS < 0 {
		return fmt.Errorf("broadcast.pause_ms must be >= 0")
	}
	if cfg.Broadcast.PauseMS == 0 {
		cfg.Broadcast.PauseMS = 1000
	}
	if cfg.Broadcast.RPS <= 0 {
		cfg.Broadcast.RPS = 25
	}

	if cfg.Preview.TimeoutSeconds <= 0 {
		cfg.Preview.TimeoutSeconds = 10
	}
	return nil
}

func normalizeRunMode(cfg *Config) error {
	mode, ok := runModes[strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))]
	if !ok {
		return fmt.Errorf("config: telegram.run_mode %q is not longpoll or webhook", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = mode
	if mode == RunModeLongpoll {
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return errors.New("config: telegram.longpoll_timeout_seconds is negative")
		}
		return nil
	}
	var missing []string
	if strings.TrimSpace(cfg.Webhook.URL) == "" {
		missing = append(missing, "webhook.url")
	}
	if strings.TrimSpace(cfg.Webhook.Listen) == "" {
		missing = append(missing, "webhook.listen")
	}
	if cfg.Webhook.Port <= 0 {
		missing = append(missing, "webhook.port")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: webhook mode needs %s", strings.Join(missing, ", "))
	}
	return nil
}

func normalizeRateLimit(rl *RateLimitConfig) error {
	if rl.Requests < 0 || rl.WindowSeconds < 0 {
		return errors.New("config: rate_limit values are negative")
	}
	if rl.Requests == 0 && rl.WindowSeconds == 0 {
		rl.Requests = 30
	}
	if rl.WindowSeconds == 0 {
		rl.WindowSeconds = 60
	}
	kinds := rl.ExcludeUpdates[:0]
	for _, v := range rl.ExcludeUpdates {
		kind := strings.ToLower(strings.TrimSpace(v))
		switch {
		case kind == "":
		case slices.Contains(updateKinds, kind):
			kinds = append(kinds, kind)
		default:
			return fmt.Errorf("config: rate_limit.exclude_updates has %q, want one of %s", v, strings.Join(updateKinds, ", "))
		}
	}
	rl.ExcludeUpdates = kinds
	return nil
}

func normalizeStorage(st *StorageConfig) error {
	driver := strings.ToLower(strings.TrimSpace(st.Driver))
	if driver == "" {
		driver = DriverMongo
	}
	switch driver {
	case DriverMongo:
		if strings.TrimSpace(st.Mongo.URI) == "" {
			st.Mongo.URI = "mongodb://localhost:27017/postbot"
		}
		if !strings.HasPrefix(st.Mongo.URI, "mongodb://") && !strings.HasPrefix(st.Mongo.URI, "mongodb+srv://") {
			return fmt.Errorf("storage.mongo.uri must start with mongodb:// or mongodb+srv://")
		}
		if strings.TrimSpace(st.Mongo.Database) == "" {
			st.Mongo.Database = "postbot"
		}
	case DriverPostgres:
		if st.Postgres.Host == "" || st.Postgres.Name == "" {
			return fmt.Errorf("storage.postgres.host and storage.postgres.name are required for the postgres driver")
		}
		if st.Postgres.Port == "" {
			st.Postgres.Port = "5432"
		}
		if st.Postgres.SSLMode == "" {
			st.Postgres.SSLMode = "disable"
		}
		if st.Postgres.MaxConnections <= 0 {
			st.Postgres.MaxConnections = 10
		}
	default:
		return fmt.Errorf("invalid storage.driver %q; allowed: mongo, postgres", st.Driver)
	}
	st.Driver = driver
	return nil
}

func normalizeLimits(l *LimitsConfig) error {
	if l.MaxChannels == 0 {
		l.MaxChannels = 10
	}
	if l.MaxButtons == 0 {
		l.MaxButtons = 10
	}
	if l.MaxMedia == 0 {
		l.MaxMedia = 10
	}
	if l.MaxChannels < 0 || l.MaxButtons < 0 || l.MaxMedia < 0 {
		return fmt.Errorf("limits must be positive")
	}
	// a media group holds at most 10 items
	if l.MaxMedia > 10 {
		l.MaxMedia = 10
	}
	return nil
}

// IsAdmin reports whether userID is listed in telegram.admin_ids.
func (c *Config) IsAdmin(userID int64) bool {
	return c != nil && slices.Contains(c.Telegram.AdminIDs, userID)
}

// SessionTTL returns the configured draft inactivity timeout; zero means
// sessions never expire.
func (c *Config) SessionTTL() time.Duration {
	if c.Session.TTLSeconds < 0 {
		return 0
	}
	return time.Duration(c.Session.TTLSeconds) * time.Second
}

// Enabled reports a feature flag; unset flags default to on.
func Enabled(flag *bool) bool {
	return flag == nil || *flag
}

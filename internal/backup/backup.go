// Package backup writes gzip-compressed JSON exports of the store and
// prunes old ones.
package backup

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/postbot/core/buildinfo"
	"github.com/m3rciful/postbot/core/logger"
	"github.com/m3rciful/postbot/core/metrics"
	"github.com/m3rciful/postbot/internal/store"
)

const (
	filePrefix = "postbot_backup_"
	fileSuffix = ".json.gz"
	stampFmt   = "20060102_150405"
)

// Exporter is the slice of the store a backup needs.
type Exporter interface {
	Export(ctx context.Context) (store.Dump, error)
	Name() string
}

// Metadata heads every backup file.
type Metadata struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Database    string    `json:"database"`
	Collections []string  `json:"collections"`
	Version     string    `json:"version"`
}

// File is the on-disk layout.
type File struct {
	Metadata Metadata   `json:"metadata"`
	Data     store.Dump `json:"data"`
}

// Info describes a backup file on disk.
type Info struct {
	Name      string
	Path      string
	Size      int64
	CreatedAt time.Time
}

// Manager creates, lists and prunes backups in one directory.
type Manager struct {
	src       Exporter
	dir       string
	retention time.Duration
	now       func() time.Time
	metrics   *metrics.Metrics
}

// Options configure a Manager.
type Options struct {
	Dir           string
	RetentionDays int
	Now           func() time.Time
	Metrics       *metrics.Metrics
}

// NewManager returns a Manager writing into opts.Dir.
func NewManager(src Exporter, opts Options) *Manager {
	if opts.Dir == "" {
		opts.Dir = "backups"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 7
	}
	return &Manager{
		src:       src,
		dir:       opts.Dir,
		retention: time.Duration(opts.RetentionDays) * 24 * time.Hour,
		now:       opts.Now,
		metrics:   opts.Metrics,
	}
}

// Dir is the backup directory.
func (m *Manager) Dir() string { return m.dir }

// Create exports the store into a new file and returns its description.
func (m *Manager) Create(ctx context.Context) (info Info, err error) {
	start := time.Now()
	defer func() {
		m.count(err)
		attrs := []slog.Attr{
			slog.String("status", logger.Status(err)),
			slog.Int64("duration_ms", logger.Took(start).Milliseconds()),
		}
		if err != nil {
			logger.Error(ctx, logger.CompBackup, "backup.create", append(attrs, logger.Err(err))...)
			return
		}
		logger.Info(ctx, logger.CompBackup, "backup.create",
			append(attrs, slog.String("file", info.Name), slog.Int64("size", info.Size))...)
	}()

	dump, err := m.src.Export(ctx)
	if err != nil {
		return Info{}, fmt.Errorf("backup: export: %w", err)
	}
	created := m.now().UTC()
	cols := make([]string, 0, len(dump))
	for name := range dump {
		cols = append(cols, name)
	}
	sort.Strings(cols)
	doc := File{
		Metadata: Metadata{
			ID:          uuid.NewString(),
			CreatedAt:   created,
			Database:    m.src.Name(),
			Collections: cols,
			Version:     buildinfo.Version,
		},
		Data: dump,
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return Info{}, fmt.Errorf("backup: mkdir: %w", err)
	}
	name := filePrefix + created.Format(stampFmt) + fileSuffix
	path := filepath.Join(m.dir, name)
	if err := writeGzipJSON(path, doc); err != nil {
		return Info{}, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("backup: stat: %w", err)
	}
	return Info{Name: name, Path: path, Size: st.Size(), CreatedAt: created}, nil
}

func writeGzipJSON(path string, v any) (err error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("backup: create: %w", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()
	zw := gzip.NewWriter(f)
	enc := json.NewEncoder(zw)
	enc.SetIndent("", "  ")
	if err = enc.Encode(v); err != nil {
		return fmt.Errorf("backup: encode: %w", err)
	}
	if err = zw.Close(); err != nil {
		return fmt.Errorf("backup: gzip: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("backup: close: %w", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("backup: rename: %w", err)
	}
	return nil
}

// Read decodes a backup file.
func Read(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, err
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return File{}, fmt.Errorf("backup: gzip: %w", err)
	}
	defer zr.Close()
	var out File
	if err := json.NewDecoder(zr).Decode(&out); err != nil {
		return File{}, fmt.Errorf("backup: decode: %w", err)
	}
	return out, nil
}

// List returns the backups in the directory, newest first.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("backup: list: %w", err)
	}
	var out []Info
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		created, ok := parseName(e.Name())
		if !ok {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Info{
			Name:      e.Name(),
			Path:      filepath.Join(m.dir, e.Name()),
			Size:      fi.Size(),
			CreatedAt: created,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Cleanup removes backups older than the retention window and returns how
// many were deleted.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	list, err := m.List()
	if err != nil {
		return 0, err
	}
	cutoff := m.now().UTC().Add(-m.retention)
	removed := 0
	for _, b := range list {
		if !b.CreatedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(b.Path); err != nil {
			logger.Warn(ctx, logger.CompBackup, "backup.remove",
				slog.String("file", b.Name),
				logger.Err(err),
			)
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info(ctx, logger.CompBackup, "backup.cleanup",
			slog.Int("removed", removed),
			slog.Int("retention_days", int(m.retention/(24*time.Hour))),
		)
	}
	return removed, nil
}

func parseName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	t, err := time.Parse(stampFmt, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (m *Manager) count(err error) {
	if m.metrics != nil {
		m.metrics.BackupsTotal.WithLabelValues(logger.Status(err)).Inc()
	}
}

// Schedule creates a backup and prunes old ones every interval until ctx
// ends.
func (m *Manager) Schedule(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	logger.Info(ctx, logger.CompBackup, "backup.scheduler",
		slog.String("status", "start"),
		slog.Duration("interval", interval),
		slog.String("dir", m.dir),
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := m.Create(ctx); err != nil {
				continue
			}
			_, _ = m.Cleanup(ctx)
		}
	}
}

package admin

import (
	"context"
	"fmt"
	"runtime"
	"time"

	coreconfig "github.com/m3rciful/postbot/core/config"
	"github.com/m3rciful/postbot/core/buildinfo"
	"github.com/m3rciful/postbot/internal/model"
	"github.com/m3rciful/postbot/internal/store"
)

// RecentLimit is how many users /users recent lists.
const RecentLimit = 10

// Service answers the read-only admin queries.
type Service struct {
	store   store.Store
	cfg     *coreconfig.Config
	now     func() time.Time
	started time.Time
}

// NewService returns a Service. now may be nil.
func NewService(st store.Store, cfg *coreconfig.Config, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: st, cfg: cfg, now: now, started: now()}
}

// Stats returns the current totals.
func (s *Service) Stats(ctx context.Context) (store.Stats, error) {
	st, err := s.store.Stats(ctx, s.now())
	if err != nil {
		return st, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// ActivityRate is the share of users active today in percent.
func ActivityRate(st store.Stats) float64 {
	if st.Users == 0 {
		return 0
	}
	return float64(st.ActiveToday) / float64(st.Users) * 100
}

// FindUser returns the profile and channels of userID.
func (s *Service) FindUser(ctx context.Context, userID int64) (model.User, error) {
	return s.store.GetUser(ctx, userID)
}

// RecentUsers lists the newest users.
func (s *Service) RecentUsers(ctx context.Context) ([]model.User, error) {
	return s.store.RecentUsers(ctx, RecentLimit)
}

// System describes the running process for /system.
type System struct {
	Build      string
	GoVersion  string
	OS         string
	Arch       string
	Goroutines int
	HeapMB     float64
	SysMB      float64
	NumGC      uint32
	Uptime     time.Duration

	Database    string
	Driver      string
	LogLevel    string
	MaxChannels int
	Backup      bool
	Analytics   bool
	Features    int
}

// System snapshots runtime and configuration details.
func (s *Service) System() System {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	out := System{
		Build:      buildinfo.String(),
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		Goroutines: runtime.NumGoroutine(),
		HeapMB:     float64(ms.HeapAlloc) / (1 << 20),
		SysMB:      float64(ms.Sys) / (1 << 20),
		NumGC:      ms.NumGC,
		Uptime:     s.now().Sub(s.started).Round(time.Second),
		Database:   s.store.Name(),
	}
	if s.cfg != nil {
		out.Driver = s.cfg.Storage.Driver
		out.LogLevel = s.cfg.Logging.Level
		out.MaxChannels = s.cfg.Limits.MaxChannels
		out.Backup = coreconfig.Enabled(s.cfg.Features.Backup)
		out.Analytics = coreconfig.Enabled(s.cfg.Features.Analytics)
		for _, f := range []*bool{s.cfg.Features.Analytics, s.cfg.Features.Backup, s.cfg.Features.Notifications} {
			if coreconfig.Enabled(f) {
				out.Features++
			}
		}
	}
	return out
}

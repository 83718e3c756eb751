package journal

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tgnotify/pkg/logx"
)

// Sweeper periodically deletes journal entries older than the retention
// window.
type Sweeper struct {
	store     Store
	retention time.Duration
	log       logx.Logger

	mu sync.Mutex
	c  *cron.Cron
}

// NewSweeper builds a sweeper for the given store. schedule is a cron spec
// ("@every 1h", "0 * * * *"); retention <= 0 falls back to 168h.
func NewSweeper(store Store, schedule string, retention time.Duration, log logx.Logger) (*Sweeper, error) {
	if retention <= 0 {
		retention = 168 * time.Hour
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Sweeper{store: store, retention: retention, log: log}

	spec := strings.TrimSpace(schedule)
	if spec == "" {
		spec = "@every 1h"
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser))
	if _, err := c.AddFunc(spec, s.sweep); err != nil {
		return nil, err
	}
	s.c = c
	return s, nil
}

func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		s.c.Start()
	}
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-s.retention)
	removed, err := s.store.Prune(ctx, cutoff)
	if err != nil {
		s.log.Warn("journal sweep failed", logx.Err(err))
		return
	}
	if removed != 0 {
		s.log.Info("journal sweep done", logx.Int64("removed", removed), logx.Any("cutoff", cutoff))
	}
}

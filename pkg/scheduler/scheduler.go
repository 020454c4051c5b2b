// Package scheduler runs periodic maintenance jobs in server mode.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Scheduler wraps robfig/cron and tracks the next scheduled scan.
type Scheduler struct {
	mu       sync.RWMutex
	c        *cron.Cron
	entryID  cron.EntryID
	cronExpr string
	logger   zerolog.Logger
}

// New creates a stopped Scheduler. Call Start to activate it.
func New() *Scheduler {
	return &Scheduler{
		c:      cron.New(),
		logger: log.With().Str("component", "scheduler").Logger(),
	}
}

// SetScanJob replaces the tracked periodic scan with the given expression
// and callback. If the scheduler is already running, the new job takes
// effect immediately.
func (s *Scheduler) SetScanJob(expr string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 {
		s.c.Remove(s.entryID)
	}

	id, err := s.c.AddFunc(expr, fn)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	s.entryID = id
	s.cronExpr = expr
	s.logger.Info().Str("cron", expr).Msg("Scan job scheduled")
	return nil
}

// Start begins the cron loop.
func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop halts the cron loop gracefully.
func (s *Scheduler) Stop() {
	s.c.Stop()
}

// NextRunAt returns the next scheduled scan time, or nil when no job is set.
func (s *Scheduler) NextRunAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.entryID == 0 {
		return nil
	}
	entry := s.c.Entry(s.entryID)
	if entry.ID == 0 {
		return nil
	}
	t := entry.Next
	return &t
}

// CronExpr returns the current cron expression.
func (s *Scheduler) CronExpr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cronExpr
}

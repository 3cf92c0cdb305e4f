// Package scheduler runs periodic jobs such as stale-snapshot refreshes.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled task.
type Job func(ctx context.Context) error

// Scheduler manages periodic tasks.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	logger  zerolog.Logger

	mu   sync.Mutex
	jobs map[string]cron.EntryID
}

// New creates a scheduler whose jobs each run under the given timeout. Overlapping runs of the
// same job are skipped.
func New(timeout time.Duration, logger zerolog.Logger) *Scheduler {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	return &Scheduler{
		cron:    c,
		timeout: timeout,
		logger:  logger,
		jobs:    make(map[string]cron.EntryID),
	}
}

// AddJob registers job under name on a cron expression such as "@every 10m" or "*/5 * * * *".
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	entryID, err := s.cron.AddFunc(schedule, func() {
		if err := s.RunNow(name, job); err != nil {
			s.logger.Warn().Err(err).Str("job", name).Msg("scheduled job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.mu.Lock()
	s.jobs[name] = entryID
	s.mu.Unlock()

	s.logger.Info().Str("job", name).Str("schedule", schedule).Msg("job added")
	return nil
}

// RemoveJob unregisters a job.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.jobs[name]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
	}
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunNow executes job immediately under the scheduler timeout.
func (s *Scheduler) RunNow(name string, job Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	err := job(ctx)
	s.logger.Debug().Str("job", name).Dur("took", time.Since(start)).Err(err).Msg("job finished")
	return err
}

// JobInfo contains information about a scheduled job.
type JobInfo struct {
	Name    string
	NextRun time.Time
	LastRun time.Time
}

// ListJobs returns info about scheduled jobs.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	infos := make([]JobInfo, 0, len(s.jobs))
	for name, entryID := range s.jobs {
		for _, entry := range entries {
			if entry.ID == entryID {
				infos = append(infos, JobInfo{Name: name, NextRun: entry.Next, LastRun: entry.Prev})
				break
			}
		}
	}
	return infos
}

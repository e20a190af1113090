// Package scheduler owns the cron engine, the sync cadence, active-job
// tracking, and history integration: a robfig/cron/v3 engine wrapped by
// a mutex-protected job map, with a reload pass that re-registers
// entries by rescanning the jobs directory. The reserved 15-minute
// sync+reload entry is never cancelled during reload.
package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/cronsentinel/cronsentinel/internal/errs"
	"github.com/cronsentinel/cronsentinel/internal/gitsync"
	"github.com/cronsentinel/cronsentinel/internal/history"
	"github.com/cronsentinel/cronsentinel/internal/job"
	"github.com/cronsentinel/cronsentinel/internal/runner"
	"github.com/cronsentinel/cronsentinel/internal/secrets"
)

// ReservedSyncInterval is the cadence of the reserved sync+reload entry.
const ReservedSyncInterval = 15 * time.Minute

// HealthCheck is the observability snapshot returned to operators.
type HealthCheck struct {
	Status           string                      `json:"status"`
	ActiveJobs       int                         `json:"active_jobs"`
	TotalExecutions  int                         `json:"total_executions"`
	RecentFailures   []history.FailureProjection `json:"recent_failures"`
	RepositoryStatus gitsync.Status              `json:"repository_status"`
}

// Scheduler is the long-lived cron supervisor process core.
type Scheduler struct {
	jobsDir string
	syncer  *gitsync.Syncer
	history *history.History
	secrets *secrets.Store
	logger  zerolog.Logger

	cronEngine *cron.Cron
	reservedID cron.EntryID

	mu      sync.Mutex
	entries map[string]cron.EntryID // job name -> registered entry

	activeMu sync.Mutex
	active   map[string]string // execution id -> job name
}

// New constructs a Scheduler. It validates the repository URL and jobs
// directory, creates jobsDir if absent, wires history/secrets/a fresh
// cron engine, and sets the job interpreter if one is given.
func New(repoURL, jobsDir, historyFile, secretsFile, secretsKeyFile, interpreter string, logger zerolog.Logger) (*Scheduler, error) {
	syncer, err := gitsync.New(repoURL, jobsDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(jobsDir, 0o755); err != nil {
		return nil, errs.Wrap(errs.Configuration, err, "cannot create jobs directory %s", jobsDir)
	}
	if interpreter != "" {
		runner.Interpreter = interpreter
	}

	return &Scheduler{
		jobsDir:    jobsDir,
		syncer:     syncer,
		history:    history.New(historyFile),
		secrets:    secrets.New(secretsFile, secretsKeyFile),
		logger:     logger,
		cronEngine: cron.New(),
		entries:    make(map[string]cron.EntryID),
		active:     make(map[string]string),
	}, nil
}

// Start registers the reserved periodic sync+reload entry, performs one
// immediate sync+reload, and starts the cron engine. It does not block;
// callers that want to run until interrupted should select on a context
// or signal channel themselves.
func (s *Scheduler) Start(ctx context.Context) error {
	id, err := s.cronEngine.AddFunc(every(ReservedSyncInterval), func() {
		s.syncAndReload(ctx)
	})
	if err != nil {
		return errs.Wrap(errs.Configuration, err, "failed to register reserved sync entry")
	}
	s.reservedID = id

	s.cronEngine.Start()
	s.syncAndReload(ctx)
	return nil
}

// Stop halts the cron engine, waiting for any running entries to
// return.
func (s *Scheduler) Stop() {
	c := s.cronEngine.Stop()
	<-c.Done()
}

// ForceSync performs one sync-then-reload pass synchronously.
func (s *Scheduler) ForceSync(ctx context.Context) {
	s.syncAndReload(ctx)
}

func (s *Scheduler) syncAndReload(ctx context.Context) {
	if err := s.syncer.Sync(ctx); err != nil {
		s.logger.Error().Err(err).Msg("repository sync failed")
		return
	}
	s.reload(ctx)
}

// reload cancels every currently-registered entry except the reserved
// one, scans jobsDir for direct child directories, and re-registers a
// cron entry for each that loads successfully.
func (s *Scheduler) reload(ctx context.Context) {
	s.mu.Lock()
	for name, id := range s.entries {
		s.cronEngine.Remove(id)
		delete(s.entries, name)
	}
	s.mu.Unlock()

	children, err := os.ReadDir(s.jobsDir)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to scan jobs directory")
		return
	}

	for _, child := range children {
		if !child.IsDir() {
			continue
		}
		dir := filepath.Join(s.jobsDir, child.Name())
		if !job.HasRequiredFiles(dir) {
			continue
		}

		d, err := job.Load(dir)
		if err != nil {
			logJobError(s.logger, child.Name(), err)
			continue
		}

		s.registerJob(ctx, d)
	}
}

func logJobError(logger zerolog.Logger, name string, err error) {
	if errs.Is(err, errs.Configuration) || errs.Is(err, errs.Security) {
		logger.Error().Err(err).Str("job", name).Msg(err.Error())
		return
	}
	logger.Error().Err(err).Str("job", name).Msg("Failed to load job")
}

func (s *Scheduler) registerJob(ctx context.Context, d *job.Descriptor) {
	id, err := s.cronEngine.AddFunc(d.Schedule, func() {
		s.dispatch(ctx, d)
	})
	if err != nil {
		s.logger.Error().Err(err).Str("job", d.Name).Msg("failed to register job schedule")
		return
	}

	s.mu.Lock()
	s.entries[d.Name] = id
	s.mu.Unlock()
}

// dispatch runs d once, records the outcome in history, and maintains
// the active-jobs map for the duration of the firing.
func (s *Scheduler) dispatch(ctx context.Context, d *job.Descriptor) {
	execID := uuid.NewString()

	s.activeMu.Lock()
	s.active[execID] = d.Name
	s.activeMu.Unlock()
	defer func() {
		s.activeMu.Lock()
		delete(s.active, execID)
		s.activeMu.Unlock()
	}()

	warn := job.WarnFunc(func(msg string) { s.logger.Warn().Str("job", d.Name).Msg(msg) })
	env := d.ResolveEnvironment(s.secrets, warn)

	res, err := runner.Run(ctx, d, env)

	success := err == nil
	seconds := res.ExecutionTime.Seconds()
	if err != nil {
		switch {
		case errs.Is(err, errs.Timeout):
			seconds = float64(d.TimeoutSeconds)
		case errs.Is(err, errs.Execution):
			seconds = 0
		}
		s.logger.Error().Err(err).Str("job", d.Name).Msg("job execution failed")
	} else {
		s.logger.Info().Str("job", d.Name).Msg("job execution completed")
	}

	if _, histErr := s.history.Add(d.Name, success, seconds, res.Output); histErr != nil {
		s.logger.Warn().Err(histErr).Msg("failed to write job history")
	}
}

// HealthCheck reports the current observability snapshot.
func (s *Scheduler) HealthCheck(ctx context.Context) HealthCheck {
	s.activeMu.Lock()
	active := len(s.active)
	s.activeMu.Unlock()

	return HealthCheck{
		Status:           "healthy",
		ActiveJobs:       active,
		TotalExecutions:  s.history.Total(),
		RecentFailures:   s.history.RecentFailures(10),
		RepositoryStatus: s.syncer.RepositoryStatus(ctx),
	}
}

// JobStats returns the history's global stats.
func (s *Scheduler) JobStats() history.Stats {
	return s.history.Stats()
}

func every(d time.Duration) string {
	return "@every " + d.String()
}

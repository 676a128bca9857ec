package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"infoplatform/app/database"
	"infoplatform/app/pipeline"
)

// Pipeline is the slice of the ingestion pipeline the scheduler drives.
type Pipeline interface {
	RunForSource(ctx context.Context, sourceID string) ([]pipeline.Result, error)
}

// Scheduler maintains one recurring job per enabled source that has an
// effective fetch interval. Job bookkeeping (add/remove/replace) happens on
// the caller's goroutine under a mutex; fired jobs only enqueue the source
// onto a run queue drained by a worker pool, so a slow fetch never blocks the
// control plane.
type Scheduler struct {
	pipeline        Pipeline
	sourceRepo      database.SourceRepository
	defaultInterval int // seconds, 0 means no process-wide default
	workerCount     int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	runQueue chan string

	mu       sync.Mutex
	jobs     map[string]*job
	inflight map[string]bool
}

type job struct {
	sourceID string
	interval time.Duration
	stop     chan struct{}
}

func NewScheduler(p Pipeline, sourceRepo database.SourceRepository, defaultIntervalSeconds, workerCount int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		pipeline:        p,
		sourceRepo:      sourceRepo,
		defaultInterval: defaultIntervalSeconds,
		workerCount:     workerCount,
		ctx:             ctx,
		cancel:          cancel,
		runQueue:        make(chan string, 100),
		jobs:            make(map[string]*job),
		inflight:        make(map[string]bool),
	}
}

// Start launches the worker pool that executes fetch runs.
func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

// Stop cancels all jobs and waits for in-flight runs to complete. A removed
// job will not fire again, but a run already executing finishes.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for id, j := range s.jobs {
		close(j.stop)
		delete(s.jobs, id)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// AddOrReplaceJob schedules the recurring fetch job for one source, replacing
// any existing job. A missing or disabled source, or a source without a
// positive effective interval (no override, no stored interval, no process
// default), results in job removal instead.
func (s *Scheduler) AddOrReplaceJob(sourceID string, intervalSecondsOverride *int) error {
	src, err := s.sourceRepo.GetSource(sourceID)
	if err != nil {
		return err
	}

	if src == nil || !src.Enabled {
		s.RemoveJob(sourceID)
		slog.Info("Not scheduling source: missing or disabled", "source_id", sourceID)
		return nil
	}

	interval := intervalSecondsOverride
	if interval == nil {
		interval = src.FetchIntervalSeconds
	}
	if interval == nil && s.defaultInterval > 0 {
		interval = &s.defaultInterval
	}
	if interval == nil || *interval <= 0 {
		s.RemoveJob(sourceID)
		slog.Info("Not scheduling source: no effective interval", "source_id", sourceID)
		return nil
	}

	period := time.Duration(*interval) * time.Second
	now := time.Now().UTC()
	next := nextRunTime(src.LastFetchAt, period, now)

	j := &job{
		sourceID: sourceID,
		interval: period,
		stop:     make(chan struct{}),
	}

	s.mu.Lock()
	if old, ok := s.jobs[sourceID]; ok {
		close(old.stop)
	}
	s.jobs[sourceID] = j
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runJob(j, next.Sub(now))

	slog.Info("Scheduled source", "source", src.Name, "source_id", sourceID, "interval", period.String(), "next_run", next)

	return nil
}

// RemoveJob cancels the source's recurring job. No-op when absent.
func (s *Scheduler) RemoveJob(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.jobs[sourceID]; ok {
		close(j.stop)
		delete(s.jobs, sourceID)
		slog.Info("Removed scheduled job", "source_id", sourceID)
	}
}

// SyncJobs reconciles jobs against the source directory: enabled sources get
// a job, disabled ones lose theirs. Used after bulk source changes.
func (s *Scheduler) SyncJobs() error {
	sources, err := s.sourceRepo.ListSources(false)
	if err != nil {
		return err
	}

	slog.Debug("Syncing jobs", "sources", len(sources))

	for _, src := range sources {
		if src.Enabled {
			if err := s.AddOrReplaceJob(src.ID, nil); err != nil {
				slog.Error("Failed to schedule source", "source_id", src.ID, "error", err)
			}
		} else {
			s.RemoveJob(src.ID)
		}
	}

	return nil
}

// RunDueOnce synchronously runs the pipeline for every source due at the given
// time, bypassing the timer machinery. Per-source failures are logged and do
// not stop the sweep. Returns the number of sources run.
func (s *Scheduler) RunDueOnce(ctx context.Context, now time.Time) (int, error) {
	due, err := s.sourceRepo.ListDueSources(now, s.defaultInterval)
	if err != nil {
		return 0, err
	}

	slog.Info("Running due sources", "count", len(due))

	for _, src := range due {
		if _, err := s.pipeline.RunForSource(ctx, src.ID); err != nil {
			slog.Error("Error running due source", "source", src.Name, "source_id", src.ID, "error", err)
		}
	}

	return len(due), nil
}

// JobCount reports the number of scheduled jobs.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case sourceID := <-s.runQueue:
			s.runSource(id, sourceID)
		case <-s.ctx.Done():
			return
		}
	}
}

// runSource executes one fetch run with a per-source in-flight guard: a fire
// for a source whose previous run is still executing is skipped, so a fetch
// slower than its interval cannot pile up overlapping runs.
func (s *Scheduler) runSource(workerID int, sourceID string) {
	s.mu.Lock()
	if s.inflight[sourceID] {
		s.mu.Unlock()
		slog.Warn("Previous run still executing, skipping", "source_id", sourceID)
		return
	}
	s.inflight[sourceID] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inflight, sourceID)
		s.mu.Unlock()
	}()

	if _, err := s.pipeline.RunForSource(s.ctx, sourceID); err != nil {
		slog.Error("Scheduled fetch failed", "worker_id", workerID, "source_id", sourceID, "error", err)
	}
}

func (s *Scheduler) runJob(j *job, delay time.Duration) {
	defer s.wg.Done()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-j.stop:
		return
	case <-s.ctx.Done():
		return
	}

	s.enqueue(j.sourceID)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.enqueue(j.sourceID)
		case <-j.stop:
			return
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) enqueue(sourceID string) {
	select {
	case s.runQueue <- sourceID:
	default:
		slog.Warn("Run queue full, dropping scheduled run", "source_id", sourceID)
	}
}

// nextRunTime computes when a job should first fire: one interval after the
// last fetch, clamped to not be in the past; immediately for a source that
// has never been fetched.
func nextRunTime(lastFetch *time.Time, interval time.Duration, now time.Time) time.Time {
	if lastFetch != nil {
		if candidate := lastFetch.Add(interval); candidate.After(now) {
			return candidate
		}
	}
	return now
}

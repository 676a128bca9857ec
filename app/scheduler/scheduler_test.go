package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"infoplatform/app/database"
	"infoplatform/app/pipeline"
)

type mockSourceRepo struct {
	sources map[string]*database.Source
	due     []database.Source
	dueErr  error
}

func newMockSourceRepo(sources ...*database.Source) *mockSourceRepo {
	m := &mockSourceRepo{sources: map[string]*database.Source{}}
	for _, src := range sources {
		m.sources[src.ID] = src
	}
	return m
}

func (m *mockSourceRepo) GetSource(id string) (*database.Source, error) {
	return m.sources[id], nil
}

func (m *mockSourceRepo) GetSourceByURL(url string) (*database.Source, error) {
	return nil, nil
}

func (m *mockSourceRepo) ListSources(enabledOnly bool) ([]database.Source, error) {
	var out []database.Source
	for _, src := range m.sources {
		if enabledOnly && !src.Enabled {
			continue
		}
		out = append(out, *src)
	}
	return out, nil
}

func (m *mockSourceRepo) ListDueSources(now time.Time, defaultIntervalSeconds int) ([]database.Source, error) {
	if m.dueErr != nil {
		return nil, m.dueErr
	}
	return m.due, nil
}

func (m *mockSourceRepo) UpsertSource(name, url, sourceType string, params map[string]string, fetchIntervalSeconds *int, enabled bool) (string, error) {
	return "", errors.New("not implemented")
}

func (m *mockSourceRepo) UpdateLastFetch(id string, when time.Time) (bool, error) {
	return true, nil
}

func (m *mockSourceRepo) SetSourceEnabled(id string, enabled bool) error { return nil }
func (m *mockSourceRepo) GetSourceCount() (int, error)                  { return len(m.sources), nil }

type mockPipeline struct {
	mu      sync.Mutex
	runs    []string
	ran     chan string
	failIDs map[string]bool
}

func newMockPipeline() *mockPipeline {
	return &mockPipeline{ran: make(chan string, 100)}
}

func (m *mockPipeline) RunForSource(ctx context.Context, sourceID string) ([]pipeline.Result, error) {
	m.mu.Lock()
	m.runs = append(m.runs, sourceID)
	m.mu.Unlock()

	m.ran <- sourceID

	if m.failIDs[sourceID] {
		return nil, errors.New("fetch failed")
	}
	return []pipeline.Result{}, nil
}

func (m *mockPipeline) runCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

// blockingPipeline parks every run until released, for overlap tests.
type blockingPipeline struct {
	mu      sync.Mutex
	runs    int
	started chan struct{}
	release chan struct{}
}

func newBlockingPipeline() *blockingPipeline {
	return &blockingPipeline{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (b *blockingPipeline) RunForSource(ctx context.Context, sourceID string) ([]pipeline.Result, error) {
	b.mu.Lock()
	b.runs++
	b.mu.Unlock()

	b.started <- struct{}{}
	<-b.release

	return []pipeline.Result{}, nil
}

func (b *blockingPipeline) runCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runs
}

func intPtr(v int) *int              { return &v }
func timePtr(v time.Time) *time.Time { return &v }

func TestNextRunTime(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	interval := time.Hour

	// never fetched: run immediately
	if got := nextRunTime(nil, interval, now); !got.Equal(now) {
		t.Errorf("Expected immediate run for unfetched source, got %v", got)
	}

	// fetched recently: one interval after the last fetch
	recent := now.Add(-10 * time.Minute)
	expected := recent.Add(interval)
	if got := nextRunTime(&recent, interval, now); !got.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}

	// fetched long ago: clamped to now, never in the past
	stale := now.Add(-3 * time.Hour)
	if got := nextRunTime(&stale, interval, now); !got.Equal(now) {
		t.Errorf("Expected clamp to now for overdue source, got %v", got)
	}
}

func TestAddOrReplaceJob(t *testing.T) {
	repo := newMockSourceRepo(&database.Source{
		ID:                   "src-1",
		Name:                 "Test",
		Enabled:              true,
		FetchIntervalSeconds: intPtr(3600),
		LastFetchAt:          timePtr(time.Now().UTC()),
	})

	s := NewScheduler(newMockPipeline(), repo, 0, 1)
	defer s.Stop()

	if err := s.AddOrReplaceJob("src-1", nil); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if s.JobCount() != 1 {
		t.Errorf("Expected 1 job, got %d", s.JobCount())
	}

	// replacing keeps the count stable
	if err := s.AddOrReplaceJob("src-1", intPtr(7200)); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if s.JobCount() != 1 {
		t.Errorf("Expected 1 job after replace, got %d", s.JobCount())
	}
}

func TestAddOrReplaceJobMissingSource(t *testing.T) {
	s := NewScheduler(newMockPipeline(), newMockSourceRepo(), 0, 1)
	defer s.Stop()

	if err := s.AddOrReplaceJob("missing", nil); err != nil {
		t.Fatalf("Expected no error for missing source, got %v", err)
	}
	if s.JobCount() != 0 {
		t.Errorf("Expected no jobs, got %d", s.JobCount())
	}
}

func TestAddOrReplaceJobDisabledRemoves(t *testing.T) {
	src := &database.Source{
		ID:                   "src-1",
		Enabled:              true,
		FetchIntervalSeconds: intPtr(3600),
		LastFetchAt:          timePtr(time.Now().UTC()),
	}
	repo := newMockSourceRepo(src)

	s := NewScheduler(newMockPipeline(), repo, 0, 1)
	defer s.Stop()

	if err := s.AddOrReplaceJob("src-1", nil); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if s.JobCount() != 1 {
		t.Fatalf("Expected 1 job, got %d", s.JobCount())
	}

	src.Enabled = false
	if err := s.AddOrReplaceJob("src-1", nil); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if s.JobCount() != 0 {
		t.Errorf("Expected job removed for disabled source, got %d", s.JobCount())
	}
}

func TestAddOrReplaceJobNoEffectiveInterval(t *testing.T) {
	repo := newMockSourceRepo(&database.Source{
		ID:      "src-1",
		Enabled: true,
		// no source interval, and the scheduler has no default
	})

	s := NewScheduler(newMockPipeline(), repo, 0, 1)
	defer s.Stop()

	if err := s.AddOrReplaceJob("src-1", nil); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if s.JobCount() != 0 {
		t.Errorf("Expected no job without an effective interval, got %d", s.JobCount())
	}
}

func TestAddOrReplaceJobUsesDefaultInterval(t *testing.T) {
	repo := newMockSourceRepo(&database.Source{
		ID:          "src-1",
		Enabled:     true,
		LastFetchAt: timePtr(time.Now().UTC()),
	})

	s := NewScheduler(newMockPipeline(), repo, 3600, 1)
	defer s.Stop()

	if err := s.AddOrReplaceJob("src-1", nil); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if s.JobCount() != 1 {
		t.Errorf("Expected job scheduled with default interval, got %d", s.JobCount())
	}
}

func TestAddOrReplaceJobNonPositiveOverride(t *testing.T) {
	src := &database.Source{
		ID:                   "src-1",
		Enabled:              true,
		FetchIntervalSeconds: intPtr(3600),
		LastFetchAt:          timePtr(time.Now().UTC()),
	}
	repo := newMockSourceRepo(src)

	s := NewScheduler(newMockPipeline(), repo, 0, 1)
	defer s.Stop()

	if err := s.AddOrReplaceJob("src-1", nil); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if s.JobCount() != 1 {
		t.Fatalf("Expected 1 job, got %d", s.JobCount())
	}

	// a zero or negative override removes the job instead of scheduling a
	// timer that can never tick
	for _, override := range []int{0, -60} {
		if err := s.AddOrReplaceJob("src-1", intPtr(override)); err != nil {
			t.Fatalf("Expected no error for override %d, got %v", override, err)
		}
		if s.JobCount() != 0 {
			t.Errorf("Expected job removed for override %d, got %d jobs", override, s.JobCount())
		}
	}
}

func TestRunSourceSkipsOverlappingRun(t *testing.T) {
	p := newBlockingPipeline()
	s := NewScheduler(p, newMockSourceRepo(), 0, 1)
	defer s.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runSource(0, "src-1")
	}()

	<-p.started

	// a second fire for the same source while the first is still executing
	// returns immediately without running the pipeline
	s.runSource(1, "src-1")
	if p.runCount() != 1 {
		t.Errorf("Expected overlapping run to be skipped, got %d runs", p.runCount())
	}

	close(p.release)
	wg.Wait()

	// once the first run finishes the guard is cleared
	p.release = make(chan struct{})
	close(p.release)
	s.runSource(1, "src-1")
	<-p.started
	if p.runCount() != 2 {
		t.Errorf("Expected run to proceed after guard cleared, got %d runs", p.runCount())
	}
}

func TestRemoveJobIdempotent(t *testing.T) {
	s := NewScheduler(newMockPipeline(), newMockSourceRepo(), 0, 1)
	defer s.Stop()

	s.RemoveJob("never-added")
	s.RemoveJob("never-added")

	if s.JobCount() != 0 {
		t.Errorf("Expected no jobs, got %d", s.JobCount())
	}
}

func TestSyncJobs(t *testing.T) {
	repo := newMockSourceRepo(
		&database.Source{ID: "src-on", Enabled: true, FetchIntervalSeconds: intPtr(3600), LastFetchAt: timePtr(time.Now().UTC())},
		&database.Source{ID: "src-off", Enabled: false, FetchIntervalSeconds: intPtr(3600)},
	)

	s := NewScheduler(newMockPipeline(), repo, 0, 1)
	defer s.Stop()

	if err := s.SyncJobs(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if s.JobCount() != 1 {
		t.Errorf("Expected 1 job after sync, got %d", s.JobCount())
	}

	// disabling the source drops its job on the next sync
	repo.sources["src-on"].Enabled = false
	if err := s.SyncJobs(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if s.JobCount() != 0 {
		t.Errorf("Expected no jobs after sync, got %d", s.JobCount())
	}
}

func TestRunDueOnce(t *testing.T) {
	repo := newMockSourceRepo()
	repo.due = []database.Source{
		{ID: "src-1", Name: "One"},
		{ID: "src-2", Name: "Two"},
	}

	p := newMockPipeline()
	s := NewScheduler(p, repo, 3600, 1)
	defer s.Stop()

	ran, err := s.RunDueOnce(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if ran != 2 {
		t.Errorf("Expected 2 sources run, got %d", ran)
	}
	if p.runCount() != 2 {
		t.Errorf("Expected 2 pipeline runs, got %d", p.runCount())
	}
}

func TestRunDueOnceContinuesOnError(t *testing.T) {
	repo := newMockSourceRepo()
	repo.due = []database.Source{
		{ID: "src-fail", Name: "Fail"},
		{ID: "src-ok", Name: "OK"},
	}

	p := newMockPipeline()
	p.failIDs = map[string]bool{"src-fail": true}

	s := NewScheduler(p, repo, 3600, 1)
	defer s.Stop()

	ran, err := s.RunDueOnce(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("Expected per-source errors to be swallowed, got %v", err)
	}
	if ran != 2 {
		t.Errorf("Expected both sources counted, got %d", ran)
	}
	if p.runCount() != 2 {
		t.Errorf("Expected both sources attempted, got %d", p.runCount())
	}
}

func TestRunDueOnceListFailure(t *testing.T) {
	repo := newMockSourceRepo()
	repo.dueErr = errors.New("database locked")

	s := NewScheduler(newMockPipeline(), repo, 3600, 1)
	defer s.Stop()

	if _, err := s.RunDueOnce(context.Background(), time.Now().UTC()); err == nil {
		t.Error("Expected error when listing due sources fails")
	}
}

func TestScheduledJobFires(t *testing.T) {
	repo := newMockSourceRepo(&database.Source{
		ID:                   "src-1",
		Name:                 "Test",
		Enabled:              true,
		FetchIntervalSeconds: intPtr(3600),
		// never fetched: the job fires immediately
	})

	p := newMockPipeline()
	s := NewScheduler(p, repo, 0, 2)
	s.Start()
	defer s.Stop()

	if err := s.AddOrReplaceJob("src-1", nil); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	select {
	case sourceID := <-p.ran:
		if sourceID != "src-1" {
			t.Errorf("Expected run for src-1, got %s", sourceID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected scheduled job to fire")
	}
}

func TestStopPreventsFurtherRuns(t *testing.T) {
	repo := newMockSourceRepo(&database.Source{
		ID:                   "src-1",
		Enabled:              true,
		FetchIntervalSeconds: intPtr(3600),
		LastFetchAt:          timePtr(time.Now().UTC()),
	})

	s := NewScheduler(newMockPipeline(), repo, 0, 1)
	s.Start()

	if err := s.AddOrReplaceJob("src-1", nil); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	s.Stop()

	if s.JobCount() != 0 {
		t.Errorf("Expected no jobs after stop, got %d", s.JobCount())
	}
}

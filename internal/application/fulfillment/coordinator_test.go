package fulfillment

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/catalog"
	"github.com/kuccps-hub/course-match-hub/internal/domain/result"
	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
	"github.com/kuccps-hub/course-match-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// TEST DOUBLES
// ══════════════════════════════════════════════════════════════════════════════

type fakeResultRepo struct {
	mu      sync.Mutex
	results map[string]*result.QualificationResult
	upserts int32
	failing bool
}

func newFakeResultRepo() *fakeResultRepo {
	return &fakeResultRepo{results: make(map[string]*result.QualificationResult)}
}

func (r *fakeResultRepo) Upsert(_ context.Context, res *result.QualificationResult) (*result.QualificationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return nil, shared.ErrPersistenceFailure
	}
	atomic.AddInt32(&r.upserts, 1)
	if existing, ok := r.results[res.Key.String()]; ok {
		return existing, nil
	}
	r.results[res.Key.String()] = res
	return res, nil
}

func (r *fakeResultRepo) Get(_ context.Context, key candidate.Key) (*result.QualificationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.results[key.String()]
	if !ok {
		return nil, shared.ErrResultNotFound
	}
	return res, nil
}

func (r *fakeResultRepo) Exists(_ context.Context, key candidate.Key) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.results[key.String()]
	return ok, nil
}

type fakeLeaseStore struct {
	mu     sync.Mutex
	owners map[string]string
}

func newFakeLeaseStore() *fakeLeaseStore {
	return &fakeLeaseStore{owners: make(map[string]string)}
}

func (s *fakeLeaseStore) Acquire(_ context.Context, key candidate.Key, owner string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.owners[key.String()]; held {
		return false, nil
	}
	s.owners[key.String()] = owner
	return true, nil
}

func (s *fakeLeaseStore) Release(_ context.Context, key candidate.Key, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owners[key.String()] == owner {
		delete(s.owners, key.String())
	}
	return nil
}

func (s *fakeLeaseStore) IsHeld(_ context.Context, key candidate.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, held := s.owners[key.String()]
	return held, nil
}

type fakeStatusCache struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFakeStatusCache() *fakeStatusCache {
	return &fakeStatusCache{counts: make(map[string]int)}
}

func (c *fakeStatusCache) SetReady(_ context.Context, key candidate.Key, count int, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key.String()] = count
	return nil
}

func (c *fakeStatusCache) GetReady(_ context.Context, key candidate.Key) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	count, ok := c.counts[key.String()]
	return count, ok, nil
}

func (c *fakeStatusCache) Invalidate(_ context.Context, key candidate.Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, key.String())
	return nil
}

type fakeProfileStore struct {
	mu       sync.Mutex
	profiles map[string]*candidate.Profile
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{profiles: make(map[string]*candidate.Profile)}
}

func (s *fakeProfileStore) Save(_ context.Context, p *candidate.Profile, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.Key().String()] = p
	return nil
}

func (s *fakeProfileStore) Get(_ context.Context, key candidate.Key) (*candidate.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[key.String()]
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	return p, nil
}

func (s *fakeProfileStore) Extend(_ context.Context, _ candidate.Key, _ time.Duration) error {
	return nil
}

func (s *fakeProfileStore) Delete(_ context.Context, key candidate.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, key.String())
	return nil
}

// fakeSource serves fixed entries per partition and counts reads.
type fakeSource struct {
	entries map[string][]catalog.Entry
	reads   int32
}

func (s *fakeSource) Entries(_ context.Context, _ candidate.Category, partition string) ([]catalog.Entry, error) {
	atomic.AddInt32(&s.reads, 1)
	entries, ok := s.entries[partition]
	if !ok {
		return nil, shared.ErrMissingCatalogPartition
	}
	return entries, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURES
// ══════════════════════════════════════════════════════════════════════════════

func diplomaProfile(t *testing.T) *candidate.Profile {
	t.Helper()
	profile, err := candidate.NewProfile(candidate.NewProfileParams{
		Email:       "jane@example.com",
		IndexNumber: "12345678901",
		Category:    candidate.CategoryDiploma,
		SubjectGrades: map[candidate.SubjectCode]candidate.Grade{
			"MAT": candidate.GradeB,
			"ENG": candidate.GradeCPlus,
		},
		MeanGrade: candidate.GradeC,
	})
	require.NoError(t, err)
	return profile
}

type fixture struct {
	coordinator *Coordinator
	results     *fakeResultRepo
	leases      *fakeLeaseStore
	cache       *fakeStatusCache
	profiles    *fakeProfileStore
	source      *fakeSource
}

func newFixture(t *testing.T, entries map[string][]catalog.Entry) *fixture {
	t.Helper()
	f := &fixture{
		results:  newFakeResultRepo(),
		leases:   newFakeLeaseStore(),
		cache:    newFakeStatusCache(),
		profiles: newFakeProfileStore(),
		source:   &fakeSource{entries: entries},
	}
	log := logger.New(logger.Options{Level: logger.LevelError})
	f.coordinator = NewCoordinator(
		f.results, f.leases, f.cache, f.profiles,
		NewScanner(f.source, log), nil, log,
		DefaultCoordinatorConfig(),
	)
	return f
}

func engineeringEntry(partition string) catalog.Entry {
	return catalog.Entry{
		ProgrammeCode: "ENG-" + partition,
		ProgrammeName: "Engineering",
		Institution:   "Technical Institute",
		Partition:     partition,
		MinimumSubjectRequirements: map[string]candidate.Grade{
			"MAT": candidate.GradeCMinus,
		},
		MinimumMeanGrade: candidate.GradeCMinus,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// COORDINATOR
// ══════════════════════════════════════════════════════════════════════════════

func TestCoordinator_Process_PersistsResult(t *testing.T) {
	f := newFixture(t, map[string][]catalog.Entry{
		"engineering": {engineeringEntry("engineering")},
	})
	profile := diplomaProfile(t)
	require.NoError(t, f.profiles.Save(context.Background(), profile, time.Minute))

	res, err := f.coordinator.Process(context.Background(), profile.Key())

	require.NoError(t, err)
	assert.True(t, res.Ready)
	assert.Equal(t, 1, res.MatchCount)

	persisted, err := f.results.Get(context.Background(), profile.Key())
	require.NoError(t, err)
	assert.Equal(t, res, persisted)

	count, ok, err := f.cache.GetReady(context.Background(), profile.Key())
	require.NoError(t, err)
	assert.True(t, ok, "status cache should be warmed")
	assert.Equal(t, 1, count)

	held, err := f.leases.IsHeld(context.Background(), profile.Key())
	require.NoError(t, err)
	assert.False(t, held, "lease must be released after processing")
}

func TestCoordinator_Process_IdempotentFastPath(t *testing.T) {
	f := newFixture(t, map[string][]catalog.Entry{
		"engineering": {engineeringEntry("engineering")},
	})
	profile := diplomaProfile(t)
	require.NoError(t, f.profiles.Save(context.Background(), profile, time.Minute))

	first, err := f.coordinator.Process(context.Background(), profile.Key())
	require.NoError(t, err)

	readsAfterFirst := atomic.LoadInt32(&f.source.reads)

	second, err := f.coordinator.Process(context.Background(), profile.Key())
	require.NoError(t, err)

	assert.Equal(t, first, second, "repeat call returns the persisted result")
	assert.Equal(t, readsAfterFirst, atomic.LoadInt32(&f.source.reads),
		"repeat call must not re-scan the catalog")
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.results.upserts))
}

func TestCoordinator_Process_EmptyResultIsTerminal(t *testing.T) {
	// No partitions at all: every read reports a missing partition.
	f := newFixture(t, map[string][]catalog.Entry{})
	profile := diplomaProfile(t)
	require.NoError(t, f.profiles.Save(context.Background(), profile, time.Minute))

	res, err := f.coordinator.Process(context.Background(), profile.Key())

	require.NoError(t, err)
	assert.True(t, res.Ready, "zero matches is still a servable result")
	assert.Zero(t, res.MatchCount)

	exists, err := f.results.Exists(context.Background(), profile.Key())
	require.NoError(t, err)
	assert.True(t, exists, "empty result must be persisted")
}

func TestCoordinator_Process_LeaseContention(t *testing.T) {
	f := newFixture(t, map[string][]catalog.Entry{})
	profile := diplomaProfile(t)
	require.NoError(t, f.profiles.Save(context.Background(), profile, time.Minute))

	acquired, err := f.leases.Acquire(context.Background(), profile.Key(), "other-worker", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	_, err = f.coordinator.Process(context.Background(), profile.Key())

	require.Error(t, err)
	assert.True(t, shared.IsInFlight(err), "contention is an in-flight signal, not a failure")
}

func TestCoordinator_Process_MissingProfileIsRetryable(t *testing.T) {
	f := newFixture(t, map[string][]catalog.Entry{})
	key := diplomaProfile(t).Key()

	_, err := f.coordinator.Process(context.Background(), key)

	require.Error(t, err)
	assert.True(t, shared.IsRetryable(err))

	held, herr := f.leases.IsHeld(context.Background(), key)
	require.NoError(t, herr)
	assert.False(t, held, "lease must be released on failure")
}

func TestCoordinator_Process_UpsertFailureReleasesLease(t *testing.T) {
	f := newFixture(t, map[string][]catalog.Entry{})
	profile := diplomaProfile(t)
	require.NoError(t, f.profiles.Save(context.Background(), profile, time.Minute))
	f.results.failing = true

	_, err := f.coordinator.Process(context.Background(), profile.Key())

	require.Error(t, err)
	assert.True(t, shared.IsRetryable(err))

	held, herr := f.leases.IsHeld(context.Background(), profile.Key())
	require.NoError(t, herr)
	assert.False(t, held)
}

func TestCoordinator_Process_FirstWriterWinsUnderConcurrency(t *testing.T) {
	f := newFixture(t, map[string][]catalog.Entry{
		"engineering": {engineeringEntry("engineering")},
	})
	profile := diplomaProfile(t)
	require.NoError(t, f.profiles.Save(context.Background(), profile, time.Minute))

	const workers = 16
	var wg sync.WaitGroup
	results := make([]*result.QualificationResult, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.coordinator.Process(context.Background(), profile.Key())
		}(i)
	}
	wg.Wait()

	var persisted *result.QualificationResult
	succeeded := 0
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			assert.True(t, shared.IsInFlight(errs[i]),
				"concurrent losers must see the in-flight signal, got %v", errs[i])
			continue
		}
		succeeded++
		if persisted == nil {
			persisted = results[i]
		} else {
			assert.Same(t, persisted, results[i], "all winners observe the same surviving row")
		}
	}

	require.GreaterOrEqual(t, succeeded, 1, "at least one call must complete")
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.results.upserts),
		"exactly one computation may write")
}

// ══════════════════════════════════════════════════════════════════════════════
// SCANNER
// ══════════════════════════════════════════════════════════════════════════════

func TestScanner_SkipsMissingPartitions(t *testing.T) {
	// Only one diploma partition is present; the scan must survive the rest
	// being absent and still return that partition's matches.
	source := &fakeSource{entries: map[string][]catalog.Entry{
		"engineering": {engineeringEntry("engineering")},
	}}
	scanner := NewScanner(source, logger.New(logger.Options{Level: logger.LevelError}))

	matches, err := scanner.Scan(context.Background(), diplomaProfile(t))

	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "engineering", matches[0].Partition)
}

func TestScanner_ExcludesNonQualifyingEntries(t *testing.T) {
	tough := engineeringEntry("engineering")
	tough.MinimumSubjectRequirements = map[string]candidate.Grade{"MAT": candidate.GradeA}
	source := &fakeSource{entries: map[string][]catalog.Entry{
		"engineering": {tough, engineeringEntry("engineering")},
	}}
	scanner := NewScanner(source, logger.New(logger.Options{Level: logger.LevelError}))

	matches, err := scanner.Scan(context.Background(), diplomaProfile(t))

	require.NoError(t, err)
	require.Len(t, matches, 1, "only the reachable entry matches")
}

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

func TestDispatcher_AwaitReturnsResult(t *testing.T) {
	f := newFixture(t, map[string][]catalog.Entry{
		"engineering": {engineeringEntry("engineering")},
	})
	profile := diplomaProfile(t)
	require.NoError(t, f.profiles.Save(context.Background(), profile, time.Minute))

	dispatcher := NewDispatcher(f.coordinator, logger.New(logger.Options{Level: logger.LevelError}),
		DefaultDispatcherConfig())
	defer dispatcher.Close()

	task := dispatcher.Dispatch(profile.Key())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := task.Await(ctx)

	require.NoError(t, err)
	assert.True(t, res.Ready)
	assert.Equal(t, 1, res.MatchCount)
}

func TestDispatcher_ClosedRejectsWork(t *testing.T) {
	f := newFixture(t, map[string][]catalog.Entry{})
	dispatcher := NewDispatcher(f.coordinator, logger.New(logger.Options{Level: logger.LevelError}),
		DefaultDispatcherConfig())
	dispatcher.Close()

	task := dispatcher.Dispatch(diplomaProfile(t).Key())

	_, err := task.Await(context.Background())
	require.Error(t, err)
}

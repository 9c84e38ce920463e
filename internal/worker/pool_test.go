package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/dedup"
	"github.com/ternarybob/venari/internal/health"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/pipeline"
	"github.com/ternarybob/venari/internal/queue"
)

// ---------------------------------------------------------------------
// In-memory fakes: enough of the storage surface for a JOB item to run
// end to end under worker timeouts.
// ---------------------------------------------------------------------

type memQueue struct {
	mu    sync.Mutex
	items map[string]*models.WorkItem
}

func newMemQueue() *memQueue {
	return &memQueue{items: make(map[string]*models.WorkItem)}
}

func (q *memQueue) Save(_ context.Context, item *models.WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	copied := *item
	q.items[item.ID] = &copied
	return nil
}

func (q *memQueue) Get(_ context.Context, id string) (*models.WorkItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[id]
	if !ok {
		return nil, nil
	}
	copied := *item
	return &copied, nil
}

func (q *memQueue) GetBatch(_ context.Context, ids []string) ([]*models.WorkItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var result []*models.WorkItem
	for _, id := range ids {
		if item, ok := q.items[id]; ok {
			copied := *item
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (q *memQueue) Claim(_ context.Context, staleBefore time.Time) (*models.WorkItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.items {
		claimable := item.Status == models.StatusPending ||
			(item.Status == models.StatusProcessing && item.ClaimedAt.Before(staleBefore))
		if claimable {
			item.MarkProcessing(time.Now())
			copied := *item
			return &copied, nil
		}
	}
	return nil, interfaces.ErrNoItem
}

func (q *memQueue) ExistsInLineage(_ context.Context, trackingID, urlHash string, itemType models.ItemType, statuses []models.ItemStatus) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.items {
		if item.TrackingID != trackingID || item.URLHash != urlHash || item.Type != itemType {
			continue
		}
		for _, status := range statuses {
			if item.Status == status {
				return true, nil
			}
		}
	}
	return false, nil
}

func (q *memQueue) ExistingURLHashes(_ context.Context, hashes []string, itemType models.ItemType) (map[string]bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := make(map[string]bool, len(hashes))
	for _, hash := range hashes {
		result[hash] = false
		for _, item := range q.items {
			if item.URLHash == hash && item.Type == itemType {
				result[hash] = true
				break
			}
		}
	}
	return result, nil
}

func (q *memQueue) CountByStatus(context.Context) (map[models.ItemStatus]int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	counts := make(map[models.ItemStatus]int)
	for _, item := range q.items {
		counts[item.Status]++
	}
	return counts, nil
}

type stubCompanies struct{}

func (stubCompanies) Upsert(context.Context, *models.Company) error { return nil }

func (stubCompanies) Get(context.Context, string) (*models.Company, error) { return nil, nil }

func (stubCompanies) GetByNormalizedName(context.Context, string) (*models.Company, error) {
	return nil, nil
}

type stubSources struct{}

func (stubSources) Upsert(context.Context, *models.Source) error { return nil }

func (stubSources) Get(context.Context, string) (*models.Source, error) { return nil, nil }

func (stubSources) FindByURLHash(context.Context, string) (*models.Source, error) { return nil, nil }

func (stubSources) FindByCompany(context.Context, string) ([]*models.Source, error) {
	return nil, nil
}

func (stubSources) ListEnabled(context.Context) ([]*models.Source, error) { return nil, nil }

func (stubSources) SetEnabled(context.Context, string, bool) error { return nil }

func (stubSources) UpdateHealth(context.Context, string, models.SourceHealth) error { return nil }

type memMatches struct {
	mu      sync.Mutex
	matches []*models.JobMatch
}

func (m *memMatches) Save(_ context.Context, match *models.JobMatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if match.ID == "" {
		match.ID = common.NewMatchID()
	}
	m.matches = append(m.matches, match)
	return nil
}

func (m *memMatches) ExistingURLHashes(_ context.Context, hashes []string) (map[string]bool, error) {
	result := make(map[string]bool, len(hashes))
	for _, hash := range hashes {
		result[hash] = false
	}
	return result, nil
}

func (m *memMatches) Count(context.Context) (int, error) { return 0, nil }

func (m *memMatches) CountSince(context.Context, time.Time) (int, error) { return 0, nil }

type stubEvents struct{}

func (stubEvents) Record(context.Context, string, string, time.Time) error { return nil }

func (stubEvents) CountSince(context.Context, string, time.Time) (int, error) { return 0, nil }

type memStorage struct {
	queue   *memQueue
	matches *memMatches
}

func (s *memStorage) Queue() interfaces.QueueStorage              { return s.queue }
func (s *memStorage) Companies() interfaces.CompanyStorage        { return stubCompanies{} }
func (s *memStorage) Sources() interfaces.SourceStorage           { return stubSources{} }
func (s *memStorage) Matches() interfaces.MatchStorage            { return s.matches }
func (s *memStorage) ScrapeEvents() interfaces.ScrapeEventStorage { return stubEvents{} }
func (s *memStorage) Close() error                                { return nil }

// slowScraper sleeps before answering so tests can pin stage budgets.
// The sleep honors ctx, the way a real HTTP fetch would.
type slowScraper struct {
	delay  time.Duration
	record models.JobRecord
}

func (s *slowScraper) Type() models.SourceType { return models.SourceTypeHTML }

func (s *slowScraper) FetchJob(ctx context.Context, url string) (*models.JobRecord, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.delay):
	}
	record := s.record
	record.URL = url
	return &record, nil
}

func (s *slowScraper) ListJobs(context.Context, *models.Source) ([]models.Listing, error) {
	return nil, nil
}

type stubRegistry struct {
	scraper interfaces.Scraper
}

func (r stubRegistry) For(models.SourceType) (interfaces.Scraper, bool) { return r.scraper, true }

type slowAI struct {
	delay    time.Duration
	response string
}

func (a *slowAI) Analyze(ctx context.Context, _ string, _ interfaces.Tier, _ map[string]interface{}) (json.RawMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(a.delay):
	}
	return json.RawMessage(a.response), nil
}

type stubFetcher struct{}

func (stubFetcher) Get(context.Context, string) ([]byte, string, error) {
	return nil, "", errors.New("fetcher not used")
}

// ---------------------------------------------------------------------

const scoringJSON = `{"score": 95, "matched_skills": ["go"], "missing_skills": [], "summary": "Strong fit", "highlights": [], "keywords": ["go"]}`

func remoteRecord() models.JobRecord {
	return models.JobRecord{
		Title:       "Senior Go Engineer",
		CompanyName: "Initech",
		Location:    "Remote",
		Remote:      true,
		Seniority:   "senior",
		RoleType:    "permanent",
		Skills:      []string{"go"},
		Description: "Build Go services.",
	}
}

func testPool(t *testing.T, jobTimeout string, scraper *slowScraper, ai *slowAI) (*Pool, *queue.Manager, *memQueue) {
	t.Helper()
	logger := arbor.NewLogger()

	cfg := common.NewDefaultConfig()
	cfg.Queue.Timeouts.Job = jobTimeout
	watcher := common.NewConfigWatcher(cfg, "", logger)

	storage := &memStorage{queue: newMemQueue(), matches: &memMatches{}}
	queueManager := queue.NewManager(storage.queue, watcher, logger)
	dedupService := dedup.NewService(storage.queue, storage.matches, logger)
	healthTracker := health.NewTracker(stubSources{}, stubEvents{}, logger)

	engine := pipeline.NewEngine(queueManager, storage, stubRegistry{scraper}, stubFetcher{}, ai, dedupService, healthTracker, watcher, logger)
	return NewPool(queueManager, engine, watcher, logger), queueManager, storage.queue
}

// Scrape and analyze each sleep for most of the job budget; with a
// fresh timeout per stage the item still completes.
func TestRunItemTimesOutPerStageNotPerItem(t *testing.T) {
	scraper := &slowScraper{delay: 150 * time.Millisecond, record: remoteRecord()}
	ai := &slowAI{delay: 150 * time.Millisecond, response: scoringJSON}
	pool, manager, storage := testPool(t, "250ms", scraper, ai)

	ctx := context.Background()
	_, err := manager.SubmitRoot(ctx, models.ItemTypeJob, "https://jobs.example.com/postings/1")
	require.NoError(t, err)

	item, err := manager.Claim(ctx)
	require.NoError(t, err)

	pool.runItem(item)

	assert.Equal(t, models.StatusSuccess, item.Status)
	stored, err := storage.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, stored.Status)
}

// A stage that genuinely overruns its budget surfaces a deadline error,
// which counts against the retry budget instead of failing outright.
func TestRunItemStageTimeoutRequeues(t *testing.T) {
	scraper := &slowScraper{delay: 2 * time.Second, record: remoteRecord()}
	ai := &slowAI{response: scoringJSON}
	pool, manager, storage := testPool(t, "100ms", scraper, ai)

	ctx := context.Background()
	_, err := manager.SubmitRoot(ctx, models.ItemTypeJob, "https://jobs.example.com/postings/2")
	require.NoError(t, err)

	item, err := manager.Claim(ctx)
	require.NoError(t, err)

	pool.runItem(item)

	stored, err := storage.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.True(t, stored.ClaimedAt.IsZero())
}

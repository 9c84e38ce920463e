package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// memQueue is an in-memory QueueStorage with the same claim semantics
// as the persistent implementation.
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
	var oldest *models.WorkItem
	for _, item := range q.items {
		claimable := item.Status == models.StatusPending ||
			(item.Status == models.StatusProcessing && item.ClaimedAt.Before(staleBefore))
		if !claimable {
			continue
		}
		if oldest == nil || item.CreatedAt.Before(oldest.CreatedAt) {
			oldest = item
		}
	}
	if oldest == nil {
		return nil, interfaces.ErrNoItem
	}
	oldest.MarkProcessing(time.Now())
	copied := *oldest
	return &copied, nil
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

func testManager(storage interfaces.QueueStorage) *Manager {
	logger := arbor.NewLogger()
	watcher := common.NewConfigWatcher(common.NewDefaultConfig(), "", logger)
	return NewManager(storage, watcher, logger)
}

func TestSubmitRootMintsLineage(t *testing.T) {
	manager := testManager(newMemQueue())

	item, err := manager.SubmitRoot(context.Background(), models.ItemTypeJob, "https://Example.com/jobs/1/")
	require.NoError(t, err)

	assert.NotEmpty(t, item.ID)
	assert.NotEmpty(t, item.TrackingID)
	assert.Equal(t, "https://example.com/jobs/1", item.URL)
	assert.Equal(t, models.StatusPending, item.Status)
	assert.Empty(t, item.AncestryChain)
	assert.Equal(t, 0, item.SpawnDepth)
	assert.Equal(t, 10, item.MaxSpawnDepth)
}

func TestSpawnInheritsLineage(t *testing.T) {
	manager := testManager(newMemQueue())
	ctx := context.Background()

	parent, err := manager.SubmitRoot(ctx, models.ItemTypeJob, "https://example.com/jobs/1")
	require.NoError(t, err)

	child, refusal, err := manager.Spawn(ctx, parent, "https://example.com/about", models.ItemTypeCompany)
	require.NoError(t, err)
	require.Empty(t, refusal)

	assert.Equal(t, parent.TrackingID, child.TrackingID)
	assert.Equal(t, []string{parent.ID}, child.AncestryChain)
	assert.Equal(t, 1, child.SpawnDepth)
	assert.Equal(t, parent.MaxSpawnDepth, child.MaxSpawnDepth)
}

func TestSpawnRefusesDepthExceeded(t *testing.T) {
	manager := testManager(newMemQueue())
	ctx := context.Background()

	parent, err := manager.SubmitRoot(ctx, models.ItemTypeJob, "https://example.com/depth/0")
	require.NoError(t, err)

	// Chain of 10 spawns succeeds; the 11th is refused
	current := parent
	for i := 1; i <= 10; i++ {
		child, refusal, err := manager.Spawn(ctx, current, fmt.Sprintf("https://example.com/depth/%d", i), models.ItemTypeJob)
		require.NoError(t, err)
		require.Empty(t, refusal, "spawn %d should be allowed", i)
		current = child
	}
	assert.Equal(t, 10, current.SpawnDepth)

	child, refusal, err := manager.Spawn(ctx, current, "https://example.com/depth/11", models.ItemTypeJob)
	require.NoError(t, err)
	assert.Nil(t, child)
	assert.Equal(t, RefusalDepthExceeded, refusal)
}

func TestSpawnRefusesCycle(t *testing.T) {
	manager := testManager(newMemQueue())
	ctx := context.Background()

	rootURL := "https://example.com/jobs/a"
	root, err := manager.SubmitRoot(ctx, models.ItemTypeJob, rootURL)
	require.NoError(t, err)

	discovery, refusal, err := manager.Spawn(ctx, root, "https://example.com/sources/s", models.ItemTypeSourceDiscovery)
	require.NoError(t, err)
	require.Empty(t, refusal)

	// The discovery item tries to spawn a JOB back at the root's URL
	child, refusal, err := manager.Spawn(ctx, discovery, rootURL, models.ItemTypeJob)
	require.NoError(t, err)
	assert.Nil(t, child)
	assert.Equal(t, RefusalCycle, refusal)
}

func TestSpawnCycleIsTypeSensitive(t *testing.T) {
	manager := testManager(newMemQueue())
	ctx := context.Background()

	root, err := manager.SubmitRoot(ctx, models.ItemTypeJob, "https://example.com/jobs/a")
	require.NoError(t, err)

	// Same URL but a different type is not a cycle
	child, refusal, err := manager.Spawn(ctx, root, "https://example.com/jobs/a", models.ItemTypeCompany)
	require.NoError(t, err)
	assert.Empty(t, refusal)
	assert.NotNil(t, child)
}

func TestSpawnRefusesAlreadyQueued(t *testing.T) {
	manager := testManager(newMemQueue())
	ctx := context.Background()

	parent, err := manager.SubmitRoot(ctx, models.ItemTypeScrape, "https://example.com/board")
	require.NoError(t, err)

	first, refusal, err := manager.Spawn(ctx, parent, "https://example.com/jobs/7", models.ItemTypeJob)
	require.NoError(t, err)
	require.Empty(t, refusal)
	require.NotNil(t, first)

	dup, refusal, err := manager.Spawn(ctx, parent, "https://example.com/jobs/7?utm_source=feed", models.ItemTypeJob)
	require.NoError(t, err)
	assert.Nil(t, dup)
	assert.Equal(t, RefusalAlreadyQueued, refusal)
}

func TestSpawnRefusesAlreadyDone(t *testing.T) {
	storage := newMemQueue()
	manager := testManager(storage)
	ctx := context.Background()

	parent, err := manager.SubmitRoot(ctx, models.ItemTypeScrape, "https://example.com/board")
	require.NoError(t, err)

	child, refusal, err := manager.Spawn(ctx, parent, "https://example.com/jobs/7", models.ItemTypeJob)
	require.NoError(t, err)
	require.Empty(t, refusal)

	child.MarkSuccess("done")
	require.NoError(t, storage.Save(ctx, child))

	dup, refusal, err := manager.Spawn(ctx, parent, "https://example.com/jobs/7", models.ItemTypeJob)
	require.NoError(t, err)
	assert.Nil(t, dup)
	assert.Equal(t, RefusalAlreadyDone, refusal)
}

func TestClaimReturnsErrNoItemOnEmptyQueue(t *testing.T) {
	manager := testManager(newMemQueue())

	_, err := manager.Claim(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrNoItem)
}

func TestClaimFailsInvalidItem(t *testing.T) {
	storage := newMemQueue()
	manager := testManager(storage)
	ctx := context.Background()

	broken := &models.WorkItem{
		ID:            "item_broken",
		Type:          models.ItemTypeJob,
		URL:           "https://example.com/jobs/1",
		URLHash:       common.MustURLHash("https://example.com/jobs/1"),
		Status:        models.StatusPending,
		TrackingID:    "trk_x",
		AncestryChain: []string{"item_ghost"},
		SpawnDepth:    3, // violates depth == len(chain)
		MaxSpawnDepth: 10,
		CreatedAt:     time.Now(),
	}
	require.NoError(t, storage.Save(ctx, broken))

	_, err := manager.Claim(ctx)
	assert.ErrorIs(t, err, interfaces.ErrNoItem)

	stored, err := storage.Get(ctx, "item_broken")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "lineage invariant")
}

func TestFailOrRetryTransientRequeues(t *testing.T) {
	storage := newMemQueue()
	manager := testManager(storage)
	ctx := context.Background()

	item, err := manager.SubmitRoot(ctx, models.ItemTypeJob, "https://example.com/jobs/1")
	require.NoError(t, err)
	item.MarkProcessing(time.Now())

	require.NoError(t, manager.FailOrRetry(ctx, item, common.Transient(fmt.Errorf("connection reset"))))

	stored, err := storage.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.True(t, stored.ClaimedAt.IsZero())
}

func TestFailOrRetryStageTimeoutRequeues(t *testing.T) {
	storage := newMemQueue()
	manager := testManager(storage)
	ctx := context.Background()

	item, err := manager.SubmitRoot(ctx, models.ItemTypeJob, "https://example.com/jobs/1")
	require.NoError(t, err)
	item.MarkProcessing(time.Now())

	// A stage deadline surfaces as a wrapped context error, not a
	// marked-transient one; it still counts against the retry budget
	stageErr := fmt.Errorf("job analyze failed: %w", context.DeadlineExceeded)
	require.NoError(t, manager.FailOrRetry(ctx, item, stageErr))

	stored, err := storage.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
}

func TestFailOrRetryExhaustedBudgetFails(t *testing.T) {
	storage := newMemQueue()
	manager := testManager(storage)
	ctx := context.Background()

	item, err := manager.SubmitRoot(ctx, models.ItemTypeJob, "https://example.com/jobs/1")
	require.NoError(t, err)
	item.RetryCount = item.MaxRetries

	require.NoError(t, manager.FailOrRetry(ctx, item, common.Transient(fmt.Errorf("connection reset"))))

	stored, err := storage.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
}

func TestFailOrRetryPermanentFailsImmediately(t *testing.T) {
	storage := newMemQueue()
	manager := testManager(storage)
	ctx := context.Background()

	item, err := manager.SubmitRoot(ctx, models.ItemTypeJob, "https://example.com/jobs/1")
	require.NoError(t, err)

	require.NoError(t, manager.FailOrRetry(ctx, item, fmt.Errorf("404 not found")))

	stored, err := storage.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)
}

func TestClaimRecoversStaleClaim(t *testing.T) {
	storage := newMemQueue()
	manager := testManager(storage)
	ctx := context.Background()

	item, err := manager.SubmitRoot(ctx, models.ItemTypeJob, "https://example.com/jobs/1")
	require.NoError(t, err)

	// Simulate a worker that died mid-stage 20 minutes ago
	item.MarkProcessing(time.Now().Add(-20 * time.Minute))
	require.NoError(t, storage.Save(ctx, item))

	claimed, err := manager.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, item.ID, claimed.ID)
	assert.Equal(t, models.StatusProcessing, claimed.Status)
}

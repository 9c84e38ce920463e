package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// QueueStorage implements the work-queue collection for Badger
type QueueStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewQueueStorage creates a new QueueStorage instance
func NewQueueStorage(db *BadgerDB, logger arbor.ILogger) interfaces.QueueStorage {
	return &QueueStorage{
		db:     db,
		logger: logger,
	}
}

func (s *QueueStorage) Save(ctx context.Context, item *models.WorkItem) error {
	if item.ID == "" {
		return fmt.Errorf("work item ID is required")
	}
	item.UpdatedAt = time.Now()
	if err := s.db.Store().Upsert(item.ID, item); err != nil {
		return fmt.Errorf("failed to save work item: %w", err)
	}
	return nil
}

func (s *QueueStorage) Get(ctx context.Context, id string) (*models.WorkItem, error) {
	var item models.WorkItem
	if err := s.db.Store().Get(id, &item); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("work item not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get work item: %w", err)
	}
	return &item, nil
}

func (s *QueueStorage) GetBatch(ctx context.Context, ids []string) ([]*models.WorkItem, error) {
	items := make([]*models.WorkItem, 0, len(ids))
	for _, id := range ids {
		var item models.WorkItem
		if err := s.db.Store().Get(id, &item); err != nil {
			if err == badgerhold.ErrNotFound {
				continue
			}
			return nil, fmt.Errorf("failed to get work item %s: %w", id, err)
		}
		items = append(items, &item)
	}
	return items, nil
}

// Claim selects the oldest claimable item and marks it PROCESSING in a
// single store transaction. An item is claimable when PENDING, or when
// PROCESSING with a claim older than staleBefore (abandoned by a dead
// worker).
func (s *QueueStorage) Claim(ctx context.Context, staleBefore time.Time) (*models.WorkItem, error) {
	var claimed *models.WorkItem
	now := time.Now()

	query := badgerhold.Where("Status").Eq(models.StatusPending).
		Or(badgerhold.Where("Status").Eq(models.StatusProcessing).
			And("ClaimedAt").Lt(staleBefore)).
		SortBy("CreatedAt").Limit(1)

	err := s.db.Store().UpdateMatching(&models.WorkItem{}, query, func(record interface{}) error {
		item, ok := record.(*models.WorkItem)
		if !ok {
			return fmt.Errorf("unexpected record type %T", record)
		}
		item.MarkProcessing(now)
		copied := *item
		claimed = &copied
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim work item: %w", err)
	}
	if claimed == nil {
		return nil, interfaces.ErrNoItem
	}
	return claimed, nil
}

func (s *QueueStorage) ExistsInLineage(ctx context.Context, trackingID, urlHash string, itemType models.ItemType, statuses []models.ItemStatus) (bool, error) {
	statusValues := make([]interface{}, len(statuses))
	for i, status := range statuses {
		statusValues[i] = status
	}

	query := badgerhold.Where("TrackingID").Eq(trackingID).
		And("URLHash").Eq(urlHash).
		And("Type").Eq(itemType).
		And("Status").In(statusValues...)

	count, err := s.db.Store().Count(&models.WorkItem{}, query)
	if err != nil {
		return false, fmt.Errorf("failed to query lineage: %w", err)
	}
	return count > 0, nil
}

func (s *QueueStorage) ExistingURLHashes(ctx context.Context, hashes []string, itemType models.ItemType) (map[string]bool, error) {
	hashValues := make([]interface{}, len(hashes))
	for i, hash := range hashes {
		hashValues[i] = hash
	}

	var items []models.WorkItem
	query := badgerhold.Where("URLHash").In(hashValues...).And("Type").Eq(itemType)
	if err := s.db.Store().Find(&items, query); err != nil {
		return nil, fmt.Errorf("failed to query url hashes: %w", err)
	}

	result := make(map[string]bool, len(hashes))
	for _, hash := range hashes {
		result[hash] = false
	}
	for _, item := range items {
		result[item.URLHash] = true
	}
	return result, nil
}

func (s *QueueStorage) CountByStatus(ctx context.Context) (map[models.ItemStatus]int, error) {
	counts := make(map[models.ItemStatus]int)
	for _, status := range []models.ItemStatus{
		models.StatusPending, models.StatusProcessing, models.StatusSuccess,
		models.StatusFailed, models.StatusSkipped, models.StatusFiltered,
	} {
		count, err := s.db.Store().Count(&models.WorkItem{}, badgerhold.Where("Status").Eq(status))
		if err != nil {
			return nil, fmt.Errorf("failed to count status %s: %w", status, err)
		}
		counts[status] = int(count)
	}
	return counts, nil
}

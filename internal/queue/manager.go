// Package queue owns work-item lifecycle: external submission, the
// safe-spawn gate that protects lineages from loops and runaway depth,
// worker claiming, and terminal bookkeeping.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// Spawn refusal reasons. A refusal is expected engine behavior, logged
// at the parent stage; the parent continues successfully.
const (
	RefusalDepthExceeded = "DEPTH_EXCEEDED"
	RefusalCycle         = "CYCLE"
	RefusalAlreadyQueued = "ALREADY_QUEUED"
	RefusalAlreadyDone   = "ALREADY_DONE"
)

// Manager is the single write path to the work queue
type Manager struct {
	storage interfaces.QueueStorage
	config  *common.ConfigWatcher
	logger  arbor.ILogger
	now     func() time.Time
}

func NewManager(storage interfaces.QueueStorage, config *common.ConfigWatcher, logger arbor.ILogger) *Manager {
	return &Manager{
		storage: storage,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// SubmitRoot creates a lineage root from an external {type, url}
// submission: fresh tracking ID, empty ancestry, depth zero.
func (m *Manager) SubmitRoot(ctx context.Context, itemType models.ItemType, rawURL string) (*models.WorkItem, error) {
	normalized, err := common.NormalizeURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid submission URL: %w", err)
	}
	cfg := m.config.Current()

	now := m.now()
	item := &models.WorkItem{
		ID:            common.NewItemID(),
		Type:          itemType,
		URL:           normalized,
		URLHash:       common.MustURLHash(normalized),
		Status:        models.StatusPending,
		MaxRetries:    cfg.Queue.MaxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
		TrackingID:    common.NewTrackingID(),
		AncestryChain: []string{},
		SpawnDepth:    0,
		MaxSpawnDepth: cfg.Queue.MaxSpawnDepth,
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	if err := m.storage.Save(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to save root item: %w", err)
	}

	m.logger.Info().
		Str("item_id", item.ID).
		Str("type", string(itemType)).
		Str("tracking_id", item.TrackingID).
		Msg("Root work item submitted")
	return item, nil
}

// CanSpawn applies the four spawn gates in order: depth, cycle,
// pending-duplicate, success-duplicate. An empty refusal means the
// spawn is allowed.
func (m *Manager) CanSpawn(ctx context.Context, parent *models.WorkItem, targetURL string, targetType models.ItemType) (string, error) {
	if parent.SpawnDepth+1 > parent.MaxSpawnDepth {
		return RefusalDepthExceeded, nil
	}

	normalized, err := common.NormalizeURL(targetURL)
	if err != nil {
		return "", fmt.Errorf("invalid spawn target URL: %w", err)
	}
	targetHash := common.MustURLHash(normalized)

	inAncestry, err := m.ancestryContains(ctx, parent, targetHash, targetType)
	if err != nil {
		return "", err
	}
	if inAncestry {
		return RefusalCycle, nil
	}

	queued, err := m.storage.ExistsInLineage(ctx, parent.TrackingID, targetHash, targetType, models.NonTerminalStatuses)
	if err != nil {
		return "", fmt.Errorf("pending-duplicate check failed: %w", err)
	}
	if queued {
		return RefusalAlreadyQueued, nil
	}

	done, err := m.storage.ExistsInLineage(ctx, parent.TrackingID, targetHash, targetType, []models.ItemStatus{models.StatusSuccess})
	if err != nil {
		return "", fmt.Errorf("success-duplicate check failed: %w", err)
	}
	if done {
		return RefusalAlreadyDone, nil
	}

	return "", nil
}

// ancestryContains walks the parent plus its ancestor set looking for
// the (url, type) pair that would close a cycle.
func (m *Manager) ancestryContains(ctx context.Context, parent *models.WorkItem, targetHash string, targetType models.ItemType) (bool, error) {
	if parent.URLHash == targetHash && parent.Type == targetType {
		return true, nil
	}
	if len(parent.AncestryChain) == 0 {
		return false, nil
	}

	ancestors, err := m.storage.GetBatch(ctx, parent.AncestryChain)
	if err != nil {
		return false, fmt.Errorf("failed to load ancestry chain: %w", err)
	}
	for _, ancestor := range ancestors {
		if ancestor.URLHash == targetHash && ancestor.Type == targetType {
			return true, nil
		}
	}
	return false, nil
}

// Spawn creates a child work item under the parent's lineage. A refusal
// returns (nil, reason, nil): the caller logs it and moves on.
func (m *Manager) Spawn(ctx context.Context, parent *models.WorkItem, targetURL string, targetType models.ItemType) (*models.WorkItem, string, error) {
	refusal, err := m.CanSpawn(ctx, parent, targetURL, targetType)
	if err != nil {
		return nil, "", err
	}
	if refusal != "" {
		m.logger.Info().
			Str("parent_id", parent.ID).
			Str("target_url", targetURL).
			Str("target_type", string(targetType)).
			Str("refusal", refusal).
			Msg("Spawn refused")
		return nil, refusal, nil
	}

	normalized, err := common.NormalizeURL(targetURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid spawn target URL: %w", err)
	}

	chain := make([]string, 0, len(parent.AncestryChain)+1)
	chain = append(chain, parent.AncestryChain...)
	chain = append(chain, parent.ID)

	now := m.now()
	child := &models.WorkItem{
		ID:            common.NewItemID(),
		Type:          targetType,
		URL:           normalized,
		URLHash:       common.MustURLHash(normalized),
		Status:        models.StatusPending,
		MaxRetries:    m.config.Current().Queue.MaxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
		TrackingID:    parent.TrackingID,
		AncestryChain: chain,
		SpawnDepth:    parent.SpawnDepth + 1,
		MaxSpawnDepth: parent.MaxSpawnDepth,
	}
	if err := child.Validate(); err != nil {
		return nil, "", err
	}
	if err := m.storage.Save(ctx, child); err != nil {
		return nil, "", fmt.Errorf("failed to save spawned item: %w", err)
	}

	m.logger.Info().
		Str("item_id", child.ID).
		Str("parent_id", parent.ID).
		Str("type", string(targetType)).
		Int("spawn_depth", child.SpawnDepth).
		Msg("Work item spawned")
	return child, "", nil
}

// Claim hands one claimable item to a worker, honoring the stale-claim
// recovery window. Returns interfaces.ErrNoItem on an empty queue.
func (m *Manager) Claim(ctx context.Context) (*models.WorkItem, error) {
	staleBefore := m.now().Add(-m.config.Current().Queue.StaleClaimDuration())
	item, err := m.storage.Claim(ctx, staleBefore)
	if err != nil {
		return nil, err
	}

	// Invariant violations observed on read fail the item, no repair
	if err := item.Validate(); err != nil {
		item.MarkFailed(err.Error())
		if saveErr := m.storage.Save(ctx, item); saveErr != nil {
			return nil, fmt.Errorf("failed to fail invalid item: %w", saveErr)
		}
		m.logger.Error().Err(err).Str("item_id", item.ID).Msg("Claimed item failed lineage validation")
		return nil, interfaces.ErrNoItem
	}
	return item, nil
}

// Complete persists the item's final state after a stage run
func (m *Manager) Complete(ctx context.Context, item *models.WorkItem) error {
	if err := m.storage.Save(ctx, item); err != nil {
		return fmt.Errorf("failed to persist work item %s: %w", item.ID, err)
	}
	return nil
}

// FailOrRetry applies the retry budget after a stage failure: transient
// failures under budget return to PENDING, everything else is FAILED.
// A stage-timeout expiry counts as transient wherever it surfaces from.
func (m *Manager) FailOrRetry(ctx context.Context, item *models.WorkItem, stageErr error) error {
	retryable := common.IsTransient(stageErr) || errors.Is(stageErr, context.DeadlineExceeded)
	if retryable && item.RetryCount < item.MaxRetries {
		item.ResetForRetry(stageErr.Error())
		m.logger.Warn().
			Str("item_id", item.ID).
			Int("retry_count", item.RetryCount).
			Err(stageErr).
			Msg("Stage failed, item requeued")
	} else {
		item.MarkFailed(stageErr.Error())
		m.logger.Warn().
			Str("item_id", item.ID).
			Err(stageErr).
			Msg("Stage failed, item terminal")
	}
	return m.Complete(ctx, item)
}

// StatusCounts reports queue population by status for the drain summary
func (m *Manager) StatusCounts(ctx context.Context) (map[models.ItemStatus]int, error) {
	return m.storage.CountByStatus(ctx)
}

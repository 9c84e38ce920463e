// -----------------------------------------------------------------------
// Work Item - the unit of queued pipeline work
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ItemType identifies which pipeline a work item belongs to
type ItemType string

const (
	ItemTypeJob             ItemType = "JOB"
	ItemTypeCompany         ItemType = "COMPANY"
	ItemTypeSourceDiscovery ItemType = "SOURCE_DISCOVERY"
	ItemTypeScrape          ItemType = "SCRAPE"
)

// ItemStatus is the work item lifecycle state. Transitions are monotone:
// PENDING -> PROCESSING -> {SUCCESS, FAILED, SKIPPED, FILTERED}; the
// terminal states are final except for explicit retry, which returns the
// item to PENDING and increments RetryCount.
type ItemStatus string

const (
	StatusPending    ItemStatus = "PENDING"
	StatusProcessing ItemStatus = "PROCESSING"
	StatusSuccess    ItemStatus = "SUCCESS"
	StatusFailed     ItemStatus = "FAILED"
	StatusSkipped    ItemStatus = "SKIPPED"
	StatusFiltered   ItemStatus = "FILTERED"
)

// Pipeline state keys. Presence of a key means that stage has completed.
const (
	StateJobData      = "job_data"
	StateFilterResult = "filter_result"
	StateMatchResult  = "match_result"
	StateSavedRef     = "saved_ref"
	StateRawPages     = "raw_pages"
	StateExtracted    = "extracted"
	StateAnalysis     = "analysis"
	StateDetected     = "detected"
	StateValidated    = "validated"
)

// PipelineState is the additive record of stage outputs on a work item.
// Keys are only ever added within a successful run, never removed.
type PipelineState map[string]json.RawMessage

// WorkItem is a single persistent row describing something to be advanced
// through a pipeline. Items are created by external submission or by
// safe-spawn from a parent stage, mutated only by the claiming worker,
// and never deleted by the engine.
type WorkItem struct {
	ID      string     `json:"id" badgerhold:"key"`
	Type    ItemType   `json:"type" badgerhold:"index"`
	URL     string     `json:"url"`
	URLHash string     `json:"url_hash" badgerhold:"index"`
	Status  ItemStatus `json:"status" badgerhold:"index"`

	PipelineState PipelineState `json:"pipeline_state"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ClaimedAt   time.Time  `json:"claimed_at,omitempty"` // Zero value means never claimed
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	ResultMessage string `json:"result_message,omitempty"`
	Error         string `json:"error,omitempty"`

	// Lineage: invariant across spawn chains. TrackingID is minted at the
	// root and inherited by every descendant; AncestryChain lists ancestor
	// item IDs root-first, excluding self; SpawnDepth == len(AncestryChain).
	TrackingID    string   `json:"tracking_id" badgerhold:"index"`
	AncestryChain []string `json:"ancestry_chain"`
	SpawnDepth    int      `json:"spawn_depth"`
	MaxSpawnDepth int      `json:"max_spawn_depth"`
}

// NonTerminalStatuses are the statuses counted by the dedup-within-lineage rule
var NonTerminalStatuses = []ItemStatus{StatusPending, StatusProcessing}

// Validate checks the lineage invariants observed on read. A violation
// fails the item rather than attempting repair.
func (w *WorkItem) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("work item ID is required")
	}
	if w.Type == "" {
		return fmt.Errorf("work item type is required")
	}
	if w.URL == "" {
		return fmt.Errorf("work item URL is required")
	}
	if w.TrackingID == "" {
		return fmt.Errorf("work item tracking ID is required")
	}
	if w.SpawnDepth != len(w.AncestryChain) {
		return fmt.Errorf("lineage invariant violated: spawn_depth=%d but ancestry chain has %d entries", w.SpawnDepth, len(w.AncestryChain))
	}
	if w.SpawnDepth > w.MaxSpawnDepth {
		return fmt.Errorf("lineage invariant violated: spawn_depth=%d exceeds max_spawn_depth=%d", w.SpawnDepth, w.MaxSpawnDepth)
	}
	return nil
}

// IsTerminal returns true once the item has reached a final status
func (w *WorkItem) IsTerminal() bool {
	switch w.Status {
	case StatusSuccess, StatusFailed, StatusSkipped, StatusFiltered:
		return true
	}
	return false
}

// HasState reports whether a stage output key is present
func (w *WorkItem) HasState(key string) bool {
	if w.PipelineState == nil {
		return false
	}
	_, ok := w.PipelineState[key]
	return ok
}

// SetState records a stage output. Outputs are additive; overwriting an
// existing key is allowed (idempotent re-run of an interrupted stage)
// but keys are never removed.
func (w *WorkItem) SetState(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal pipeline state %q: %w", key, err)
	}
	if w.PipelineState == nil {
		w.PipelineState = make(PipelineState)
	}
	w.PipelineState[key] = data
	return nil
}

// GetState unmarshals a stage output into out, returning false when absent
func (w *WorkItem) GetState(key string, out interface{}) (bool, error) {
	if w.PipelineState == nil {
		return false, nil
	}
	data, ok := w.PipelineState[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return true, fmt.Errorf("failed to unmarshal pipeline state %q: %w", key, err)
	}
	return true, nil
}

// MarkProcessing records a claim
func (w *WorkItem) MarkProcessing(now time.Time) {
	w.Status = StatusProcessing
	w.ClaimedAt = now
	w.UpdatedAt = now
}

// MarkSuccess finalizes the item
func (w *WorkItem) MarkSuccess(message string) {
	now := time.Now()
	w.Status = StatusSuccess
	w.ResultMessage = message
	w.CompletedAt = &now
	w.UpdatedAt = now
}

// MarkFailed finalizes the item with a diagnostic
func (w *WorkItem) MarkFailed(message string) {
	now := time.Now()
	w.Status = StatusFailed
	w.Error = message
	w.CompletedAt = &now
	w.UpdatedAt = now
}

// MarkFiltered records a policy rejection; not an error
func (w *WorkItem) MarkFiltered(reason string) {
	now := time.Now()
	w.Status = StatusFiltered
	w.ResultMessage = reason
	w.CompletedAt = &now
	w.UpdatedAt = now
}

// MarkSkipped records a below-threshold result; not an error
func (w *WorkItem) MarkSkipped(reason string) {
	now := time.Now()
	w.Status = StatusSkipped
	w.ResultMessage = reason
	w.CompletedAt = &now
	w.UpdatedAt = now
}

// ResetForRetry returns a failed stage to PENDING, preserving pipeline state
func (w *WorkItem) ResetForRetry(message string) {
	w.Status = StatusPending
	w.RetryCount++
	w.Error = message
	w.ClaimedAt = time.Time{}
	w.UpdatedAt = time.Now()
}

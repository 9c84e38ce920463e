package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/venari/internal/models"
)

// ErrNoItem is returned by Claim when nothing in the queue is claimable
var ErrNoItem = errors.New("no claimable item")

// QueueStorage is the work-queue collection. Claim is the only
// coordination primitive between workers: a conditional update executed
// in a single store transaction.
type QueueStorage interface {
	Save(ctx context.Context, item *models.WorkItem) error
	Get(ctx context.Context, id string) (*models.WorkItem, error)
	GetBatch(ctx context.Context, ids []string) ([]*models.WorkItem, error)

	// Claim atomically selects one claimable item (PENDING, or PROCESSING
	// with a claim older than staleBefore), marks it PROCESSING with a
	// fresh claim timestamp, and returns it. Returns ErrNoItem when the
	// queue has nothing claimable.
	Claim(ctx context.Context, staleBefore time.Time) (*models.WorkItem, error)

	// ExistsInLineage tests whether any item with the given
	// (tracking_id, url_hash, type) is in one of the statuses.
	ExistsInLineage(ctx context.Context, trackingID, urlHash string, itemType models.ItemType, statuses []models.ItemStatus) (bool, error)

	// ExistingURLHashes returns, for each hash, whether any item of the
	// given type carries it (any status, any lineage).
	ExistingURLHashes(ctx context.Context, hashes []string, itemType models.ItemType) (map[string]bool, error)

	// CountByStatus returns queue population grouped by status.
	CountByStatus(ctx context.Context) (map[models.ItemStatus]int, error)
}

// CompanyStorage is the companies collection, keyed by normalized name for upsert
type CompanyStorage interface {
	Upsert(ctx context.Context, company *models.Company) error
	Get(ctx context.Context, id string) (*models.Company, error)
	GetByNormalizedName(ctx context.Context, normalized string) (*models.Company, error)
}

// SourceStorage is the job-sources collection
type SourceStorage interface {
	Upsert(ctx context.Context, source *models.Source) error
	Get(ctx context.Context, id string) (*models.Source, error)
	FindByURLHash(ctx context.Context, urlHash string) (*models.Source, error)
	FindByCompany(ctx context.Context, companyID string) ([]*models.Source, error)
	ListEnabled(ctx context.Context) ([]*models.Source, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error

	// UpdateHealth replaces the health block of an existing source.
	// Upsert preserves health on purpose; this is the only write path
	// the health tracker uses.
	UpdateHealth(ctx context.Context, id string, health models.SourceHealth) error
}

// MatchStorage is the job-matches collection
type MatchStorage interface {
	Save(ctx context.Context, match *models.JobMatch) error
	ExistingURLHashes(ctx context.Context, hashes []string) (map[string]bool, error)
	Count(ctx context.Context) (int, error)
	CountSince(ctx context.Context, since time.Time) (int, error)
}

// ScrapeEventStorage backs the per-company rolling fairness window
type ScrapeEventStorage interface {
	Record(ctx context.Context, companyID, sourceID string, at time.Time) error
	CountSince(ctx context.Context, companyID string, since time.Time) (int, error)
}

// StorageManager aggregates the typed collections over one store
type StorageManager interface {
	Queue() QueueStorage
	Companies() CompanyStorage
	Sources() SourceStorage
	Matches() MatchStorage
	ScrapeEvents() ScrapeEventStorage
	Close() error
}

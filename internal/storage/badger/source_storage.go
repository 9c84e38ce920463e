package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// SourceStorage implements the job-sources collection for Badger
type SourceStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSourceStorage creates a new SourceStorage instance
func NewSourceStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SourceStorage {
	return &SourceStorage{
		db:     db,
		logger: logger,
	}
}

// Upsert writes the source keyed by URL hash: a source already known at
// the same URL keeps its ID and health history.
func (s *SourceStorage) Upsert(ctx context.Context, source *models.Source) error {
	if source.URLHash == "" {
		hash, err := common.URLHash(source.URL)
		if err != nil {
			return fmt.Errorf("failed to hash source URL: %w", err)
		}
		source.URLHash = hash
	}

	existing, err := s.FindByURLHash(ctx, source.URLHash)
	if err != nil {
		return err
	}
	now := time.Now()
	if existing != nil {
		source.ID = existing.ID
		source.CreatedAt = existing.CreatedAt
		source.Health = existing.Health
	} else {
		if source.ID == "" {
			source.ID = common.NewSourceID()
		}
		if source.CreatedAt.IsZero() {
			source.CreatedAt = now
		}
	}
	source.UpdatedAt = now

	if err := s.db.Store().Upsert(source.ID, source); err != nil {
		return fmt.Errorf("failed to upsert source: %w", err)
	}
	return nil
}

func (s *SourceStorage) Get(ctx context.Context, id string) (*models.Source, error) {
	var source models.Source
	if err := s.db.Store().Get(id, &source); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return &source, nil
}

func (s *SourceStorage) FindByURLHash(ctx context.Context, urlHash string) (*models.Source, error) {
	var sources []models.Source
	if err := s.db.Store().Find(&sources, badgerhold.Where("URLHash").Eq(urlHash).Limit(1)); err != nil {
		return nil, fmt.Errorf("failed to find source by url: %w", err)
	}
	if len(sources) == 0 {
		return nil, nil
	}
	return &sources[0], nil
}

func (s *SourceStorage) FindByCompany(ctx context.Context, companyID string) ([]*models.Source, error) {
	var sources []models.Source
	if err := s.db.Store().Find(&sources, badgerhold.Where("CompanyID").Eq(companyID)); err != nil {
		return nil, fmt.Errorf("failed to find sources by company: %w", err)
	}
	result := make([]*models.Source, len(sources))
	for i := range sources {
		result[i] = &sources[i]
	}
	return result, nil
}

func (s *SourceStorage) ListEnabled(ctx context.Context) ([]*models.Source, error) {
	var sources []models.Source
	if err := s.db.Store().Find(&sources, badgerhold.Where("Enabled").Eq(true)); err != nil {
		return nil, fmt.Errorf("failed to list enabled sources: %w", err)
	}
	result := make([]*models.Source, len(sources))
	for i := range sources {
		result[i] = &sources[i]
	}
	return result, nil
}

// UpdateHealth replaces the source's health block in place
func (s *SourceStorage) UpdateHealth(ctx context.Context, id string, health models.SourceHealth) error {
	var source models.Source
	if err := s.db.Store().Get(id, &source); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("source not found: %s", id)
		}
		return fmt.Errorf("failed to get source: %w", err)
	}

	source.Health = health
	source.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(source.ID, &source); err != nil {
		return fmt.Errorf("failed to update source health: %w", err)
	}
	return nil
}

// SetEnabled is the operator toggle; re-enabling clears the failure streak
// so the source re-enters rotation cleanly.
func (s *SourceStorage) SetEnabled(ctx context.Context, id string, enabled bool) error {
	var source models.Source
	if err := s.db.Store().Get(id, &source); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("source not found: %s", id)
		}
		return fmt.Errorf("failed to get source: %w", err)
	}

	source.Enabled = enabled
	if enabled {
		source.Health.ConsecutiveFailures = 0
	}
	source.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(source.ID, &source); err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}
	return nil
}

package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ScrapeEventStorage implements the scrape-events collection backing the
// per-company rotation fairness window
type ScrapeEventStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewScrapeEventStorage creates a new ScrapeEventStorage instance
func NewScrapeEventStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ScrapeEventStorage {
	return &ScrapeEventStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ScrapeEventStorage) Record(ctx context.Context, companyID, sourceID string, at time.Time) error {
	event := models.ScrapeEvent{
		ID:        "evt_" + uuid.New().String(),
		CompanyID: companyID,
		SourceID:  sourceID,
		At:        at,
	}
	if err := s.db.Store().Insert(event.ID, &event); err != nil {
		return fmt.Errorf("failed to record scrape event: %w", err)
	}
	return nil
}

func (s *ScrapeEventStorage) CountSince(ctx context.Context, companyID string, since time.Time) (int, error) {
	count, err := s.db.Store().Count(&models.ScrapeEvent{},
		badgerhold.Where("CompanyID").Eq(companyID).And("At").Ge(since))
	if err != nil {
		return 0, fmt.Errorf("failed to count scrape events: %w", err)
	}
	return int(count), nil
}

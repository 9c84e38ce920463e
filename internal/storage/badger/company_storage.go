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

// CompanyStorage implements the companies collection for Badger
type CompanyStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCompanyStorage creates a new CompanyStorage instance
func NewCompanyStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CompanyStorage {
	return &CompanyStorage{
		db:     db,
		logger: logger,
	}
}

// Upsert writes the company keyed by normalized name: an existing
// document with the same normalized name is updated in place,
// preserving its ID and creation time.
func (s *CompanyStorage) Upsert(ctx context.Context, company *models.Company) error {
	if company.NormalizedName == "" {
		company.NormalizedName = models.NormalizeCompanyName(company.Name)
	}
	if company.NormalizedName == "" {
		return fmt.Errorf("company name is required")
	}

	existing, err := s.GetByNormalizedName(ctx, company.NormalizedName)
	if err != nil {
		return err
	}
	now := time.Now()
	if existing != nil {
		company.ID = existing.ID
		company.CreatedAt = existing.CreatedAt
	} else {
		if company.ID == "" {
			company.ID = common.NewCompanyID()
		}
		if company.CreatedAt.IsZero() {
			company.CreatedAt = now
		}
	}
	company.UpdatedAt = now

	if err := s.db.Store().Upsert(company.ID, company); err != nil {
		return fmt.Errorf("failed to upsert company: %w", err)
	}
	return nil
}

func (s *CompanyStorage) Get(ctx context.Context, id string) (*models.Company, error) {
	var company models.Company
	if err := s.db.Store().Get(id, &company); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return &company, nil
}

func (s *CompanyStorage) GetByNormalizedName(ctx context.Context, normalized string) (*models.Company, error) {
	var companies []models.Company
	if err := s.db.Store().Find(&companies, badgerhold.Where("NormalizedName").Eq(normalized).Limit(1)); err != nil {
		return nil, fmt.Errorf("failed to find company by name: %w", err)
	}
	if len(companies) == 0 {
		return nil, nil
	}
	return &companies[0], nil
}

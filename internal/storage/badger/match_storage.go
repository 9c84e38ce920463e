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

// MatchStorage implements the job-matches collection for Badger
type MatchStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewMatchStorage creates a new MatchStorage instance
func NewMatchStorage(db *BadgerDB, logger arbor.ILogger) interfaces.MatchStorage {
	return &MatchStorage{
		db:     db,
		logger: logger,
	}
}

func (s *MatchStorage) Save(ctx context.Context, match *models.JobMatch) error {
	if match.ID == "" {
		match.ID = common.NewMatchID()
	}
	now := time.Now()
	if match.CreatedAt.IsZero() {
		match.CreatedAt = now
	}
	match.UpdatedAt = now

	if err := s.db.Store().Upsert(match.ID, match); err != nil {
		return fmt.Errorf("failed to save job match: %w", err)
	}
	return nil
}

func (s *MatchStorage) ExistingURLHashes(ctx context.Context, hashes []string) (map[string]bool, error) {
	hashValues := make([]interface{}, len(hashes))
	for i, hash := range hashes {
		hashValues[i] = hash
	}

	var matches []models.JobMatch
	if err := s.db.Store().Find(&matches, badgerhold.Where("URLHash").In(hashValues...)); err != nil {
		return nil, fmt.Errorf("failed to query match url hashes: %w", err)
	}

	result := make(map[string]bool, len(hashes))
	for _, hash := range hashes {
		result[hash] = false
	}
	for _, match := range matches {
		result[match.URLHash] = true
	}
	return result, nil
}

func (s *MatchStorage) Count(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.JobMatch{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count matches: %w", err)
	}
	return int(count), nil
}

func (s *MatchStorage) CountSince(ctx context.Context, since time.Time) (int, error) {
	count, err := s.db.Store().Count(&models.JobMatch{}, badgerhold.Where("CreatedAt").Ge(since))
	if err != nil {
		return 0, fmt.Errorf("failed to count recent matches: %w", err)
	}
	return int(count), nil
}

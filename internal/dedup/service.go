package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/models"
)

// queueIndex and matchIndex are the membership slices of the storage
// interfaces; keeping them narrow keeps the service testable.
type queueIndex interface {
	ExistingURLHashes(ctx context.Context, hashes []string, itemType models.ItemType) (map[string]bool, error)
}

type matchIndex interface {
	ExistingURLHashes(ctx context.Context, hashes []string) (map[string]bool, error)
}

const (
	// chunkSize caps set-membership store queries
	chunkSize = 10
	// cacheTTL bounds staleness of cached verdicts
	cacheTTL = 5 * time.Minute
	// cacheCapacity bounds per-process memory
	cacheCapacity = 10000
)

// Service tests "already known" for candidate URLs against both the
// work queue and the job-matches store.
type Service struct {
	queue   queueIndex
	matches matchIndex
	cache   *lruCache
	logger  arbor.ILogger
}

// NewService creates a dedup service with the standard cache bounds
func NewService(queue queueIndex, matches matchIndex, logger arbor.ILogger) *Service {
	return &Service{
		queue:   queue,
		matches: matches,
		cache:   newLRUCache(cacheCapacity, cacheTTL),
		logger:  logger,
	}
}

// BatchExists normalizes each URL and reports whether it is already
// known for the given item type. Store errors invalidate the affected
// cache entries and propagate: the caller must treat an error as
// "unknown", never as "known".
func (s *Service) BatchExists(ctx context.Context, urls []string, itemType models.ItemType) (map[string]bool, error) {
	result := make(map[string]bool, len(urls))
	hashByURL := make(map[string]string, len(urls))
	var missHashes []string

	for _, raw := range urls {
		hash, err := common.URLHash(raw)
		if err != nil {
			// Unparseable URLs are not dedup candidates; report unknown
			s.logger.Debug().Err(err).Str("url", raw).Msg("Skipping unparseable URL in dedup")
			result[raw] = false
			continue
		}
		hashByURL[raw] = hash

		if known, hit := s.cache.get(cacheKey(hash, itemType)); hit {
			result[raw] = known
			continue
		}
		missHashes = append(missHashes, hash)
	}

	if len(missHashes) == 0 {
		return result, nil
	}

	verdicts := make(map[string]bool, len(missHashes))
	for start := 0; start < len(missHashes); start += chunkSize {
		end := start + chunkSize
		if end > len(missHashes) {
			end = len(missHashes)
		}
		chunk := missHashes[start:end]

		inQueue, err := s.queue.ExistingURLHashes(ctx, chunk, itemType)
		if err != nil {
			s.invalidateChunk(chunk, itemType)
			return nil, fmt.Errorf("dedup queue query failed: %w", err)
		}
		inStore, err := s.matches.ExistingURLHashes(ctx, chunk)
		if err != nil {
			s.invalidateChunk(chunk, itemType)
			return nil, fmt.Errorf("dedup store query failed: %w", err)
		}

		for _, hash := range chunk {
			known := inQueue[hash] || inStore[hash]
			verdicts[hash] = known
			s.cache.set(cacheKey(hash, itemType), known)
		}
	}

	for raw, hash := range hashByURL {
		if _, done := result[raw]; done {
			continue
		}
		result[raw] = verdicts[hash]
	}
	return result, nil
}

func (s *Service) invalidateChunk(hashes []string, itemType models.ItemType) {
	keys := make([]string, len(hashes))
	for i, hash := range hashes {
		keys[i] = cacheKey(hash, itemType)
	}
	s.cache.invalidate(keys)
}

func cacheKey(hash string, itemType models.ItemType) string {
	return string(itemType) + ":" + hash
}

package health

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/models"
)

type fakeSourceStore struct {
	health map[string]models.SourceHealth
}

func (f *fakeSourceStore) Upsert(context.Context, *models.Source) error { return nil }
func (f *fakeSourceStore) Get(context.Context, string) (*models.Source, error) {
	return nil, nil
}
func (f *fakeSourceStore) FindByURLHash(context.Context, string) (*models.Source, error) {
	return nil, nil
}
func (f *fakeSourceStore) FindByCompany(context.Context, string) ([]*models.Source, error) {
	return nil, nil
}
func (f *fakeSourceStore) ListEnabled(context.Context) ([]*models.Source, error) { return nil, nil }
func (f *fakeSourceStore) SetEnabled(context.Context, string, bool) error        { return nil }
func (f *fakeSourceStore) UpdateHealth(_ context.Context, id string, health models.SourceHealth) error {
	if f.health == nil {
		f.health = make(map[string]models.SourceHealth)
	}
	f.health[id] = health
	return nil
}

type fakeEventStore struct {
	events []string
}

func (f *fakeEventStore) Record(_ context.Context, companyID, _ string, _ time.Time) error {
	f.events = append(f.events, companyID)
	return nil
}
func (f *fakeEventStore) CountSince(context.Context, string, time.Time) (int, error) {
	return 0, nil
}

func newTestTracker(sources *fakeSourceStore, events *fakeEventStore, now time.Time) *Tracker {
	tracker := NewTracker(sources, events, arbor.NewLogger())
	tracker.now = func() time.Time { return now }
	return tracker
}

func TestComputeHealthScoreNeverScraped(t *testing.T) {
	score := ComputeHealthScore(models.SourceHealth{}, time.Now())
	assert.Equal(t, 1.0, score)
}

func TestComputeHealthScorePerfectRecentSource(t *testing.T) {
	now := time.Now()
	health := models.SourceHealth{
		LastScrapedAt: &now,
		SuccessCount:  10,
	}
	score := ComputeHealthScore(health, now)
	assert.InDelta(t, 1.0, score, 0.001)
}

func TestComputeHealthScoreStreakPenalty(t *testing.T) {
	now := time.Now()
	health := models.SourceHealth{
		LastScrapedAt:       &now,
		SuccessCount:        8,
		FailureCount:        2,
		ConsecutiveFailures: 2,
	}
	// 0.8 success rate * (1 - 2/5) = 0.48
	score := ComputeHealthScore(health, now)
	assert.InDelta(t, 0.48, score, 0.001)
}

func TestComputeHealthScoreStreakSaturates(t *testing.T) {
	now := time.Now()
	health := models.SourceHealth{
		LastScrapedAt:       &now,
		SuccessCount:        1,
		FailureCount:        9,
		ConsecutiveFailures: 9,
	}
	assert.Equal(t, 0.0, ComputeHealthScore(health, now))
}

func TestComputeHealthScoreFreshnessDecay(t *testing.T) {
	now := time.Now()
	scraped := now.Add(-14 * 24 * time.Hour)
	health := models.SourceHealth{
		LastScrapedAt: &scraped,
		SuccessCount:  10,
	}
	score := ComputeHealthScore(health, now)
	assert.InDelta(t, math.Exp(-1), score, 0.001)
}

func TestRecordScrapeSuccess(t *testing.T) {
	now := time.Now()
	sources := &fakeSourceStore{}
	events := &fakeEventStore{}
	tracker := newTestTracker(sources, events, now)

	source := &models.Source{ID: "src_1"}
	tracker.RecordScrape(context.Background(), source, ScrapeOutcome{
		Success:   true,
		JobsFound: 12,
		Duration:  800 * time.Millisecond,
		CompanyID: "co_1",
	})

	health := source.Health
	assert.Equal(t, 1, health.SuccessCount)
	assert.Equal(t, 0, health.ConsecutiveFailures)
	require.NotNil(t, health.LastScrapedAt)
	assert.Equal(t, now, *health.LastScrapedAt)
	// First observation seeds the averages directly
	assert.Equal(t, 12.0, health.AvgJobsPerScrape)
	assert.Equal(t, 800.0, health.AvgDurationMS)
	assert.InDelta(t, 1.0, health.HealthScore, 0.001)

	// Persisted and fairness event recorded
	assert.Equal(t, health, sources.health["src_1"])
	assert.Equal(t, []string{"co_1"}, events.events)
}

func TestRecordScrapeEMA(t *testing.T) {
	now := time.Now()
	tracker := newTestTracker(&fakeSourceStore{}, &fakeEventStore{}, now)

	source := &models.Source{ID: "src_1", Health: models.SourceHealth{
		SuccessCount:     1,
		AvgJobsPerScrape: 10,
		AvgDurationMS:    1000,
	}}
	tracker.RecordScrape(context.Background(), source, ScrapeOutcome{
		Success:   true,
		JobsFound: 20,
		Duration:  2 * time.Second,
	})

	assert.InDelta(t, 0.7*10+0.3*20, source.Health.AvgJobsPerScrape, 0.001)
	assert.InDelta(t, 0.7*1000+0.3*2000, source.Health.AvgDurationMS, 0.001)
}

func TestRecordScrapeFailureGrowsStreak(t *testing.T) {
	now := time.Now()
	tracker := newTestTracker(&fakeSourceStore{}, &fakeEventStore{}, now)

	source := &models.Source{ID: "src_1", Health: models.SourceHealth{
		SuccessCount:        4,
		FailureCount:        1,
		ConsecutiveFailures: 1,
		AvgJobsPerScrape:    8,
	}}
	tracker.RecordScrape(context.Background(), source, ScrapeOutcome{Success: false, Duration: time.Second})

	assert.Equal(t, 2, source.Health.FailureCount)
	assert.Equal(t, 2, source.Health.ConsecutiveFailures)
	// Jobs EMA untouched on failure
	assert.Equal(t, 8.0, source.Health.AvgJobsPerScrape)
	// 4/6 success rate * (1 - 2/5) penalty, fresh scrape
	assert.InDelta(t, (4.0/6.0)*0.6, source.Health.HealthScore, 0.001)
}

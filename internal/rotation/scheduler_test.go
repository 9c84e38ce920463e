package rotation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/models"
)

type fakeSources struct {
	sources []*models.Source
}

func (f *fakeSources) Upsert(context.Context, *models.Source) error                  { return nil }
func (f *fakeSources) Get(context.Context, string) (*models.Source, error)          { return nil, nil }
func (f *fakeSources) FindByURLHash(context.Context, string) (*models.Source, error) { return nil, nil }
func (f *fakeSources) FindByCompany(context.Context, string) ([]*models.Source, error) {
	return nil, nil
}
func (f *fakeSources) ListEnabled(context.Context) ([]*models.Source, error) {
	var enabled []*models.Source
	for _, s := range f.sources {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	return enabled, nil
}
func (f *fakeSources) SetEnabled(context.Context, string, bool) error { return nil }
func (f *fakeSources) UpdateHealth(context.Context, string, models.SourceHealth) error {
	return nil
}

type fakeCompanies struct {
	tiers map[string]models.Tier
}

func (f *fakeCompanies) Upsert(context.Context, *models.Company) error { return nil }
func (f *fakeCompanies) Get(_ context.Context, id string) (*models.Company, error) {
	tier, ok := f.tiers[id]
	if !ok {
		return nil, nil
	}
	return &models.Company{ID: id, Tier: tier}, nil
}
func (f *fakeCompanies) GetByNormalizedName(context.Context, string) (*models.Company, error) {
	return nil, nil
}

type fakeEvents struct {
	counts map[string]int
}

func (f *fakeEvents) Record(_ context.Context, companyID, _ string, _ time.Time) error {
	if f.counts == nil {
		f.counts = make(map[string]int)
	}
	f.counts[companyID]++
	return nil
}
func (f *fakeEvents) CountSince(_ context.Context, companyID string, _ time.Time) (int, error) {
	return f.counts[companyID], nil
}

func testScheduler(sources *fakeSources, companies *fakeCompanies, events *fakeEvents) *Scheduler {
	config := common.RotationConfig{MaxConsecutiveFailures: 5, FairnessWindowDays: 30}
	return NewScheduler(sources, companies, events, config, arbor.NewLogger())
}

func source(id string, health float64, lastScraped *time.Time) *models.Source {
	return &models.Source{
		ID:      id,
		URL:     "https://example.com/" + id,
		Enabled: true,
		Health: models.SourceHealth{
			HealthScore:   health,
			LastScrapedAt: lastScraped,
		},
	}
}

func TestNextBatchOrdersByHealth(t *testing.T) {
	now := time.Now()
	sources := &fakeSources{sources: []*models.Source{
		source("src_low", 0.3, &now),
		source("src_high", 0.9, &now),
		source("src_mid", 0.6, &now),
	}}
	scheduler := testScheduler(sources, &fakeCompanies{}, &fakeEvents{})

	batch, err := scheduler.NextBatch(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, "src_high", batch[0].ID)
	assert.Equal(t, "src_mid", batch[1].ID)
	assert.Equal(t, "src_low", batch[2].ID)
}

func TestNextBatchTierBreaksHealthTies(t *testing.T) {
	now := time.Now()
	a := source("src_a", 0.8, &now)
	a.CompanyID = "co_a"
	b := source("src_b", 0.8, &now)
	b.CompanyID = "co_b"

	sources := &fakeSources{sources: []*models.Source{a, b}}
	companies := &fakeCompanies{tiers: map[string]models.Tier{
		"co_a": models.TierC,
		"co_b": models.TierS,
	}}
	scheduler := testScheduler(sources, companies, &fakeEvents{})

	batch, err := scheduler.NextBatch(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "src_b", batch[0].ID)
}

func TestNextBatchNeverScrapedSortsFirst(t *testing.T) {
	old := time.Now().Add(-48 * time.Hour)
	sources := &fakeSources{sources: []*models.Source{
		source("src_scraped", 0.8, &old),
		source("src_fresh", 0.8, nil),
	}}
	scheduler := testScheduler(sources, &fakeCompanies{}, &fakeEvents{})

	batch, err := scheduler.NextBatch(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "src_fresh", batch[0].ID)
}

func TestNextBatchExcludesFailureStreaks(t *testing.T) {
	now := time.Now()
	broken := source("src_broken", 0.9, &now)
	broken.Health.ConsecutiveFailures = 5

	sources := &fakeSources{sources: []*models.Source{
		broken,
		source("src_ok", 0.5, &now),
	}}
	scheduler := testScheduler(sources, &fakeCompanies{}, &fakeEvents{})

	batch, err := scheduler.NextBatch(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "src_ok", batch[0].ID)
}

func TestNextBatchCompanyCountBreaksFinalTie(t *testing.T) {
	a := source("src_a", 0.8, nil)
	a.CompanyID = "co_busy"
	b := source("src_b", 0.8, nil)
	b.CompanyID = "co_quiet"

	sources := &fakeSources{sources: []*models.Source{a, b}}
	events := &fakeEvents{counts: map[string]int{"co_busy": 4, "co_quiet": 1}}
	scheduler := testScheduler(sources, &fakeCompanies{}, events)

	batch, err := scheduler.NextBatch(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "src_b", batch[0].ID)
}

// Six equal sources, batch of three: the three oldest-scraped go first,
// then the other three; over ten cycles per-source counts stay within 2.
func TestRotationFairnessOverCycles(t *testing.T) {
	base := time.Now().Add(-10 * 24 * time.Hour)
	all := make([]*models.Source, 6)
	for i := range all {
		scraped := base.Add(time.Duration(i) * time.Hour)
		all[i] = source(fmt.Sprintf("src_%d", i), 0.8, &scraped)
	}
	sources := &fakeSources{sources: all}
	scheduler := testScheduler(sources, &fakeCompanies{}, &fakeEvents{})

	counts := make(map[string]int)
	clock := time.Now()

	firstCycle := map[string]bool{}
	for cycle := 0; cycle < 10; cycle++ {
		batch, err := scheduler.NextBatch(context.Background(), 3)
		require.NoError(t, err)
		require.Len(t, batch, 3)

		for _, picked := range batch {
			counts[picked.ID]++
			if cycle == 0 {
				firstCycle[picked.ID] = true
			}
			clock = clock.Add(time.Minute)
			scrapedAt := clock
			picked.Health.LastScrapedAt = &scrapedAt
		}
	}

	// Cycle one picks the three oldest
	assert.True(t, firstCycle["src_0"])
	assert.True(t, firstCycle["src_1"])
	assert.True(t, firstCycle["src_2"])

	min, max := counts["src_0"], counts["src_0"]
	for _, c := range counts {
		if c < min {
			min = c
		}
		if c > max {
			max = c
		}
	}
	assert.LessOrEqual(t, max-min, 2)
}

package pipeline

import (
	"context"
	"fmt"

	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/scrapers"
)

// ---------------------------------------------------------------------
// SOURCE_DISCOVERY pipeline: detect -> validate -> save
// ---------------------------------------------------------------------

// detected is the detect-stage output persisted in pipeline state
type detected struct {
	Type       models.SourceType `json:"type"`
	Confidence models.Confidence `json:"confidence"`
	BoardToken string            `json:"board_token,omitempty"`
}

// validated is the validate-stage output
type validated struct {
	Validated      bool `json:"validated"`
	Listings       int  `json:"listings"`
	ManualRequired bool `json:"manual_required"`
}

func (e *Engine) sourceDetect(ctx context.Context, item *models.WorkItem) error {
	detection, ok := scrapers.DetectByURL(item.URL)
	if !ok {
		// URL pattern told us nothing; probe the content
		body, contentType, err := e.fetcher.Get(ctx, item.URL)
		if err != nil {
			return fmt.Errorf("detection probe failed for %s: %w", item.URL, err)
		}
		detection = scrapers.DetectByContent(contentType, body)
	}

	if err := item.SetState(models.StateDetected, detected{
		Type:       detection.Type,
		Confidence: detection.Confidence,
		BoardToken: detection.BoardToken,
	}); err != nil {
		return err
	}
	e.logger.Info().
		Str("item_id", item.ID).
		Str("type", string(detection.Type)).
		Str("confidence", string(detection.Confidence)).
		Msg("Source type detected")
	return nil
}

func (e *Engine) sourceValidate(ctx context.Context, item *models.WorkItem) error {
	var det detected
	if ok, err := item.GetState(models.StateDetected, &det); err != nil || !ok {
		return fmt.Errorf("validate stage requires detection: %w", err)
	}

	// Low-confidence sources need a human to supply selectors; they are
	// saved disabled instead of guessing.
	if det.Confidence == models.ConfidenceLow {
		if err := item.SetState(models.StateValidated, validated{ManualRequired: true}); err != nil {
			return err
		}
		e.logger.Info().Str("item_id", item.ID).Msg("Source flagged for manual validation")
		return nil
	}

	probe := &models.Source{
		URL:        item.URL,
		URLHash:    item.URLHash,
		Type:       det.Type,
		BoardToken: det.BoardToken,
		Confidence: det.Confidence,
	}
	scraper, ok := e.scrapers.For(det.Type)
	if !ok {
		return fmt.Errorf("no scraper registered for source type %s", det.Type)
	}

	listings, err := scraper.ListJobs(ctx, probe)
	if err != nil {
		return fmt.Errorf("validation scrape of %s failed: %w", item.URL, err)
	}
	if len(listings) == 0 {
		return fmt.Errorf("source %s validated empty: no listings returned", item.URL)
	}

	if err := item.SetState(models.StateValidated, validated{
		Validated: true,
		Listings:  len(listings),
	}); err != nil {
		return err
	}
	e.logger.Info().
		Str("item_id", item.ID).
		Int("listings", len(listings)).
		Msg("Source validated")
	return nil
}

func (e *Engine) sourceSave(ctx context.Context, item *models.WorkItem) error {
	var det detected
	if ok, err := item.GetState(models.StateDetected, &det); err != nil || !ok {
		return fmt.Errorf("save stage requires detection: %w", err)
	}
	var val validated
	if ok, err := item.GetState(models.StateValidated, &val); err != nil || !ok {
		return fmt.Errorf("save stage requires validation: %w", err)
	}

	source := &models.Source{
		URL:                      item.URL,
		URLHash:                  item.URLHash,
		Type:                     det.Type,
		BoardToken:               det.BoardToken,
		Confidence:               det.Confidence,
		Enabled:                  det.Confidence == models.ConfidenceHigh && val.Validated,
		ManualValidationRequired: val.ManualRequired,
	}
	if err := e.storage.Sources().Upsert(ctx, source); err != nil {
		return fmt.Errorf("failed to upsert source: %w", err)
	}

	item.MarkSuccess(fmt.Sprintf("source %s saved (enabled=%v)", source.URL, source.Enabled))
	e.logger.Info().
		Str("item_id", item.ID).
		Str("source_id", source.ID).
		Bool("enabled", source.Enabled).
		Msg("Source saved")
	return nil
}

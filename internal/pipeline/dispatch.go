// Package pipeline executes work-item stages. The dispatcher is a pure
// function of (type, pipeline state): items carry no pre-assigned task
// label, so a partially completed item resumes at the first stage whose
// output is missing.
package pipeline

import (
	"fmt"

	"github.com/ternarybob/venari/internal/models"
)

// Stage identifies one executable pipeline step
type Stage string

const (
	StageJobScrape  Stage = "JOB_SCRAPE"
	StageJobFilter  Stage = "JOB_FILTER"
	StageJobAnalyze Stage = "JOB_ANALYZE"
	StageJobSave    Stage = "JOB_SAVE"

	StageCompanyFetch   Stage = "COMPANY_FETCH"
	StageCompanyExtract Stage = "COMPANY_EXTRACT"
	StageCompanyAnalyze Stage = "COMPANY_ANALYZE"
	StageCompanySave    Stage = "COMPANY_SAVE"

	StageSourceDetect   Stage = "SOURCE_DETECT"
	StageSourceValidate Stage = "SOURCE_VALIDATE"
	StageSourceSave     Stage = "SOURCE_SAVE"

	StageScrapeRun Stage = "SCRAPE_RUN"
)

// SelectStage routes an item to its next stage by examining which
// outputs are already present. Selection is total: every valid type
// maps to exactly one stage for any reachable state.
func SelectStage(itemType models.ItemType, item *models.WorkItem) (Stage, error) {
	switch itemType {
	case models.ItemTypeJob:
		switch {
		case !item.HasState(models.StateJobData):
			return StageJobScrape, nil
		case !item.HasState(models.StateFilterResult):
			return StageJobFilter, nil
		case !item.HasState(models.StateMatchResult):
			return StageJobAnalyze, nil
		default:
			return StageJobSave, nil
		}
	case models.ItemTypeCompany:
		switch {
		case !item.HasState(models.StateRawPages):
			return StageCompanyFetch, nil
		case !item.HasState(models.StateExtracted):
			return StageCompanyExtract, nil
		case !item.HasState(models.StateAnalysis):
			return StageCompanyAnalyze, nil
		default:
			return StageCompanySave, nil
		}
	case models.ItemTypeSourceDiscovery:
		switch {
		case !item.HasState(models.StateDetected):
			return StageSourceDetect, nil
		case !item.HasState(models.StateValidated):
			return StageSourceValidate, nil
		default:
			return StageSourceSave, nil
		}
	case models.ItemTypeScrape:
		return StageScrapeRun, nil
	default:
		return "", fmt.Errorf("no stage defined for item type %q", itemType)
	}
}

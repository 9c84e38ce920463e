package common

import (
	"github.com/google/uuid"
)

// NewItemID generates a unique work item ID with the "item_" prefix
func NewItemID() string {
	return "item_" + uuid.New().String()
}

// NewTrackingID generates a lineage tracking ID assigned at root submission
func NewTrackingID() string {
	return uuid.New().String()
}

// NewCompanyID generates a unique company document ID
func NewCompanyID() string {
	return "co_" + uuid.New().String()
}

// NewSourceID generates a unique job source ID
func NewSourceID() string {
	return "src_" + uuid.New().String()
}

// NewMatchID generates a unique job match ID
func NewMatchID() string {
	return "match_" + uuid.New().String()
}

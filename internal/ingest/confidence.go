package ingest

import (
	"github.com/castlemilk/homepulse/backend/internal/model"
	"github.com/castlemilk/homepulse/backend/internal/utilityapi"
)

// ScoreBillConfidence derives a confidence label from the structural
// completeness of a provider bill payload. More complete, internally
// consistent payloads score higher; a low score forces the created reading
// into the review queue.
//
// Signals, one point each:
//   - usage present and positive
//   - cost present and positive
//   - statement date parseable
//   - reported unit already canonical for the utility type (no conversion guess)
func ScoreBillConfidence(bill utilityapi.Bill, utilityType model.UtilityType, dateOK bool) model.Confidence {
	score := 0
	if bill.TotalUsage > 0 {
		score++
	}
	if bill.TotalCost > 0 {
		score++
	}
	if dateOK {
		score++
	}
	if bill.TotalUnit == CanonicalUnit(utilityType) {
		score++
	}

	// A bill with no usable usage figure is low regardless of other signals.
	if bill.TotalUsage <= 0 {
		return model.ConfidenceLow
	}

	switch {
	case score >= 4:
		return model.ConfidenceHigh
	case score >= 2:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

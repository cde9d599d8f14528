package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/castlemilk/homepulse/backend/internal/model"
)

func TestCategorizeTransaction(t *testing.T) {
	tests := []struct {
		name           string
		categories     []string
		merchantName   string
		wantCategory   string
		wantConfidence model.Confidence
	}{
		{
			name:           "primary category wins with high confidence",
			categories:     []string{"HOME_IMPROVEMENT", "HARDWARE_STORES"},
			merchantName:   "Home Depot",
			wantCategory:   CategoryRenovation,
			wantConfidence: model.ConfidenceHigh,
		},
		{
			name:           "utilities primary",
			categories:     []string{"UTILITIES_GAS_AND_ELECTRIC"},
			merchantName:   "PG&E",
			wantCategory:   CategoryUtilities,
			wantConfidence: model.ConfidenceHigh,
		},
		{
			name:           "mortgage primary",
			categories:     []string{"LOAN_PAYMENTS_MORTGAGE"},
			wantCategory:   CategoryMortgage,
			wantConfidence: model.ConfidenceHigh,
		},
		{
			name:           "secondary category when primary unknown",
			categories:     []string{"GENERAL_MERCHANDISE", "HARDWARE_STORES"},
			merchantName:   "",
			wantCategory:   CategoryRenovation,
			wantConfidence: model.ConfidenceMedium,
		},
		{
			name:           "merchant keyword when no category codes",
			categories:     nil,
			merchantName:   "Home Depot #44",
			wantCategory:   CategoryRenovation,
			wantConfidence: model.ConfidenceMedium,
		},
		{
			name:           "merchant keyword is case insensitive",
			categories:     nil,
			merchantName:   "XFINITY MOBILE",
			wantCategory:   CategoryUtilities,
			wantConfidence: model.ConfidenceMedium,
		},
		{
			name:           "generic service code fallback",
			categories:     []string{"HOME_SERVICES"},
			merchantName:   "Joe's Handyman",
			wantCategory:   CategoryServices,
			wantConfidence: model.ConfidenceMedium,
		},
		{
			name:           "unknown everything is uncategorized low",
			categories:     []string{"FOOD_AND_DRINK"},
			merchantName:   "Burger Palace",
			wantCategory:   CategoryUncategorized,
			wantConfidence: model.ConfidenceLow,
		},
		{
			name:           "empty input is uncategorized low",
			categories:     nil,
			merchantName:   "",
			wantCategory:   CategoryUncategorized,
			wantConfidence: model.ConfidenceLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			category, confidence := CategorizeTransaction(tt.categories, tt.merchantName)
			assert.Equal(t, tt.wantCategory, category)
			assert.Equal(t, tt.wantConfidence, confidence)
		})
	}
}

package ingest

import (
	"strings"

	"github.com/castlemilk/homepulse/backend/internal/model"
)

// Expense categories produced by the mapper.
const (
	CategoryRenovation    = "renovation"
	CategoryUtilities     = "utilities"
	CategoryServices      = "services"
	CategoryInsurance     = "insurance"
	CategoryMortgage      = "mortgage"
	CategoryGarden        = "garden"
	CategoryUncategorized = "uncategorized"
)

// primaryCategoryMap maps a provider primary category code to an expense
// category with high confidence.
var primaryCategoryMap = map[string]string{
	"HOME_IMPROVEMENT":           CategoryRenovation,
	"RENT_AND_UTILITIES":         CategoryUtilities,
	"UTILITIES":                  CategoryUtilities,
	"UTILITIES_GAS_AND_ELECTRIC": CategoryUtilities,
	"UTILITIES_WATER":            CategoryUtilities,
	"UTILITIES_INTERNET_AND_CABLE": CategoryUtilities,
	"LOAN_PAYMENTS_MORTGAGE":     CategoryMortgage,
	"INSURANCE":                  CategoryInsurance,
}

// secondaryCategoryMap maps a provider secondary category code with medium
// confidence.
var secondaryCategoryMap = map[string]string{
	"HARDWARE_STORES":   CategoryRenovation,
	"HOME_SUPPLY":       CategoryRenovation,
	"PLUMBING":          CategoryServices,
	"ELECTRICIAN":       CategoryServices,
	"HVAC":              CategoryServices,
	"PEST_CONTROL":      CategoryServices,
	"LANDSCAPING":       CategoryGarden,
	"SECURITY":          CategoryServices,
}

// merchantKeywordMap matches merchant names case-insensitively with medium
// confidence. First match wins in the declared order, so more specific
// keywords come first.
var merchantKeywords = []struct {
	keyword  string
	category string
}{
	{"home depot", CategoryRenovation},
	{"lowe's", CategoryRenovation},
	{"lowes", CategoryRenovation},
	{"menards", CategoryRenovation},
	{"ace hardware", CategoryRenovation},
	{"pg&e", CategoryUtilities},
	{"con edison", CategoryUtilities},
	{"coned", CategoryUtilities},
	{"national grid", CategoryUtilities},
	{"comcast", CategoryUtilities},
	{"xfinity", CategoryUtilities},
	{"verizon", CategoryUtilities},
	{"terminix", CategoryServices},
	{"orkin", CategoryServices},
	{"trugreen", CategoryGarden},
	{"state farm", CategoryInsurance},
	{"allstate", CategoryInsurance},
}

// CategorizeTransaction maps provider category codes and a merchant name to an
// expense category with a confidence label. First match wins. A low-confidence
// result is what routes the transaction into the human review queue; the
// mapper itself never guesses beyond its tables.
func CategorizeTransaction(providerCategories []string, merchantName string) (string, model.Confidence) {
	// 1. Primary category code, high confidence.
	if len(providerCategories) > 0 {
		if category, ok := primaryCategoryMap[providerCategories[0]]; ok {
			return category, model.ConfidenceHigh
		}
	}

	// 2. Secondary category code, medium confidence.
	if len(providerCategories) > 1 {
		if category, ok := secondaryCategoryMap[providerCategories[1]]; ok {
			return category, model.ConfidenceMedium
		}
	}

	// 3. Merchant name keyword, medium confidence.
	if merchantName != "" {
		lower := strings.ToLower(merchantName)
		for _, entry := range merchantKeywords {
			if strings.Contains(lower, entry.keyword) {
				return entry.category, model.ConfidenceMedium
			}
		}
	}

	// 4. Generic service codes, medium confidence.
	if len(providerCategories) > 0 && strings.Contains(providerCategories[0], "SERVICE") {
		return CategoryServices, model.ConfidenceMedium
	}

	return CategoryUncategorized, model.ConfidenceLow
}

package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/castlemilk/homepulse/backend/internal/model"
)

// TipGenerator turns trend and cost context into human-readable efficiency
// recommendations.
type TipGenerator struct {
	// HighSpendThreshold is the period cost above which a budget review tip
	// fires.
	HighSpendThreshold float64
}

// NewTipGenerator creates a generator with the given tuning.
func NewTipGenerator(highSpendThreshold float64) *TipGenerator {
	return &TipGenerator{HighSpendThreshold: highSpendThreshold}
}

// usage increase percentages that trigger a tip and that upgrade its priority
const (
	tipUsageRisePercent     = 10.0
	tipUsageSpikePercent    = 25.0
	tipRateGapPercentPoints = 5.0
)

var usageRiseAdvice = map[model.UtilityType]string{
	model.UtilityElectricity: "Check for appliances left running and consider shifting heavy loads to off-peak hours.",
	model.UtilityGas:         "Check your thermostat schedule and look for drafts around doors and windows.",
	model.UtilityWater:       "Check for running toilets and dripping fixtures; even small leaks add up quickly.",
	model.UtilityInternet:    "Review connected devices for unexpected background transfers or backups.",
}

// Generate produces tips from the period's readings, trends and cost summary.
// Output is ordered high priority first, stable within a priority.
func (g *TipGenerator) Generate(readings []*model.Reading, trends []*model.UtilityTrend, summary *model.CostSummary, now time.Time) []*model.EfficiencyTip {
	var tips []*model.EfficiencyTip

	for _, trend := range trends {
		// Rising usage.
		if trend.UsageTrendPercent > tipUsageRisePercent {
			priority := model.TipPriorityMedium
			if trend.UsageTrendPercent > tipUsageSpikePercent {
				priority = model.TipPriorityHigh
			}
			tips = append(tips, &model.EfficiencyTip{
				UtilityType: trend.UtilityType,
				Title:       fmt.Sprintf("%s usage is up %.0f%%", titleCase(trend.UtilityType), trend.UsageTrendPercent),
				Description: usageRiseAdvice[trend.UtilityType],
				Priority:    priority,
			})
		}

		// Cost rising faster than usage suggests a rate change.
		if trend.CostTrendPercent > trend.UsageTrendPercent+tipRateGapPercentPoints {
			tips = append(tips, &model.EfficiencyTip{
				UtilityType: trend.UtilityType,
				Title:       fmt.Sprintf("%s costs are outpacing usage", titleCase(trend.UtilityType)),
				Description: "Your cost grew faster than your usage. Review your plan or tariff; a rate change may have taken effect.",
				Priority:    model.TipPriorityMedium,
			})
		}
	}

	tips = append(tips, g.seasonalTips(readings, now)...)

	if summary != nil && summary.TotalCost > g.HighSpendThreshold {
		tips = append(tips, &model.EfficiencyTip{
			Title:       "High utility spend this period",
			Description: fmt.Sprintf("You spent $%.2f on utilities this period. Review the breakdown to find your largest contributor.", summary.TotalCost),
			Priority:    model.TipPriorityHigh,
		})
	}

	sort.SliceStable(tips, func(i, j int) bool {
		return priorityRank(tips[i].Priority) < priorityRank(tips[j].Priority)
	})
	return tips
}

// seasonalTips fires low-priority reminders keyed to the calendar: cooling
// advice in summer, heating advice in winter. A type only qualifies once it
// has at least two readings, so brand-new accounts are not lectured.
func (g *TipGenerator) seasonalTips(readings []*model.Reading, now time.Time) []*model.EfficiencyTip {
	counts := make(map[model.UtilityType]int)
	for _, reading := range readings {
		counts[reading.UtilityType]++
	}
	hasHistory := func(t model.UtilityType) bool { return counts[t] >= 2 }

	var tips []*model.EfficiencyTip
	switch now.Month() {
	case time.June, time.July, time.August:
		if hasHistory(model.UtilityElectricity) {
			tips = append(tips, &model.EfficiencyTip{
				UtilityType: model.UtilityElectricity,
				Title:       "Summer cooling season",
				Description: "Raise your thermostat a couple of degrees and clean AC filters to cut peak-season electricity use.",
				Priority:    model.TipPriorityLow,
			})
		}
		if hasHistory(model.UtilityWater) {
			tips = append(tips, &model.EfficiencyTip{
				UtilityType: model.UtilityWater,
				Title:       "Summer watering season",
				Description: "Water lawns early in the morning and check irrigation timers to avoid midday evaporation losses.",
				Priority:    model.TipPriorityLow,
			})
		}
	case time.December, time.January, time.February:
		if hasHistory(model.UtilityGas) {
			tips = append(tips, &model.EfficiencyTip{
				UtilityType: model.UtilityGas,
				Title:       "Winter heating season",
				Description: "Lower your thermostat overnight and seal drafts to keep heating bills in check.",
				Priority:    model.TipPriorityLow,
			})
		}
	}
	return tips
}

func priorityRank(p model.TipPriority) int {
	switch p {
	case model.TipPriorityHigh:
		return 0
	case model.TipPriorityMedium:
		return 1
	default:
		return 2
	}
}

func titleCase(t model.UtilityType) string {
	s := string(t)
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

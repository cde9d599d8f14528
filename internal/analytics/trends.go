// Package analytics derives trends, cost summaries, sustainability metrics,
// anomaly alerts and efficiency tips from stored readings. Everything except
// alerts is computed per request and never persisted.
package analytics

import (
	"sort"
	"time"

	"github.com/castlemilk/homepulse/backend/internal/model"
)

// trendStableBand is the percent band within which movement counts as stable.
const trendStableBand = 2.0

// CalculateTrends compares the two most recent readings of each utility type.
// Types with no readings are omitted; a single reading yields a stable trend
// with zero previous values.
func CalculateTrends(readings []*model.Reading) []*model.UtilityTrend {
	byType := groupByType(readings)

	trends := make([]*model.UtilityTrend, 0, len(byType))
	for _, utilityType := range model.AllUtilityTypes() {
		typed := byType[utilityType]
		if len(typed) == 0 {
			continue
		}
		sortByDateDesc(typed)

		trend := &model.UtilityTrend{
			UtilityType:  utilityType,
			CurrentUsage: typed[0].UsageAmount,
			CurrentCost:  typed[0].Cost,
		}
		if len(typed) > 1 {
			trend.PreviousUsage = typed[1].UsageAmount
			trend.PreviousCost = typed[1].Cost
		}

		trend.UsageTrendPercent = percentChange(trend.CurrentUsage, trend.PreviousUsage)
		trend.CostTrendPercent = percentChange(trend.CurrentCost, trend.PreviousCost)

		// Direction follows the average of the usage and cost movements, so a
		// rate hike registers even when consumption is flat.
		movement := (trend.UsageTrendPercent + trend.CostTrendPercent) / 2
		switch {
		case movement > trendStableBand:
			trend.TrendDirection = model.TrendUp
		case movement < -trendStableBand:
			trend.TrendDirection = model.TrendDown
		default:
			trend.TrendDirection = model.TrendStable
		}

		trends = append(trends, trend)
	}
	return trends
}

// SummarizeCosts totals costs over the current period's readings and compares
// against the readings of the immediately preceding span of equal length.
func SummarizeCosts(current, previous []*model.Reading, periodStart, periodEnd time.Time) *model.CostSummary {
	summary := &model.CostSummary{
		PeriodStart:        periodStart,
		PeriodEnd:          periodEnd,
		PreviousPeriodDays: int(periodEnd.Sub(periodStart).Hours() / 24),
	}

	byType := groupByType(current)
	for _, utilityType := range model.AllUtilityTypes() {
		typed := byType[utilityType]
		if len(typed) == 0 {
			continue
		}
		cost := &model.UtilityCost{UtilityType: utilityType, Unit: typed[0].Unit}
		for _, reading := range typed {
			cost.TotalUsage += reading.UsageAmount
			if reading.HasCost {
				cost.TotalCost += reading.Cost
			}
		}
		summary.Breakdown = append(summary.Breakdown, *cost)
		summary.TotalCost += cost.TotalCost
	}

	for _, reading := range previous {
		if reading.HasCost {
			summary.PreviousTotalCost += reading.Cost
		}
	}
	summary.CostChangePercent = percentChange(summary.TotalCost, summary.PreviousTotalCost)

	return summary
}

// percentChange is zero-guarded: change from zero is reported as zero rather
// than infinity.
func percentChange(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return (current - previous) / previous * 100
}

func groupByType(readings []*model.Reading) map[model.UtilityType][]*model.Reading {
	byType := make(map[model.UtilityType][]*model.Reading)
	for _, reading := range readings {
		byType[reading.UtilityType] = append(byType[reading.UtilityType], reading)
	}
	return byType
}

func sortByDateDesc(readings []*model.Reading) {
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].ReadingDate.After(readings[j].ReadingDate)
	})
}

package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlemilk/homepulse/backend/internal/model"
)

func reading(utilityType model.UtilityType, usage, cost float64, date time.Time) *model.Reading {
	return &model.Reading{
		UtilityType: utilityType,
		UsageAmount: usage,
		Unit:        "kWh",
		Cost:        cost,
		HasCost:     cost > 0,
		ReadingDate: date,
	}
}

func TestCalculateTrends(t *testing.T) {
	march := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	february := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)

	t.Run("rising usage", func(t *testing.T) {
		trends := CalculateTrends([]*model.Reading{
			reading(model.UtilityElectricity, 150, 45, march),
			reading(model.UtilityElectricity, 100, 30, february),
		})
		require.Len(t, trends, 1)
		assert.Equal(t, 150.0, trends[0].CurrentUsage)
		assert.Equal(t, 100.0, trends[0].PreviousUsage)
		assert.InDelta(t, 50.0, trends[0].UsageTrendPercent, 0.0001)
		assert.InDelta(t, 50.0, trends[0].CostTrendPercent, 0.0001)
		assert.Equal(t, model.TrendUp, trends[0].TrendDirection)
	})

	t.Run("falling usage", func(t *testing.T) {
		trends := CalculateTrends([]*model.Reading{
			reading(model.UtilityGas, 80, 60, march),
			reading(model.UtilityGas, 100, 70, february),
		})
		require.Len(t, trends, 1)
		assert.Equal(t, model.TrendDown, trends[0].TrendDirection)
	})

	t.Run("cost surge alone moves direction up", func(t *testing.T) {
		trends := CalculateTrends([]*model.Reading{
			reading(model.UtilityElectricity, 100, 200, march),
			reading(model.UtilityElectricity, 100, 100, february),
		})
		require.Len(t, trends, 1)
		assert.InDelta(t, 0.0, trends[0].UsageTrendPercent, 0.0001)
		assert.InDelta(t, 100.0, trends[0].CostTrendPercent, 0.0001)
		assert.Equal(t, model.TrendUp, trends[0].TrendDirection)
	})

	t.Run("offsetting usage and cost moves are stable", func(t *testing.T) {
		trends := CalculateTrends([]*model.Reading{
			reading(model.UtilityGas, 110, 90, march),
			reading(model.UtilityGas, 100, 100, february),
		})
		require.Len(t, trends, 1)
		assert.Equal(t, model.TrendStable, trends[0].TrendDirection)
	})

	t.Run("inside band is stable", func(t *testing.T) {
		trends := CalculateTrends([]*model.Reading{
			reading(model.UtilityWater, 101, 20, march),
			reading(model.UtilityWater, 100, 20, february),
		})
		require.Len(t, trends, 1)
		assert.Equal(t, model.TrendStable, trends[0].TrendDirection)
	})

	t.Run("single reading has zero previous and is stable", func(t *testing.T) {
		trends := CalculateTrends([]*model.Reading{
			reading(model.UtilityElectricity, 100, 30, march),
		})
		require.Len(t, trends, 1)
		assert.Equal(t, 0.0, trends[0].PreviousUsage)
		assert.Equal(t, 0.0, trends[0].UsageTrendPercent)
		assert.Equal(t, model.TrendStable, trends[0].TrendDirection)
	})

	t.Run("no readings yields no trends", func(t *testing.T) {
		assert.Empty(t, CalculateTrends(nil))
	})

	t.Run("types are independent", func(t *testing.T) {
		trends := CalculateTrends([]*model.Reading{
			reading(model.UtilityElectricity, 150, 45, march),
			reading(model.UtilityElectricity, 100, 30, february),
			reading(model.UtilityGas, 50, 40, march),
		})
		assert.Len(t, trends, 2)
	})
}

func TestSummarizeCosts(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	current := []*model.Reading{
		reading(model.UtilityElectricity, 100, 30, start.AddDate(0, 0, 10)),
		reading(model.UtilityElectricity, 120, 36, start.AddDate(0, 0, 20)),
		reading(model.UtilityGas, 50, 40, start.AddDate(0, 0, 15)),
	}
	previous := []*model.Reading{
		reading(model.UtilityElectricity, 90, 25, start.AddDate(0, 0, -15)),
		reading(model.UtilityGas, 60, 55, start.AddDate(0, 0, -10)),
	}

	summary := SummarizeCosts(current, previous, start, end)
	assert.InDelta(t, 106.0, summary.TotalCost, 0.0001)
	assert.InDelta(t, 80.0, summary.PreviousTotalCost, 0.0001)
	assert.InDelta(t, 32.5, summary.CostChangePercent, 0.0001)
	require.Len(t, summary.Breakdown, 2)
	assert.Equal(t, model.UtilityElectricity, summary.Breakdown[0].UtilityType)
	assert.InDelta(t, 220.0, summary.Breakdown[0].TotalUsage, 0.0001)
	assert.Equal(t, 31, summary.PreviousPeriodDays)
}

func TestSummarizeCostsZeroPrevious(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	summary := SummarizeCosts([]*model.Reading{
		reading(model.UtilityElectricity, 100, 30, start.AddDate(0, 0, 5)),
	}, nil, start, end)

	assert.InDelta(t, 30.0, summary.TotalCost, 0.0001)
	assert.Equal(t, 0.0, summary.CostChangePercent)
}

func TestSummarizeCostsIgnoresCostlessReadings(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	noCost := reading(model.UtilityWater, 200, 0, start.AddDate(0, 0, 5))
	summary := SummarizeCosts([]*model.Reading{noCost}, nil, start, end)

	assert.Equal(t, 0.0, summary.TotalCost)
	require.Len(t, summary.Breakdown, 1)
	assert.InDelta(t, 200.0, summary.Breakdown[0].TotalUsage, 0.0001)
}

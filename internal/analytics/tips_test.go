package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlemilk/homepulse/backend/internal/model"
)

// april sits outside both seasonal windows.
var april = time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC)

func TestGenerateUsageRiseTips(t *testing.T) {
	generator := NewTipGenerator(500)

	t.Run("moderate rise is medium priority", func(t *testing.T) {
		tips := generator.Generate(nil, []*model.UtilityTrend{{
			UtilityType:       model.UtilityElectricity,
			UsageTrendPercent: 15,
			CostTrendPercent:  15,
		}}, nil, april)
		require.Len(t, tips, 1)
		assert.Equal(t, model.TipPriorityMedium, tips[0].Priority)
		assert.Equal(t, model.UtilityElectricity, tips[0].UtilityType)
	})

	t.Run("sharp rise is high priority", func(t *testing.T) {
		tips := generator.Generate(nil, []*model.UtilityTrend{{
			UtilityType:       model.UtilityWater,
			UsageTrendPercent: 30,
			CostTrendPercent:  30,
		}}, nil, april)
		require.Len(t, tips, 1)
		assert.Equal(t, model.TipPriorityHigh, tips[0].Priority)
	})

	t.Run("flat usage produces nothing", func(t *testing.T) {
		tips := generator.Generate(nil, []*model.UtilityTrend{{
			UtilityType:       model.UtilityGas,
			UsageTrendPercent: 2,
			CostTrendPercent:  2,
		}}, nil, april)
		assert.Empty(t, tips)
	})
}

func TestGenerateRateChangeTip(t *testing.T) {
	generator := NewTipGenerator(500)

	tips := generator.Generate(nil, []*model.UtilityTrend{{
		UtilityType:       model.UtilityElectricity,
		UsageTrendPercent: 1,
		CostTrendPercent:  12,
	}}, nil, april)

	require.Len(t, tips, 1)
	assert.Contains(t, tips[0].Title, "outpacing")
}

func TestGenerateSeasonalTips(t *testing.T) {
	generator := NewTipGenerator(500)
	now := time.Now()
	twoReadingsEach := []*model.Reading{
		reading(model.UtilityElectricity, 100, 0, now),
		reading(model.UtilityElectricity, 110, 0, now.AddDate(0, -1, 0)),
		reading(model.UtilityWater, 200, 0, now),
		reading(model.UtilityWater, 210, 0, now.AddDate(0, -1, 0)),
		reading(model.UtilityGas, 50, 0, now),
		reading(model.UtilityGas, 60, 0, now.AddDate(0, -1, 0)),
	}

	t.Run("summer", func(t *testing.T) {
		july := time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC)
		tips := generator.Generate(twoReadingsEach, nil, nil, july)
		require.Len(t, tips, 2)
		assert.Equal(t, model.UtilityElectricity, tips[0].UtilityType)
		assert.Equal(t, model.UtilityWater, tips[1].UtilityType)
	})

	t.Run("winter", func(t *testing.T) {
		january := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
		tips := generator.Generate(twoReadingsEach, nil, nil, january)
		require.Len(t, tips, 1)
		assert.Equal(t, model.UtilityGas, tips[0].UtilityType)
	})

	t.Run("single reading gets none", func(t *testing.T) {
		july := time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC)
		tips := generator.Generate([]*model.Reading{
			reading(model.UtilityElectricity, 100, 0, now),
		}, nil, nil, july)
		assert.Empty(t, tips)
	})

	t.Run("zero-usage reading still counts toward history", func(t *testing.T) {
		july := time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC)
		tips := generator.Generate([]*model.Reading{
			reading(model.UtilityElectricity, 100, 0, now),
			reading(model.UtilityElectricity, 0, 0, now.AddDate(0, -1, 0)),
		}, nil, nil, july)
		require.Len(t, tips, 1)
		assert.Equal(t, model.UtilityElectricity, tips[0].UtilityType)
	})
}

func TestGenerateHighSpendTip(t *testing.T) {
	generator := NewTipGenerator(500)

	t.Run("over threshold", func(t *testing.T) {
		tips := generator.Generate(nil, nil, &model.CostSummary{TotalCost: 620}, april)
		require.Len(t, tips, 1)
		assert.Equal(t, model.TipPriorityHigh, tips[0].Priority)
	})

	t.Run("at threshold fires nothing", func(t *testing.T) {
		tips := generator.Generate(nil, nil, &model.CostSummary{TotalCost: 500}, april)
		assert.Empty(t, tips)
	})
}

func TestGenerateOrdersByPriority(t *testing.T) {
	generator := NewTipGenerator(500)
	now := time.Now()
	july := time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC)

	tips := generator.Generate([]*model.Reading{
		reading(model.UtilityElectricity, 115, 0, now),
		reading(model.UtilityElectricity, 100, 0, now.AddDate(0, -1, 0)),
	}, []*model.UtilityTrend{
		{UtilityType: model.UtilityElectricity, UsageTrendPercent: 15, CostTrendPercent: 15},
	}, &model.CostSummary{TotalCost: 900}, july)

	require.NotEmpty(t, tips)
	assert.Equal(t, model.TipPriorityHigh, tips[0].Priority)
	for i := 1; i < len(tips); i++ {
		assert.LessOrEqual(t,
			priorityRank(tips[i-1].Priority), priorityRank(tips[i].Priority))
	}
}

package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/castlemilk/homepulse/backend/internal/model"
)

func TestCarbonFootprint(t *testing.T) {
	now := time.Now()
	readings := []*model.Reading{
		reading(model.UtilityElectricity, 1000, 0, now),
		reading(model.UtilityGas, 100, 0, now),
		reading(model.UtilityWater, 5000, 0, now),
		reading(model.UtilityInternet, 800, 0, now),
	}

	// 1000*0.00046 + 100*0.00585 + 5000*0.000001 + 800*0
	assert.InDelta(t, 0.46+0.585+0.005, CarbonFootprint(readings), 0.000001)
}

func TestComputeSustainability(t *testing.T) {
	now := time.Now()

	t.Run("improvement over previous period", func(t *testing.T) {
		metrics := ComputeSustainability(
			[]*model.Reading{reading(model.UtilityElectricity, 800, 0, now)},
			[]*model.Reading{reading(model.UtilityElectricity, 1000, 0, now.AddDate(0, -1, 0))},
		)
		assert.InDelta(t, 0.368, metrics.CarbonFootprintTonnes, 0.0001)
		assert.InDelta(t, 0.46, metrics.PreviousCarbonTonnes, 0.0001)
		assert.InDelta(t, 20.0, metrics.CarbonReductionPercent, 0.0001)
		assert.InDelta(t, 70.0, metrics.EfficiencyScore, 0.0001)
	})

	t.Run("equal averages across different reading counts score neutral", func(t *testing.T) {
		metrics := ComputeSustainability(
			[]*model.Reading{reading(model.UtilityElectricity, 100, 0, now)},
			[]*model.Reading{
				reading(model.UtilityElectricity, 100, 0, now.AddDate(0, -1, 0)),
				reading(model.UtilityElectricity, 100, 0, now.AddDate(0, -1, -5)),
			},
		)
		assert.Equal(t, 50.0, metrics.EfficiencyScore)
	})

	t.Run("score tracks usage, not emission weighting", func(t *testing.T) {
		// Gas carries a far larger emission factor than electricity; the score
		// still compares raw average usage.
		metrics := ComputeSustainability(
			[]*model.Reading{reading(model.UtilityElectricity, 100, 0, now)},
			[]*model.Reading{reading(model.UtilityGas, 100, 0, now.AddDate(0, -1, 0))},
		)
		assert.Equal(t, 50.0, metrics.EfficiencyScore)
	})

	t.Run("no history scores neutral", func(t *testing.T) {
		metrics := ComputeSustainability(
			[]*model.Reading{reading(model.UtilityElectricity, 800, 0, now)}, nil)
		assert.Equal(t, 0.0, metrics.CarbonReductionPercent)
		assert.Equal(t, 50.0, metrics.EfficiencyScore)
	})

	t.Run("score clamps at the bounds", func(t *testing.T) {
		worse := ComputeSustainability(
			[]*model.Reading{reading(model.UtilityElectricity, 2000, 0, now)},
			[]*model.Reading{reading(model.UtilityElectricity, 1000, 0, now)},
		)
		assert.Equal(t, 0.0, worse.EfficiencyScore)

		better := ComputeSustainability(
			[]*model.Reading{reading(model.UtilityElectricity, 100, 0, now)},
			[]*model.Reading{reading(model.UtilityElectricity, 1000, 0, now)},
		)
		assert.Equal(t, 100.0, better.EfficiencyScore)
	})

	t.Run("renewable is a placeholder zero", func(t *testing.T) {
		metrics := ComputeSustainability(nil, nil)
		assert.Equal(t, 0.0, metrics.RenewablePercent)
	})
}

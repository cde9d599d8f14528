package analytics

import "github.com/castlemilk/homepulse/backend/internal/model"

// emissionFactors convert canonical usage units to tonnes of CO2 equivalent.
// Electricity per kWh, gas per therm, water per gallon (pumping and treatment
// energy), internet treated as zero.
var emissionFactors = map[model.UtilityType]float64{
	model.UtilityElectricity: 0.00046,
	model.UtilityGas:         0.00585,
	model.UtilityWater:       0.000001,
	model.UtilityInternet:    0,
}

// CarbonFootprint sums the CO2-equivalent tonnage of a set of readings.
func CarbonFootprint(readings []*model.Reading) float64 {
	total := 0.0
	for _, reading := range readings {
		total += reading.UsageAmount * emissionFactors[reading.UtilityType]
	}
	return total
}

// ComputeSustainability derives carbon and efficiency metrics for the current
// period against a comparable previous period. RenewablePercent is reported as
// zero: no provider in the pipeline carries generation-mix data yet.
func ComputeSustainability(current, previous []*model.Reading) *model.SustainabilityMetrics {
	metrics := &model.SustainabilityMetrics{
		CarbonFootprintTonnes: CarbonFootprint(current),
		PreviousCarbonTonnes:  CarbonFootprint(previous),
	}

	if metrics.PreviousCarbonTonnes > 0 {
		metrics.CarbonReductionPercent = (metrics.PreviousCarbonTonnes - metrics.CarbonFootprintTonnes) /
			metrics.PreviousCarbonTonnes * 100
	}

	metrics.EfficiencyScore = efficiencyScore(averageUsage(current), averageUsage(previous))
	return metrics
}

// averageUsage is the per-reading mean, so periods with different billing
// cadences compare on the same footing.
func averageUsage(readings []*model.Reading) float64 {
	if len(readings) == 0 {
		return 0
	}
	total := 0.0
	for _, reading := range readings {
		total += reading.UsageAmount
	}
	return total / float64(len(readings))
}

// efficiencyScore maps relative average-usage improvement onto a 0-100 scale
// centered at 50. No history, or identical averages, scores 50.
func efficiencyScore(current, historical float64) float64 {
	if historical == 0 {
		return 50
	}
	score := 50 + (historical-current)/historical*100
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

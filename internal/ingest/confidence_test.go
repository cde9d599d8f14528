package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/castlemilk/homepulse/backend/internal/model"
	"github.com/castlemilk/homepulse/backend/internal/utilityapi"
)

func TestScoreBillConfidence(t *testing.T) {
	tests := []struct {
		name        string
		bill        utilityapi.Bill
		utilityType model.UtilityType
		dateOK      bool
		want        model.Confidence
	}{
		{
			name:        "complete canonical bill is high",
			bill:        utilityapi.Bill{TotalUsage: 500, TotalCost: 120, TotalUnit: "kWh"},
			utilityType: model.UtilityElectricity,
			dateOK:      true,
			want:        model.ConfidenceHigh,
		},
		{
			name:        "non canonical unit drops to medium",
			bill:        utilityapi.Bill{TotalUsage: 100, TotalCost: 80, TotalUnit: "CCF"},
			utilityType: model.UtilityGas,
			dateOK:      true,
			want:        model.ConfidenceMedium,
		},
		{
			name:        "missing cost and bad date is medium",
			bill:        utilityapi.Bill{TotalUsage: 100, TotalUnit: "therms"},
			utilityType: model.UtilityGas,
			dateOK:      false,
			want:        model.ConfidenceMedium,
		},
		{
			name:        "zero usage is always low",
			bill:        utilityapi.Bill{TotalUsage: 0, TotalCost: 120, TotalUnit: "kWh"},
			utilityType: model.UtilityElectricity,
			dateOK:      true,
			want:        model.ConfidenceLow,
		},
		{
			name:        "usage only with bad everything else is low",
			bill:        utilityapi.Bill{TotalUsage: 100, TotalUnit: "mystery"},
			utilityType: model.UtilityWater,
			dateOK:      false,
			want:        model.ConfidenceLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScoreBillConfidence(tt.bill, tt.utilityType, tt.dateOK))
		})
	}
}

package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/castlemilk/homepulse/backend/internal/model"
)

func TestNormalizeUsage(t *testing.T) {
	tests := []struct {
		name        string
		amount      float64
		unit        string
		utilityType model.UtilityType
		wantAmount  float64
		wantUnit    string
	}{
		{
			name:        "gas ccf to therms",
			amount:      100,
			unit:        "CCF",
			utilityType: model.UtilityGas,
			wantAmount:  103.7,
			wantUnit:    UnitTherms,
		},
		{
			name:        "gas therms passes through",
			amount:      42,
			unit:        "therms",
			utilityType: model.UtilityGas,
			wantAmount:  42,
			wantUnit:    "therms",
		},
		{
			name:        "water cubic feet to gallons",
			amount:      10,
			unit:        "cubic feet",
			utilityType: model.UtilityWater,
			wantAmount:  74.8,
			wantUnit:    UnitGallons,
		},
		{
			name:        "internet tb to gb",
			amount:      2,
			unit:        "TB",
			utilityType: model.UtilityInternet,
			wantAmount:  2048,
			wantUnit:    UnitGB,
		},
		{
			name:        "electricity kwh identity",
			amount:      512.5,
			unit:        "kWh",
			utilityType: model.UtilityElectricity,
			wantAmount:  512.5,
			wantUnit:    "kWh",
		},
		{
			name:        "unrecognized unit passes through untouched",
			amount:      7,
			unit:        "widgets",
			utilityType: model.UtilityGas,
			wantAmount:  7,
			wantUnit:    "widgets",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, unit := NormalizeUsage(tt.amount, tt.unit, tt.utilityType)
			assert.InDelta(t, tt.wantAmount, amount, 0.0001)
			assert.Equal(t, tt.wantUnit, unit)
		})
	}
}

func TestCanonicalUnit(t *testing.T) {
	assert.Equal(t, UnitKWh, CanonicalUnit(model.UtilityElectricity))
	assert.Equal(t, UnitTherms, CanonicalUnit(model.UtilityGas))
	assert.Equal(t, UnitGallons, CanonicalUnit(model.UtilityWater))
	assert.Equal(t, UnitGB, CanonicalUnit(model.UtilityInternet))
	assert.Equal(t, "", CanonicalUnit(model.UtilityType("unknown")))
}

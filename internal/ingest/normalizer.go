package ingest

import "github.com/castlemilk/homepulse/backend/internal/model"

// Canonical units per utility type.
const (
	UnitKWh     = "kWh"
	UnitTherms  = "therms"
	UnitGallons = "gallons"
	UnitGB      = "GB"
)

// CanonicalUnit returns the canonical unit for a utility type.
func CanonicalUnit(utilityType model.UtilityType) string {
	switch utilityType {
	case model.UtilityElectricity:
		return UnitKWh
	case model.UtilityGas:
		return UnitTherms
	case model.UtilityWater:
		return UnitGallons
	case model.UtilityInternet:
		return UnitGB
	}
	return ""
}

// NormalizeUsage converts a provider-reported amount/unit pair into the
// canonical unit for the utility type. Unrecognized units pass through
// unchanged: providers report canonical units far more often than not, and
// refusing the reading entirely would drop real data.
func NormalizeUsage(amount float64, unit string, utilityType model.UtilityType) (float64, string) {
	switch utilityType {
	case model.UtilityGas:
		if unit == "CCF" {
			return amount * 1.037, UnitTherms
		}
	case model.UtilityWater:
		if unit == "cubic feet" {
			return amount * 7.48, UnitGallons
		}
	case model.UtilityInternet:
		if unit == "TB" {
			return amount * 1024, UnitGB
		}
	}
	return amount, unit
}

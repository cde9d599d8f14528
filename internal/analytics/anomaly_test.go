package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlemilk/homepulse/backend/internal/model"
	"github.com/castlemilk/homepulse/backend/internal/store"
)

func newTestDetector(s store.Store) *AnomalyDetector {
	return NewAnomalyDetector(s, 0.20, 0.50, 3, 2)
}

func seedReading(t *testing.T, s store.Store, userID string, utilityType model.UtilityType, usage float64, daysAgo int) *model.Reading {
	t.Helper()
	now := time.Now()
	r := &model.Reading{
		ID:          uuid.New().String(),
		UserID:      userID,
		UtilityType: utilityType,
		UsageAmount: usage,
		Unit:        "kWh",
		ReadingDate: now.AddDate(0, 0, -daysAgo),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, s.CreateReading(context.Background(), r))
	return r
}

func TestAnomalyCheckCreatesAlert(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	seedReading(t, s, "user-1", model.UtilityElectricity, 100, 60)
	seedReading(t, s, "user-1", model.UtilityElectricity, 100, 30)
	latest := seedReading(t, s, "user-1", model.UtilityElectricity, 121, 1)

	require.NoError(t, newTestDetector(s).Check(ctx, "user-1", []*model.Reading{latest}))

	alerts, err := s.ListAlerts(ctx, "user-1", true)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.AlertTypeUtilityAnomaly, alerts[0].AlertType)
	assert.Equal(t, model.SeverityMedium, alerts[0].Severity)
	assert.Equal(t, model.UtilityElectricity, alerts[0].Metadata.UtilityType)
	assert.InDelta(t, 21.0, alerts[0].Metadata.PercentIncrease, 0.0001)
	assert.InDelta(t, 100.0, alerts[0].Metadata.AverageUsage, 0.0001)
}

func TestAnomalyCheckBelowThreshold(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	seedReading(t, s, "user-1", model.UtilityElectricity, 100, 60)
	seedReading(t, s, "user-1", model.UtilityElectricity, 100, 30)
	latest := seedReading(t, s, "user-1", model.UtilityElectricity, 119, 1)

	require.NoError(t, newTestDetector(s).Check(ctx, "user-1", []*model.Reading{latest}))

	alerts, err := s.ListAlerts(ctx, "user-1", true)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestAnomalyCheckHighSeverity(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	seedReading(t, s, "user-1", model.UtilityGas, 100, 60)
	seedReading(t, s, "user-1", model.UtilityGas, 100, 30)
	latest := seedReading(t, s, "user-1", model.UtilityGas, 180, 1)

	require.NoError(t, newTestDetector(s).Check(ctx, "user-1", []*model.Reading{latest}))

	alerts, err := s.ListAlerts(ctx, "user-1", true)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.SeverityHigh, alerts[0].Severity)
}

func TestAnomalyCheckExcludesCurrentSetFromBaseline(t *testing.T) {
	// Several spiked readings in the current period must not pull the
	// baseline up and mask each other.
	ctx := context.Background()
	s := store.NewMemoryStore()
	seedReading(t, s, "user-1", model.UtilityElectricity, 100, 80)
	seedReading(t, s, "user-1", model.UtilityElectricity, 100, 70)
	current := []*model.Reading{
		seedReading(t, s, "user-1", model.UtilityElectricity, 160, 20),
		seedReading(t, s, "user-1", model.UtilityElectricity, 160, 15),
		seedReading(t, s, "user-1", model.UtilityElectricity, 160, 10),
		seedReading(t, s, "user-1", model.UtilityElectricity, 160, 5),
	}

	require.NoError(t, newTestDetector(s).Check(ctx, "user-1", current))

	alerts, err := s.ListAlerts(ctx, "user-1", true)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.SeverityHigh, alerts[0].Severity)
	assert.InDelta(t, 100.0, alerts[0].Metadata.AverageUsage, 0.0001)
	assert.InDelta(t, 60.0, alerts[0].Metadata.PercentIncrease, 0.0001)
}

func TestAnomalyCheckNeedsMinimumHistory(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	seedReading(t, s, "user-1", model.UtilityElectricity, 100, 30)
	latest := seedReading(t, s, "user-1", model.UtilityElectricity, 500, 1)

	require.NoError(t, newTestDetector(s).Check(ctx, "user-1", []*model.Reading{latest}))

	alerts, err := s.ListAlerts(ctx, "user-1", true)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestAnomalyCheckEmptyCurrentSet(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	seedReading(t, s, "user-1", model.UtilityElectricity, 100, 60)
	seedReading(t, s, "user-1", model.UtilityElectricity, 100, 30)
	seedReading(t, s, "user-1", model.UtilityElectricity, 500, 1)

	require.NoError(t, newTestDetector(s).Check(ctx, "user-1", nil))

	alerts, err := s.ListAlerts(ctx, "user-1", true)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestAnomalyCheckSuppressesWhileAlertOpen(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	seedReading(t, s, "user-1", model.UtilityElectricity, 100, 60)
	seedReading(t, s, "user-1", model.UtilityElectricity, 100, 30)
	latest := seedReading(t, s, "user-1", model.UtilityElectricity, 150, 1)

	detector := newTestDetector(s)
	require.NoError(t, detector.Check(ctx, "user-1", []*model.Reading{latest}))
	require.NoError(t, detector.Check(ctx, "user-1", []*model.Reading{latest}))

	alerts, err := s.ListAlerts(ctx, "user-1", true)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)

	// Resolving reopens detection.
	require.NoError(t, s.ResolveAlert(ctx, alerts[0].ID))
	require.NoError(t, detector.Check(ctx, "user-1", []*model.Reading{latest}))

	open, err := s.ListAlerts(ctx, "user-1", true)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestAnomalyCheckPerTypeIndependence(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	seedReading(t, s, "user-1", model.UtilityElectricity, 100, 60)
	seedReading(t, s, "user-1", model.UtilityElectricity, 100, 30)
	electricity := seedReading(t, s, "user-1", model.UtilityElectricity, 150, 1)
	seedReading(t, s, "user-1", model.UtilityWater, 100, 60)
	seedReading(t, s, "user-1", model.UtilityWater, 100, 30)
	water := seedReading(t, s, "user-1", model.UtilityWater, 160, 1)

	require.NoError(t, newTestDetector(s).Check(ctx, "user-1", []*model.Reading{electricity, water}))

	alerts, err := s.ListAlerts(ctx, "user-1", true)
	require.NoError(t, err)
	assert.Len(t, alerts, 2)
}

package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/castlemilk/homepulse/backend/internal/model"
	"github.com/castlemilk/homepulse/backend/internal/store"
)

// AnomalyDetector compares current-period readings against each utility
// type's recent historical mean and raises a persisted alert on a spike.
// Detection is best-effort: it runs detached from request handling and its
// failures are logged, never surfaced to callers.
type AnomalyDetector struct {
	store store.Store

	// Threshold is the fractional increase over the historical mean that
	// counts as anomalous (0.20 means 20% over).
	Threshold float64
	// HighThreshold upgrades the alert severity when exceeded.
	HighThreshold float64
	// WindowMonths bounds how far back the historical mean looks.
	WindowMonths int
	// MinHistory is the minimum number of historical readings required before
	// a mean is considered meaningful.
	MinHistory int
}

// NewAnomalyDetector creates a detector with the given tuning.
func NewAnomalyDetector(s store.Store, threshold, highThreshold float64, windowMonths, minHistory int) *AnomalyDetector {
	return &AnomalyDetector{
		store:         s,
		Threshold:     threshold,
		HighThreshold: highThreshold,
		WindowMonths:  windowMonths,
		MinHistory:    minHistory,
	}
}

// ScanDetached runs Check on its own goroutine with the request context
// detached, so a finished request cannot cancel a scan in flight.
func (d *AnomalyDetector) ScanDetached(userID string, current []*model.Reading) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				zap.L().Error("anomaly scan panicked",
					zap.String("user_id", userID),
					zap.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := d.Check(ctx, userID, current); err != nil {
			zap.L().Warn("anomaly scan failed",
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}()
}

// Check evaluates the given current readings against a historical mean built
// from the trailing window, excluding the current set itself so a period is
// never compared against its own spike. At most one unresolved alert exists
// per (user, utility type); further spikes are suppressed until the open
// alert is resolved.
func (d *AnomalyDetector) Check(ctx context.Context, userID string, current []*model.Reading) error {
	windowStart := time.Now().AddDate(0, -d.WindowMonths, 0)

	currentIDs := make(map[string]bool, len(current))
	for _, reading := range current {
		currentIDs[reading.ID] = true
	}

	byType := groupByType(current)
	for _, utilityType := range model.AllUtilityTypes() {
		typed := byType[utilityType]
		if len(typed) == 0 {
			continue
		}

		windowed, _, err := d.store.ListReadings(ctx, userID, utilityType, &windowStart, nil, 0, "")
		if err != nil {
			return fmt.Errorf("failed to list %s readings: %w", utilityType, err)
		}
		var history []*model.Reading
		for _, reading := range windowed {
			if !currentIDs[reading.ID] {
				history = append(history, reading)
			}
		}

		if err := d.checkType(ctx, userID, utilityType, typed, history); err != nil {
			return err
		}
	}
	return nil
}

func (d *AnomalyDetector) checkType(ctx context.Context, userID string, utilityType model.UtilityType, current, history []*model.Reading) error {
	if len(history) < d.MinHistory {
		return nil
	}

	mean := 0.0
	for _, reading := range history {
		mean += reading.UsageAmount
	}
	mean /= float64(len(history))
	if mean <= 0 {
		return nil
	}

	sortByDateDesc(current)
	for _, reading := range current {
		increase := (reading.UsageAmount - mean) / mean
		if increase <= d.Threshold {
			continue
		}

		open, err := d.store.HasUnresolvedAlert(ctx, userID, model.AlertTypeUtilityAnomaly, utilityType)
		if err != nil {
			return fmt.Errorf("failed to check open alerts: %w", err)
		}
		if open {
			continue
		}

		severity := model.SeverityMedium
		if increase > d.HighThreshold {
			severity = model.SeverityHigh
		}

		percent := increase * 100
		alert := &model.AnomalyAlert{
			ID:        uuid.New().String(),
			UserID:    userID,
			AlertType: model.AlertTypeUtilityAnomaly,
			Title:     fmt.Sprintf("Unusual %s usage detected", utilityType),
			Description: fmt.Sprintf("Your %s usage of %.1f %s is %.0f%% above your recent average of %.1f %s.",
				utilityType, reading.UsageAmount, reading.Unit, percent, mean, reading.Unit),
			Severity: severity,
			Metadata: model.AlertMetadata{
				UtilityType:     utilityType,
				CurrentUsage:    reading.UsageAmount,
				AverageUsage:    mean,
				PercentIncrease: percent,
				ReadingDate:     reading.ReadingDate,
			},
			CreatedAt: time.Now(),
		}
		if err := d.store.CreateAlert(ctx, alert); err != nil {
			return fmt.Errorf("failed to create alert: %w", err)
		}

		zap.L().Info("anomaly alert created",
			zap.String("user_id", userID),
			zap.String("utility_type", string(utilityType)),
			zap.Float64("percent_increase", percent),
			zap.String("severity", string(severity)))
	}
	return nil
}

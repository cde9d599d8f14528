package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/castlemilk/homepulse/backend/internal/model"
	"github.com/castlemilk/homepulse/backend/internal/store"
	"github.com/castlemilk/homepulse/backend/internal/utilityapi"
)

// ProviderUtilityAPI is the provider tag stored on raw bill rows.
const ProviderUtilityAPI = "utilityapi"

// BillSource fetches authorizations and bills from the utility data provider.
// Satisfied by *utilityapi.Client and by test doubles.
type BillSource interface {
	GetAuthorization(ctx context.Context, referral string) (*utilityapi.Authorization, error)
	ListBills(ctx context.Context, meterUID string) ([]utilityapi.Bill, error)
}

// BillImporter ingests utility provider bills into raw rows and normalized
// meter readings.
type BillImporter struct {
	store  store.Store
	source BillSource
}

// NewBillImporter wires an importer against a store and provider.
func NewBillImporter(s store.Store, source BillSource) *BillImporter {
	return &BillImporter{store: s, source: source}
}

// Connect exchanges a provider referral for an authorization, persists the
// connection and its meters as utility accounts, and returns the connection.
func (imp *BillImporter) Connect(ctx context.Context, userID, referral string) (*model.Connection, error) {
	auth, err := imp.source.GetAuthorization(ctx, referral)
	if err != nil {
		return nil, &SyncError{Code: ErrProviderUnavailable, Message: "authorization lookup failed", Retryable: true, Cause: err}
	}
	if auth.IsDeclined {
		return nil, &SyncError{Code: ErrAuthDeclined, Message: "utility authorization was declined"}
	}

	now := time.Now()
	conn := &model.Connection{
		ID:           uuid.New().String(),
		UserID:       userID,
		Provider:     ProviderUtilityAPI,
		ConnectionID: auth.UID,
		UtilityName:  auth.UtilityID,
		Status:       model.ConnectionActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := imp.store.CreateConnection(ctx, conn); err != nil {
		return nil, fmt.Errorf("failed to persist connection: %w", err)
	}

	for _, meter := range auth.Meters.Meters {
		account := &model.UtilityAccount{
			ID:             uuid.New().String(),
			UserID:         userID,
			ConnectionID:   conn.ID,
			MeterUID:       meter.UID,
			UtilityType:    ClassifyMeter(meter),
			ServiceClass:   meter.Base.ServiceClass,
			ServiceTariff:  meter.Base.ServiceTariff,
			ServiceAddress: meter.Base.ServiceAddress,
			BillingAccount: meter.Base.BillingAccount,
			BillCount:      meter.BillCount,
			CreatedAt:      now,
		}
		if err := imp.store.CreateUtilityAccount(ctx, account); err != nil {
			zap.L().Warn("failed to persist utility account",
				zap.String("meter_uid", meter.UID),
				zap.Error(err))
		}
	}

	return conn, nil
}

// Sync fetches bills for every meter under the connection and materializes
// readings. A malformed bill is logged and skipped, never aborting the batch.
func (imp *BillImporter) Sync(ctx context.Context, userID, connectionID string) (*model.BillSyncResult, error) {
	conn, err := imp.store.GetConnection(ctx, connectionID)
	if err != nil || conn.UserID != userID || conn.Provider != ProviderUtilityAPI {
		return nil, &SyncError{
			Code:    ErrConnectionNotFound,
			Message: fmt.Sprintf("no utility connection %s for user", connectionID),
			Cause:   err,
		}
	}

	accounts, err := imp.store.ListUtilityAccounts(ctx, conn.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list utility accounts: %w", err)
	}

	result := &model.BillSyncResult{}
	for _, account := range accounts {
		bills, err := imp.source.ListBills(ctx, account.MeterUID)
		if err != nil {
			// One unreachable meter should not starve the others.
			zap.L().Warn("failed to fetch bills for meter",
				zap.String("meter_uid", account.MeterUID),
				zap.Error(err))
			continue
		}
		for _, bill := range bills {
			imp.processBill(ctx, userID, account, bill, result)
		}
	}

	conn.UpdatedAt = time.Now()
	if err := imp.store.UpdateConnection(ctx, conn); err != nil {
		zap.L().Warn("failed to record bill sync time",
			zap.String("connection_id", conn.ID),
			zap.Error(err))
	}

	return result, nil
}

func (imp *BillImporter) processBill(ctx context.Context, userID string, account *model.UtilityAccount, bill utilityapi.Bill, result *model.BillSyncResult) {
	exists, err := imp.store.HasRawBill(ctx, ProviderUtilityAPI, bill.UID)
	if err != nil {
		zap.L().Warn("raw bill lookup failed, skipping",
			zap.String("bill_uid", bill.UID),
			zap.Error(err))
		result.Skipped++
		return
	}
	if exists {
		result.Skipped++
		return
	}

	statementDate, dateErr := time.Parse("2006-01-02", bill.StatementDate)
	dateOK := dateErr == nil
	if !dateOK {
		// Fall back to now so the reading still lands somewhere visible,
		// flagged low-confidence below.
		statementDate = time.Now()
	}

	raw := &model.RawBill{
		ID:            uuid.New().String(),
		UserID:        userID,
		Provider:      ProviderUtilityAPI,
		ProviderUID:   bill.UID,
		ConnectionID:  account.ConnectionID,
		MeterUID:      account.MeterUID,
		UtilityType:   account.UtilityType,
		StatementDate: statementDate,
		TotalUsage:    bill.TotalUsage,
		TotalUnit:     bill.TotalUnit,
		TotalCost:     bill.TotalCost,
		Payload:       string(bill.Raw),
		CreatedAt:     time.Now(),
	}
	if err := imp.store.CreateRawBill(ctx, raw); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			result.Skipped++
			return
		}
		zap.L().Warn("failed to persist raw bill",
			zap.String("bill_uid", bill.UID),
			zap.Error(err))
		result.Skipped++
		return
	}

	usage, unit := NormalizeUsage(bill.TotalUsage, bill.TotalUnit, account.UtilityType)
	confidence := ScoreBillConfidence(bill, account.UtilityType, dateOK)

	now := time.Now()
	reading := &model.Reading{
		ID:           uuid.New().String(),
		UserID:       userID,
		UtilityType:  account.UtilityType,
		UsageAmount:  usage,
		Unit:         unit,
		Cost:         bill.TotalCost,
		HasCost:      bill.TotalCost > 0,
		ReadingDate:  statementDate,
		AutoImported: true,
		NeedsReview:  confidence == model.ConfidenceLow,
		BillID:       bill.UID,
		Confidence:   confidence,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := imp.store.CreateReading(ctx, reading); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			result.Skipped++
			return
		}
		zap.L().Warn("failed to create reading",
			zap.String("bill_uid", bill.UID),
			zap.Error(err))
		result.Skipped++
		return
	}

	result.Imported++
	if reading.NeedsReview {
		result.Flagged++
	}
}

// ClassifyMeter maps a provider meter's service class and tariff to a utility
// type. Electricity is the fallback: it is by far the most common meter kind
// and misclassification surfaces quickly in the review queue.
func ClassifyMeter(meter utilityapi.Meter) model.UtilityType {
	class := strings.ToLower(meter.Base.ServiceClass)
	tariff := strings.ToLower(meter.Base.ServiceTariff)

	switch {
	case strings.Contains(class, "electric"):
		return model.UtilityElectricity
	case strings.Contains(class, "gas"):
		return model.UtilityGas
	case strings.Contains(class, "water") || strings.Contains(class, "sewer"):
		return model.UtilityWater
	case strings.Contains(class, "internet") || strings.Contains(class, "broadband"):
		return model.UtilityInternet
	}

	switch {
	case strings.Contains(tariff, "electric"):
		return model.UtilityElectricity
	case strings.Contains(tariff, "gas"):
		return model.UtilityGas
	case strings.Contains(tariff, "water"):
		return model.UtilityWater
	}

	return model.UtilityElectricity
}

package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/castlemilk/homepulse/backend/internal/model"
	"github.com/castlemilk/homepulse/backend/internal/plaid"
	"github.com/castlemilk/homepulse/backend/internal/store"
)

// ProviderPlaid is the provider tag stored on raw transaction rows.
const ProviderPlaid = "plaid"

// TransactionSource fetches incremental transaction changes from the
// financial data provider. Satisfied by *plaid.Client and by test doubles.
type TransactionSource interface {
	Sync(ctx context.Context, accessToken, cursor string) (*plaid.SyncResponse, error)
}

// TransactionImporter ingests provider transactions into raw rows and
// canonical expenses.
type TransactionImporter struct {
	store  store.Store
	source TransactionSource
	dedup  *DuplicateDetector
}

// NewTransactionImporter wires an importer against a store and provider.
func NewTransactionImporter(s store.Store, source TransactionSource, dedup *DuplicateDetector) *TransactionImporter {
	return &TransactionImporter{store: s, source: source, dedup: dedup}
}

// Sync pulls all pending transaction changes for the connection identified by
// itemID, owned by userID. Items are processed sequentially; a bad record is
// logged and skipped, never aborting the batch. The cursor is persisted
// unconditionally at the end so the next call always moves forward.
func (imp *TransactionImporter) Sync(ctx context.Context, userID, itemID string) (*model.TransactionSyncResult, error) {
	conn, err := imp.resolveConnection(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}

	cursor := ""
	if state, err := imp.store.GetSyncState(ctx, conn.ID); err == nil {
		cursor = state.Cursor
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to load sync state: %w", err)
	}

	result := &model.TransactionSyncResult{}

	// Cursor advance is unconditional, even on partial failure, so a poison
	// item cannot wedge the connection into infinite reprocessing.
	defer func() {
		state := &model.SyncState{
			ConnectionID: conn.ID,
			UserID:       userID,
			Cursor:       cursor,
			LastSyncedAt: time.Now(),
		}
		if err := imp.store.UpsertSyncState(ctx, state); err != nil {
			zap.L().Warn("failed to persist sync cursor",
				zap.String("connection_id", conn.ID),
				zap.Error(err))
		}
	}()

	for {
		page, err := imp.source.Sync(ctx, conn.AccessToken, cursor)
		if err != nil {
			return nil, imp.providerError(ctx, conn, err)
		}

		for _, tx := range page.Added {
			imp.processAdded(ctx, userID, tx, result)
		}
		for _, tx := range page.Modified {
			imp.processModified(ctx, userID, tx, result)
		}
		for _, removed := range page.Removed {
			imp.processRemoved(ctx, userID, removed.TransactionID, result)
		}

		cursor = page.NextCursor
		if !page.HasMore {
			break
		}
	}

	return result, nil
}

func (imp *TransactionImporter) resolveConnection(ctx context.Context, userID, itemID string) (*model.Connection, error) {
	connections, err := imp.store.ListConnections(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	for _, conn := range connections {
		if conn.Provider == ProviderPlaid && (conn.ConnectionID == itemID || conn.ID == itemID) {
			return conn, nil
		}
	}
	return nil, &SyncError{
		Code:    ErrConnectionNotFound,
		Message: fmt.Sprintf("no plaid connection %s for user", itemID),
	}
}

// providerError classifies a provider failure and marks the connection
// errored when its credentials are no longer usable.
func (imp *TransactionImporter) providerError(ctx context.Context, conn *model.Connection, err error) error {
	var plaidErr *plaid.Error
	if errors.As(err, &plaidErr) && plaidErr.IsCredentialError() {
		conn.Status = model.ConnectionError
		conn.UpdatedAt = time.Now()
		if updateErr := imp.store.UpdateConnection(ctx, conn); updateErr != nil {
			zap.L().Warn("failed to mark connection errored",
				zap.String("connection_id", conn.ID),
				zap.Error(updateErr))
		}
		return &SyncError{Code: ErrCredentialsExpired, Message: "connection requires re-authentication", Cause: err}
	}
	return &SyncError{Code: ErrProviderUnavailable, Message: "transaction provider request failed", Retryable: true, Cause: err}
}

func (imp *TransactionImporter) processAdded(ctx context.Context, userID string, tx plaid.Transaction, result *model.TransactionSyncResult) {
	// Pending transactions settle later under a fresh delivery; skip now.
	if tx.Pending {
		result.Skipped++
		return
	}

	date, err := time.Parse("2006-01-02", tx.Date)
	if err != nil {
		zap.L().Warn("skipping transaction with unparseable date",
			zap.String("transaction_id", tx.TransactionID),
			zap.String("date", tx.Date))
		result.Skipped++
		return
	}

	raw := rawFromTransaction(userID, tx, date)
	if err := imp.store.CreateRawTransaction(ctx, raw); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			result.Skipped++
			return
		}
		zap.L().Warn("failed to persist raw transaction",
			zap.String("transaction_id", tx.TransactionID),
			zap.Error(err))
		result.Skipped++
		return
	}

	duplicate, err := imp.dedup.IsDuplicate(ctx, userID, tx.TransactionID, tx.Amount, date, tx.Name)
	if err != nil {
		zap.L().Warn("duplicate check failed, skipping transaction",
			zap.String("transaction_id", tx.TransactionID),
			zap.Error(err))
		result.Skipped++
		return
	}
	if duplicate {
		result.Skipped++
		return
	}

	merchant := tx.MerchantName
	if merchant == "" {
		merchant = tx.Name
	}
	category, confidence := CategorizeTransaction(tx.Category, merchant)

	now := time.Now()
	expense := &model.Expense{
		ID:                 uuid.New().String(),
		UserID:             userID,
		Description:        merchant,
		Amount:             tx.Amount,
		Category:           category,
		Date:               date,
		Vendor:             tx.MerchantName,
		PlaidTransactionID: tx.TransactionID,
		NeedsReview:        confidence == model.ConfidenceLow,
		AutoImported:       true,
		Metadata: model.ExpenseMetadata{
			PlaidCategories: tx.Category,
			Confidence:      confidence,
			OriginalName:    tx.Name,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := imp.store.CreateExpense(ctx, expense); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// Lost a race against a concurrent sync; the expense exists.
			result.Skipped++
			return
		}
		zap.L().Warn("failed to create expense",
			zap.String("transaction_id", tx.TransactionID),
			zap.Error(err))
		result.Skipped++
		return
	}

	result.Imported++
	if expense.NeedsReview {
		result.Flagged++
	}
}

func (imp *TransactionImporter) processModified(ctx context.Context, userID string, tx plaid.Transaction, result *model.TransactionSyncResult) {
	date, err := time.Parse("2006-01-02", tx.Date)
	if err != nil {
		zap.L().Warn("skipping modified transaction with unparseable date",
			zap.String("transaction_id", tx.TransactionID),
			zap.String("date", tx.Date))
		result.Skipped++
		return
	}

	raw, err := imp.store.GetRawTransaction(ctx, ProviderPlaid, tx.TransactionID)
	if err != nil {
		zap.L().Warn("modified transaction has no raw row, skipping",
			zap.String("transaction_id", tx.TransactionID),
			zap.Error(err))
		result.Skipped++
		return
	}
	raw.Amount = tx.Amount
	raw.Date = date
	raw.Name = tx.Name
	raw.MerchantName = tx.MerchantName
	raw.Categories = tx.Category
	if err := imp.store.UpdateRawTransaction(ctx, raw); err != nil {
		zap.L().Warn("failed to update raw transaction",
			zap.String("transaction_id", tx.TransactionID),
			zap.Error(err))
		result.Skipped++
		return
	}

	expense, err := imp.store.GetExpenseByTransactionID(ctx, userID, tx.TransactionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Raw updated but no derived expense was ever created.
			result.Updated++
			return
		}
		zap.L().Warn("failed to load expense for modified transaction",
			zap.String("transaction_id", tx.TransactionID),
			zap.Error(err))
		result.Skipped++
		return
	}

	merchant := tx.MerchantName
	if merchant == "" {
		merchant = tx.Name
	}
	category, confidence := CategorizeTransaction(tx.Category, merchant)

	expense.Amount = tx.Amount
	expense.Date = date
	expense.Description = merchant
	expense.Vendor = tx.MerchantName
	expense.Category = category
	expense.NeedsReview = confidence == model.ConfidenceLow
	expense.Metadata.PlaidCategories = tx.Category
	expense.Metadata.Confidence = confidence
	expense.Metadata.OriginalName = tx.Name
	expense.UpdatedAt = time.Now()

	if err := imp.store.UpdateExpense(ctx, expense); err != nil {
		zap.L().Warn("failed to update expense",
			zap.String("transaction_id", tx.TransactionID),
			zap.Error(err))
		result.Skipped++
		return
	}
	result.Updated++
}

func (imp *TransactionImporter) processRemoved(ctx context.Context, userID, transactionID string, result *model.TransactionSyncResult) {
	now := time.Now()

	if err := imp.store.SoftDeleteRawTransaction(ctx, ProviderPlaid, transactionID, now); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			zap.L().Warn("failed to soft-delete raw transaction",
				zap.String("transaction_id", transactionID),
				zap.Error(err))
			result.Skipped++
			return
		}
	}

	expense, err := imp.store.GetExpenseByTransactionID(ctx, userID, transactionID)
	if err == nil {
		if err := imp.store.SoftDeleteExpense(ctx, expense.ID, now); err != nil {
			zap.L().Warn("failed to soft-delete expense",
				zap.String("transaction_id", transactionID),
				zap.Error(err))
			result.Skipped++
			return
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		zap.L().Warn("failed to load expense for removed transaction",
			zap.String("transaction_id", transactionID),
			zap.Error(err))
		result.Skipped++
		return
	}

	result.Removed++
}

func rawFromTransaction(userID string, tx plaid.Transaction, date time.Time) *model.RawTransaction {
	payload, _ := json.Marshal(tx)
	return &model.RawTransaction{
		ID:            uuid.New().String(),
		UserID:        userID,
		Provider:      ProviderPlaid,
		TransactionID: tx.TransactionID,
		AccountID:     tx.AccountID,
		Amount:        tx.Amount,
		Date:          date,
		Name:          tx.Name,
		MerchantName:  tx.MerchantName,
		Categories:    tx.Category,
		Payload:       string(payload),
		CreatedAt:     time.Now(),
	}
}

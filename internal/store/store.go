package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/castlemilk/homepulse/backend/internal/model"
)

// ErrNotFound is returned when a requested record does not exist or is not
// visible to the caller.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists is returned when a uniqueness constraint would be violated
// (duplicate bill ID, duplicate raw provider record). Ingestion treats it as a
// benign "already processed" signal, which closes the check-then-insert race
// between overlapping syncs.
var ErrAlreadyExists = errors.New("record already exists")

// Store defines the interface for all database operations used by the service
type Store interface {
	// Reading operations
	CreateReading(ctx context.Context, reading *model.Reading) error
	GetReading(ctx context.Context, readingID string) (*model.Reading, error)
	UpdateReading(ctx context.Context, reading *model.Reading) error
	DeleteReading(ctx context.Context, readingID string) error
	ListReadings(ctx context.Context, userID string, utilityType model.UtilityType, startDate, endDate *time.Time, pageSize int32, pageToken string) ([]*model.Reading, string, error)

	// Raw bill operations (append-only dedup anchor)
	CreateRawBill(ctx context.Context, bill *model.RawBill) error
	HasRawBill(ctx context.Context, provider, providerUID string) (bool, error)

	// Raw transaction operations
	CreateRawTransaction(ctx context.Context, tx *model.RawTransaction) error
	GetRawTransaction(ctx context.Context, provider, transactionID string) (*model.RawTransaction, error)
	UpdateRawTransaction(ctx context.Context, tx *model.RawTransaction) error
	SoftDeleteRawTransaction(ctx context.Context, provider, transactionID string, deletedAt time.Time) error

	// Connection operations
	CreateConnection(ctx context.Context, conn *model.Connection) error
	GetConnection(ctx context.Context, connectionID string) (*model.Connection, error)
	UpdateConnection(ctx context.Context, conn *model.Connection) error
	ListConnections(ctx context.Context, userID string) ([]*model.Connection, error)

	// Utility account (meter) operations
	CreateUtilityAccount(ctx context.Context, account *model.UtilityAccount) error
	ListUtilityAccounts(ctx context.Context, connectionID string) ([]*model.UtilityAccount, error)

	// Sync state operations
	GetSyncState(ctx context.Context, connectionID string) (*model.SyncState, error)
	UpsertSyncState(ctx context.Context, state *model.SyncState) error

	// Expense operations
	CreateExpense(ctx context.Context, expense *model.Expense) error
	GetExpense(ctx context.Context, expenseID string) (*model.Expense, error)
	GetExpenseByTransactionID(ctx context.Context, userID, transactionID string) (*model.Expense, error)
	UpdateExpense(ctx context.Context, expense *model.Expense) error
	SoftDeleteExpense(ctx context.Context, expenseID string, deletedAt time.Time) error
	ListExpenses(ctx context.Context, userID string, startDate, endDate *time.Time, pageSize int32, pageToken string) ([]*model.Expense, string, error)
	// FindExpensesNear returns non-deleted expenses with the exact amount and
	// a date inside [startDate, endDate]. Candidate query for fuzzy dedup.
	FindExpensesNear(ctx context.Context, userID string, amount float64, startDate, endDate time.Time) ([]*model.Expense, error)

	// Alert operations
	CreateAlert(ctx context.Context, alert *model.AnomalyAlert) error
	ListAlerts(ctx context.Context, userID string, unresolvedOnly bool) ([]*model.AnomalyAlert, error)
	HasUnresolvedAlert(ctx context.Context, userID, alertType string, utilityType model.UtilityType) (bool, error)
	ResolveAlert(ctx context.Context, alertID string) error
}

// EncodePageToken encodes a document ID into a page token.
func EncodePageToken(docID string) string {
	if docID == "" {
		return ""
	}
	return base64.URLEncoding.EncodeToString([]byte(docID))
}

// DecodePageToken decodes a page token back into a document ID.
func DecodePageToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	decoded, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("invalid page token: %w", err)
	}
	return string(decoded), nil
}

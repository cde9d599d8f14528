package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/castlemilk/homepulse/backend/internal/model"
)

// FirestoreStore implements the Store interface using Firestore
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore creates a new Firestore-backed store
func NewFirestoreStore(client *firestore.Client) Store {
	return &FirestoreStore{
		client: client,
	}
}

const (
	colReadings        = "readings"
	colReadingBills    = "readingBillIndex"
	colRawBills        = "rawBills"
	colRawTransactions = "rawTransactions"
	colConnections     = "connections"
	colAccounts        = "utilityAccounts"
	colSyncStates      = "syncStates"
	colExpenses        = "expenses"
	colAlerts          = "alerts"
)

// rawDocID builds the deterministic document ID for raw provider records.
// Using Create() against a deterministic ID gives the database-level
// uniqueness guarantee on (provider, provider ID).
func rawDocID(provider, providerID string) string {
	return provider + "__" + providerID
}

func isAlreadyExists(err error) bool {
	return status.Code(err) == codes.AlreadyExists
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// applyCursorPagination adds OrderBy + StartAfter + Limit to a query for cursor-based pagination.
// It fetches pageSize+1 docs so the caller can detect whether a next page exists.
func applyCursorPagination(query firestore.Query, pageSize int32, pageToken string) (firestore.Query, error) {
	query = query.OrderBy(firestore.DocumentID, firestore.Asc)

	if pageToken != "" {
		docID, err := DecodePageToken(pageToken)
		if err != nil {
			return query, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.StartAfter(docID)
	}

	if pageSize <= 0 {
		pageSize = 100
	}
	query = query.Limit(int(pageSize) + 1) // +1 to detect next page
	return query, nil
}

// Reading operations

func (s *FirestoreStore) CreateReading(ctx context.Context, reading *model.Reading) error {
	// Readings created from bills must be unique per bill. The index doc is
	// created with Create(), which fails atomically on a duplicate.
	if reading.BillID != "" {
		_, err := s.client.Collection(colReadingBills).Doc(reading.BillID).Create(ctx, map[string]interface{}{
			"ReadingID": reading.ID,
			"UserID":    reading.UserID,
		})
		if err != nil {
			if isAlreadyExists(err) {
				return ErrAlreadyExists
			}
			return fmt.Errorf("failed to reserve bill id: %w", err)
		}
	}

	_, err := s.client.Collection(colReadings).Doc(reading.ID).Set(ctx, reading)
	return err
}

func (s *FirestoreStore) GetReading(ctx context.Context, readingID string) (*model.Reading, error) {
	doc, err := s.client.Collection(colReadings).Doc(readingID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("reading %s: %w", readingID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get reading: %w", err)
	}

	var reading model.Reading
	if err := doc.DataTo(&reading); err != nil {
		return nil, fmt.Errorf("failed to parse reading: %w", err)
	}
	return &reading, nil
}

func (s *FirestoreStore) UpdateReading(ctx context.Context, reading *model.Reading) error {
	existing, err := s.GetReading(ctx, reading.ID)
	if err != nil {
		return err
	}
	// BillID is immutable once set
	if existing.BillID != "" {
		reading.BillID = existing.BillID
	}

	_, err = s.client.Collection(colReadings).Doc(reading.ID).Set(ctx, reading)
	return err
}

func (s *FirestoreStore) DeleteReading(ctx context.Context, readingID string) error {
	reading, err := s.GetReading(ctx, readingID)
	if err != nil {
		return err
	}
	if reading.BillID != "" {
		if _, err := s.client.Collection(colReadingBills).Doc(reading.BillID).Delete(ctx); err != nil {
			return fmt.Errorf("failed to release bill id: %w", err)
		}
	}
	_, err = s.client.Collection(colReadings).Doc(readingID).Delete(ctx)
	return err
}

func (s *FirestoreStore) ListReadings(ctx context.Context, userID string, utilityType model.UtilityType, startDate, endDate *time.Time, pageSize int32, pageToken string) ([]*model.Reading, string, error) {
	// NOTE: Field names must match Go struct field names (PascalCase) as
	// that's how Firestore serializes the structs.
	query := s.client.Collection(colReadings).Query
	if userID != "" {
		query = query.Where("UserID", "==", userID)
	}
	if utilityType != "" {
		query = query.Where("UtilityType", "==", string(utilityType))
	}
	if startDate != nil {
		query = query.Where("ReadingDate", ">=", *startDate)
	}
	if endDate != nil {
		query = query.Where("ReadingDate", "<=", *endDate)
	}

	// Firestore requires OrderBy on the inequality field first.
	if startDate != nil || endDate != nil {
		query = query.OrderBy("ReadingDate", firestore.Desc)
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	if pageToken != "" {
		docID, err := DecodePageToken(pageToken)
		if err != nil {
			return nil, "", err
		}
		cursorDoc, err := s.client.Collection(colReadings).Doc(docID).Get(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("failed to fetch cursor document: %w", err)
		}
		if startDate != nil || endDate != nil {
			query = query.StartAfter(cursorDoc.Data()["ReadingDate"])
		} else {
			query = query.OrderBy(firestore.DocumentID, firestore.Asc).StartAfter(docID)
		}
	}
	query = query.Limit(int(pageSize) + 1)

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, "", fmt.Errorf("failed to list readings: %w", err)
	}

	var nextPageToken string
	if len(docs) > int(pageSize) {
		docs = docs[:pageSize]
		nextPageToken = EncodePageToken(docs[pageSize-1].Ref.ID)
	}

	readings := make([]*model.Reading, 0, len(docs))
	for _, doc := range docs {
		var reading model.Reading
		if err := doc.DataTo(&reading); err != nil {
			return nil, "", fmt.Errorf("failed to parse reading: %w", err)
		}
		readings = append(readings, &reading)
	}
	return readings, nextPageToken, nil
}

// Raw bill operations

func (s *FirestoreStore) CreateRawBill(ctx context.Context, bill *model.RawBill) error {
	_, err := s.client.Collection(colRawBills).Doc(rawDocID(bill.Provider, bill.ProviderUID)).Create(ctx, bill)
	if err != nil {
		if isAlreadyExists(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create raw bill: %w", err)
	}
	return nil
}

func (s *FirestoreStore) HasRawBill(ctx context.Context, provider, providerUID string) (bool, error) {
	_, err := s.client.Collection(colRawBills).Doc(rawDocID(provider, providerUID)).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check raw bill: %w", err)
	}
	return true, nil
}

// Raw transaction operations

func (s *FirestoreStore) CreateRawTransaction(ctx context.Context, tx *model.RawTransaction) error {
	_, err := s.client.Collection(colRawTransactions).Doc(rawDocID(tx.Provider, tx.TransactionID)).Create(ctx, tx)
	if err != nil {
		if isAlreadyExists(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create raw transaction: %w", err)
	}
	return nil
}

func (s *FirestoreStore) GetRawTransaction(ctx context.Context, provider, transactionID string) (*model.RawTransaction, error) {
	doc, err := s.client.Collection(colRawTransactions).Doc(rawDocID(provider, transactionID)).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("raw transaction %s: %w", transactionID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get raw transaction: %w", err)
	}

	var tx model.RawTransaction
	if err := doc.DataTo(&tx); err != nil {
		return nil, fmt.Errorf("failed to parse raw transaction: %w", err)
	}
	return &tx, nil
}

func (s *FirestoreStore) UpdateRawTransaction(ctx context.Context, tx *model.RawTransaction) error {
	_, err := s.client.Collection(colRawTransactions).Doc(rawDocID(tx.Provider, tx.TransactionID)).Set(ctx, tx)
	return err
}

func (s *FirestoreStore) SoftDeleteRawTransaction(ctx context.Context, provider, transactionID string, deletedAt time.Time) error {
	_, err := s.client.Collection(colRawTransactions).Doc(rawDocID(provider, transactionID)).Update(ctx, []firestore.Update{
		{Path: "DeletedAt", Value: deletedAt},
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("raw transaction %s: %w", transactionID, ErrNotFound)
		}
		return fmt.Errorf("failed to soft-delete raw transaction: %w", err)
	}
	return nil
}

// Connection operations

func (s *FirestoreStore) CreateConnection(ctx context.Context, conn *model.Connection) error {
	_, err := s.client.Collection(colConnections).Doc(conn.ID).Set(ctx, conn)
	return err
}

func (s *FirestoreStore) GetConnection(ctx context.Context, connectionID string) (*model.Connection, error) {
	doc, err := s.client.Collection(colConnections).Doc(connectionID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("connection %s: %w", connectionID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}

	var conn model.Connection
	if err := doc.DataTo(&conn); err != nil {
		return nil, fmt.Errorf("failed to parse connection: %w", err)
	}
	return &conn, nil
}

func (s *FirestoreStore) UpdateConnection(ctx context.Context, conn *model.Connection) error {
	_, err := s.client.Collection(colConnections).Doc(conn.ID).Set(ctx, conn)
	return err
}

func (s *FirestoreStore) ListConnections(ctx context.Context, userID string) ([]*model.Connection, error) {
	query := s.client.Collection(colConnections).Query
	if userID != "" {
		query = query.Where("UserID", "==", userID)
	}

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	connections := make([]*model.Connection, 0, len(docs))
	for _, doc := range docs {
		var conn model.Connection
		if err := doc.DataTo(&conn); err != nil {
			return nil, fmt.Errorf("failed to parse connection: %w", err)
		}
		connections = append(connections, &conn)
	}
	return connections, nil
}

// Utility account operations

func (s *FirestoreStore) CreateUtilityAccount(ctx context.Context, account *model.UtilityAccount) error {
	_, err := s.client.Collection(colAccounts).Doc(account.ID).Set(ctx, account)
	return err
}

func (s *FirestoreStore) ListUtilityAccounts(ctx context.Context, connectionID string) ([]*model.UtilityAccount, error) {
	docs, err := s.client.Collection(colAccounts).
		Where("ConnectionID", "==", connectionID).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list utility accounts: %w", err)
	}

	accounts := make([]*model.UtilityAccount, 0, len(docs))
	for _, doc := range docs {
		var account model.UtilityAccount
		if err := doc.DataTo(&account); err != nil {
			return nil, fmt.Errorf("failed to parse utility account: %w", err)
		}
		accounts = append(accounts, &account)
	}
	return accounts, nil
}

// Sync state operations

func (s *FirestoreStore) GetSyncState(ctx context.Context, connectionID string) (*model.SyncState, error) {
	doc, err := s.client.Collection(colSyncStates).Doc(connectionID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("sync state %s: %w", connectionID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}

	var state model.SyncState
	if err := doc.DataTo(&state); err != nil {
		return nil, fmt.Errorf("failed to parse sync state: %w", err)
	}
	return &state, nil
}

func (s *FirestoreStore) UpsertSyncState(ctx context.Context, state *model.SyncState) error {
	_, err := s.client.Collection(colSyncStates).Doc(state.ConnectionID).Set(ctx, state)
	return err
}

// Expense operations

func (s *FirestoreStore) CreateExpense(ctx context.Context, expense *model.Expense) error {
	if expense.PlaidTransactionID != "" {
		existing, err := s.GetExpenseByTransactionID(ctx, expense.UserID, expense.PlaidTransactionID)
		if err == nil && existing != nil {
			return ErrAlreadyExists
		}
	}
	_, err := s.client.Collection(colExpenses).Doc(expense.ID).Set(ctx, expense)
	return err
}

func (s *FirestoreStore) GetExpense(ctx context.Context, expenseID string) (*model.Expense, error) {
	doc, err := s.client.Collection(colExpenses).Doc(expenseID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("expense %s: %w", expenseID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}

	var expense model.Expense
	if err := doc.DataTo(&expense); err != nil {
		return nil, fmt.Errorf("failed to parse expense: %w", err)
	}
	return &expense, nil
}

func (s *FirestoreStore) GetExpenseByTransactionID(ctx context.Context, userID, transactionID string) (*model.Expense, error) {
	docs, err := s.client.Collection(colExpenses).
		Where("UserID", "==", userID).
		Where("PlaidTransactionID", "==", transactionID).
		Limit(1).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query expense by transaction: %w", err)
	}
	for _, doc := range docs {
		var expense model.Expense
		if err := doc.DataTo(&expense); err != nil {
			return nil, fmt.Errorf("failed to parse expense: %w", err)
		}
		if expense.DeletedAt == nil {
			return &expense, nil
		}
	}
	return nil, fmt.Errorf("expense for transaction %s: %w", transactionID, ErrNotFound)
}

func (s *FirestoreStore) UpdateExpense(ctx context.Context, expense *model.Expense) error {
	_, err := s.client.Collection(colExpenses).Doc(expense.ID).Set(ctx, expense)
	return err
}

func (s *FirestoreStore) SoftDeleteExpense(ctx context.Context, expenseID string, deletedAt time.Time) error {
	_, err := s.client.Collection(colExpenses).Doc(expenseID).Update(ctx, []firestore.Update{
		{Path: "DeletedAt", Value: deletedAt},
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("expense %s: %w", expenseID, ErrNotFound)
		}
		return fmt.Errorf("failed to soft-delete expense: %w", err)
	}
	return nil
}

func (s *FirestoreStore) ListExpenses(ctx context.Context, userID string, startDate, endDate *time.Time, pageSize int32, pageToken string) ([]*model.Expense, string, error) {
	query := s.client.Collection(colExpenses).Query
	if userID != "" {
		query = query.Where("UserID", "==", userID)
	}
	if startDate != nil {
		query = query.Where("Date", ">=", *startDate)
	}
	if endDate != nil {
		query = query.Where("Date", "<=", *endDate)
	}

	query, err := applyCursorPagination(query, pageSize, pageToken)
	if err != nil {
		return nil, "", err
	}

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, "", fmt.Errorf("failed to list expenses: %w", err)
	}

	if pageSize <= 0 {
		pageSize = 100
	}
	var nextPageToken string
	if len(docs) > int(pageSize) {
		docs = docs[:pageSize]
		nextPageToken = EncodePageToken(docs[pageSize-1].Ref.ID)
	}

	expenses := make([]*model.Expense, 0, len(docs))
	for _, doc := range docs {
		var expense model.Expense
		if err := doc.DataTo(&expense); err != nil {
			return nil, "", fmt.Errorf("failed to parse expense: %w", err)
		}
		if expense.DeletedAt != nil {
			continue
		}
		expenses = append(expenses, &expense)
	}
	return expenses, nextPageToken, nil
}

func (s *FirestoreStore) FindExpensesNear(ctx context.Context, userID string, amount float64, startDate, endDate time.Time) ([]*model.Expense, error) {
	docs, err := s.client.Collection(colExpenses).
		Where("UserID", "==", userID).
		Where("Amount", "==", amount).
		Where("Date", ">=", startDate).
		Where("Date", "<=", endDate).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query dedup candidates: %w", err)
	}

	expenses := make([]*model.Expense, 0, len(docs))
	for _, doc := range docs {
		var expense model.Expense
		if err := doc.DataTo(&expense); err != nil {
			return nil, fmt.Errorf("failed to parse expense: %w", err)
		}
		if expense.DeletedAt != nil {
			continue
		}
		expenses = append(expenses, &expense)
	}
	return expenses, nil
}

// Alert operations

func (s *FirestoreStore) CreateAlert(ctx context.Context, alert *model.AnomalyAlert) error {
	_, err := s.client.Collection(colAlerts).Doc(alert.ID).Set(ctx, alert)
	return err
}

func (s *FirestoreStore) ListAlerts(ctx context.Context, userID string, unresolvedOnly bool) ([]*model.AnomalyAlert, error) {
	query := s.client.Collection(colAlerts).Query
	if userID != "" {
		query = query.Where("UserID", "==", userID)
	}
	if unresolvedOnly {
		query = query.Where("Resolved", "==", false)
	}

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}

	alerts := make([]*model.AnomalyAlert, 0, len(docs))
	for _, doc := range docs {
		var alert model.AnomalyAlert
		if err := doc.DataTo(&alert); err != nil {
			return nil, fmt.Errorf("failed to parse alert: %w", err)
		}
		alerts = append(alerts, &alert)
	}
	return alerts, nil
}

func (s *FirestoreStore) HasUnresolvedAlert(ctx context.Context, userID, alertType string, utilityType model.UtilityType) (bool, error) {
	docs, err := s.client.Collection(colAlerts).
		Where("UserID", "==", userID).
		Where("AlertType", "==", alertType).
		Where("Metadata.UtilityType", "==", string(utilityType)).
		Where("Resolved", "==", false).
		Limit(1).
		Documents(ctx).GetAll()
	if err != nil {
		return false, fmt.Errorf("failed to check for unresolved alert: %w", err)
	}
	return len(docs) > 0, nil
}

func (s *FirestoreStore) ResolveAlert(ctx context.Context, alertID string) error {
	_, err := s.client.Collection(colAlerts).Doc(alertID).Update(ctx, []firestore.Update{
		{Path: "Resolved", Value: true},
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("alert %s: %w", alertID, ErrNotFound)
		}
		return fmt.Errorf("failed to resolve alert: %w", err)
	}
	return nil
}

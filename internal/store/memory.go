package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/castlemilk/homepulse/backend/internal/model"
	"github.com/google/uuid"
)

// MemoryStore implements Store interface with in-memory storage
type MemoryStore struct {
	mu sync.RWMutex

	// Storage maps
	readings        map[string]*model.Reading
	rawBills        map[string]*model.RawBill        // keyed by provider+"/"+providerUID
	rawTransactions map[string]*model.RawTransaction // keyed by provider+"/"+transactionID
	connections     map[string]*model.Connection
	accounts        map[string]*model.UtilityAccount
	syncStates      map[string]*model.SyncState // keyed by connection ID
	expenses        map[string]*model.Expense
	alerts          map[string]*model.AnomalyAlert
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		readings:        make(map[string]*model.Reading),
		rawBills:        make(map[string]*model.RawBill),
		rawTransactions: make(map[string]*model.RawTransaction),
		connections:     make(map[string]*model.Connection),
		accounts:        make(map[string]*model.UtilityAccount),
		syncStates:      make(map[string]*model.SyncState),
		expenses:        make(map[string]*model.Expense),
		alerts:          make(map[string]*model.AnomalyAlert),
	}
}

func rawKey(provider, providerID string) string {
	return provider + "/" + providerID
}

// paginateIDs applies cursor-based pagination to a slice of IDs.
// Returns the paginated IDs and the next page token (empty if no more pages).
func paginateIDs(ids []string, pageSize int32, pageToken string) ([]string, string) {
	if pageSize <= 0 {
		pageSize = 100
	}

	sort.Strings(ids)

	startIdx := 0
	if pageToken != "" {
		cursorID, err := DecodePageToken(pageToken)
		if err == nil {
			for i, id := range ids {
				if id > cursorID {
					startIdx = i
					break
				}
				if i == len(ids)-1 {
					return nil, ""
				}
			}
		}
	}

	ids = ids[startIdx:]

	var nextToken string
	if int32(len(ids)) > pageSize {
		nextToken = EncodePageToken(ids[pageSize-1])
		ids = ids[:pageSize]
	}

	return ids, nextToken
}

func inDateRange(t time.Time, startDate, endDate *time.Time) bool {
	if startDate != nil && t.Before(*startDate) {
		return false
	}
	if endDate != nil && t.After(*endDate) {
		return false
	}
	return true
}

// Reading operations

func (m *MemoryStore) CreateReading(ctx context.Context, reading *model.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if reading.BillID != "" {
		for _, existing := range m.readings {
			if existing.BillID == reading.BillID {
				return ErrAlreadyExists
			}
		}
	}

	if reading.ID == "" {
		reading.ID = uuid.New().String()
	}

	m.readings[reading.ID] = reading
	return nil
}

func (m *MemoryStore) GetReading(ctx context.Context, readingID string) (*model.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reading, ok := m.readings[readingID]
	if !ok {
		return nil, fmt.Errorf("reading %s: %w", readingID, ErrNotFound)
	}
	return reading, nil
}

func (m *MemoryStore) UpdateReading(ctx context.Context, reading *model.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.readings[reading.ID]
	if !ok {
		return fmt.Errorf("reading %s: %w", reading.ID, ErrNotFound)
	}
	// BillID is immutable once set
	if existing.BillID != "" {
		reading.BillID = existing.BillID
	}

	m.readings[reading.ID] = reading
	return nil
}

func (m *MemoryStore) DeleteReading(ctx context.Context, readingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.readings[readingID]; !ok {
		return fmt.Errorf("reading %s: %w", readingID, ErrNotFound)
	}
	delete(m.readings, readingID)
	return nil
}

func (m *MemoryStore) ListReadings(ctx context.Context, userID string, utilityType model.UtilityType, startDate, endDate *time.Time, pageSize int32, pageToken string) ([]*model.Reading, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matchingIDs []string
	for id, reading := range m.readings {
		if userID != "" && reading.UserID != userID {
			continue
		}
		if utilityType != "" && reading.UtilityType != utilityType {
			continue
		}
		if !inDateRange(reading.ReadingDate, startDate, endDate) {
			continue
		}
		matchingIDs = append(matchingIDs, id)
	}

	paginatedIDs, nextToken := paginateIDs(matchingIDs, pageSize, pageToken)
	result := make([]*model.Reading, 0, len(paginatedIDs))
	for _, id := range paginatedIDs {
		result = append(result, m.readings[id])
	}
	return result, nextToken, nil
}

// Raw bill operations

func (m *MemoryStore) CreateRawBill(ctx context.Context, bill *model.RawBill) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := rawKey(bill.Provider, bill.ProviderUID)
	if _, ok := m.rawBills[key]; ok {
		return ErrAlreadyExists
	}

	if bill.ID == "" {
		bill.ID = uuid.New().String()
	}
	m.rawBills[key] = bill
	return nil
}

func (m *MemoryStore) HasRawBill(ctx context.Context, provider, providerUID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.rawBills[rawKey(provider, providerUID)]
	return ok, nil
}

// Raw transaction operations

func (m *MemoryStore) CreateRawTransaction(ctx context.Context, tx *model.RawTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := rawKey(tx.Provider, tx.TransactionID)
	if _, ok := m.rawTransactions[key]; ok {
		return ErrAlreadyExists
	}

	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	m.rawTransactions[key] = tx
	return nil
}

func (m *MemoryStore) GetRawTransaction(ctx context.Context, provider, transactionID string) (*model.RawTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.rawTransactions[rawKey(provider, transactionID)]
	if !ok {
		return nil, fmt.Errorf("raw transaction %s: %w", transactionID, ErrNotFound)
	}
	return tx, nil
}

func (m *MemoryStore) UpdateRawTransaction(ctx context.Context, tx *model.RawTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := rawKey(tx.Provider, tx.TransactionID)
	if _, ok := m.rawTransactions[key]; !ok {
		return fmt.Errorf("raw transaction %s: %w", tx.TransactionID, ErrNotFound)
	}
	m.rawTransactions[key] = tx
	return nil
}

func (m *MemoryStore) SoftDeleteRawTransaction(ctx context.Context, provider, transactionID string, deletedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.rawTransactions[rawKey(provider, transactionID)]
	if !ok {
		return fmt.Errorf("raw transaction %s: %w", transactionID, ErrNotFound)
	}
	tx.DeletedAt = &deletedAt
	return nil
}

// Connection operations

func (m *MemoryStore) CreateConnection(ctx context.Context, conn *model.Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conn.ID == "" {
		conn.ID = uuid.New().String()
	}
	m.connections[conn.ID] = conn
	return nil
}

func (m *MemoryStore) GetConnection(ctx context.Context, connectionID string) (*model.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conn, ok := m.connections[connectionID]
	if !ok {
		return nil, fmt.Errorf("connection %s: %w", connectionID, ErrNotFound)
	}
	return conn, nil
}

func (m *MemoryStore) UpdateConnection(ctx context.Context, conn *model.Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.connections[conn.ID]; !ok {
		return fmt.Errorf("connection %s: %w", conn.ID, ErrNotFound)
	}
	m.connections[conn.ID] = conn
	return nil
}

func (m *MemoryStore) ListConnections(ctx context.Context, userID string) ([]*model.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, conn := range m.connections {
		if userID != "" && conn.UserID != userID {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := make([]*model.Connection, 0, len(ids))
	for _, id := range ids {
		result = append(result, m.connections[id])
	}
	return result, nil
}

// Utility account operations

func (m *MemoryStore) CreateUtilityAccount(ctx context.Context, account *model.UtilityAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	m.accounts[account.ID] = account
	return nil
}

func (m *MemoryStore) ListUtilityAccounts(ctx context.Context, connectionID string) ([]*model.UtilityAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, account := range m.accounts {
		if account.ConnectionID != connectionID {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := make([]*model.UtilityAccount, 0, len(ids))
	for _, id := range ids {
		result = append(result, m.accounts[id])
	}
	return result, nil
}

// Sync state operations

func (m *MemoryStore) GetSyncState(ctx context.Context, connectionID string) (*model.SyncState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.syncStates[connectionID]
	if !ok {
		return nil, fmt.Errorf("sync state %s: %w", connectionID, ErrNotFound)
	}
	return state, nil
}

func (m *MemoryStore) UpsertSyncState(ctx context.Context, state *model.SyncState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.syncStates[state.ConnectionID] = state
	return nil
}

// Expense operations

func (m *MemoryStore) CreateExpense(ctx context.Context, expense *model.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if expense.PlaidTransactionID != "" {
		for _, existing := range m.expenses {
			if existing.PlaidTransactionID == expense.PlaidTransactionID && existing.DeletedAt == nil {
				return ErrAlreadyExists
			}
		}
	}

	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	m.expenses[expense.ID] = expense
	return nil
}

func (m *MemoryStore) GetExpense(ctx context.Context, expenseID string) (*model.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	expense, ok := m.expenses[expenseID]
	if !ok {
		return nil, fmt.Errorf("expense %s: %w", expenseID, ErrNotFound)
	}
	return expense, nil
}

func (m *MemoryStore) GetExpenseByTransactionID(ctx context.Context, userID, transactionID string) (*model.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, expense := range m.expenses {
		if expense.UserID == userID && expense.PlaidTransactionID == transactionID && expense.DeletedAt == nil {
			return expense, nil
		}
	}
	return nil, fmt.Errorf("expense for transaction %s: %w", transactionID, ErrNotFound)
}

func (m *MemoryStore) UpdateExpense(ctx context.Context, expense *model.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.expenses[expense.ID]; !ok {
		return fmt.Errorf("expense %s: %w", expense.ID, ErrNotFound)
	}
	m.expenses[expense.ID] = expense
	return nil
}

func (m *MemoryStore) SoftDeleteExpense(ctx context.Context, expenseID string, deletedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	expense, ok := m.expenses[expenseID]
	if !ok {
		return fmt.Errorf("expense %s: %w", expenseID, ErrNotFound)
	}
	expense.DeletedAt = &deletedAt
	return nil
}

func (m *MemoryStore) ListExpenses(ctx context.Context, userID string, startDate, endDate *time.Time, pageSize int32, pageToken string) ([]*model.Expense, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matchingIDs []string
	for id, expense := range m.expenses {
		if expense.DeletedAt != nil {
			continue
		}
		if userID != "" && expense.UserID != userID {
			continue
		}
		if !inDateRange(expense.Date, startDate, endDate) {
			continue
		}
		matchingIDs = append(matchingIDs, id)
	}

	paginatedIDs, nextToken := paginateIDs(matchingIDs, pageSize, pageToken)
	result := make([]*model.Expense, 0, len(paginatedIDs))
	for _, id := range paginatedIDs {
		result = append(result, m.expenses[id])
	}
	return result, nextToken, nil
}

func (m *MemoryStore) FindExpensesNear(ctx context.Context, userID string, amount float64, startDate, endDate time.Time) ([]*model.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*model.Expense
	for _, expense := range m.expenses {
		if expense.DeletedAt != nil {
			continue
		}
		if expense.UserID != userID || expense.Amount != amount {
			continue
		}
		if expense.Date.Before(startDate) || expense.Date.After(endDate) {
			continue
		}
		result = append(result, expense)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Alert operations

func (m *MemoryStore) CreateAlert(ctx context.Context, alert *model.AnomalyAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	m.alerts[alert.ID] = alert
	return nil
}

func (m *MemoryStore) ListAlerts(ctx context.Context, userID string, unresolvedOnly bool) ([]*model.AnomalyAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, alert := range m.alerts {
		if userID != "" && alert.UserID != userID {
			continue
		}
		if unresolvedOnly && alert.Resolved {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := make([]*model.AnomalyAlert, 0, len(ids))
	for _, id := range ids {
		result = append(result, m.alerts[id])
	}
	return result, nil
}

func (m *MemoryStore) HasUnresolvedAlert(ctx context.Context, userID, alertType string, utilityType model.UtilityType) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, alert := range m.alerts {
		if alert.UserID == userID && alert.AlertType == alertType &&
			alert.Metadata.UtilityType == utilityType && !alert.Resolved {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) ResolveAlert(ctx context.Context, alertID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert, ok := m.alerts[alertID]
	if !ok {
		return fmt.Errorf("alert %s: %w", alertID, ErrNotFound)
	}
	alert.Resolved = true
	return nil
}

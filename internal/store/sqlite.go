package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/castlemilk/homepulse/backend/internal/model"
)

const sqliteSchemaVersion = 1

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS schema_meta (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS readings (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	utility_type  TEXT NOT NULL,
	usage_amount  REAL NOT NULL,
	unit          TEXT NOT NULL,
	cost          REAL NOT NULL DEFAULT 0,
	has_cost      INTEGER NOT NULL DEFAULT 0,
	reading_date  TEXT NOT NULL,
	auto_imported INTEGER NOT NULL DEFAULT 0,
	needs_review  INTEGER NOT NULL DEFAULT 0,
	bill_id       TEXT,
	confidence    TEXT,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL,
	UNIQUE(bill_id)
);

CREATE TABLE IF NOT EXISTS raw_bills (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	provider       TEXT NOT NULL,
	provider_uid   TEXT NOT NULL,
	connection_id  TEXT NOT NULL,
	meter_uid      TEXT NOT NULL,
	utility_type   TEXT NOT NULL,
	statement_date TEXT NOT NULL,
	total_usage    REAL NOT NULL,
	total_unit     TEXT NOT NULL,
	total_cost     REAL NOT NULL,
	payload        TEXT NOT NULL DEFAULT '',
	created_at     TEXT NOT NULL,
	UNIQUE(provider, provider_uid)
);

CREATE TABLE IF NOT EXISTS raw_transactions (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	provider       TEXT NOT NULL,
	transaction_id TEXT NOT NULL,
	account_id     TEXT NOT NULL,
	amount         REAL NOT NULL,
	date           TEXT NOT NULL,
	name           TEXT NOT NULL,
	merchant_name  TEXT NOT NULL DEFAULT '',
	categories     TEXT NOT NULL DEFAULT '[]',
	payload        TEXT NOT NULL DEFAULT '',
	created_at     TEXT NOT NULL,
	deleted_at     TEXT,
	UNIQUE(provider, transaction_id)
);

CREATE TABLE IF NOT EXISTS connections (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	provider      TEXT NOT NULL,
	connection_id TEXT NOT NULL,
	access_token  TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	utility_name  TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS utility_accounts (
	id              TEXT PRIMARY KEY,
	connection_id   TEXT NOT NULL REFERENCES connections(id),
	user_id         TEXT NOT NULL,
	meter_uid       TEXT NOT NULL,
	utility_type    TEXT NOT NULL,
	service_class   TEXT NOT NULL DEFAULT '',
	service_tariff  TEXT NOT NULL DEFAULT '',
	service_address TEXT NOT NULL DEFAULT '',
	billing_account TEXT NOT NULL DEFAULT '',
	bill_count      INTEGER NOT NULL DEFAULT 0,
	created_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_states (
	connection_id  TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	cursor         TEXT NOT NULL DEFAULT '',
	last_synced_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS expenses (
	id                   TEXT PRIMARY KEY,
	user_id              TEXT NOT NULL,
	description          TEXT NOT NULL,
	amount               REAL NOT NULL,
	category             TEXT NOT NULL,
	date                 TEXT NOT NULL,
	vendor               TEXT NOT NULL DEFAULT '',
	plaid_transaction_id TEXT,
	needs_review         INTEGER NOT NULL DEFAULT 0,
	auto_imported        INTEGER NOT NULL DEFAULT 0,
	metadata             TEXT NOT NULL DEFAULT '{}',
	created_at           TEXT NOT NULL,
	updated_at           TEXT NOT NULL,
	deleted_at           TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_expenses_transaction
	ON expenses(user_id, plaid_transaction_id)
	WHERE plaid_transaction_id IS NOT NULL AND deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS alerts (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	alert_type   TEXT NOT NULL,
	title        TEXT NOT NULL,
	description  TEXT NOT NULL,
	severity     TEXT NOT NULL,
	utility_type TEXT NOT NULL,
	metadata     TEXT NOT NULL DEFAULT '{}',
	resolved     INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_readings_user_date ON readings(user_id, reading_date);
CREATE INDEX IF NOT EXISTS idx_expenses_user_date ON expenses(user_id, date);
CREATE INDEX IF NOT EXISTS idx_expenses_dedup ON expenses(user_id, amount, date);
CREATE INDEX IF NOT EXISTS idx_alerts_user ON alerts(user_id, alert_type, resolved);
`

// SQLiteStore implements the Store interface on a local SQLite database. The
// UNIQUE constraints in the schema are the authoritative defense against
// double-import from overlapping syncs.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the database at path and applies
// the schema.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	var version int
	err = db.QueryRow(`SELECT version FROM schema_meta LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := db.Exec(`INSERT INTO schema_meta (version) VALUES (?)`, sqliteSchemaVersion); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to record schema version: %w", err)
		}
	} else if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read schema version: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Reading operations

func (s *SQLiteStore) CreateReading(ctx context.Context, reading *model.Reading) error {
	if reading.ID == "" {
		reading.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO readings (id, user_id, utility_type, usage_amount, unit, cost, has_cost,
			reading_date, auto_imported, needs_review, bill_id, confidence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reading.ID, reading.UserID, string(reading.UtilityType), reading.UsageAmount, reading.Unit,
		reading.Cost, reading.HasCost, fmtTime(reading.ReadingDate), reading.AutoImported,
		reading.NeedsReview, nullIfEmpty(reading.BillID), string(reading.Confidence),
		fmtTime(reading.CreatedAt), fmtTime(reading.UpdatedAt))
	if err != nil {
		if isConstraintErr(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create reading: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanReading(row interface{ Scan(...interface{}) error }) (*model.Reading, error) {
	var r model.Reading
	var utilityType, confidence, readingDate, createdAt, updatedAt string
	var billID sql.NullString
	err := row.Scan(&r.ID, &r.UserID, &utilityType, &r.UsageAmount, &r.Unit, &r.Cost, &r.HasCost,
		&readingDate, &r.AutoImported, &r.NeedsReview, &billID, &confidence, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	r.UtilityType = model.UtilityType(utilityType)
	r.Confidence = model.Confidence(confidence)
	r.ReadingDate = parseTime(readingDate)
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	r.BillID = billID.String
	return &r, nil
}

const readingColumns = `id, user_id, utility_type, usage_amount, unit, cost, has_cost,
	reading_date, auto_imported, needs_review, bill_id, confidence, created_at, updated_at`

func (s *SQLiteStore) GetReading(ctx context.Context, readingID string) (*model.Reading, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+readingColumns+` FROM readings WHERE id = ?`, readingID)
	reading, err := s.scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reading %s: %w", readingID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reading: %w", err)
	}
	return reading, nil
}

func (s *SQLiteStore) UpdateReading(ctx context.Context, reading *model.Reading) error {
	// bill_id deliberately not in the SET list: immutable once written.
	res, err := s.db.ExecContext(ctx, `
		UPDATE readings SET utility_type = ?, usage_amount = ?, unit = ?, cost = ?, has_cost = ?,
			reading_date = ?, auto_imported = ?, needs_review = ?, confidence = ?, updated_at = ?
		WHERE id = ?`,
		string(reading.UtilityType), reading.UsageAmount, reading.Unit, reading.Cost, reading.HasCost,
		fmtTime(reading.ReadingDate), reading.AutoImported, reading.NeedsReview,
		string(reading.Confidence), fmtTime(reading.UpdatedAt), reading.ID)
	if err != nil {
		return fmt.Errorf("failed to update reading: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("reading %s: %w", reading.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) DeleteReading(ctx context.Context, readingID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM readings WHERE id = ?`, readingID)
	if err != nil {
		return fmt.Errorf("failed to delete reading: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("reading %s: %w", readingID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) ListReadings(ctx context.Context, userID string, utilityType model.UtilityType, startDate, endDate *time.Time, pageSize int32, pageToken string) ([]*model.Reading, string, error) {
	query := `SELECT ` + readingColumns + ` FROM readings WHERE 1=1`
	var args []interface{}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	if utilityType != "" {
		query += ` AND utility_type = ?`
		args = append(args, string(utilityType))
	}
	if startDate != nil {
		query += ` AND reading_date >= ?`
		args = append(args, fmtTime(*startDate))
	}
	if endDate != nil {
		query += ` AND reading_date <= ?`
		args = append(args, fmtTime(*endDate))
	}
	if pageToken != "" {
		cursorID, err := DecodePageToken(pageToken)
		if err != nil {
			return nil, "", err
		}
		query += ` AND id > ?`
		args = append(args, cursorID)
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, pageSize+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list readings: %w", err)
	}
	defer rows.Close()

	var readings []*model.Reading
	for rows.Next() {
		reading, err := s.scanReading(rows)
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var nextToken string
	if int32(len(readings)) > pageSize {
		readings = readings[:pageSize]
		nextToken = EncodePageToken(readings[pageSize-1].ID)
	}
	return readings, nextToken, nil
}

// Raw bill operations

func (s *SQLiteStore) CreateRawBill(ctx context.Context, bill *model.RawBill) error {
	if bill.ID == "" {
		bill.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO raw_bills (id, user_id, provider, provider_uid, connection_id, meter_uid,
			utility_type, statement_date, total_usage, total_unit, total_cost, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		bill.ID, bill.UserID, bill.Provider, bill.ProviderUID, bill.ConnectionID, bill.MeterUID,
		string(bill.UtilityType), fmtTime(bill.StatementDate), bill.TotalUsage, bill.TotalUnit,
		bill.TotalCost, bill.Payload, fmtTime(bill.CreatedAt))
	if err != nil {
		if isConstraintErr(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create raw bill: %w", err)
	}
	return nil
}

func (s *SQLiteStore) HasRawBill(ctx context.Context, provider, providerUID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM raw_bills WHERE provider = ? AND provider_uid = ?`, provider, providerUID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check raw bill: %w", err)
	}
	return true, nil
}

// Raw transaction operations

func (s *SQLiteStore) CreateRawTransaction(ctx context.Context, tx *model.RawTransaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	categories, err := json.Marshal(tx.Categories)
	if err != nil {
		return fmt.Errorf("failed to encode categories: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO raw_transactions (id, user_id, provider, transaction_id, account_id, amount,
			date, name, merchant_name, categories, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.UserID, tx.Provider, tx.TransactionID, tx.AccountID, tx.Amount,
		fmtTime(tx.Date), tx.Name, tx.MerchantName, string(categories), tx.Payload, fmtTime(tx.CreatedAt))
	if err != nil {
		if isConstraintErr(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create raw transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRawTransaction(ctx context.Context, provider, transactionID string) (*model.RawTransaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, provider, transaction_id, account_id, amount, date, name,
			merchant_name, categories, payload, created_at, deleted_at
		FROM raw_transactions WHERE provider = ? AND transaction_id = ?`, provider, transactionID)

	var tx model.RawTransaction
	var date, categories, createdAt string
	var deletedAt sql.NullString
	err := row.Scan(&tx.ID, &tx.UserID, &tx.Provider, &tx.TransactionID, &tx.AccountID, &tx.Amount,
		&date, &tx.Name, &tx.MerchantName, &categories, &tx.Payload, &createdAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("raw transaction %s: %w", transactionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get raw transaction: %w", err)
	}
	tx.Date = parseTime(date)
	tx.CreatedAt = parseTime(createdAt)
	if err := json.Unmarshal([]byte(categories), &tx.Categories); err != nil {
		return nil, fmt.Errorf("failed to decode categories: %w", err)
	}
	if deletedAt.Valid {
		t := parseTime(deletedAt.String)
		tx.DeletedAt = &t
	}
	return &tx, nil
}

func (s *SQLiteStore) UpdateRawTransaction(ctx context.Context, tx *model.RawTransaction) error {
	categories, err := json.Marshal(tx.Categories)
	if err != nil {
		return fmt.Errorf("failed to encode categories: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE raw_transactions SET amount = ?, date = ?, name = ?, merchant_name = ?,
			categories = ?, payload = ?
		WHERE provider = ? AND transaction_id = ?`,
		tx.Amount, fmtTime(tx.Date), tx.Name, tx.MerchantName, string(categories), tx.Payload,
		tx.Provider, tx.TransactionID)
	if err != nil {
		return fmt.Errorf("failed to update raw transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("raw transaction %s: %w", tx.TransactionID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) SoftDeleteRawTransaction(ctx context.Context, provider, transactionID string, deletedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE raw_transactions SET deleted_at = ? WHERE provider = ? AND transaction_id = ?`,
		fmtTime(deletedAt), provider, transactionID)
	if err != nil {
		return fmt.Errorf("failed to soft-delete raw transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("raw transaction %s: %w", transactionID, ErrNotFound)
	}
	return nil
}

// Connection operations

func (s *SQLiteStore) CreateConnection(ctx context.Context, conn *model.Connection) error {
	if conn.ID == "" {
		conn.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connections (id, user_id, provider, connection_id, access_token, status,
			utility_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conn.ID, conn.UserID, conn.Provider, conn.ConnectionID, conn.AccessToken,
		string(conn.Status), conn.UtilityName, fmtTime(conn.CreatedAt), fmtTime(conn.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create connection: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanConnection(row interface{ Scan(...interface{}) error }) (*model.Connection, error) {
	var c model.Connection
	var status, createdAt, updatedAt string
	err := row.Scan(&c.ID, &c.UserID, &c.Provider, &c.ConnectionID, &c.AccessToken,
		&status, &c.UtilityName, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	c.Status = model.ConnectionStatus(status)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

func (s *SQLiteStore) GetConnection(ctx context.Context, connectionID string) (*model.Connection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, provider, connection_id, access_token, status, utility_name, created_at, updated_at
		FROM connections WHERE id = ?`, connectionID)
	conn, err := s.scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("connection %s: %w", connectionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

func (s *SQLiteStore) UpdateConnection(ctx context.Context, conn *model.Connection) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE connections SET provider = ?, connection_id = ?, access_token = ?, status = ?,
			utility_name = ?, updated_at = ?
		WHERE id = ?`,
		conn.Provider, conn.ConnectionID, conn.AccessToken, string(conn.Status),
		conn.UtilityName, fmtTime(conn.UpdatedAt), conn.ID)
	if err != nil {
		return fmt.Errorf("failed to update connection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("connection %s: %w", conn.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) ListConnections(ctx context.Context, userID string) ([]*model.Connection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, provider, connection_id, access_token, status, utility_name, created_at, updated_at
		FROM connections WHERE user_id = ? ORDER BY id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var connections []*model.Connection
	for rows.Next() {
		conn, err := s.scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		connections = append(connections, conn)
	}
	return connections, rows.Err()
}

// Utility account operations

func (s *SQLiteStore) CreateUtilityAccount(ctx context.Context, account *model.UtilityAccount) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO utility_accounts (id, connection_id, user_id, meter_uid, utility_type,
			service_class, service_tariff, service_address, billing_account, bill_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID, account.ConnectionID, account.UserID, account.MeterUID, string(account.UtilityType),
		account.ServiceClass, account.ServiceTariff, account.ServiceAddress, account.BillingAccount,
		account.BillCount, fmtTime(account.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create utility account: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListUtilityAccounts(ctx context.Context, connectionID string) ([]*model.UtilityAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, connection_id, user_id, meter_uid, utility_type, service_class, service_tariff,
			service_address, billing_account, bill_count, created_at
		FROM utility_accounts WHERE connection_id = ? ORDER BY id ASC`, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list utility accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*model.UtilityAccount
	for rows.Next() {
		var a model.UtilityAccount
		var utilityType, createdAt string
		if err := rows.Scan(&a.ID, &a.ConnectionID, &a.UserID, &a.MeterUID, &utilityType,
			&a.ServiceClass, &a.ServiceTariff, &a.ServiceAddress, &a.BillingAccount,
			&a.BillCount, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan utility account: %w", err)
		}
		a.UtilityType = model.UtilityType(utilityType)
		a.CreatedAt = parseTime(createdAt)
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}

// Sync state operations

func (s *SQLiteStore) GetSyncState(ctx context.Context, connectionID string) (*model.SyncState, error) {
	var state model.SyncState
	var lastSyncedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT connection_id, user_id, cursor, last_synced_at FROM sync_states WHERE connection_id = ?`,
		connectionID).Scan(&state.ConnectionID, &state.UserID, &state.Cursor, &lastSyncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sync state %s: %w", connectionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}
	state.LastSyncedAt = parseTime(lastSyncedAt)
	return &state, nil
}

func (s *SQLiteStore) UpsertSyncState(ctx context.Context, state *model.SyncState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_states (connection_id, user_id, cursor, last_synced_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(connection_id) DO UPDATE SET cursor = excluded.cursor, last_synced_at = excluded.last_synced_at`,
		state.ConnectionID, state.UserID, state.Cursor, fmtTime(state.LastSyncedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert sync state: %w", err)
	}
	return nil
}

// Expense operations

func (s *SQLiteStore) CreateExpense(ctx context.Context, expense *model.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	metadata, err := json.Marshal(expense.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, user_id, description, amount, category, date, vendor,
			plaid_transaction_id, needs_review, auto_imported, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		expense.ID, expense.UserID, expense.Description, expense.Amount, expense.Category,
		fmtTime(expense.Date), expense.Vendor, nullIfEmpty(expense.PlaidTransactionID),
		expense.NeedsReview, expense.AutoImported, string(metadata),
		fmtTime(expense.CreatedAt), fmtTime(expense.UpdatedAt))
	if err != nil {
		if isConstraintErr(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create expense: %w", err)
	}
	return nil
}

const expenseColumns = `id, user_id, description, amount, category, date, vendor,
	plaid_transaction_id, needs_review, auto_imported, metadata, created_at, updated_at, deleted_at`

func (s *SQLiteStore) scanExpense(row interface{ Scan(...interface{}) error }) (*model.Expense, error) {
	var e model.Expense
	var date, metadata, createdAt, updatedAt string
	var transactionID, deletedAt sql.NullString
	err := row.Scan(&e.ID, &e.UserID, &e.Description, &e.Amount, &e.Category, &date, &e.Vendor,
		&transactionID, &e.NeedsReview, &e.AutoImported, &metadata, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	e.Date = parseTime(date)
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	e.PlaidTransactionID = transactionID.String
	if deletedAt.Valid {
		t := parseTime(deletedAt.String)
		e.DeletedAt = &t
	}
	if err := json.Unmarshal([]byte(metadata), &e.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return &e, nil
}

func (s *SQLiteStore) GetExpense(ctx context.Context, expenseID string) (*model.Expense, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, expenseID)
	expense, err := s.scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("expense %s: %w", expenseID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return expense, nil
}

func (s *SQLiteStore) GetExpenseByTransactionID(ctx context.Context, userID, transactionID string) (*model.Expense, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		WHERE user_id = ? AND plaid_transaction_id = ? AND deleted_at IS NULL`, userID, transactionID)
	expense, err := s.scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("expense for transaction %s: %w", transactionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense by transaction: %w", err)
	}
	return expense, nil
}

func (s *SQLiteStore) UpdateExpense(ctx context.Context, expense *model.Expense) error {
	metadata, err := json.Marshal(expense.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE expenses SET description = ?, amount = ?, category = ?, date = ?, vendor = ?,
			needs_review = ?, auto_imported = ?, metadata = ?, updated_at = ?
		WHERE id = ?`,
		expense.Description, expense.Amount, expense.Category, fmtTime(expense.Date), expense.Vendor,
		expense.NeedsReview, expense.AutoImported, string(metadata), fmtTime(expense.UpdatedAt), expense.ID)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("expense %s: %w", expense.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) SoftDeleteExpense(ctx context.Context, expenseID string, deletedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE expenses SET deleted_at = ? WHERE id = ?`, fmtTime(deletedAt), expenseID)
	if err != nil {
		return fmt.Errorf("failed to soft-delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("expense %s: %w", expenseID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) ListExpenses(ctx context.Context, userID string, startDate, endDate *time.Time, pageSize int32, pageToken string) ([]*model.Expense, string, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE deleted_at IS NULL`
	var args []interface{}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	if startDate != nil {
		query += ` AND date >= ?`
		args = append(args, fmtTime(*startDate))
	}
	if endDate != nil {
		query += ` AND date <= ?`
		args = append(args, fmtTime(*endDate))
	}
	if pageToken != "" {
		cursorID, err := DecodePageToken(pageToken)
		if err != nil {
			return nil, "", err
		}
		query += ` AND id > ?`
		args = append(args, cursorID)
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, pageSize+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*model.Expense
	for rows.Next() {
		expense, err := s.scanExpense(rows)
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, expense)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var nextToken string
	if int32(len(expenses)) > pageSize {
		expenses = expenses[:pageSize]
		nextToken = EncodePageToken(expenses[pageSize-1].ID)
	}
	return expenses, nextToken, nil
}

func (s *SQLiteStore) FindExpensesNear(ctx context.Context, userID string, amount float64, startDate, endDate time.Time) ([]*model.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		WHERE deleted_at IS NULL AND user_id = ? AND amount = ? AND date >= ? AND date <= ?
		ORDER BY id ASC`,
		userID, amount, fmtTime(startDate), fmtTime(endDate))
	if err != nil {
		return nil, fmt.Errorf("failed to query dedup candidates: %w", err)
	}
	defer rows.Close()

	var expenses []*model.Expense
	for rows.Next() {
		expense, err := s.scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, expense)
	}
	return expenses, rows.Err()
}

// Alert operations

func (s *SQLiteStore) CreateAlert(ctx context.Context, alert *model.AnomalyAlert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	metadata, err := json.Marshal(alert.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, user_id, alert_type, title, description, severity, utility_type,
			metadata, resolved, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.UserID, alert.AlertType, alert.Title, alert.Description,
		string(alert.Severity), string(alert.Metadata.UtilityType), string(metadata),
		alert.Resolved, fmtTime(alert.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, userID string, unresolvedOnly bool) ([]*model.AnomalyAlert, error) {
	query := `SELECT id, user_id, alert_type, title, description, severity, metadata, resolved, created_at
		FROM alerts WHERE user_id = ?`
	args := []interface{}{userID}
	if unresolvedOnly {
		query += ` AND resolved = 0`
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*model.AnomalyAlert
	for rows.Next() {
		var a model.AnomalyAlert
		var severity, metadata, createdAt string
		if err := rows.Scan(&a.ID, &a.UserID, &a.AlertType, &a.Title, &a.Description,
			&severity, &metadata, &a.Resolved, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Severity = model.AlertSeverity(severity)
		a.CreatedAt = parseTime(createdAt)
		if err := json.Unmarshal([]byte(metadata), &a.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode alert metadata: %w", err)
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

func (s *SQLiteStore) HasUnresolvedAlert(ctx context.Context, userID, alertType string, utilityType model.UtilityType) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM alerts
		WHERE user_id = ? AND alert_type = ? AND utility_type = ? AND resolved = 0`,
		userID, alertType, string(utilityType)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check for unresolved alert: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) ResolveAlert(ctx context.Context, alertID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET resolved = 1 WHERE id = ?`, alertID)
	if err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("alert %s: %w", alertID, ErrNotFound)
	}
	return nil
}

package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlemilk/homepulse/backend/internal/model"
	"github.com/castlemilk/homepulse/backend/internal/plaid"
	"github.com/castlemilk/homepulse/backend/internal/store"
)

// fakeTransactionSource replays canned sync pages and records the cursors it
// was called with.
type fakeTransactionSource struct {
	pages   []*plaid.SyncResponse
	err     error
	cursors []string
	calls   int
}

func (f *fakeTransactionSource) Sync(_ context.Context, _ string, cursor string) (*plaid.SyncResponse, error) {
	f.cursors = append(f.cursors, cursor)
	if f.err != nil {
		return nil, f.err
	}
	page := f.pages[f.calls]
	f.calls++
	return page, nil
}

func seedPlaidConnection(t *testing.T, s store.Store, userID, itemID string) *model.Connection {
	t.Helper()
	conn := &model.Connection{
		ID:           "conn-" + itemID,
		UserID:       userID,
		Provider:     ProviderPlaid,
		ConnectionID: itemID,
		AccessToken:  "access-" + itemID,
		Status:       model.ConnectionActive,
	}
	require.NoError(t, s.CreateConnection(context.Background(), conn))
	return conn
}

func TestTransactionSyncImportsAndCategorizes(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	conn := seedPlaidConnection(t, s, "user-1", "item-1")

	source := &fakeTransactionSource{pages: []*plaid.SyncResponse{{
		Added: []plaid.Transaction{
			{
				TransactionID: "txn-1",
				AccountID:     "acct-1",
				Amount:        250.00,
				Date:          "2024-03-10",
				Name:          "HOME DEPOT #123",
				MerchantName:  "Home Depot",
				Category:      []string{"HOME_IMPROVEMENT", "HARDWARE_STORES"},
			},
			{
				TransactionID: "txn-2",
				AccountID:     "acct-1",
				Amount:        12.34,
				Date:          "2024-03-11",
				Name:          "MYSTERY VENDOR",
				Category:      []string{"FOOD_AND_DRINK"},
			},
			{
				TransactionID: "txn-pending",
				Amount:        5,
				Date:          "2024-03-11",
				Name:          "Pending Coffee",
				Pending:       true,
			},
		},
		NextCursor: "cursor-1",
		HasMore:    false,
	}}}

	importer := NewTransactionImporter(s, source, NewDuplicateDetector(s, 0.7, 2))
	result, err := importer.Sync(ctx, "user-1", "item-1")
	require.NoError(t, err)

	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Flagged)

	expense, err := s.GetExpenseByTransactionID(ctx, "user-1", "txn-1")
	require.NoError(t, err)
	assert.Equal(t, CategoryRenovation, expense.Category)
	assert.Equal(t, model.ConfidenceHigh, expense.Metadata.Confidence)
	assert.False(t, expense.NeedsReview)
	assert.True(t, expense.AutoImported)

	flagged, err := s.GetExpenseByTransactionID(ctx, "user-1", "txn-2")
	require.NoError(t, err)
	assert.Equal(t, CategoryUncategorized, flagged.Category)
	assert.True(t, flagged.NeedsReview)

	state, err := s.GetSyncState(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, "cursor-1", state.Cursor)
	assert.False(t, state.LastSyncedAt.IsZero())
}

func TestTransactionSyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	seedPlaidConnection(t, s, "user-1", "item-1")

	page := &plaid.SyncResponse{
		Added: []plaid.Transaction{{
			TransactionID: "txn-1",
			Amount:        99.00,
			Date:          "2024-03-10",
			Name:          "Home Depot",
			Category:      []string{"HOME_IMPROVEMENT"},
		}},
		NextCursor: "cursor-1",
	}

	importer := NewTransactionImporter(s, &fakeTransactionSource{pages: []*plaid.SyncResponse{page, page}},
		NewDuplicateDetector(s, 0.7, 2))

	first, err := importer.Sync(ctx, "user-1", "item-1")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Imported)

	second, err := importer.Sync(ctx, "user-1", "item-1")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, 1, second.Skipped)
}

func TestTransactionSyncPaginates(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	seedPlaidConnection(t, s, "user-1", "item-1")

	source := &fakeTransactionSource{pages: []*plaid.SyncResponse{
		{
			Added:      []plaid.Transaction{{TransactionID: "txn-1", Amount: 10, Date: "2024-03-01", Name: "A"}},
			NextCursor: "cursor-1",
			HasMore:    true,
		},
		{
			Added:      []plaid.Transaction{{TransactionID: "txn-2", Amount: 20, Date: "2024-03-02", Name: "B"}},
			NextCursor: "cursor-2",
			HasMore:    false,
		},
	}}

	importer := NewTransactionImporter(s, source, NewDuplicateDetector(s, 0.7, 2))
	result, err := importer.Sync(ctx, "user-1", "item-1")
	require.NoError(t, err)

	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, []string{"", "cursor-1"}, source.cursors)
}

func TestTransactionSyncModifiedAndRemoved(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	seedPlaidConnection(t, s, "user-1", "item-1")

	source := &fakeTransactionSource{pages: []*plaid.SyncResponse{
		{
			Added: []plaid.Transaction{
				{TransactionID: "txn-1", Amount: 50, Date: "2024-03-01", Name: "Home Depot", Category: []string{"HOME_IMPROVEMENT"}},
				{TransactionID: "txn-2", Amount: 80, Date: "2024-03-02", Name: "PG&E", Category: []string{"UTILITIES"}},
			},
			NextCursor: "cursor-1",
		},
		{
			Modified: []plaid.Transaction{
				{TransactionID: "txn-1", Amount: 55, Date: "2024-03-01", Name: "Home Depot", Category: []string{"HOME_IMPROVEMENT"}},
			},
			Removed:    []plaid.RemovedTransaction{{TransactionID: "txn-2"}},
			NextCursor: "cursor-2",
		},
	}}

	importer := NewTransactionImporter(s, source, NewDuplicateDetector(s, 0.7, 2))

	_, err := importer.Sync(ctx, "user-1", "item-1")
	require.NoError(t, err)

	result, err := importer.Sync(ctx, "user-1", "item-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Removed)

	modified, err := s.GetExpenseByTransactionID(ctx, "user-1", "txn-1")
	require.NoError(t, err)
	assert.Equal(t, 55.0, modified.Amount)

	_, err = s.GetExpenseByTransactionID(ctx, "user-1", "txn-2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTransactionSyncCredentialFailure(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	conn := seedPlaidConnection(t, s, "user-1", "item-1")

	source := &fakeTransactionSource{err: &plaid.Error{
		StatusCode: 400,
		Code:       "ITEM_LOGIN_REQUIRED",
		Message:    "the login details have changed",
	}}

	importer := NewTransactionImporter(s, source, NewDuplicateDetector(s, 0.7, 2))
	_, err := importer.Sync(ctx, "user-1", "item-1")

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, ErrCredentialsExpired, syncErr.Code)

	updated, err := s.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConnectionError, updated.Status)
}

func TestTransactionSyncUnknownConnection(t *testing.T) {
	s := store.NewMemoryStore()
	importer := NewTransactionImporter(s, &fakeTransactionSource{}, NewDuplicateDetector(s, 0.7, 2))

	_, err := importer.Sync(context.Background(), "user-1", "missing-item")

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, ErrConnectionNotFound, syncErr.Code)
}

func TestTransactionSyncBadDateIsolated(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	seedPlaidConnection(t, s, "user-1", "item-1")

	source := &fakeTransactionSource{pages: []*plaid.SyncResponse{{
		Added: []plaid.Transaction{
			{TransactionID: "txn-bad", Amount: 10, Date: "not-a-date", Name: "Broken"},
			{TransactionID: "txn-good", Amount: 20, Date: "2024-03-02", Name: "Home Depot", Category: []string{"HOME_IMPROVEMENT"}},
		},
		NextCursor: "cursor-1",
	}}}

	importer := NewTransactionImporter(s, source, NewDuplicateDetector(s, 0.7, 2))
	result, err := importer.Sync(ctx, "user-1", "item-1")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Skipped)

	state, err := s.GetSyncState(ctx, "conn-item-1")
	require.NoError(t, err)
	assert.Equal(t, "cursor-1", state.Cursor)
}

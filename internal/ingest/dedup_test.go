package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlemilk/homepulse/backend/internal/model"
	"github.com/castlemilk/homepulse/backend/internal/store"
)

func TestNameSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{name: "identical", a: "Home Depot", b: "Home Depot", want: 1},
		{name: "case insensitive", a: "HOME DEPOT", b: "home depot", want: 1},
		{name: "store suffix still full match", a: "HOME DEPOT #123", b: "Home Depot", want: 1},
		{name: "no overlap", a: "Home Depot", b: "Ace Hardware", want: 0},
		{name: "partial overlap", a: "national grid gas", b: "national power", want: 0.5},
		{name: "empty side", a: "", b: "Home Depot", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, NameSimilarity(tt.a, tt.b), 0.0001)
		})
	}
}

func TestIsDuplicate(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	detector := NewDuplicateDetector(s, 0.7, 2)

	existing := &model.Expense{
		ID:                 "exp-1",
		UserID:             "user-1",
		Description:        "Home Depot",
		Amount:             50.00,
		Category:           CategoryRenovation,
		Date:               time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		PlaidTransactionID: "txn-original",
	}
	require.NoError(t, s.CreateExpense(ctx, existing))

	t.Run("exact transaction id match", func(t *testing.T) {
		dup, err := detector.IsDuplicate(ctx, "user-1", "txn-original",
			99.99, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), "Anything")
		require.NoError(t, err)
		assert.True(t, dup)
	})

	t.Run("fuzzy match inside window", func(t *testing.T) {
		dup, err := detector.IsDuplicate(ctx, "user-1", "txn-redelivered",
			50.00, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), "HOME DEPOT #123")
		require.NoError(t, err)
		assert.True(t, dup)
	})

	t.Run("different amount is not a duplicate", func(t *testing.T) {
		dup, err := detector.IsDuplicate(ctx, "user-1", "txn-other",
			50.01, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), "HOME DEPOT #123")
		require.NoError(t, err)
		assert.False(t, dup)
	})

	t.Run("outside date window is not a duplicate", func(t *testing.T) {
		dup, err := detector.IsDuplicate(ctx, "user-1", "txn-late",
			50.00, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), "HOME DEPOT #123")
		require.NoError(t, err)
		assert.False(t, dup)
	})

	t.Run("dissimilar name is not a duplicate", func(t *testing.T) {
		dup, err := detector.IsDuplicate(ctx, "user-1", "txn-coincidence",
			50.00, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), "Ace Hardware")
		require.NoError(t, err)
		assert.False(t, dup)
	})

	t.Run("other users expenses are invisible", func(t *testing.T) {
		dup, err := detector.IsDuplicate(ctx, "user-2", "txn-original",
			50.00, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), "Home Depot")
		require.NoError(t, err)
		assert.False(t, dup)
	})
}

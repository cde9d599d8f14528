package ingest

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/castlemilk/homepulse/backend/internal/store"
)

// DuplicateDetector decides whether an incoming transaction has already been
// recorded as an expense. Exact provider-ID lookup runs first; a fuzzy pass
// (same amount, nearby date, similar name) catches provider re-delivery of the
// same real-world purchase under a new ID.
type DuplicateDetector struct {
	store store.Store

	// SimilarityThreshold is the word-set overlap above which two names are
	// considered the same merchant.
	SimilarityThreshold float64
	// DateWindowDays is the +/- day window (inclusive) around the transaction
	// date searched for fuzzy candidates.
	DateWindowDays int
}

// NewDuplicateDetector creates a detector with the given tuning.
func NewDuplicateDetector(s store.Store, similarityThreshold float64, dateWindowDays int) *DuplicateDetector {
	return &DuplicateDetector{
		store:               s,
		SimilarityThreshold: similarityThreshold,
		DateWindowDays:      dateWindowDays,
	}
}

// IsDuplicate reports whether a transaction with the given identity already
// has an expense recorded for the user.
func (d *DuplicateDetector) IsDuplicate(ctx context.Context, userID, transactionID string, amount float64, date time.Time, name string) (bool, error) {
	// Stage 1: exact provider ID.
	_, err := d.store.GetExpenseByTransactionID(ctx, userID, transactionID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}

	// Stage 2: fuzzy. Same amount, date within the window, similar name.
	// Exact amount+date matching alone over-collides on common round amounts.
	windowStart := date.AddDate(0, 0, -d.DateWindowDays)
	windowEnd := date.AddDate(0, 0, d.DateWindowDays)
	candidates, err := d.store.FindExpensesNear(ctx, userID, amount, windowStart, windowEnd)
	if err != nil {
		return false, err
	}

	for _, candidate := range candidates {
		if NameSimilarity(name, candidate.Description) > d.SimilarityThreshold {
			return true, nil
		}
	}
	return false, nil
}

// NameSimilarity computes the word-set overlap of two merchant names: the
// intersection of their lower-cased, whitespace-tokenized word sets divided
// by the smaller set's size. Returns a value in [0, 1]. Dividing by the
// smaller set keeps "HOME DEPOT #1234" and "Home Depot" a full match even
// though the store suffix inflates one side.
func NameSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for token := range setA {
		if _, ok := setB[token]; ok {
			intersection++
		}
	}
	smaller := len(setA)
	if len(setB) < smaller {
		smaller = len(setB)
	}
	return float64(intersection) / float64(smaller)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range strings.Fields(strings.ToLower(s)) {
		set[token] = struct{}{}
	}
	return set
}

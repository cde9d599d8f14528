package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/castlemilk/homepulse/backend/internal/auth"
	"github.com/castlemilk/homepulse/backend/internal/ingest"
	"github.com/castlemilk/homepulse/backend/internal/store"
)

func (s *Service) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.RequireAuth(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	start, end := periodRange(r.URL.Query().Get("period"), time.Now())

	pageSize := int32(0)
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid page_size")
			return
		}
		pageSize = int32(parsed)
	}
	pageSize = auth.NormalizePageSize(pageSize)

	expenses, nextToken, err := s.store.ListExpenses(r.Context(), claims.UID,
		&start, &end, pageSize, r.URL.Query().Get("page_token"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"expenses":        expenses,
		"next_page_token": nextToken,
	})
}

type reviewExpenseRequest struct {
	Approve     bool   `json:"approve"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// handleReviewExpense resolves a flagged expense. Approval applies category
// and description edits and clears the flag. Rejection also clears the flag
// but forces the category back to uncategorized: the record stays for spend
// totals, it just carries no category claim.
func (s *Service) handleReviewExpense(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.RequireAuth(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var req reviewExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}

	expense, err := s.store.GetExpense(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if expense.UserID != claims.UID || expense.DeletedAt != nil {
		writeServiceError(w, store.ErrNotFound)
		return
	}

	if req.Approve {
		if req.Category != "" {
			expense.Category = req.Category
		}
		if req.Description != "" {
			expense.Description = req.Description
		}
	} else {
		expense.Category = ingest.CategoryUncategorized
	}
	expense.NeedsReview = false
	expense.UpdatedAt = time.Now()

	if err := s.store.UpdateExpense(r.Context(), expense); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

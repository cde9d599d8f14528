package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/castlemilk/homepulse/backend/internal/auth"
	"github.com/castlemilk/homepulse/backend/internal/ingest"
	"github.com/castlemilk/homepulse/backend/internal/model"
	"github.com/castlemilk/homepulse/backend/internal/store"
)

func (s *Service) handleListReadings(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.RequireAuth(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	start, end := periodRange(r.URL.Query().Get("period"), time.Now())

	var utilityType model.UtilityType
	if raw := r.URL.Query().Get("utility_type"); raw != "" {
		utilityType = model.UtilityType(raw)
		if !validUtilityType(utilityType) {
			writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "unknown utility_type")
			return
		}
	}

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

	readings, nextToken, err := s.store.ListReadings(r.Context(), claims.UID, utilityType,
		&start, &end, pageSize, r.URL.Query().Get("page_token"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// Detection rides along on the read path; its outcome never blocks or
	// fails the request.
	s.detector.ScanDetached(claims.UID, readings)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"readings":        readings,
		"next_page_token": nextToken,
	})
}

type createReadingRequest struct {
	UtilityType model.UtilityType `json:"utility_type"`
	UsageAmount float64           `json:"usage_amount"`
	Unit        string            `json:"unit"`
	Cost        *float64          `json:"cost"`
	ReadingDate string            `json:"reading_date"`
}

func (s *Service) handleCreateReading(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.RequireAuth(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var req createReadingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	if !validUtilityType(req.UtilityType) {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "unknown utility_type")
		return
	}
	if req.UsageAmount < 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "usage_amount must not be negative")
		return
	}

	readingDate := time.Now()
	if req.ReadingDate != "" {
		parsed, err := time.Parse("2006-01-02", req.ReadingDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "reading_date must be YYYY-MM-DD")
			return
		}
		readingDate = parsed
	}

	unit := req.Unit
	if unit == "" {
		unit = ingest.CanonicalUnit(req.UtilityType)
	}
	usage, unit := ingest.NormalizeUsage(req.UsageAmount, unit, req.UtilityType)

	now := time.Now()
	reading := &model.Reading{
		ID:          uuid.New().String(),
		UserID:      claims.UID,
		UtilityType: req.UtilityType,
		UsageAmount: usage,
		Unit:        unit,
		ReadingDate: readingDate,
		Confidence:  model.ConfidenceHigh,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Cost != nil {
		reading.Cost = *req.Cost
		reading.HasCost = true
	}

	if err := s.store.CreateReading(r.Context(), reading); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reading)
}

type reviewReadingRequest struct {
	Approve     bool     `json:"approve"`
	UsageAmount *float64 `json:"usage_amount"`
	Cost        *float64 `json:"cost"`
}

// handleReviewReading resolves a flagged reading. Approval applies any edits
// and clears the flag; rejection deletes the reading so the bill can be
// re-entered manually.
func (s *Service) handleReviewReading(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.RequireAuth(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var req reviewReadingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}

	reading, err := s.store.GetReading(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if reading.UserID != claims.UID {
		writeServiceError(w, store.ErrNotFound)
		return
	}

	if !req.Approve {
		if err := s.store.DeleteReading(r.Context(), reading.ID); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
		return
	}

	if req.UsageAmount != nil {
		reading.UsageAmount = *req.UsageAmount
	}
	if req.Cost != nil {
		reading.Cost = *req.Cost
		reading.HasCost = true
	}
	reading.NeedsReview = false
	reading.UpdatedAt = time.Now()

	if err := s.store.UpdateReading(r.Context(), reading); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

func validUtilityType(t model.UtilityType) bool {
	for _, known := range model.AllUtilityTypes() {
		if t == known {
			return true
		}
	}
	return false
}

package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/castlemilk/homepulse/backend/internal/auth"
	"github.com/castlemilk/homepulse/backend/internal/ingest"
	"github.com/castlemilk/homepulse/backend/internal/store"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var syncErr *ingest.SyncError
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
	case errors.As(err, &syncErr):
		switch syncErr.Code {
		case ingest.ErrConnectionNotFound:
			writeError(w, http.StatusNotFound, string(syncErr.Code), syncErr.Message)
		case ingest.ErrAuthDeclined, ingest.ErrCredentialsExpired:
			writeError(w, http.StatusBadRequest, string(syncErr.Code), syncErr.Message)
		default:
			writeError(w, http.StatusBadGateway, string(syncErr.Code), syncErr.Message)
		}
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "record not found")
	case errors.Is(err, store.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "ALREADY_EXISTS", "record already exists")
	default:
		zap.L().Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func decodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// periodRange resolves a ?period= query value into [start, end) ending now.
// Unrecognized or empty values default to a month.
func periodRange(period string, now time.Time) (time.Time, time.Time) {
	switch period {
	case "quarter":
		return now.AddDate(0, -3, 0), now
	case "year":
		return now.AddDate(-1, 0, 0), now
	default:
		return now.AddDate(0, -1, 0), now
	}
}

// previousRange returns the span of identical length immediately preceding
// [start, end). The previous span ends one day before the current start, so
// with inclusive store bounds a boundary reading is never counted twice.
func previousRange(start, end time.Time) (time.Time, time.Time) {
	length := end.Sub(start)
	prevEnd := start.AddDate(0, 0, -1)
	return prevEnd.Add(-length), prevEnd
}

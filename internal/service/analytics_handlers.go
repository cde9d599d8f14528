package service

import (
	"net/http"
	"time"

	"github.com/castlemilk/homepulse/backend/internal/analytics"
	"github.com/castlemilk/homepulse/backend/internal/auth"
	"github.com/castlemilk/homepulse/backend/internal/model"
	"github.com/castlemilk/homepulse/backend/internal/store"
)

// periodReadings loads the caller's readings for the requested period and the
// equal-length span preceding it.
func (s *Service) periodReadings(r *http.Request, userID string) (current, previous []*model.Reading, start, end time.Time, err error) {
	start, end = periodRange(r.URL.Query().Get("period"), time.Now())
	prevStart, prevEnd := previousRange(start, end)

	current, _, err = s.store.ListReadings(r.Context(), userID, "", &start, &end, 1000, "")
	if err != nil {
		return nil, nil, start, end, err
	}
	previous, _, err = s.store.ListReadings(r.Context(), userID, "", &prevStart, &prevEnd, 1000, "")
	if err != nil {
		return nil, nil, start, end, err
	}
	return current, previous, start, end, nil
}

func (s *Service) handleTrends(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.RequireAuth(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	start, end := periodRange(r.URL.Query().Get("period"), time.Now())
	readings, _, err := s.store.ListReadings(r.Context(), claims.UID, "", &start, &end, 1000, "")
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"trends": analytics.CalculateTrends(readings),
	})
}

func (s *Service) handleCosts(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.RequireAuth(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	current, previous, start, end, err := s.periodReadings(r, claims.UID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics.SummarizeCosts(current, previous, start, end))
}

func (s *Service) handleSustainability(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.RequireAuth(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	current, previous, _, _, err := s.periodReadings(r, claims.UID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics.ComputeSustainability(current, previous))
}

func (s *Service) handleTips(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.RequireAuth(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	current, previous, start, end, err := s.periodReadings(r, claims.UID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	trends := analytics.CalculateTrends(current)
	summary := analytics.SummarizeCosts(current, previous, start, end)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tips": s.tips.Generate(current, trends, summary, time.Now()),
	})
}

func (s *Service) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.RequireAuth(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	unresolvedOnly := r.URL.Query().Get("unresolved") == "true"
	alerts, err := s.store.ListAlerts(r.Context(), claims.UID, unresolvedOnly)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

func (s *Service) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.RequireAuth(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	alertID := r.PathValue("id")

	// The store has no point lookup for alerts; confirm ownership through the
	// caller's own list before resolving.
	alerts, err := s.store.ListAlerts(r.Context(), claims.UID, false)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	owned := false
	for _, alert := range alerts {
		if alert.ID == alertID {
			owned = true
			break
		}
	}
	if !owned {
		writeServiceError(w, store.ErrNotFound)
		return
	}

	if err := s.store.ResolveAlert(r.Context(), alertID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"resolved": true})
}

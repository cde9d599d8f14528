package service

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/castlemilk/homepulse/backend/internal/auth"
	"github.com/castlemilk/homepulse/backend/internal/ingest"
	"github.com/castlemilk/homepulse/backend/internal/model"
)

type plaidExchangeRequest struct {
	PublicToken string `json:"public_token"`
}

func (s *Service) handlePlaidExchange(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.RequireAuth(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var req plaidExchangeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	if req.PublicToken == "" {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "public_token is required")
		return
	}

	exchange, err := s.exchanger.ExchangePublicToken(r.Context(), req.PublicToken)
	if err != nil {
		writeServiceError(w, &ingest.SyncError{
			Code:      ingest.ErrProviderUnavailable,
			Message:   "token exchange failed",
			Retryable: true,
			Cause:     err,
		})
		return
	}

	now := time.Now()
	conn := &model.Connection{
		ID:           uuid.New().String(),
		UserID:       claims.UID,
		Provider:     ingest.ProviderPlaid,
		ConnectionID: exchange.ItemID,
		AccessToken:  exchange.AccessToken,
		Status:       model.ConnectionActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateConnection(r.Context(), conn); err != nil {
		writeServiceError(w, err)
		return
	}

	zap.L().Info("plaid connection created",
		zap.String("user_id", claims.UID),
		zap.String("item_id", exchange.ItemID))
	writeJSON(w, http.StatusCreated, conn)
}

type transactionsSyncRequest struct {
	ItemID string `json:"item_id"`
}

func (s *Service) handleTransactionsSync(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.RequireAuth(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var req transactionsSyncRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	if req.ItemID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "item_id is required")
		return
	}

	result, err := s.transactions.Sync(r.Context(), claims.UID, req.ItemID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type utilityConnectRequest struct {
	Referral string `json:"referral"`
}

func (s *Service) handleUtilityConnect(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.RequireAuth(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var req utilityConnectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	if req.Referral == "" {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "referral is required")
		return
	}

	conn, err := s.bills.Connect(r.Context(), claims.UID, req.Referral)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	accounts, err := s.store.ListUtilityAccounts(r.Context(), conn.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"connection": conn,
		"accounts":   accounts,
	})
}

type utilitySyncRequest struct {
	ConnectionID string `json:"connection_id"`
}

func (s *Service) handleUtilitySync(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.RequireAuth(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var req utilitySyncRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	if req.ConnectionID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "connection_id is required")
		return
	}

	result, err := s.bills.Sync(r.Context(), claims.UID, req.ConnectionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Service) handleListConnections(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.RequireAuth(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	connections, err := s.store.ListConnections(r.Context(), claims.UID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"connections": connections})
}

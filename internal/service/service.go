// Package service exposes the ingestion and analytics pipeline over JSON HTTP.
package service

import (
	"context"
	"net/http"

	"github.com/castlemilk/homepulse/backend/internal/analytics"
	"github.com/castlemilk/homepulse/backend/internal/config"
	"github.com/castlemilk/homepulse/backend/internal/ingest"
	"github.com/castlemilk/homepulse/backend/internal/plaid"
	"github.com/castlemilk/homepulse/backend/internal/store"
)

// TokenExchanger trades a provider public token for connection credentials.
// Satisfied by *plaid.Client.
type TokenExchanger interface {
	ExchangePublicToken(ctx context.Context, publicToken string) (*plaid.ExchangeResponse, error)
}

// Service wires the HTTP surface to the store, importers and analytics.
type Service struct {
	store        store.Store
	exchanger    TokenExchanger
	transactions *ingest.TransactionImporter
	bills        *ingest.BillImporter
	detector     *analytics.AnomalyDetector
	tips         *analytics.TipGenerator
}

// New assembles a Service from its dependencies.
func New(s store.Store, exchanger TokenExchanger, transactions *ingest.TransactionImporter, bills *ingest.BillImporter, cfg *config.Config) *Service {
	return &Service{
		store:        s,
		exchanger:    exchanger,
		transactions: transactions,
		bills:        bills,
		detector: analytics.NewAnomalyDetector(s,
			cfg.AnomalyThreshold, cfg.AnomalyHighThreshold,
			cfg.AnomalyWindowMonths, cfg.AnomalyMinHistory),
		tips: analytics.NewTipGenerator(cfg.HighSpendThreshold),
	}
}

// RegisterRoutes attaches every endpoint to the mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /v1/plaid/exchange", s.handlePlaidExchange)
	mux.HandleFunc("POST /v1/transactions/sync", s.handleTransactionsSync)
	mux.HandleFunc("POST /v1/utility/connect", s.handleUtilityConnect)
	mux.HandleFunc("POST /v1/utility/sync", s.handleUtilitySync)

	mux.HandleFunc("GET /v1/readings", s.handleListReadings)
	mux.HandleFunc("POST /v1/readings", s.handleCreateReading)
	mux.HandleFunc("POST /v1/readings/{id}/review", s.handleReviewReading)

	mux.HandleFunc("GET /v1/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /v1/expenses/{id}/review", s.handleReviewExpense)

	mux.HandleFunc("GET /v1/trends", s.handleTrends)
	mux.HandleFunc("GET /v1/costs", s.handleCosts)
	mux.HandleFunc("GET /v1/sustainability", s.handleSustainability)
	mux.HandleFunc("GET /v1/tips", s.handleTips)

	mux.HandleFunc("GET /v1/alerts", s.handleListAlerts)
	mux.HandleFunc("POST /v1/alerts/{id}/resolve", s.handleResolveAlert)

	mux.HandleFunc("GET /v1/connections", s.handleListConnections)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

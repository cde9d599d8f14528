package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/castlemilk/homepulse/backend/internal/auth"
	"github.com/castlemilk/homepulse/backend/internal/config"
	"github.com/castlemilk/homepulse/backend/internal/ingest"
	"github.com/castlemilk/homepulse/backend/internal/plaid"
	"github.com/castlemilk/homepulse/backend/internal/service"
	"github.com/castlemilk/homepulse/backend/internal/store"
	"github.com/castlemilk/homepulse/backend/internal/utilityapi"
)

func main() {
	// Ignore a missing .env; it only exists for local development.
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if os.Getenv("ENV") == "local" {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("failed to load config", zap.Error(err))
	}

	ctx := context.Background()

	local := os.Getenv("ENV") == "local"
	skipAuth := os.Getenv("SKIP_AUTH") == "true"

	var storeImpl store.Store
	var firebaseAuth *auth.FirebaseAuth

	switch {
	case os.Getenv("USE_MEMORY_STORE") == "true" || local:
		zap.L().Info("using in-memory store for local development")
		storeImpl = store.NewMemoryStore()
	case os.Getenv("USE_SQLITE") == "true":
		zap.L().Info("using sqlite store", zap.String("path", cfg.SQLitePath))
		sqliteStore, err := store.OpenSQLiteStore(cfg.SQLitePath)
		if err != nil {
			zap.L().Fatal("failed to open sqlite store", zap.Error(err))
		}
		defer sqliteStore.Close()
		storeImpl = sqliteStore
	default:
		projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
		firestoreClient, err := firestore.NewClient(ctx, projectID)
		if err != nil {
			zap.L().Fatal("failed to create firestore client", zap.Error(err))
		}
		defer firestoreClient.Close()
		storeImpl = store.NewFirestoreStore(firestoreClient)
	}

	if !local && !skipAuth {
		firebaseAuth, err = auth.NewFirebaseAuth(ctx)
		if err != nil {
			zap.L().Fatal("failed to initialize firebase auth", zap.Error(err))
		}
	}

	plaidClient := plaid.NewClient(cfg.PlaidBaseURL, cfg.PlaidClientID, cfg.PlaidSecret)
	utilityClient := utilityapi.NewClient(cfg.UtilityAPIBaseURL, cfg.UtilityAPIToken)

	dedup := ingest.NewDuplicateDetector(storeImpl, cfg.DedupSimilarity, cfg.DedupDateWindowDays)
	transactions := ingest.NewTransactionImporter(storeImpl, plaidClient, dedup)
	bills := ingest.NewBillImporter(storeImpl, utilityClient)

	svc := service.New(storeImpl, plaidClient, transactions, bills, cfg)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)

	var handler http.Handler = mux
	if firebaseAuth != nil {
		handler = auth.Middleware(firebaseAuth)(handler)
	} else {
		zap.L().Info("using local development authentication")
		handler = auth.LocalDevMiddleware()(handler)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: []string{
			"http://localhost:1234",
			"http://127.0.0.1:1234",
			"https://*.vercel.app",
		},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"User-Agent",
			"X-Debug-Impersonate-User",
		},
		AllowCredentials: true,
	})
	handler = c.Handler(handler)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}

	zap.L().Info("starting server", zap.String("port", cfg.Port))
	if err := srv.ListenAndServe(); err != nil {
		zap.L().Fatal("server exited", zap.Error(err))
	}
}

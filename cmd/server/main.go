package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"github.com/stakepool/treasury/internal/config"
	"github.com/stakepool/treasury/internal/database"
	"github.com/stakepool/treasury/internal/handlers"
	mW "github.com/stakepool/treasury/internal/middleware"
	"github.com/stakepool/treasury/internal/notify"
	"github.com/stakepool/treasury/internal/services"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title Pool Treasury API
// @version 1.0
// @description Ledger-based reconciliation and settlement engine for a shared staking pool
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("notify.webhook_url", "NOTIFY_WEBHOOK_URL")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize stores
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	settlementCfg := config.LoadSettlementConfig()

	var notifier notify.Notifier = notify.LogNotifier{}
	if url := viper.GetString("notify.webhook_url"); url != "" {
		notifier = notify.NewWebhookNotifier(url)
	}

	// Initialize services
	fxService := services.NewFxService(db, redisClient)
	ledgerService := services.NewLedgerService(db)
	reconciliationService := services.NewReconciliationService(ledgerService, settlementCfg)
	attributionService := services.NewAttributionService(db, ledgerService, fxService, settlementCfg)
	draftService := services.NewDraftService(db, ledgerService, fxService, notifier)
	settlementService := services.NewSettlementService(reconciliationService, ledgerService, settlementCfg)

	fxHandler := handlers.NewFxHandler(fxService)
	ledgerHandler := handlers.NewLedgerHandler(ledgerService, fxService)
	reconciliationHandler := handlers.NewReconciliationHandler(reconciliationService)
	balanceHandler := handlers.NewBalanceHandler(attributionService)
	draftHandler := handlers.NewDraftHandler(draftService)
	settlementHandler := handlers.NewSettlementHandler(settlementService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/openapi.yaml"),
	))

	// Serve OpenAPI spec
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yaml")
	})

	// Rendered settlement receipts
	r.Handle("/receipts/*", http.StripPrefix("/receipts/",
		mW.ReceiptFileServer(settlementCfg.ReceiptsDir)))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Post("/fx/rates", fxHandler.CaptureRate)
			r.Get("/fx/rates/{currency}", fxHandler.GetRate)

			r.Post("/ledger/entries", ledgerHandler.AppendEntry)
			r.Get("/ledger/entries", ledgerHandler.ListEntries)

			r.Get("/reconciliation/{associateId}", reconciliationHandler.GetCalculation)
			r.Get("/reconciliation/{associateId}/bookmakers", reconciliationHandler.GetBreakdown)

			r.Get("/balances/status", balanceHandler.GetStatuses)
			r.Post("/balances/checks", balanceHandler.UpdateCheck)
			r.Get("/balances/attribution", balanceHandler.GetAttribution)
			r.Get("/balances/{associateId}/{bookmakerId}/correction-prefill", balanceHandler.GetCorrectionPrefill)

			r.Post("/drafts", draftHandler.Create)
			r.Get("/drafts", draftHandler.Pending)
			r.Post("/drafts/{draftId}/accept", draftHandler.Accept)
			r.Post("/drafts/{draftId}/reject", draftHandler.Reject)

			r.Post("/settlements/{associateId}", settlementHandler.Settle)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"lihtc-backend/internal/config"
	"lihtc-backend/internal/cron"
	"lihtc-backend/internal/database"
	"lihtc-backend/internal/handlers"
	"lihtc-backend/internal/hud"
	"lihtc-backend/internal/middleware"
	"lihtc-backend/internal/snapshot"
	"lihtc-backend/internal/storage"
)

func main() {
	// 1. Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Connect to PostgreSQL (applies the schema idempotently)
	db := database.New(&cfg.DB)
	defer db.Close()

	// 3. Initialize file storage — R2 when configured, local disk otherwise
	var fileStore storage.Store
	if cfg.Upload.UseR2() {
		fileStore, err = storage.NewR2Store(
			cfg.Upload.R2AccountID, cfg.Upload.R2AccessKey, cfg.Upload.R2SecretKey,
			cfg.Upload.R2Bucket, cfg.Upload.R2PublicURL,
		)
		if err != nil {
			log.Fatalf("Failed to initialize R2 storage: %v", err)
		}
	} else {
		fileStore, err = storage.NewLocalStore(cfg.Upload.Dir, cfg.Upload.BaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize file storage: %v", err)
		}
	}

	// 4. HUD income-limits client with its TTL cache
	hudCache := hud.NewCache(cfg.HUD.CacheTTL, time.Now)
	hudClient := hud.NewClient(cfg.HUD.BaseURL, cfg.HUD.Token, cfg.HUD.Timeout, hudCache)

	// 5. Snapshot engine and the AMI refresh job
	engine := snapshot.NewEngine(db.GetPool())
	refresher := cron.NewAmiRefresher(db, hudClient, 24*time.Hour)

	cronCtx, cronCancel := context.WithCancel(context.Background())
	defer cronCancel()
	go refresher.Start(cronCtx)

	// 6. Set up router with global middleware
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// 7. Initialize handlers with their dependencies
	propertyHandler := handlers.NewPropertyHandler(db)
	unitHandler := handlers.NewUnitHandler(db)
	leaseHandler := handlers.NewLeaseHandler(db)
	residentHandler := handlers.NewResidentHandler(db)
	documentHandler := handlers.NewDocumentHandler(db)
	complianceHandler := handlers.NewComplianceHandler(db, engine)
	amiHandler := handlers.NewAmiHandler(db, hudClient, refresher)
	dashboardHandler := handlers.NewDashboardHandler(db)
	uploadHandler := handlers.NewUploadHandler(fileStore, cfg.Upload.Dir)

	// 8. Routes
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("LIHTC Compliance API"))
	})
	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(db.Health())
	})

	// Serve uploaded files (local storage only — R2 redirects to the CDN)
	r.Get("/api/files/*", uploadHandler.ServeFile)

	// File upload — rate limited, it hits object storage
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(1, 10))
		r.Post("/api/upload", uploadHandler.Upload)
	})

	// Dashboard
	r.Get("/api/dashboard", dashboardHandler.Metrics)

	// Properties
	r.Get("/api/properties", propertyHandler.List)
	r.Post("/api/properties", propertyHandler.Create)
	r.Route("/api/properties/{id}", func(r chi.Router) {
		r.Get("/", propertyHandler.GetByID)
		r.Put("/", propertyHandler.Update)
		r.Delete("/", propertyHandler.Delete)

		r.Get("/units", unitHandler.ListByProperty)
		r.Get("/matches", complianceHandler.ListMatches)
		r.Get("/discrepancies", complianceHandler.ListDiscrepancies)
		r.Get("/ami-report", amiHandler.Report)
		r.Post("/ami-refresh", amiHandler.Refresh)
		r.Get("/report.csv", dashboardHandler.PropertyReport)

		// The finalize transaction holds a per-property advisory lock
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(1, 3))
			r.Post("/compliance/finalize", complianceHandler.Finalize)
		})
	})

	// Units
	r.Route("/api/units/{id}", func(r chi.Router) {
		r.Get("/status", unitHandler.Status)
		r.Get("/leases", leaseHandler.ListByUnit)
		r.Post("/leases", leaseHandler.Create)
	})

	// Leases
	r.Route("/api/leases/{id}", func(r chi.Router) {
		r.Get("/", leaseHandler.GetByID)
		r.Get("/status", leaseHandler.Status)
	})

	// Residents
	r.Route("/api/residents/{id}", func(r chi.Router) {
		r.Post("/finalize", residentHandler.Finalize)
		r.Post("/no-income", residentHandler.MarkNoIncome)
		r.Post("/unfinalize", residentHandler.Unfinalize)
		r.Get("/documents", documentHandler.ListByResident)
		r.Post("/documents", documentHandler.Create)
	})

	// Documents
	r.Route("/api/documents/{id}", func(r chi.Router) {
		r.Get("/", documentHandler.GetByID)
		r.Post("/review", documentHandler.Review)
	})

	// Decision prompts
	r.Post("/api/matches/{id}/resolve", complianceHandler.ResolveMatch)
	r.Post("/api/discrepancies/{id}/resolve", complianceHandler.ResolveDiscrepancy)

	// 9. Start server with graceful shutdown
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: r,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Server started on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-done
	log.Println("Server stopped")
	cronCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited properly")
}

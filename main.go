package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/username/agriarche/backend/src/catalog"
	"github.com/username/agriarche/backend/src/config"
	"github.com/username/agriarche/backend/src/database"
	"github.com/username/agriarche/backend/src/handlers"
	"github.com/username/agriarche/backend/src/logger"
	"github.com/username/agriarche/backend/src/processors"
	"github.com/username/agriarche/backend/src/services"
	"github.com/username/agriarche/backend/src/store"
	"golang.org/x/time/rate"
)

func proxyHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Forwarded-Proto") == "https" {
			r.URL.Scheme = "https"
			r.TLS = &tls.ConnectionState{}
		}
		next.ServeHTTP(w, r)
	})
}

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000":    true,
			config.Cfg.FrontendBaseURL: true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, If-None-Match, access_token")
			w.Header().Set("Access-Control-Expose-Headers", "ETag")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("Kasuwa price backend starting...")

	cat := catalog.NewDefault()
	if config.Cfg.CatalogPath != "" {
		loaded, err := catalog.LoadFromFile(config.Cfg.CatalogPath)
		if err != nil {
			logger.L.Error("Failed to load commodity catalog, using built-in defaults", "path", config.Cfg.CatalogPath, "error", err)
		} else {
			cat = loaded
		}
	}

	var priceStore store.Store
	if config.Cfg.DatabaseURL != "" {
		logger.L.Info("Initializing Postgres store...")
		pgStore, err := store.NewPostgresStore(context.Background(), config.Cfg.DatabaseURL, config.Cfg.StoreTimeout)
		if err != nil {
			logger.L.Error("Failed to connect to Postgres", "error", err)
			os.Exit(1)
		}
		priceStore = pgStore
	} else {
		logger.L.Info("Initializing SQLite store...", "path", config.Cfg.DatabasePath)
		database.InitDB(config.Cfg.DatabasePath)
		database.RunMigrations(config.Cfg.DatabasePath)
		priceStore = store.NewSQLiteStore(database.DB, config.Cfg.StoreTimeout)
	}

	analysisCache := cache.New(5*time.Minute, 10*time.Minute)

	aggregator := processors.NewMetricsAggregator()
	dedupEngine := processors.NewDeduplicationEngine(priceStore, config.Cfg.StorePageSize)

	analysisService := services.NewAnalysisService(priceStore, aggregator, cat, analysisCache, config.Cfg.StorePageSize)
	uploadService := services.NewUploadService(priceStore, dedupEngine, catalog.CanonicalName, analysisService.InvalidateCache)

	uploadHandler := handlers.NewUploadHandler(uploadService)
	analysisHandler := handlers.NewAnalysisHandler(analysisService)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(proxyHeadersMiddleware)
	r.Use(enableCORS)
	r.Use(rateLimitMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "Kasuwa price backend is running"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(handlers.APIKeyMiddleware)

			r.Post("/upload", uploadHandler.HandleUpload)
			r.Post("/prices", uploadHandler.HandleAddPrice)
			r.Get("/analysis", analysisHandler.HandleGetAnalysis)
			r.Get("/gap-analysis", analysisHandler.HandleGetGapAnalysis)
			r.Get("/filter-options", analysisHandler.HandleGetFilterOptions)
			r.Get("/records", analysisHandler.HandleGetRecords)
			r.Get("/intelligence/{commodity}", analysisHandler.HandleGetIntelligence)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
		}
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}

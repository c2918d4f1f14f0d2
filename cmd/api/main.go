package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"inbox-deals-api/internal/backfill"
	"inbox-deals-api/internal/cache"
	"inbox-deals-api/internal/config"
	"inbox-deals-api/internal/deals"
	"inbox-deals-api/internal/events"
	"inbox-deals-api/internal/features"
	"inbox-deals-api/internal/handler"
	"inbox-deals-api/internal/jobstore"
	"inbox-deals-api/internal/middleware"
	"inbox-deals-api/internal/session"
	"inbox-deals-api/internal/tracing"
	"inbox-deals-api/internal/upstream"
)

func main() {
	configFile := flag.String("config", "", "Path to JSON config file")
	port := flag.String("port", "", "Server port (overrides config)")
	storePath := flag.String("store", "", "Job-handle store path (overrides config)")
	flag.Parse()

	// .env is optional; absence is not an error.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *storePath != "" {
		cfg.Store.Path = *storePath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Tracing
	if _, err := tracing.InitTracing(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: "inbox-deals-api",
		Environment: cfg.Tracing.Environment,
	}); err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer tracing.Shutdown(context.Background())

	// Job-handle store
	store, err := jobstore.NewStore(cfg.Store.Path)
	if err != nil {
		log.Fatalf("Failed to open job store: %v", err)
	}
	defer store.Close()

	// Upstream client
	up := upstream.NewClient(cfg.Upstream.BaseURL, time.Duration(cfg.Upstream.TimeoutSeconds)*time.Second)

	// Feature flags
	flags := features.NewManager()
	flags.Register(features.FeatureCacheEnabled, cfg.Cache.Enabled, "Cache upstream promotion payloads")
	flags.Register(features.FeatureEventHooksEnabled, true, "Enable async event hooks")
	flags.Register(features.FeatureIdentityDiff, false, "Identity-keyed refresh diffing instead of size-based")

	// Promotions cache: Redis when configured, in-memory otherwise
	var promoCache cache.Cache
	if cfg.Cache.RedisAddr != "" {
		redisCache, err := cache.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisCache.Close()
		promoCache = redisCache
	} else {
		promoCache = cache.NewMemoryCache()
	}

	// Events
	eventManager := events.NewManager(flags.IsEnabled(features.FeatureEventHooksEnabled))
	defer eventManager.Shutdown()

	// Flow components
	orchestrator := backfill.NewOrchestrator(store, up, cfg.Upstream.TenantID, cfg.Upstream.ScanWindowDays, cfg.Upstream.BatchSize)
	poller := backfill.NewPoller(up, backfill.Policy{
		Interval:    time.Duration(cfg.Backfill.PollIntervalSeconds) * time.Second,
		MaxAttempts: cfg.Backfill.MaxAttempts,
	})
	fetcher := deals.NewFetcher(up, promoCache, flags, time.Duration(cfg.Cache.TTLSeconds)*time.Second)

	sessions := session.NewManager()
	defer sessions.Shutdown()

	connector := session.NewConnector(orchestrator, poller, fetcher, eventManager, flags,
		time.Duration(cfg.Refresh.IntervalSeconds)*time.Second)

	// Stale-handle sweeper
	sweeper := jobstore.NewSweeper(store, up.JobStatus, time.Duration(cfg.Store.SweepIntervalMinutes)*time.Minute)
	if err := sweeper.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start handle sweeper: %v", err)
	}
	defer sweeper.Stop()

	// Handlers
	h := handler.NewHandler(up, sessions, connector, eventManager, handler.Options{
		Provider:    cfg.Upstream.Provider,
		RedirectURL: cfg.Upstream.RedirectURL,
		MaxBodySize: cfg.Security.MaxRequestBodySize,
	})

	// Rate limiter
	var rateLimiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = middleware.NewRateLimiter(cfg.RateLimit.Rate, time.Duration(cfg.RateLimit.Window)*time.Second)
		defer rateLimiter.Stop()
	}

	// Setup router
	r := chi.NewRouter()

	// Middleware (order matters)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.TracingMiddleware())

	if rateLimiter != nil {
		r.Use(middleware.RateLimitMiddleware(rateLimiter))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.Security.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/connect", h.Connect)
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.CreateSession)
			r.Route("/{session_id}", func(r chi.Router) {
				r.Get("/", h.GetSession)
				r.Get("/deals", h.GetDeals)
				r.Get("/notifications", h.GetNotifications)
				r.Post("/visibility", h.SetVisibility)
				r.Delete("/", h.DeleteSession)
			})
		})
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Printf("Job store: %s", cfg.Store.Path)
	log.Printf("Upstream: %s (scan window %d days, batch %d)", cfg.Upstream.BaseURL, cfg.Upstream.ScanWindowDays, cfg.Upstream.BatchSize)
	log.Printf("Polling: every %ds, up to %d attempts; refresh every %ds",
		cfg.Backfill.PollIntervalSeconds, cfg.Backfill.MaxAttempts, cfg.Refresh.IntervalSeconds)

	server := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down server: %v", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed: %v", err)
	}
}

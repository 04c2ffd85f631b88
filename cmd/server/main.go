package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paintcrew/fieldtime/internal/adminedit"
	"github.com/paintcrew/fieldtime/internal/audit"
	"github.com/paintcrew/fieldtime/internal/authz"
	"github.com/paintcrew/fieldtime/internal/cleanup"
	"github.com/paintcrew/fieldtime/internal/clockevents"
	"github.com/paintcrew/fieldtime/internal/config"
	"github.com/paintcrew/fieldtime/internal/database"
	"github.com/paintcrew/fieldtime/internal/events"
	"github.com/paintcrew/fieldtime/internal/handlers"
	"github.com/paintcrew/fieldtime/internal/idempotency"
	"github.com/paintcrew/fieldtime/internal/invoice"
	"github.com/paintcrew/fieldtime/internal/middleware"
	"github.com/paintcrew/fieldtime/internal/multitenancy"
	"github.com/paintcrew/fieldtime/internal/pdf"
	"github.com/paintcrew/fieldtime/internal/probes"
	"github.com/paintcrew/fieldtime/internal/reaper"
	"github.com/paintcrew/fieldtime/internal/users"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := config.Get()
	port := cfg.GetPort()

	companyConfigPath := os.Getenv("COMPANY_CONFIG_PATH")
	if companyConfigPath == "" {
		companyConfigPath = "company_config.yaml"
	}
	cfgMgr, err := config.NewManagerFromConfig(cfg, companyConfigPath)
	if err != nil {
		log.Fatalf("failed to load company config overlay: %v", err)
	}

	db, err := database.NewSupabaseStore()
	if err != nil {
		log.Fatalf("failed to initialize Supabase store: %v", err)
	}

	tenantManager := multitenancy.NewTenantManager(db)

	// Idempotency store — Redis when available, in-memory fallback.
	var idemBackend idempotency.Backend
	if cfg.Redis.Enabled {
		backend, err := idempotency.NewRedisBackend(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			slog.Warn("redis connection failed, falling back to in-memory idempotency store", "addr", cfg.Redis.Addr, "error", err)
			idemBackend = idempotency.NewMemBackend()
		} else {
			idemBackend = backend
		}
	} else {
		idemBackend = idempotency.NewMemBackend()
	}
	idemStore := idempotency.New(idemBackend)

	// Event bus — Cloud Pub/Sub when enabled, in-memory fallback; SSE always
	// reads off the in-memory bus.
	var eventEmitter events.EventEmitter
	var eventBus *events.EventBus
	if cfg.PubSub.Enabled && cfg.PubSub.ProjectID != "" {
		pubsubBus, err := events.NewPubSubEventBus(cfg.PubSub.ProjectID, cfg.PubSub.TopicID)
		if err != nil {
			slog.Warn("pubsub init failed, falling back to in-memory event bus", "error", err)
			eventBus = events.NewEventBus()
			eventEmitter = eventBus
		} else {
			defer pubsubBus.Close()
			eventEmitter = pubsubBus
			eventBus = pubsubBus.EventBus
		}
	} else {
		eventBus = events.NewEventBus()
		eventEmitter = eventBus
	}

	auditRecorder := audit.NewRecorder(db)
	authz.SetRecorder(auditRecorder)

	clockEventsSvc := clockevents.NewService(db, idemStore, cfgMgr)
	adminEditSvc := adminedit.NewService(db, auditRecorder)
	invoiceSvc := invoice.NewService(db, idemStore, eventEmitter, cfgMgr)
	usersSvc := users.NewService(db, auditRecorder)

	objectStore := pdf.NewObjectStore(cfg.GetSupabaseURL(), cfg.GetSupabaseKey(), cfg.Storage.Bucket)
	pdfSvc := pdf.NewService(db, objectStore, eventBus, time.Duration(cfg.Storage.SignedURLDefaultSeconds)*time.Second)

	probeStore := probes.NewStore()

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())

	// Background jobs: auto clock-out reaper (C7), PDF pipeline subscriber
	// (C10), and the latency probe runner (C13).
	autoClockoutReaper := reaper.New(db, cfg.Timekeeping.AutoClockoutHours)
	go autoClockoutReaper.RunForever(shutdownCtx, 5*time.Minute)
	go pdfSvc.Run(shutdownCtx)

	// The scheduled kv_read probe needs a company to probe against; without
	// one configured it's skipped and the module relies solely on the
	// per-request timing the probes.Middleware below records off real
	// traffic.
	if cfg.Probes.CompanyID != "" {
		probeRunner := probes.NewRunner(probeStore, db)
		go probeRunner.RunForever(shutdownCtx, time.Duration(cfg.Probes.IntervalMinutes)*time.Minute, cfg.Probes.CompanyID)
	} else {
		slog.Info("probes: no company_id configured, scheduled kv_read probe disabled")
	}

	// The TTL cleanup sweep (C12) needs a direct Postgres connection since
	// PostgREST has no DELETE ... LIMIT; without a DSN it's skipped.
	if cfg.Database.Supabase.PostgresDSN != "" {
		cleanupJob, err := cleanup.New(cfg.Database.Supabase.PostgresDSN, cleanup.Retention{
			EstimatesStaleYears:      cfg.Retention.EstimatesStaleYears,
			AssignmentsInactiveYears: cfg.Retention.AssignmentsInactiveYears,
			AuditRetentionDays:       cfg.Retention.AuditRetentionDays,
			BackupsRetentionDays:     cfg.Retention.BackupsRetentionDays,
			ProbesRetentionDays:      cfg.Retention.ProbesRetentionDays,
		})
		if err != nil {
			slog.Warn("cleanup: failed to open postgres connection, retention sweep disabled", "error", err)
		} else {
			defer cleanupJob.Close()
			go cleanupJob.RunForever(shutdownCtx, 24*time.Hour)
		}
	} else {
		slog.Info("cleanup: no postgres_dsn configured, retention sweep disabled")
	}

	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		status := "connected"
		if err := db.Ping(ctx); err != nil {
			status = "error"
		}
		handlers.WriteJSON(w, map[string]string{"status": "healthy", "service": "fieldtime", "datastore": status})
	}).Methods("GET")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/.well-known/fieldtime.json", handlers.HandleServiceCard()).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		MaxCallsPerMinute: cfg.RateLimit.RequestsPerMinute,
		BurstSize:         cfg.RateLimit.Burst,
	})

	api.Use(func(next http.Handler) http.Handler {
		wrapped := middleware.PrincipalMiddleware(tenantManager, db, func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
		})
		return wrapped
	})
	api.Use(rateLimiter.Middleware)
	api.Use(probes.Middleware(probeStore))

	api.HandleFunc("/clock-events/in", handlers.ClockIn(clockEventsSvc)).Methods("POST").Name("clockIn")
	api.HandleFunc("/clock-events/out", handlers.ClockOut(clockEventsSvc)).Methods("POST").Name("clockOut")

	api.HandleFunc("/time-entries/{id}", handlers.GetTimeEntry(adminEditSvc)).Methods("GET").Name("getTimeEntry")
	api.HandleFunc("/time-entries/{id}", handlers.EditTimeEntry(adminEditSvc)).Methods("PATCH").Name("editTimeEntry")
	api.HandleFunc("/time-entries/{id}/approve", handlers.ApproveTimeEntry(adminEditSvc)).Methods("POST").Name("approveTimeEntry")

	api.HandleFunc("/invoices", handlers.GenerateInvoice(invoiceSvc)).Methods("POST").Name("invoice_generation")
	api.HandleFunc("/invoices/{id}/pdf-url", handlers.GetInvoicePDFURL(pdfSvc)).Methods("GET").Name("getInvoicePdfUrl")
	api.HandleFunc("/invoices/{id}/pdf/regenerate", handlers.RegenerateInvoicePDF(pdfSvc)).Methods("POST").Name("regenerateInvoicePdf")

	api.HandleFunc("/users/role", handlers.SetUserRole(usersSvc)).Methods("POST").Name("setUserRole")

	api.HandleFunc("/events/stream", handlers.HandleSSEStream(eventBus)).Methods("GET")

	router.Use(handlers.MakeCORSMiddleware(cfg))
	router.Use(handlers.LoggingMiddleware)

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("received shutdown signal, shutting down gracefully")
		shutdownCancel()

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("fieldtime starting", "port", port, "health_check", "http://localhost:"+port+"/health")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed to start: %v", err)
	}

	slog.Info("server stopped")
}

// server runs the auth HTTP API.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"photo-platform/backend/internal/audit"
	auditrepo "photo-platform/backend/internal/audit/repository"
	"photo-platform/backend/internal/auth/service"
	"photo-platform/backend/internal/cache"
	"photo-platform/backend/internal/config"
	"photo-platform/backend/internal/db"
	"photo-platform/backend/internal/httpapi"
	"photo-platform/backend/internal/ratelimit"
	"photo-platform/backend/internal/security"
	"photo-platform/backend/internal/telemetry/otel"
	tokenrepo "photo-platform/backend/internal/token/repository"
	userrepo "photo-platform/backend/internal/user/repository"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	secret, err := cfg.RequireJWTSecret()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("config: DATABASE_URL must be set")
	}

	ctx := context.Background()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "photo-platform-auth", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	redisCfg := cache.DefaultConfig()
	redisCfg.Addr = cfg.RedisAddr
	redisCfg.Password = cfg.RedisPassword
	redisCfg.DB = cfg.RedisDB
	store, err := cache.NewStore(redisCfg)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	defer store.Close()

	hasher := security.NewHasher(cfg.BcryptCost)
	codec := security.NewTokenCodec(secret, cfg.JWTIssuer)

	users := userrepo.NewPostgresRepository(database)
	ledger := tokenrepo.NewTxLedger(database)
	auditRepo := auditrepo.NewPostgresRepository(database)
	auditLog := otel.NewAuditMirror(providers.LoggerProvider, audit.NewLogger(auditRepo))

	svc := service.NewAuthService(users, ledger, store, hasher, codec, auditLog,
		cfg.AccessTTL(), cfg.RefreshTTL())

	limiter := ratelimit.New(store)
	rates := httpapi.Rates{
		Login:    mustRate(cfg.RateLimitLogin),
		Register: mustRate(cfg.RateLimitRegister),
		API:      mustRate(cfg.RateLimitAPI),
	}

	api := httpapi.New(svc, limiter, rates, auditLog, httpapi.ReadyProbe{DB: database}, version)
	metrics, err := httpapi.NewMetrics(providers.MeterProvider)
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}
	api.WithMetrics(metrics)
	api.WithAuditLog(auditRepo)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("HTTP server stopped")
}

func mustRate(s string) httpapi.Rate {
	limit, window, err := ratelimit.ParseRate(s)
	if err != nil {
		log.Fatalf("config: rate limit %q: %v", s, err)
	}
	return httpapi.Rate{Limit: limit, Window: window}
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/perkhub/perkhub-api/internal/config"
	"github.com/perkhub/perkhub-api/internal/domain/directory"
	"github.com/perkhub/perkhub-api/internal/domain/eligibility"
	"github.com/perkhub/perkhub-api/internal/domain/ledger"
	"github.com/perkhub/perkhub-api/internal/domain/redemption"
	"github.com/perkhub/perkhub-api/internal/domain/settings"
	"github.com/perkhub/perkhub-api/internal/domain/terminal"
	"github.com/perkhub/perkhub-api/internal/domain/usagecode"
	"github.com/perkhub/perkhub-api/internal/domain/verification"
	"github.com/perkhub/perkhub-api/internal/middleware"
	"github.com/perkhub/perkhub-api/internal/pkg/database"
	"github.com/perkhub/perkhub-api/internal/pkg/events"
	"github.com/perkhub/perkhub-api/internal/pkg/jwt"
	"github.com/perkhub/perkhub-api/internal/pkg/logger"
	"github.com/perkhub/perkhub-api/internal/pkg/response"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting PerkHub API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redisClient)

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)
	publisher := events.NewPublisher(redisClient)

	// ---------- Repositories ----------
	directoryRepo := directory.NewRepository(db)
	settingsRepo := settings.NewRepository(db, settings.Defaults{
		UsageCodeTTLSeconds:        cfg.UsageCodeTTLSeconds,
		UsageCodeMaxUses:           cfg.UsageCodeMaxUses,
		ActiveMemberWindowDays:     cfg.ActiveMemberWindowDays,
		ActiveMemberRequiredUsages: cfg.ActiveMemberRequiredUsages,
	})
	ledgerRepo := ledger.NewRepository(db)
	usageCodeRepo := usagecode.NewRepository(db)
	redemptionRepo := redemption.NewRepository(db)

	// ---------- Services ----------
	evaluator := eligibility.NewEvaluator(ledgerRepo, settingsRepo)
	usageCodeService := usagecode.NewService(db, usageCodeRepo, directoryRepo, settingsRepo, publisher, cfg.CodeAttemptBudget)
	redemptionService := redemption.NewService(
		db, redemptionRepo, directoryRepo, publisher,
		time.Duration(cfg.RedemptionWindowHours)*time.Hour, cfg.CodeAttemptBudget,
	)
	engine := verification.NewEngine(db, directoryRepo, usageCodeRepo, ledgerRepo, evaluator, publisher)

	// ---------- WebSocket hub ----------
	terminalHub := terminal.NewHub(redisClient)
	defer terminalHub.Stop()

	// ---------- Handlers ----------
	usageCodeHandler := usagecode.NewHandler(usageCodeService)
	redemptionHandler := redemption.NewHandler(redemptionService)
	verificationHandler := verification.NewHandler(engine)
	terminalHandler := terminal.NewHandler(terminalHub)

	authMiddleware := middleware.Auth(jwtService)
	optionalAuthMiddleware := middleware.OptionalAuth(jwtService)

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	// WebSocket endpoint. Terminals pass the token as a query parameter
	// since browser WebSocket clients cannot set headers.
	r.Get("/ws/terminal", func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		authMiddleware(middleware.RequirePartner()(http.HandlerFunc(terminalHandler.Serve))).ServeHTTP(w, r)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/redemptions", redemptionHandler.Routes(authMiddleware))
		r.Mount("/usage-codes", usageCodeHandler.Routes(authMiddleware))
		r.Mount("/verifications", verificationHandler.Routes(optionalAuthMiddleware))
		r.Mount("/admin/redemptions", redemptionHandler.AdminRoutes(authMiddleware))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

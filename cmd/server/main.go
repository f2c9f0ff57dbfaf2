// @title           Section 1983 Complaint Builder API
// @version         1.0
// @description     Guided civil-rights complaint drafting: questionnaire sections, AI assists, court lookup, PDF output, billing and referrals.
// @contact.name    Aldo Rifki Putra
// @contact.email   aldoetobex@gmail.com
// @BasePath        /api
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
// @description     Format: Bearer <token>
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aldoetobex/section1983-backend/internal/assist"
	"github.com/aldoetobex/section1983-backend/internal/auth"
	"github.com/aldoetobex/section1983-backend/internal/caselaw"
	"github.com/aldoetobex/section1983-backend/internal/court"
	"github.com/aldoetobex/section1983-backend/internal/documents"
	"github.com/aldoetobex/section1983-backend/internal/generation"
	"github.com/aldoetobex/section1983-backend/internal/jobs"
	"github.com/aldoetobex/section1983-backend/internal/payments"
	"github.com/aldoetobex/section1983-backend/internal/prompts"
	"github.com/aldoetobex/section1983-backend/internal/storage"
	"github.com/aldoetobex/section1983-backend/internal/transcript"
	"github.com/aldoetobex/section1983-backend/internal/wizard"
	"github.com/aldoetobex/section1983-backend/pkg/config"
	"github.com/aldoetobex/section1983-backend/pkg/database"
	"github.com/aldoetobex/section1983-backend/pkg/llm"
	"github.com/aldoetobex/section1983-backend/pkg/logger"
	"github.com/aldoetobex/section1983-backend/pkg/metrics"
	"github.com/aldoetobex/section1983-backend/pkg/models"
	"github.com/aldoetobex/section1983-backend/pkg/redis"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logg := logger.New(logger.Options{
		ServiceName: "section1983-api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DB)
	if err != nil {
		logg.Error(ctx, "database unavailable", err)
		os.Exit(1)
	}

	var cache *redis.Client
	if cfg.Redis.Enabled() {
		if cache, err = redis.New(ctx, cfg.Redis); err != nil {
			logg.Error(ctx, "redis unavailable", err)
			os.Exit(1)
		}
		defer cache.Close()
	} else {
		logg.Warn(ctx, "REDIS_URL not set; rate limits, webhook dedupe and prompt cache are off")
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	runner := jobs.NewRunner(logg, m)

	policy := models.Policy{
		DraftExpiry:       cfg.Policy.DraftExpiry(),
		FreeAIGenerations: cfg.Policy.FreeAIGenerations,
		PaidAIGenerations: cfg.Policy.PaidAIGenerations,
	}

	files := storage.New(cfg.Supabase)
	docs := documents.NewService(db, policy, logg, m)
	courts := court.NewHandler(court.Default(), m)

	promptStore, err := prompts.NewStore(db, cache, cfg.Redis.PromptCacheTTL, logg)
	if err != nil {
		logg.Error(ctx, "prompt defaults", err)
		os.Exit(1)
	}
	ai, err := assist.NewService(assist.Deps{
		Docs:              docs,
		Prompts:           promptStore,
		LLM:               llm.New(cfg.OpenAI),
		Cache:             cache,
		Runner:            runner,
		Log:               logg,
		Metrics:           m,
		RequestsPerMinute: cfg.Policy.AIRequestsPerMinute,
		DuplicateWindow:   cfg.Policy.DuplicateSuppression,
	})
	if err != nil {
		logg.Error(ctx, "assist service", err)
		os.Exit(1)
	}

	provider, err := payments.NewProvider(cfg.Stripe)
	if err != nil {
		logg.Error(ctx, "payment provider", err)
		os.Exit(1)
	}
	billing, err := payments.NewService(payments.Deps{
		DB:             db,
		Pricing:        cfg.Pricing,
		Policy:         cfg.Policy,
		Stripe:         cfg.Stripe,
		Provider:       provider,
		Cache:          cache,
		Log:            logg,
		Metrics:        m,
		IdempotencyTTL: cfg.Redis.IdempotencyTTL,
	})
	if err != nil {
		logg.Error(ctx, "payments service", err)
		os.Exit(1)
	}

	tokens := auth.NewTokens(cfg.JWT, logg)

	app := fiber.New(fiber.Config{
		ErrorHandler: auth.ErrorHandler,
		BodyLimit:    30 * 1024 * 1024,
	})
	app.Use(logger.Middleware(logg))

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	// Auth
	authH := auth.NewHandler(db, tokens, cfg.Policy.FreeAIGenerations)
	api.Post("/signup", authH.Signup)
	api.Post("/login", authH.Login)

	// Public reference data
	api.Get("/court/lookup", courts.Lookup)
	api.Get("/court/states", courts.States)
	api.Get("/court/states/:code", courts.State)

	caseH := caselaw.NewHandler(db)
	caseH.Mount(api)

	payH := payments.NewHandler(billing, cfg.App.Env)
	payH.MountPublic(api)

	// Signed-in users. Registered after the public routes so those never reach RequireAuth.
	user := api.Group("", tokens.RequireAuth())
	user.Get("/me", authH.Me)
	user.Put("/me/profile", authH.UpdateProfile)
	user.Post("/me/consents", authH.AcceptConsents)

	documents.NewHandler(docs, files, courts).Mount(user)
	assist.NewHandler(ai).Mount(user)
	generation.NewHandler(generation.New(docs, promptStore, ai, courts, files, logg)).Mount(user)
	transcript.NewHandler(transcript.NewService(docs, transcript.New(cfg.Transcript), logg, m)).Mount(user)
	payH.Mount(user)

	// Mobile wizard
	wizard.NewHandler(wizard.NewService(docs, ai, logg)).Mount(user.Group("/v1/wizard"))

	// Staff
	admin := app.Group(cfg.App.AdminPath, tokens.RequireAuth(), auth.RequireStaff())
	promptH := prompts.NewHandler(db, promptStore)
	admin.Get("/prompts", promptH.List)
	admin.Get("/prompts/:key", promptH.Get)
	admin.Put("/prompts/:key", promptH.Upsert)
	admin.Delete("/prompts/:key", promptH.Delete)
	admin.Post("/prompts/:key/preview", promptH.Preview)
	caseH.MountAdmin(admin)
	payH.MountAdmin(admin)

	go docs.RunSweep(ctx, cfg.App.ExpirySweepInterval)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "shutdown", err)
		}
	}()

	logg.Info(ctx, "server running on :"+cfg.App.Port)
	if err := app.Listen(":" + cfg.App.Port); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "server stopped", err)
	}

	// Let in-flight AI jobs record their results before the DB goes away.
	runner.Wait()
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"freelance-apply-pipeline/internal/config"
	"freelance-apply-pipeline/internal/domain/model"
	"freelance-apply-pipeline/internal/domain/ports/adapter"
	aiAdapters "freelance-apply-pipeline/internal/infra/adapters/ai"
	"freelance-apply-pipeline/internal/infra/adapters/connectors"
	"freelance-apply-pipeline/internal/infra/adapters/stages"
	tele "freelance-apply-pipeline/internal/infra/adapters/telegram"
	pg "freelance-apply-pipeline/internal/infra/db/postgres"
	admin "freelance-apply-pipeline/internal/infra/http"
	"freelance-apply-pipeline/internal/infra/logging"
	"freelance-apply-pipeline/internal/infra/metrics"
	red "freelance-apply-pipeline/internal/infra/redis"
	"freelance-apply-pipeline/internal/infra/registry"
	"freelance-apply-pipeline/internal/infra/web"
	"freelance-apply-pipeline/internal/infra/worker"
	"freelance-apply-pipeline/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logBuf := web.NewLogBuffer(500)
	logger := logging.NewWithWriter(cfg.Log, cfg.Runtime.Dev, logBuf)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	limiter := red.NewRateLimiter(redisClient)
	modeStore := red.NewModeStore(redisClient, model.SubmissionMode(cfg.Pipeline.DefaultMode))

	// ---- Repositories and task registry ----
	jobRepo := pg.NewJobRepo(pool)
	processedRepo := pg.NewProcessedIDRepo(pool)
	tasks := registry.New(cfg.Pipeline.TaskRetention, 0)

	// ---- AI adapter (OpenAI -> Gemini -> noop in dev) ----
	ai, provider, err := buildAI(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("ai adapter setup failed")
	}
	logger.Info().Str("provider", provider).Str("model", cfg.AI.DefaultModel).Msg("ai adapter ready")
	ai = aiAdapters.NewLimitedAI(ai, provider, cfg.AI.ConcurrentLimit, limiter, cfg.AI.CallsPerMinute)
	ai, err = aiAdapters.NewBudgetedAI(ai, cfg.AI.DefaultModel, cfg.AI.MaxInputTokens)
	if err != nil {
		logger.Fatal().Err(err).Msg("token budget setup failed")
	}

	profile := loadProfile(cfg.AI.ProfilePath, logger)

	// ---- Stage executors ----
	httpTimeout := cfg.Services.HTTPTimeout
	scorer := stages.NewScorer(ai, profile)
	booster := stages.NewBoostDecider(ai)
	extractor := stages.NewExtractorClient(cfg.Services.ExtractorURL, httpTimeout)
	generator := stages.NewGeneratorClient(cfg.Services.GeneratorURL, httpTimeout)
	submitDriver := stages.NewSubmitterClient(cfg.Services.SubmitterURL, httpTimeout, 0)

	// ---- Use cases ----
	submissionUC := usecase.NewSubmissionUseCase(jobRepo, locker, tasks, submitDriver, cfg.Pipeline.SubmissionTimeout, logger)
	approvalUC := usecase.NewApprovalUseCase(jobRepo, modeStore, locker, submissionUC, logger)

	var approvalChannel adapter.ApprovalChannel
	if cfg.Telegram.Enabled {
		bot, err := tele.NewApprovalBot(cfg.Telegram.Token, cfg.Telegram.ChatID, approvalUC, cfg.Pipeline.Workers, *logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram bot setup failed")
		}
		go func() {
			if err := bot.StartPolling(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("telegram polling stopped")
			}
		}()
		approvalChannel = bot
	} else {
		approvalChannel = tele.NewNoopApprovalChannel(*logger)
	}

	pipelineUC := usecase.NewPipelineUseCase(
		jobRepo, modeStore, locker, tasks, submissionUC, approvalChannel,
		scorer, extractor, generator, booster,
		cfg.Pipeline.ScoreThreshold, logger,
	)

	workerPool := worker.NewPool(cfg.Pipeline.Workers, logger)
	workerPool.Start(ctx)
	defer workerPool.Stop()

	ingestUC := usecase.NewIngestUseCase(
		[]adapter.Connector{
			connectors.NewScraperConnector(cfg.Services.ScraperURL, httpTimeout),
			connectors.NewInboxConnector(cfg.Services.InboxURL, httpTimeout),
			connectors.NewManualConnector(),
		},
		processedRepo, jobRepo, pipelineUC, limiter, workerPool, pg.NewTxManager(pool), logger,
	)
	jobUC := usecase.NewJobUseCase(jobRepo, logger)
	statsUC := usecase.NewStatsUseCase(jobRepo, processedRepo, tasks)

	// ---- Control plane ----
	auth := web.NewAuthManager(cfg.Web.JWTSecret, !cfg.Runtime.Dev, "", 24*time.Hour)
	server := web.NewServer(web.ServerDeps{
		Ingest:        ingestUC,
		Pipeline:      pipelineUC,
		Jobs:          jobUC,
		Approvals:     approvalUC,
		Submitter:     submissionUC,
		Stats:         statsUC,
		Modes:         modeStore,
		Tasks:         tasks,
		Auth:          auth,
		AdminPassword: cfg.Web.AdminPassword,
		LogBuffer:     logBuf,
		Probes: map[string]web.HealthProbe{
			"postgres": func(ctx context.Context) error { return pool.Ping(ctx) },
			"redis":    redisClient.Ping,
		},
		BatchSize: cfg.Pipeline.BatchSize,
		Log:       logger,
	})
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Web.Port)
		if err := server.Serve(ctx, addr); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("web server error")
		}
	}()

	// ---- Admin (metrics + liveness) ----
	adminSrv := admin.NewAdminServer(cfg.Admin.Port, logger)
	go func() {
		if err := adminSrv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("admin server error")
		}
	}()

	// ---- DB pool gauge sampler ----
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := pool.Stat()
				metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
			}
		}
	}()

	// ---- Background pipeline worker ----
	pipelineWorker := worker.NewPipelineWorker(
		cfg.Pipeline.PollInterval, cfg.Pipeline.StuckSweepAfter, cfg.Pipeline.BatchSize,
		pipelineUC, submissionUC, logger,
	)
	go func() { _ = pipelineWorker.Run(ctx) }()

	logger.Info().Int("web_port", cfg.Web.Port).Int("admin_port", cfg.Admin.Port).Msg("orchestrator started")

	<-ctx.Done()
	logger.Info().Msg("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = adminSrv.Shutdown(shutdownCtx)
}

func buildAI(ctx context.Context, cfg *config.Config) (adapter.AIService, string, error) {
	switch {
	case cfg.AI.OpenAIKey != "":
		a, err := aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.DefaultModel, "")
		return a, "openai", err
	case cfg.AI.GeminiKey != "":
		a, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.DefaultModel, "", 0)
		return a, "gemini", err
	case cfg.Runtime.Dev:
		return aiAdapters.NewNoopAI(""), "noop", nil
	default:
		return nil, "", fmt.Errorf("no AI provider configured: set ai.openai_key or ai.gemini_key")
	}
}

// loadProfile reads the freelancer profile used by the scoring prompt.
// A missing profile is worth a warning but not a startup failure.
func loadProfile(path string, logger *zerolog.Logger) string {
	if path == "" {
		logger.Warn().Msg("ai.profile_path not set, scoring runs without a profile")
		return ""
	}
	b, err := os.ReadFile(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("profile read failed")
		return ""
	}
	return strings.TrimSpace(string(b))
}
